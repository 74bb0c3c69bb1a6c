// Package web serves the single page chat UI of the knowledge assistant.
package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/teilomillet/gofh"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/rag"
)

// Page text.
const (
	Title         = "Knowledge Assistant"
	Intro         = "Enter a query below to retrieve relevant information from your documents."
	QueryLabel    = "Ask a question:"
	SearchingText = "🔎 Searching for relevant information..."
	EndButton     = "End Session"
	EndedText     = "Session ended. You can close this page."
)

// Asker is the part of *knowledge.Assistant the server needs.
type Asker interface {
	Ask(ctx context.Context, sessionID, query string) (*knowledge.Answer, error)
	NewSession() string
	EndSession(id string)
}

// Server renders the query page and answers htmx requests.
type Server struct {
	assistant Asker
	exit      func(code int)
	exitDelay time.Duration
	logger    rag.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithExitFunc sets what End Session calls to stop the process.
func WithExitFunc(exit func(code int)) ServerOption {
	return func(s *Server) {
		s.exit = exit
	}
}

// WithExitDelay sets how long End Session waits before exiting so the
// response can reach the browser.
func WithExitDelay(d time.Duration) ServerOption {
	return func(s *Server) {
		s.exitDelay = d
	}
}

// WithLogger sets the server logger.
func WithLogger(logger rag.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server answering through assistant. Without
// WithExitFunc, End Session only ends the chat session.
func NewServer(assistant Asker, opts ...ServerOption) *Server {
	s := &Server{
		assistant: assistant,
		exitDelay: 200 * time.Millisecond,
		logger:    rag.GlobalLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply is what the answer area shows for one query.
type Reply struct {
	Query   string
	Answer  string
	Sources []string
	Error   string
}

// Empty reports whether there is nothing to show.
func (r Reply) Empty() bool {
	return r.Answer == "" && r.Error == ""
}

// Answer runs query in the session. A blank query yields an empty reply;
// failures become an "An error occurred" message.
func (s *Server) Answer(ctx context.Context, sessionID, query string) Reply {
	query = strings.TrimSpace(query)
	if query == "" {
		return Reply{}
	}
	s.logger.Info("Received query", "session", sessionID, "query", query)

	answer, err := s.assistant.Ask(ctx, sessionID, query)
	switch {
	case errors.Is(err, knowledge.ErrNoRelevantDocuments):
		return Reply{Query: query, Answer: knowledge.NoRelevantDocumentsMessage}
	case err != nil:
		s.logger.Error("Query failed", "session", sessionID, "error", err)
		return Reply{Query: query, Error: "An error occurred: " + err.Error()}
	}

	files := answer.SourceFiles()
	sources := make([]string, len(files))
	for i, f := range files {
		sources[i] = filepath.Base(f)
	}
	return Reply{Query: query, Answer: answer.Text, Sources: sources}
}

// End ends the chat session and, when an exit func is set, stops the
// process with status 0 shortly after.
func (s *Server) End(sessionID string) {
	s.assistant.EndSession(sessionID)
	s.logger.Info("Session ended", "session", sessionID)
	if s.exit == nil {
		return
	}
	go func() {
		time.Sleep(s.exitDelay)
		s.exit(0)
	}()
}

// Serve registers the routes and blocks serving http://localhost:8080.
func (s *Server) Serve() error {
	app := gofh.New()

	app.Get("/").Handle(func(c *gofh.Context) gofh.Element {
		return s.page(s.assistant.NewSession())
	})

	app.Post("/ask").Handle(func(c *gofh.Context) gofh.Element {
		reply := s.Answer(c.Request.Context(), c.GetFormValue("session"), c.GetFormValue("query"))
		return renderReply(reply)
	})

	app.Post("/end").Handle(func(c *gofh.Context) gofh.Element {
		s.End(c.GetFormValue("session"))
		return gofh.P(EndedText)
	})

	s.logger.Info("Knowledge Assistant starting on http://localhost:8080")
	return app.Serve()
}

// gofh writes element text and attribute values verbatim, so every dynamic
// string goes through html.EscapeString before it reaches an element.
func (s *Server) page(sessionID string) gofh.Element {
	sessionID = html.EscapeString(sessionID)
	return gofh.Div(
		// gofh fixes the <title> of every page.
		gofh.El("script", fmt.Sprintf("document.title = %q;", Title)),
		gofh.El("style", `
			body { max-width: 800px; margin: 0 auto; padding: 20px; font-family: system-ui; }
			form { display: flex; gap: 10px; margin-bottom: 10px; }
			input[type=text] { flex: 1; padding: 8px; border: 1px solid #ddd; border-radius: 4px; }
			button { padding: 8px 16px; background: #1976d2; color: white; border: none; border-radius: 4px; cursor: pointer; }
			.htmx-indicator { display: none; color: #666; }
			.htmx-request .htmx-indicator, .htmx-request.htmx-indicator { display: block; }
			.answer { padding: 10px; background: #f5f5f5; border-radius: 5px; white-space: pre-wrap; }
			.error { color: #b00020; }
			.sources { font-size: 0.8em; color: #666; margin-top: 5px; }
		`),
		gofh.H1(Title),
		gofh.P(Intro),
		gofh.Form(
			gofh.El("label", QueryLabel),
			gofh.Input("hidden", "session").Attr("value", sessionID),
			gofh.Input("text", "query").
				Attr("placeholder", "Type your question...").
				Attr("autocomplete", "off"),
			gofh.Button("Ask"),
		).
			Attr("hx-post", "/ask").
			Attr("hx-target", "#answer").
			Attr("hx-swap", "innerHTML").
			Attr("hx-indicator", "#status"),
		gofh.P(SearchingText).ID("status").Attr("class", "htmx-indicator"),
		gofh.Div().ID("answer"),
		gofh.Form(
			gofh.Input("hidden", "session").Attr("value", sessionID),
			gofh.Button(EndButton),
		).
			Attr("hx-post", "/end").
			Attr("hx-target", "#answer").
			Attr("hx-swap", "innerHTML"),
	)
}

func renderReply(r Reply) gofh.Element {
	if r.Empty() {
		return gofh.Div()
	}
	if r.Error != "" {
		return gofh.Div(
			gofh.P(html.EscapeString(r.Error)).Attr("class", "error"),
		)
	}
	answer := gofh.Div(
		gofh.P(html.EscapeString(r.Answer)),
	).Attr("class", "answer")
	if len(r.Sources) == 0 {
		return answer
	}
	return gofh.Div(
		answer,
		gofh.P(html.EscapeString("Sources: "+strings.Join(r.Sources, ", "))).Attr("class", "sources"),
	)
}
