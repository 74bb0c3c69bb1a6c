package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultSystemPrompt instructs the chat model to stay within the
// retrieved context.
const DefaultSystemPrompt = "You are an AI assistant that answers user queries based on retrieved context from a document database. If the context is relevant, provide a detailed answer. If unsure, say you don't have enough information."

// NoRelevantDocumentsMessage is shown to users when retrieval comes back
// empty.
const NoRelevantDocumentsMessage = "No relevant documents found. Unable to generate an answer."

// Searcher retrieves the chunks relevant to a query. *Retriever implements it.
type Searcher interface {
	Retrieve(ctx context.Context, query string) ([]RetrieverResult, error)
}

// Answer is the reply to one query.
type Answer struct {
	Text    string
	Sources []RetrieverResult
	// Summary is the history summary used to steer retrieval, if any.
	Summary string
}

// SourceFiles lists the distinct source paths of the answer, in retrieval
// order.
func (a *Answer) SourceFiles() []string {
	seen := make(map[string]bool)
	var files []string
	for _, s := range a.Sources {
		if s.Source != "" && !seen[s.Source] {
			seen[s.Source] = true
			files = append(files, s.Source)
		}
	}
	return files
}

// Assistant answers questions from the document index and keeps a
// conversation per session.
type Assistant struct {
	searcher     Searcher
	chat         ChatModel
	summarizer   Summarizer
	sessions     *SessionStore
	systemPrompt string
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithSummarizer enables history summarization before retrieval.
func WithSummarizer(s Summarizer) AssistantOption {
	return func(a *Assistant) {
		a.summarizer = s
	}
}

// WithSessionStore shares a session store between assistants.
func WithSessionStore(store *SessionStore) AssistantOption {
	return func(a *Assistant) {
		a.sessions = store
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) AssistantOption {
	return func(a *Assistant) {
		a.systemPrompt = prompt
	}
}

// NewAssistant creates an assistant over searcher and chat.
func NewAssistant(searcher Searcher, chat ChatModel, opts ...AssistantOption) (*Assistant, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if chat == nil {
		return nil, errors.New("chat model is required")
	}
	a := &Assistant{
		searcher:     searcher,
		chat:         chat,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sessions == nil {
		a.sessions = NewSessionStore(DefaultMaxHistory)
	}
	return a, nil
}

// Sessions returns the assistant's session store.
func (a *Assistant) Sessions() *SessionStore {
	return a.sessions
}

// NewSession starts a conversation and returns its id.
func (a *Assistant) NewSession() string {
	return a.sessions.NewSession()
}

// EndSession forgets a conversation.
func (a *Assistant) EndSession(id string) {
	a.sessions.End(id)
}

// Ask answers query within the session. When a summarizer is set and the
// session has history, retrieval searches for the summary followed by the
// query. It returns ErrNoRelevantDocuments when retrieval finds nothing, in
// which case the chat model is not called and the session is unchanged.
func (a *Assistant) Ask(ctx context.Context, sessionID, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	history := a.sessions.History(sessionID)
	searchText := query
	var summary string
	if a.summarizer != nil && len(history) > 0 {
		s, err := a.summarizer.Summarize(ctx, history)
		if err != nil {
			Warn("Summarizing history failed, searching with the query alone", "session", sessionID, "error", err)
		} else if s != "" {
			summary = s
			searchText = summary + "\n" + query
		}
	}

	results, err := a.searcher.Retrieve(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve documents: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoRelevantDocuments
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}

	reply, err := a.chat.Chat(ctx, ChatRequest{
		SystemPrompt: a.systemPrompt,
		Message:      BuildUserMessage(strings.Join(contents, "\n\n"), query),
		History:      history,
	})
	if err != nil {
		return nil, err
	}

	a.sessions.Append(sessionID, NewMessage(RoleUser, query), NewMessage(RoleAssistant, reply))
	Debug("Answered query", "session", sessionID, "sources", len(results), "summarized", summary != "")

	return &Answer{Text: reply, Sources: results, Summary: summary}, nil
}

// BuildUserMessage formats the retrieved context and the query for the chat
// model.
func BuildUserMessage(context, query string) string {
	return fmt.Sprintf("Context:\n%s\n\nUser Query: %s", context, query)
}
