package web

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/rag"
)

type fakeAsker struct {
	mu      sync.Mutex
	answer  *knowledge.Answer
	err     error
	queries []string
	ended   []string
}

func (f *fakeAsker) Ask(ctx context.Context, sessionID, query string) (*knowledge.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.answer, f.err
}

func (f *fakeAsker) NewSession() string { return "session-1" }

func (f *fakeAsker) EndSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
}

func quiet() ServerOption {
	return WithLogger(rag.NewLogger(rag.LogLevelOff))
}

func TestAnswer(t *testing.T) {
	asker := &fakeAsker{answer: &knowledge.Answer{
		Text: "Invoices are due in 30 days.",
		Sources: []knowledge.RetrieverResult{
			{Source: "/docs/finance/billing.pdf"},
			{Source: "/docs/finance/billing.pdf"},
			{Source: "/docs/prices.xlsx"},
		},
	}}
	s := NewServer(asker, quiet())

	reply := s.Answer(context.Background(), "session-1", "  When are invoices due? ")
	assert.Equal(t, Reply{
		Query:   "When are invoices due?",
		Answer:  "Invoices are due in 30 days.",
		Sources: []string{"billing.pdf", "prices.xlsx"},
	}, reply)
	assert.False(t, reply.Empty())
	assert.Equal(t, []string{"When are invoices due?"}, asker.queries)
}

func TestAnswerBlankQuery(t *testing.T) {
	asker := &fakeAsker{}
	reply := NewServer(asker, quiet()).Answer(context.Background(), "session-1", "   ")
	assert.True(t, reply.Empty())
	assert.Empty(t, asker.queries)
}

func TestAnswerErrors(t *testing.T) {
	s := NewServer(&fakeAsker{err: knowledge.ErrNoRelevantDocuments}, quiet())
	reply := s.Answer(context.Background(), "session-1", "holiday policy")
	assert.Equal(t, knowledge.NoRelevantDocumentsMessage, reply.Answer)
	assert.Empty(t, reply.Error)

	s = NewServer(&fakeAsker{err: errors.New("connection refused")}, quiet())
	reply = s.Answer(context.Background(), "session-1", "holiday policy")
	assert.Equal(t, "An error occurred: connection refused", reply.Error)
	assert.Empty(t, reply.Answer)
}

func TestEnd(t *testing.T) {
	asker := &fakeAsker{}
	codes := make(chan int, 1)
	s := NewServer(asker, quiet(), WithExitDelay(time.Millisecond), WithExitFunc(func(code int) {
		codes <- code
	}))

	s.End("session-1")
	assert.Equal(t, []string{"session-1"}, asker.ended)
	select {
	case code := <-codes:
		assert.Equal(t, 0, code)
	case <-time.After(time.Second):
		require.Fail(t, "exit was not called")
	}
}

func TestEndWithoutExit(t *testing.T) {
	asker := &fakeAsker{}
	NewServer(asker, quiet()).End("session-1")
	assert.Equal(t, []string{"session-1"}, asker.ended)
}

func TestRenderReplyEscapesText(t *testing.T) {
	out := renderReply(Reply{
		Answer:  "Use <script>alert(1)</script> when a < b & c",
		Sources: []string{"<b>notes</b>.txt"},
	}).Render()
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, out, "a &lt; b &amp; c")
	assert.Contains(t, out, "&lt;b&gt;notes&lt;/b&gt;.txt")

	out = renderReply(Reply{Error: `An error occurred: <img src=x onerror="x">`}).Render()
	assert.NotContains(t, out, "<img")
	assert.Contains(t, out, "&lt;img src=x onerror=&#34;x&#34;&gt;")
}

func TestPageEscapesSessionID(t *testing.T) {
	out := NewServer(&fakeAsker{}, quiet()).page(`x"><script>alert(1)</script>`).Render()
	assert.NotContains(t, out, "<script>alert")
	assert.Contains(t, out, "x&#34;&gt;&lt;script&gt;")
	assert.Contains(t, out, `document.title = "Knowledge Assistant";`)
}
