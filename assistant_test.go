package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
)

type fakeSearcher struct {
	results []RetrieverResult
	err     error
	queries []string
}

func (s *fakeSearcher) Retrieve(ctx context.Context, query string) ([]RetrieverResult, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type fakeChat struct {
	reply    string
	err      error
	requests []ChatRequest
}

func (c *fakeChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	c.requests = append(c.requests, req)
	return c.reply, c.err
}

type fakeSummarizer struct {
	summary string
	err     error
	seen    [][]gollm.MemoryMessage
}

func (s *fakeSummarizer) Summarize(ctx context.Context, history []gollm.MemoryMessage) (string, error) {
	s.seen = append(s.seen, history)
	return s.summary, s.err
}

func sampleResults() []RetrieverResult {
	return []RetrieverResult{
		{ID: 1, Content: "Invoices are due in 30 days.", Source: "/docs/billing.pdf"},
		{ID: 2, Content: "Late invoices incur a fee.", Source: "/docs/billing.pdf"},
		{ID: 3, Content: "Fees are listed in the price sheet.", Source: "/docs/prices.xlsx"},
	}
}

func TestAssistantAsk(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: sampleResults()}
	chat := &fakeChat{reply: "Invoices are due in 30 days."}
	a, err := NewAssistant(searcher, chat)
	require.NoError(t, err)

	id := a.NewSession()
	answer, err := a.Ask(ctx, id, "  When are invoices due?  ")
	require.NoError(t, err)
	assert.Equal(t, "Invoices are due in 30 days.", answer.Text)
	assert.Equal(t, []string{"/docs/billing.pdf", "/docs/prices.xlsx"}, answer.SourceFiles())
	assert.Empty(t, answer.Summary)

	assert.Equal(t, []string{"When are invoices due?"}, searcher.queries)
	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Equal(t, DefaultSystemPrompt, req.SystemPrompt)
	assert.Equal(t, "Context:\nInvoices are due in 30 days.\n\nLate invoices incur a fee.\n\nFees are listed in the price sheet.\n\nUser Query: When are invoices due?", req.Message)
	assert.Empty(t, req.History)

	history := a.Sessions().History(id)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "When are invoices due?", history[0].Content)
	assert.Equal(t, RoleAssistant, history[1].Role)

	_, err = a.Ask(ctx, id, "And late ones?")
	require.NoError(t, err)
	assert.Len(t, chat.requests[1].History, 2)
	assert.Len(t, a.Sessions().History(id), 4)

	a.EndSession(id)
	assert.Empty(t, a.Sessions().History(id))
}

func TestAssistantSummarizesHistory(t *testing.T) {
	ctx := context.Background()
	searcher := &fakeSearcher{results: sampleResults()}
	summarizer := &fakeSummarizer{summary: "The user asks about invoices."}
	a, err := NewAssistant(searcher, &fakeChat{reply: "ok"}, WithSummarizer(summarizer), WithSystemPrompt("Be brief."))
	require.NoError(t, err)

	id := a.NewSession()
	first, err := a.Ask(ctx, id, "When are invoices due?")
	require.NoError(t, err)
	assert.Empty(t, first.Summary)
	assert.Empty(t, summarizer.seen)

	second, err := a.Ask(ctx, id, "What about fees?")
	require.NoError(t, err)
	assert.Equal(t, "The user asks about invoices.", second.Summary)
	require.Len(t, summarizer.seen, 1)
	assert.Len(t, summarizer.seen[0], 2)
	assert.Equal(t, "The user asks about invoices.\nWhat about fees?", searcher.queries[1])

	t.Run("failure falls back to the query", func(t *testing.T) {
		summarizer.err = errors.New("rate limited")
		answer, err := a.Ask(ctx, id, "Anything else?")
		require.NoError(t, err)
		assert.Empty(t, answer.Summary)
		assert.Equal(t, "Anything else?", searcher.queries[2])
	})
}

func TestAssistantNoRelevantDocuments(t *testing.T) {
	chat := &fakeChat{reply: "unused"}
	a, err := NewAssistant(&fakeSearcher{}, chat)
	require.NoError(t, err)

	id := a.NewSession()
	_, err = a.Ask(context.Background(), id, "What is the holiday policy?")
	assert.ErrorIs(t, err, ErrNoRelevantDocuments)
	assert.Empty(t, chat.requests)
	assert.Empty(t, a.Sessions().History(id))
}

func TestAssistantErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewAssistant(nil, &fakeChat{})
	assert.Error(t, err)
	_, err = NewAssistant(&fakeSearcher{}, nil)
	assert.Error(t, err)

	a, err := NewAssistant(&fakeSearcher{err: ErrCollectionNotFound}, &fakeChat{})
	require.NoError(t, err)
	_, err = a.Ask(ctx, "s", " ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = a.Ask(ctx, "s", "hello")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorContains(t, err, "failed to retrieve documents")

	chatErr := errors.New("model unavailable")
	a, err = NewAssistant(&fakeSearcher{results: sampleResults()}, &fakeChat{err: chatErr})
	require.NoError(t, err)
	id := a.NewSession()
	_, err = a.Ask(ctx, id, "hello")
	assert.ErrorIs(t, err, chatErr)
	assert.Empty(t, a.Sessions().History(id))
}

func TestAssistantSharedSessionStore(t *testing.T) {
	store := NewSessionStore(4)
	a, err := NewAssistant(&fakeSearcher{results: sampleResults()}, &fakeChat{reply: "ok"}, WithSessionStore(store))
	require.NoError(t, err)
	assert.Same(t, store, a.Sessions())

	id := a.NewSession()
	for _, q := range []string{"one", "two", "three"} {
		_, err := a.Ask(context.Background(), id, q)
		require.NoError(t, err)
	}
	history := store.History(id)
	require.Len(t, history, 4)
	assert.Equal(t, "two", history[0].Content)
}
