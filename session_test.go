package knowledge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/knowledge/rag"
)

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(3)
	a := store.NewSession()
	b := store.NewSession()
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, store.Len())

	store.Append(a, NewMessage(RoleUser, "first question"), NewMessage(RoleAssistant, "first answer"))
	store.Append(a, NewMessage(RoleUser, "second question"))
	store.Append(a, NewMessage(RoleAssistant, "second answer"))

	history := store.History(a)
	require.Len(t, history, 3)
	assert.Equal(t, "first answer", history[0].Content)
	assert.Equal(t, 2, history[0].Tokens)
	assert.Empty(t, store.History(b))

	history[0].Content = "changed"
	assert.Equal(t, "first answer", store.History(a)[0].Content)

	store.End(a)
	assert.Nil(t, store.History(a))
	assert.Equal(t, 1, store.Len())

	store.Append("unknown", NewMessage(RoleUser, "hi"))
	assert.Len(t, store.History("unknown"), 1)
}

func TestSessionStorePrune(t *testing.T) {
	store := NewSessionStore(0)
	assert.Equal(t, DefaultMaxHistory, store.maxHistory)

	old := store.NewSession()
	store.sessions[old].updated = time.Now().Add(-2 * time.Hour)
	fresh := store.NewSession()

	assert.Equal(t, 1, store.Prune(time.Hour))
	assert.Nil(t, store.History(old))
	assert.Equal(t, 1, store.Len())
	assert.NotNil(t, store.sessions[fresh])
}

func TestSessionStoreConcurrent(t *testing.T) {
	store := NewSessionStore(10)
	id := store.NewSession()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(id, NewMessage(RoleUser, "hi"))
			store.History(id)
		}()
	}
	wg.Wait()
	assert.Len(t, store.History(id), 10)
}

func TestExtractiveSummarizer(t *testing.T) {
	history := []gollm.MemoryMessage{
		NewMessage(RoleUser, "How do invoices work? Tell me about invoices."),
		NewMessage(RoleAssistant, "Invoices are due in thirty days. The weather is nice."),
	}
	summary, err := NewExtractiveSummarizer(2).Summarize(context.Background(), history)
	require.NoError(t, err)
	assert.Contains(t, summary, "invoices")
	assert.NotContains(t, summary, "weather")

	summary, err = NewExtractiveSummarizer(0).Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewExtractiveSummarizer(1).Summarize(ctx, history)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatHistory(t *testing.T) {
	history := []gollm.MemoryMessage{
		NewMessage(RoleUser, "hello"),
		NewMessage(RoleAssistant, "hi there"),
	}
	assert.Equal(t, "user: hello\nassistant: hi there", FormatHistory(history))
	assert.Empty(t, FormatHistory(nil))
}

func TestNewChunker(t *testing.T) {
	recursive, err := NewChunker(ChunkerRecursive, 10, 4, "")
	require.NoError(t, err)
	chunks := recursive.Chunk("aaa bbb ccc ddd eee")
	require.Len(t, chunks, 4)
	assert.Equal(t, "aaa bbb", chunks[0].Text)

	sentence, err := NewChunker(ChunkerSentence, 5, 0, "")
	require.NoError(t, err)
	assert.NotEmpty(t, sentence.Chunk("One sentence here. Another sentence there."))

	_, err = NewChunker("paragraph", 10, 0, "")
	assert.Error(t, err)
}

func TestSentenceChunkerOnNormalizedText(t *testing.T) {
	chunker, err := NewChunker(ChunkerSentence, 200, 50, "")
	require.NoError(t, err)

	chunks := chunker.Chunk(rag.Normalize(strings.Repeat("Invoices are due within thirty days. ", 200)))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenSize, 200)
	}
}
