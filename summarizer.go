package knowledge

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/teilomillet/goal"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/knowledge/rag"
)

// Summarizer condenses a conversation so it can steer retrieval.
type Summarizer interface {
	Summarize(ctx context.Context, history []gollm.MemoryMessage) (string, error)
}

// GoalSummarizer asks an LLM for the summary through goal.
type GoalSummarizer struct {
	llm goal.LLM
}

// NewGoalSummarizer creates a summarizer on the given provider and model.
// An empty apiKey falls back to OPENAI_API_KEY.
func NewGoalSummarizer(provider, model, apiKey string) (*GoalSummarizer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	llm, err := goal.NewLLM(
		goal.SetProvider(provider),
		goal.SetModel(model),
		goal.SetAPIKey(apiKey),
		goal.SetMaxTokens(512),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer LLM: %w", err)
	}
	return &GoalSummarizer{llm: llm}, nil
}

// Summarize returns an empty summary for an empty history.
func (s *GoalSummarizer) Summarize(ctx context.Context, history []gollm.MemoryMessage) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	summary, err := goal.Summarize(ctx, s.llm, FormatHistory(history))
	if err != nil {
		return "", fmt.Errorf("failed to summarize history: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// ExtractiveSummarizer picks the most representative sentences of the
// conversation without calling a model. Sentences are scored by the average
// frequency of their words across the whole history and returned in their
// original order.
type ExtractiveSummarizer struct {
	MaxSentences int
}

// NewExtractiveSummarizer keeps at most maxSentences sentences; values
// below one select three.
func NewExtractiveSummarizer(maxSentences int) *ExtractiveSummarizer {
	if maxSentences < 1 {
		maxSentences = 3
	}
	return &ExtractiveSummarizer{MaxSentences: maxSentences}
}

func (s *ExtractiveSummarizer) Summarize(ctx context.Context, history []gollm.MemoryMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var sentences []string
	for _, m := range history {
		for _, sentence := range rag.SmartSentenceSplitter(m.Content) {
			if sentence = strings.TrimSpace(sentence); sentence != "" {
				sentences = append(sentences, sentence)
			}
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}

	freq := make(map[string]int)
	tokens := make([][]string, len(sentences))
	for i, sentence := range sentences {
		tokens[i] = rag.Tokenize(sentence)
		for _, t := range tokens[i] {
			freq[t]++
		}
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, toks := range tokens {
		var total int
		for _, t := range toks {
			total += freq[t]
		}
		score := 0.0
		if len(toks) > 0 {
			score = float64(total) / float64(len(toks))
		}
		ranked[i] = scored{index: i, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	n := min(s.MaxSentences, len(ranked))
	keep := make([]int, n)
	for i := 0; i < n; i++ {
		keep[i] = ranked[i].index
	}
	sort.Ints(keep)

	parts := make([]string, n)
	for i, idx := range keep {
		parts[i] = sentences[idx]
	}
	return strings.Join(parts, " "), nil
}
