package rag

import (
	"context"
	"sort"
)

// RankedList is one ranking to fuse, best result first.
type RankedList struct {
	Results []SearchResult
	Weight  float64
}

// RRFReranker fuses rankings with Reciprocal Rank Fusion. A result at
// 1-based rank r in a list of weight w contributes w/(k+r), and weights are
// scaled to sum to one.
type RRFReranker struct {
	k float64
}

// NewRRFReranker returns a reranker with constant k. Values <= 0 select 60.
func NewRRFReranker(k float64) *RRFReranker {
	if k <= 0 {
		k = 60
	}
	return &RRFReranker{k: k}
}

type fusedResult struct {
	result   SearchResult
	score    float64
	bestRank int
}

// Fuse merges the lists into one ranking. A result keeps the fields of its
// first appearance. Equal scores are ordered by the best rank the result
// reached in any list, then by id. When every weight is zero the lists
// count equally.
func (r *RRFReranker) Fuse(lists ...RankedList) []SearchResult {
	var total float64
	for _, l := range lists {
		total += l.Weight
	}

	byID := make(map[int64]*fusedResult)
	var order []*fusedResult
	for _, l := range lists {
		weight := 1.0 / float64(len(lists))
		if total > 0 {
			weight = l.Weight / total
		}
		for rank, res := range l.Results {
			contribution := weight / (r.k + float64(rank+1))
			f, ok := byID[res.ID]
			if !ok {
				f = &fusedResult{result: res, bestRank: rank}
				byID[res.ID] = f
				order = append(order, f)
			}
			f.score += contribution
			f.bestRank = min(f.bestRank, rank)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		switch {
		case a.score != b.score:
			return a.score > b.score
		case a.bestRank != b.bestRank:
			return a.bestRank < b.bestRank
		default:
			return a.result.ID < b.result.ID
		}
	})

	out := make([]SearchResult, len(order))
	for i, f := range order {
		out[i] = f.result
		out[i].Score = f.score
	}
	return out
}

// Rerank fuses a dense and a sparse ranking of the same query.
func (r *RRFReranker) Rerank(
	ctx context.Context,
	query string,
	denseResults, sparseResults []SearchResult,
	denseWeight, sparseWeight float64,
) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Fuse(
		RankedList{Results: denseResults, Weight: denseWeight},
		RankedList{Results: sparseResults, Weight: sparseWeight},
	), nil
}
