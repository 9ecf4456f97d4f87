package retrieval

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/lexrag/internal/domain/search/fusion"
	"github.com/kailas-cloud/lexrag/internal/domain/search/result"
)

// scoreFn picks the per-modality score used for ranking.
type scoreFn func(*result.Result) float64

func vectorScore(r *result.Result) float64  { return r.VectorScore() }
func keywordScore(r *result.Result) float64 { return r.KeywordScore() }

// sortByScore orders results by score descending, ties by chunk ID.
func sortByScore(rs []result.Result, score scoreFn) {
	slices.SortStableFunc(rs, func(a, b result.Result) int {
		if c := cmp.Compare(score(&b), score(&a)); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID(), b.ChunkID())
	})
}

// bestByID collapses hits of one modality by chunk ID, keeping the best score,
// and returns them ranked.
func bestByID(lists [][]result.Result, score scoreFn) []result.Result {
	idx := make(map[string]int)
	var out []result.Result
	for _, list := range lists {
		for _, r := range list {
			if i, ok := idx[r.ChunkID()]; ok {
				out[i] = out[i].Merge(r)
				continue
			}
			idx[r.ChunkID()] = len(out)
			out = append(out, r)
		}
	}
	sortByScore(out, score)
	return out
}

// merged is a deduplicated hit with its 1-based rank in each modality (0 = absent).
type merged struct {
	res         result.Result
	vectorRank  int
	keywordRank int
}

// dedupe merges ranked vector and keyword lists by chunk ID. A chunk present
// in both becomes a single hybrid result carrying both scores.
func dedupe(vec, kw []result.Result) []*merged {
	byID := make(map[string]*merged, len(vec)+len(kw))
	out := make([]*merged, 0, len(vec)+len(kw))
	for i, r := range vec {
		m := &merged{res: r, vectorRank: i + 1}
		byID[r.ChunkID()] = m
		out = append(out, m)
	}
	for i, r := range kw {
		if m, ok := byID[r.ChunkID()]; ok {
			m.res = m.res.Merge(r)
			m.keywordRank = i + 1
			continue
		}
		m := &merged{res: r, keywordRank: i + 1}
		byID[r.ChunkID()] = m
		out = append(out, m)
	}
	return out
}

// fuseWeighted scores each hit as w_v*vector + w_k*keyword.
func fuseWeighted(ms []*merged, w fusion.Weights) []result.Result {
	out := make([]result.Result, len(ms))
	for i, m := range ms {
		out[i] = m.res.WithScore(w.Combine(m.res.VectorScore(), m.res.KeywordScore()))
	}
	return out
}

// fuseRRF scores each hit as the sum of 1/(k+rank) over the lists it appears in.
func fuseRRF(ms []*merged, k int) []result.Result {
	out := make([]result.Result, len(ms))
	for i, m := range ms {
		var s float64
		if m.vectorRank > 0 {
			s += fusion.ReciprocalRank(k, m.vectorRank)
		}
		if m.keywordRank > 0 {
			s += fusion.ReciprocalRank(k, m.keywordRank)
		}
		out[i] = m.res.WithScore(s)
	}
	return out
}

func fusedScore(r *result.Result) float64 { return r.Score() }
