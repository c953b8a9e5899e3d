package index

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/poiesic/newsdesk/core"
)

// CosineSimilarity returns dot(a,b)/(|a||b|) computed in float64 and
// clamped to [-1, 1]. A zero vector, or vectors of different length,
// score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return max(-1, min(1, score))
}

func dimensionMismatch(want, got int) error {
	return fmt.Errorf("%w: index has dimension %d, got %d", core.ErrDimensionMismatch, want, got)
}

// candidate is a scored entry awaiting ranking.
type candidate struct {
	match core.Match
	seq   uint64
}

// rank orders candidates by descending score then ascending insertion
// sequence and keeps the first topK.
func rank(candidates []candidate, topK int) []core.Match {
	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.match.Score, a.match.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]core.Match, len(candidates))
	for i, c := range candidates {
		matches[i] = c.match
	}
	return matches
}

// cloneEntry copies the vector and metadata so callers cannot mutate
// stored state.
func cloneEntry(e core.VectorEntry) core.VectorEntry {
	return core.VectorEntry{
		ID:       e.ID,
		Vector:   slices.Clone(e.Vector),
		Metadata: maps.Clone(e.Metadata),
	}
}
