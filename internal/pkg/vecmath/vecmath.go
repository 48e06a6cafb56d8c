// Package vecmath holds the vector arithmetic used for ranking.
package vecmath

import "math"

// Cosine returns the cosine similarity of a and b. It is 0 when either
// vector is empty or has zero magnitude, when the dimensions differ, or
// when the result is not a finite number.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// MaxFieldSimilarity scores a candidate against a query set. A single query
// vector is compared with every candidate field; otherwise fields are paired
// by index. Only positions where both vectors are non-empty contribute, and
// the best field wins.
func MaxFieldSimilarity(candidate [][]float32, query [][]float32) float64 {
	best := 0.0
	for idx := range candidate {
		var q []float32
		switch {
		case len(query) == 1:
			q = query[0]
		case idx < len(query):
			q = query[idx]
		}
		if len(candidate[idx]) == 0 || len(q) == 0 {
			continue
		}
		if sim := Cosine(candidate[idx], q); sim > best {
			best = sim
		}
	}
	return best
}
