package store

import (
	"math"

	"github.com/xhad/craftsman/internal/models"
)

// CosineSimilarity returns 0 for vectors of different length or zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}

	denom := math.Sqrt(magA) * math.Sqrt(magB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// FilterBySimilarity keeps documents scoring at or above min. Unscored
// documents count as 0.
func FilterBySimilarity(docs []models.Document, min float64) []models.Document {
	filtered := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.SimilarityOrZero() >= min {
			filtered = append(filtered, doc)
		}
	}
	return filtered
}

// ScoreMissing fills in the similarity of documents the store returned
// without one, using their stored vector.
func ScoreMissing(query []float32, docs []models.Document) []models.Document {
	for i, doc := range docs {
		if doc.HasSimilarity() {
			continue
		}
		docs[i] = doc.WithSimilarity(CosineSimilarity(query, doc.Embedding))
	}
	return docs
}
