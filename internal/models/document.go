package models

import "time"

// Document is a record in the vector collection.
type Document struct {
	ID         string
	Text       string
	Title      string
	SourceID   string
	Embedding  []float32
	Metadata   map[string]interface{}
	Similarity *float64
	CreatedAt  time.Time
}

// HasSimilarity reports whether the store returned (or we computed) a score.
func (d Document) HasSimilarity() bool {
	return d.Similarity != nil
}

// SimilarityOrZero returns the similarity score, or 0 if none is set.
func (d Document) SimilarityOrZero() float64 {
	if d.Similarity == nil {
		return 0
	}
	return *d.Similarity
}

// WithSimilarity returns a copy of d carrying the given score.
func (d Document) WithSimilarity(score float64) Document {
	d.Similarity = &score
	return d
}

// Page is a scraped web page before chunking.
type Page struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedPage struct {
	Page
	Chunks []string
}
