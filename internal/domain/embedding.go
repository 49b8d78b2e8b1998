package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultEmbeddingModel is the model tag written alongside every vector.
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultEmbeddingDimensions is the expected vector length for DefaultEmbeddingModel.
	DefaultEmbeddingDimensions = 384
)

// Record is one ingested text item. Records are owned by ingestion and are
// read-only here.
type Record struct {
	ID        int64
	Group     string
	Body      *string
	CreatedAt time.Time
}

// Text returns the body or an empty string when the body is NULL.
func (r Record) Text() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// Embedding is the vector derived from one Record. At most one exists per
// record and it is never updated after insert.
type Embedding struct {
	RecordID int64
	Vector   []float32
	Model    string
}

// StoredVector is an embedding read back for clustering.
type StoredVector struct {
	RecordID int64
	Vector   []float32
}

// ValidateEmbedding validates an Embedding before it is written.
func ValidateEmbedding(e *Embedding, dimensions int) error {
	if e == nil {
		return fmt.Errorf("embedding cannot be nil")
	}

	if e.RecordID <= 0 {
		return fmt.Errorf("embedding RecordID must be positive")
	}

	if e.Model == "" {
		return fmt.Errorf("embedding Model is required")
	}

	if len(e.Vector) != dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(e.Vector), dimensions)
	}

	return nil
}
