package knowledge

import (
	"context"
	"fmt"
)

// Document represents one record in the curated knowledge base: a piece of
// text with facet metadata (title, country, type, topic, ...).
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float32                `json:"score,omitempty"` // Similarity score
}

// Filter constrains a similarity query: each entry restricts a metadata
// field to the listed values. An empty filter imposes no constraint.
type Filter map[string][]string

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the interface for storing and retrieving vectors.
type VectorStore interface {
	// Upsert inserts or updates documents and their vectors.
	Upsert(ctx context.Context, vectors [][]float32, documents []Document) error
	// Query runs a filtered top-k similarity search. Results are ordered by
	// the store's own similarity metric; no re-ranking happens locally.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Document, error)
	// Fetch looks up documents by id, metadata only, no vector values.
	Fetch(ctx context.Context, ids []string) ([]Document, error)
}

// EmbeddingError reports a failed embedding generation.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding generation failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a record id absent from the knowledge base.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found in the knowledge base", e.ID)
}

// KnowledgeBase combines an Embedder and a VectorStore.
type KnowledgeBase struct {
	Embedder    Embedder
	VectorStore VectorStore
}

// NewKnowledgeBase creates a new KnowledgeBase.
func NewKnowledgeBase(embedder Embedder, store VectorStore) *KnowledgeBase {
	return &KnowledgeBase{
		Embedder:    embedder,
		VectorStore: store,
	}
}

// Ingest adds documents to the knowledge base.
func (kb *KnowledgeBase) Ingest(ctx context.Context, docs []Document) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := kb.Embedder.Embed(ctx, texts)
	if err != nil {
		return &EmbeddingError{Err: err}
	}

	return kb.VectorStore.Upsert(ctx, vectors, docs)
}
