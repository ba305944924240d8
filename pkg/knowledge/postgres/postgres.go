package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/barekit/agrilab/pkg/knowledge"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore implements knowledge.VectorStore using pgvector.
type PostgresStore struct {
	db *gorm.DB
}

// DocumentModel represents the database schema for a document.
type DocumentModel struct {
	ID        string `gorm:"primaryKey"`
	Content   string
	Metadata  []byte          `gorm:"type:jsonb"`
	Embedding pgvector.Vector `gorm:"type:vector(1536)"`
}

// TableName overrides the table name.
func (DocumentModel) TableName() string {
	return "documents"
}

// New creates a new PostgresStore.
func New(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable pgvector extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	// AutoMigrate
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, vectors [][]float32, documents []knowledge.Document) error {
	if len(vectors) != len(documents) {
		return fmt.Errorf("number of vectors and documents must match")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, doc := range documents {
			metadataJSON, err := json.Marshal(doc.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
			}

			model := DocumentModel{
				ID:        doc.ID,
				Content:   doc.Content,
				Metadata:  metadataJSON,
				Embedding: pgvector.NewVector(vectors[i]),
			}

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"content", "metadata", "embedding"}),
			}).Create(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Query runs a filtered top-k search ordered by cosine distance (<=>).
// jsonb_exists_any matches both scalar metadata values and array elements,
// so a facet filter behaves the same for single- and multi-valued fields.
func (s *PostgresStore) Query(ctx context.Context, vector []float32, topK int, filter knowledge.Filter) ([]knowledge.Document, error) {
	tx := s.db.WithContext(ctx).Model(&DocumentModel{})

	for field, values := range filter {
		if len(values) == 0 {
			continue
		}
		tx = tx.Where("jsonb_exists_any(metadata -> ?, ?)", field, values)
	}

	var models []DocumentModel
	err := tx.
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{pgvector.NewVector(vector)}}).
		Limit(topK).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return docsFromModels(models)
}

// Fetch looks up documents by id, metadata only.
func (s *PostgresStore) Fetch(ctx context.Context, ids []string) ([]knowledge.Document, error) {
	var models []DocumentModel
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return docsFromModels(models)
}

func docsFromModels(models []DocumentModel) ([]knowledge.Document, error) {
	docs := make([]knowledge.Document, len(models))
	for i, m := range models {
		metadata := make(map[string]interface{})
		if len(m.Metadata) > 0 {
			if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", m.ID, err)
			}
		}
		docs[i] = knowledge.Document{
			ID:       m.ID,
			Content:  m.Content,
			Metadata: metadata,
		}
	}
	return docs, nil
}
