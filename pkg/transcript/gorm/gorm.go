package gorm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/transcript/consts"
	"gorm.io/gorm"
)

// Store implements transcript.Store using GORM.
type Store struct {
	db *gorm.DB
}

// TurnModel represents the database schema for a transcript turn.
type TurnModel struct {
	gorm.Model
	SessionID  string `gorm:"index"`
	Role       string
	Content    string
	ToolCalls  []byte `gorm:"type:json"` // Store as JSON bytes
	ToolCallID string
	Error      bool
}

// TableName overrides the table name.
func (TurnModel) TableName() string {
	return consts.TableNameTurns
}

// New creates a new Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TurnModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append adds a turn to the session's transcript.
func (s *Store) Append(ctx context.Context, sessionID string, msg llm.Message) error {
	var toolCallsJSON []byte
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCallsJSON = b
	}

	model := TurnModel{
		SessionID:  sessionID,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCalls:  toolCallsJSON,
		ToolCallID: msg.ToolCallID,
		Error:      msg.Error,
	}

	return s.db.WithContext(ctx).Create(&model).Error
}

// Load returns the session's transcript in conversational order.
func (s *Store) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	var models []TurnModel
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id asc").Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]llm.Message, len(models))
	for i, model := range models {
		msg := llm.Message{
			Role:       llm.Role(model.Role),
			Content:    model.Content,
			ToolCallID: model.ToolCallID,
			Error:      model.Error,
		}

		if len(model.ToolCalls) > 0 {
			var toolCalls []llm.ToolCall
			if err := json.Unmarshal(model.ToolCalls, &toolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls for turn %d: %w", model.ID, err)
			}
			msg.ToolCalls = toolCalls
		}

		messages[i] = msg
	}

	return messages, nil
}

// Reset discards the session's transcript.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&TurnModel{}).Error
}
