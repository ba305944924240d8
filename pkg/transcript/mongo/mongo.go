package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/transcript/consts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements transcript.Store using MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// TurnDoc is the stored form of a transcript turn.
type TurnDoc struct {
	SessionID  string    `bson:"session_id"`
	Role       string    `bson:"role"`
	Content    string    `bson:"content"`
	ToolCalls  string    `bson:"tool_calls,omitempty"` // Stored as JSON string
	ToolCallID string    `bson:"tool_call_id,omitempty"`
	Error      bool      `bson:"error,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

// New creates a new MongoStore.
func New(client *mongo.Client, dbName, collectionName string) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(collectionName),
	}
}

// Append adds a turn to the session's transcript.
func (s *MongoStore) Append(ctx context.Context, sessionID string, msg llm.Message) error {
	var toolCallsJSON string
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCallsJSON = string(b)
	}

	doc := TurnDoc{
		SessionID:  sessionID,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCalls:  toolCallsJSON,
		ToolCallID: msg.ToolCallID,
		Error:      msg.Error,
		CreatedAt:  time.Now(),
	}

	_, err := s.collection.InsertOne(ctx, doc)
	return err
}

// Load returns the session's transcript in conversational order.
func (s *MongoStore) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	filter := bson.M{consts.ColSessionID: sessionID}
	opts := options.Find().SetSort(bson.M{consts.ColCreatedAt: 1})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []llm.Message
	for cursor.Next(ctx) {
		var doc TurnDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}

		msg := llm.Message{
			Role:       llm.Role(doc.Role),
			Content:    doc.Content,
			ToolCallID: doc.ToolCallID,
			Error:      doc.Error,
		}

		if doc.ToolCalls != "" {
			var toolCalls []llm.ToolCall
			if err := json.Unmarshal([]byte(doc.ToolCalls), &toolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
			msg.ToolCalls = toolCalls
		}

		messages = append(messages, msg)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// Reset discards the session's transcript.
func (s *MongoStore) Reset(ctx context.Context, sessionID string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{consts.ColSessionID: sessionID})
	return err
}
