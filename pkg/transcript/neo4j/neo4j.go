package neo4j

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/transcript/consts"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements transcript.Store using Neo4j.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	dbName string
}

// New creates a new Neo4jStore.
func New(uri, username, password, dbName string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, err
	}

	return &Neo4jStore{
		driver: driver,
		dbName: dbName,
	}, nil
}

// Append adds a turn to the session's transcript.
func (s *Neo4jStore) Append(ctx context.Context, sessionID string, msg llm.Message) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	var toolCallsJSON string
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCallsJSON = string(b)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Create Session node if not exists
		querySession := fmt.Sprintf(`
		MERGE (s:%s {id: $sessionID})
		RETURN s
		`, consts.LabelSession)
		if _, err := tx.Run(ctx, querySession, map[string]any{"sessionID": sessionID}); err != nil {
			return nil, err
		}

		// Create Turn node and link to Session
		queryTurn := fmt.Sprintf(`
		MATCH (s:%s {id: $sessionID})
		CREATE (t:%s {
			%s: $role,
			%s: $content,
			%s: $toolCalls,
			%s: $toolCallID,
			%s: $error,
			%s: datetime()
		})
		CREATE (s)-[:%s]->(t)
		RETURN t
		`, consts.LabelSession, consts.LabelTurn,
			consts.ColRole, consts.ColContent, consts.ColToolCalls, consts.ColToolCallID,
			consts.ColError, consts.ColCreatedAt,
			consts.RelHasTurn)

		params := map[string]any{
			"sessionID":  sessionID,
			"role":       string(msg.Role),
			"content":    msg.Content,
			"toolCalls":  toolCallsJSON,
			"toolCallID": msg.ToolCallID,
			"error":      msg.Error,
		}
		_, err := tx.Run(ctx, queryTurn, params)
		return nil, err
	})

	return err
}

// Load returns the session's transcript in conversational order.
func (s *Neo4jStore) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
		MATCH (s:%s {id: $sessionID})-[:%s]->(t:%s)
		RETURN t.%s, t.%s, t.%s, t.%s, t.%s
		ORDER BY t.%s ASC
		`, consts.LabelSession, consts.RelHasTurn, consts.LabelTurn,
			consts.ColRole, consts.ColContent, consts.ColToolCalls, consts.ColToolCallID, consts.ColError,
			consts.ColCreatedAt)

		result, err := tx.Run(ctx, query, map[string]any{"sessionID": sessionID})
		if err != nil {
			return nil, err
		}

		var messages []llm.Message
		for result.Next(ctx) {
			record := result.Record()

			role, _ := record.Get("t." + consts.ColRole)
			content, _ := record.Get("t." + consts.ColContent)
			toolCallsStr, _ := record.Get("t." + consts.ColToolCalls)
			toolCallID, _ := record.Get("t." + consts.ColToolCallID)
			errFlag, _ := record.Get("t." + consts.ColError)

			msg := llm.Message{
				Role:       llm.Role(role.(string)),
				Content:    content.(string),
				ToolCallID: toolCallID.(string),
			}
			if b, ok := errFlag.(bool); ok {
				msg.Error = b
			}

			if toolCallsStr != nil && toolCallsStr.(string) != "" {
				var toolCalls []llm.ToolCall
				if err := json.Unmarshal([]byte(toolCallsStr.(string)), &toolCalls); err != nil {
					return nil, err
				}
				msg.ToolCalls = toolCalls
			}

			messages = append(messages, msg)
		}

		return messages, nil
	})

	if err != nil {
		return nil, err
	}

	return result.([]llm.Message), nil
}

// Reset discards the session's transcript.
func (s *Neo4jStore) Reset(ctx context.Context, sessionID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
		MATCH (s:%s {id: $sessionID})-[:%s]->(t:%s)
		DETACH DELETE t
		`, consts.LabelSession, consts.RelHasTurn, consts.LabelTurn)
		_, err := tx.Run(ctx, query, map[string]any{"sessionID": sessionID})
		return nil, err
	})

	return err
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
