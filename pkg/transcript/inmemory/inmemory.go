package inmemory

import (
	"context"
	"sync"

	"github.com/barekit/agrilab/pkg/llm"
)

// InMemory implements transcript.Store using a map. It is the default
// store: session state is process-scoped and dies with the process.
type InMemory struct {
	mu    sync.RWMutex
	turns map[string][]llm.Message
}

// New creates a new InMemory store.
func New() *InMemory {
	return &InMemory{
		turns: make(map[string][]llm.Message),
	}
}

// Append adds a turn to the session's transcript.
func (m *InMemory) Append(ctx context.Context, sessionID string, msg llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns[sessionID] = append(m.turns[sessionID], msg)
	return nil
}

// Load returns the session's transcript.
func (m *InMemory) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy so the caller's snapshot stays stable across appends
	msgs := m.turns[sessionID]
	result := make([]llm.Message, len(msgs))
	copy(result, msgs)

	return result, nil
}

// Reset discards the session's transcript.
func (m *InMemory) Reset(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.turns, sessionID)
	return nil
}
