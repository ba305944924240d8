package transcript

import (
	"context"

	"github.com/barekit/agrilab/pkg/llm"
)

// Store persists the ordered, append-only conversation transcript for a
// session. The transcript is the single source of truth for session state:
// it is never reordered or rewritten, only appended to, and it never holds
// a system turn between renders (system turns are inserted and popped
// around a single model call, in memory, by the orchestrator).
type Store interface {
	// Append adds a turn to the end of the session's transcript.
	Append(ctx context.Context, sessionID string, msg llm.Message) error
	// Load returns the session's full transcript in conversational order.
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	// Reset discards the session's transcript.
	Reset(ctx context.Context, sessionID string) error
}
