package llm

import (
	"context"
	"fmt"
)

// Role represents the role of the message sender (system, user, assistant, tool).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single turn in the conversation transcript.
// Ordering is significant: the transcript is append-only and never reordered.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Name is optional, used for tool calls to specify which tool is being called or responding.
	Name string `json:"name,omitempty"`
	// ToolCalls is a list of tool calls made by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID is the ID of the tool call this message is a response to.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Error marks a turn that reports a failed external call. Error turns
	// render like assistant turns but stay distinguishable from model content.
	Error bool `json:"error,omitempty"`
}

// ToolCall represents a request to call a tool.
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function represents the function details in a tool call.
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolChoice is the tool-choice policy passed to the completion endpoint.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone forbids tool calls for the request.
	ToolChoiceNone ToolChoice = "none"
)

// ForceTool returns a tool-choice policy that forces the named function.
func ForceTool(name string) ToolChoice {
	return ToolChoice(name)
}

// Provider defines the interface for an LLM provider.
type Provider interface {
	// Chat sends a list of messages to the LLM and returns the response.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, choice ToolChoice) (*Message, error)
	// Stream sends a list of messages to the LLM and returns a channel of response chunks.
	Stream(ctx context.Context, messages []Message) (<-chan string, error)
}

// ToolDefinition represents the schema of a tool that can be passed to the LLM.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the function signature for the LLM.
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters"`
}

// TransportError reports a failed round-trip to an external completion or
// embedding endpoint. It is never written into a transcript as content.
// Status carries the HTTP status when the endpoint answered; zero means
// the request never completed.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure reaching %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call could plausibly succeed.
// Network-level failures, throttling, and server-side statuses are
// temporary; other client errors (bad request, bad credentials) are not.
func (e *TransportError) Temporary() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == 408 || e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}
