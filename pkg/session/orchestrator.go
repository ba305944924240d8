package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/tools"
	"github.com/cenkalti/backoff/v4"
)

// TransportFailureMessage is the error turn shown when the completion
// endpoint cannot be reached. The raw error never becomes turn content.
const TransportFailureMessage = "We couldn't reach the language model just now. Please try again."

// completionMaxRetries bounds the backoff on the completion call: each
// model turn is attempted at most completionMaxRetries+1 times.
const completionMaxRetries = 2

// Orchestrator invokes the model with the transcript and tool
// declarations, interprets whether the model answered directly or chose a
// tool, and dispatches through the registry.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	debug    bool
}

// NewOrchestrator creates an Orchestrator over a provider and registry.
func NewOrchestrator(provider llm.Provider, registry *tools.Registry, debug bool) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		registry: registry,
		debug:    debug,
	}
}

// Complete runs one model turn. The instruction is sent as a transient
// system turn prefixed to a copy of the transcript; the persisted
// transcript never holds it. Exactly one tool invocation is honored per
// turn: when the model requests several, only the first is dispatched and
// the rest are dropped. Failures come back as error-tagged turns; no
// failure is fatal to the session.
func (o *Orchestrator) Complete(ctx context.Context, msgs []llm.Message, instruction string, choice llm.ToolChoice) llm.Message {
	request := make([]llm.Message, 0, len(msgs)+1)
	if instruction != "" {
		request = append(request, llm.Message{Role: llm.RoleSystem, Content: instruction})
	}
	request = append(request, msgs...)

	defs := o.registry.Definitions()

	var response *llm.Message
	op := func() error {
		var cerr error
		response, cerr = o.provider.Chat(ctx, request, defs, choice)
		var terr *llm.TransportError
		if cerr != nil && errors.As(cerr, &terr) && !terr.Temporary() {
			// Bad credentials or a rejected request won't heal with time.
			return backoff.Permanent(cerr)
		}
		return cerr
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), completionMaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slog.Error("completion call failed", "error", err)
		return llm.Message{Role: llm.RoleAssistant, Content: TransportFailureMessage, Error: true}
	}

	// No tool requested: the model's free-text turn is returned unmodified.
	if len(response.ToolCalls) == 0 {
		return *response
	}

	tc := response.ToolCalls[0]
	if o.debug {
		slog.Info("tool requested", "tool", tc.Function.Name, "args", tc.Function.Arguments)
		if len(response.ToolCalls) > 1 {
			slog.Info("dropping extra tool calls", "count", len(response.ToolCalls)-1)
		}
	}

	result, err := o.registry.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)
	if err != nil {
		var unknown *tools.UnknownToolError
		if errors.As(err, &unknown) {
			// Soft fail: the diagnostic becomes the visible turn content.
			return llm.Message{Role: llm.RoleAssistant, Content: result}
		}
		slog.Error("tool dispatch failed", "tool", tc.Function.Name, "error", err)
		if result == "" {
			result = "Something went wrong handling that request. Please try again."
		}
		return llm.Message{Role: llm.RoleAssistant, Content: result, Error: true}
	}

	return llm.Message{Role: llm.RoleAssistant, Content: result}
}
