package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/barekit/agrilab/pkg/llm"
)

// Action identifies the single step a render performed.
type Action int

const (
	// ActionNone means the render had nothing to do (e.g. waiting on input).
	ActionNone Action = iota
	// ActionWelcome appended the scripted welcome turn.
	ActionWelcome
	// ActionDetailPrompt appended the scripted detail prompt.
	ActionDetailPrompt
	// ActionPreselect invoked the model to preselect facet filters and
	// appended the filter-confirmation turn.
	ActionPreselect
	// ActionSearch ran the knowledge-base search and appended the summary.
	ActionSearch
	// ActionFollowUp invoked the model for a follow-up turn.
	ActionFollowUp
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionWelcome:
		return "welcome"
	case ActionDetailPrompt:
		return "detail_prompt"
	case ActionPreselect:
		return "preselect"
	case ActionSearch:
		return "search"
	case ActionFollowUp:
		return "follow_up"
	default:
		return "unknown"
	}
}

// Advance runs one render cycle: it inspects the recorded state, the
// confirmation flag, and the transcript, performs at most one action, and
// appends the action's result to the transcript.
//
// The transition guards mirror the scripted flow exactly: a rule fires
// only in its state AND with its transcript fingerprint (length plus the
// literal text of specific prior turns) satisfied. Rules are evaluated in
// priority order and only the first match fires, so even a malformed
// replayed transcript produces at most one scripted or model action per
// render.
func (s *Session) Advance(ctx context.Context) (Action, error) {
	msgs, err := s.store.Load(ctx, s.id)
	if err != nil {
		return ActionNone, err
	}
	n := len(msgs)

	// A session rebuilt over a durable store starts at init with a
	// non-empty transcript; derive where the conversation left off so
	// the rules below can fire again.
	if s.state == StateInit && n > 0 {
		s.transition(restoredState(msgs))
	}

	switch {
	// Fresh session: greet, no model call.
	case s.state == StateInit && n == 0:
		if err := s.append(ctx, llm.Message{Role: llm.RoleAssistant, Content: WelcomeMessage}); err != nil {
			return ActionNone, err
		}
		s.transition(StateAwaitingDetail)
		return ActionWelcome, nil

	// First user turn arrived: ask for detail, no model call.
	case s.state == StateAwaitingDetail && n == 2 && msgs[n-2].Content == WelcomeMessage:
		if err := s.append(ctx, llm.Message{Role: llm.RoleAssistant, Content: DetailPrompt}); err != nil {
			return ActionNone, err
		}
		return ActionDetailPrompt, nil

	// Detail arrived: confirm, then let the model preselect the filters.
	// The editable facet widget renders from the session's selection; the
	// search waits for the user's explicit confirmation.
	case s.state == StateAwaitingDetail && n == 4 && msgs[n-2].Content == DetailPrompt:
		confirm := llm.Message{Role: llm.RoleAssistant, Content: FilterConfirmation}
		if err := s.append(ctx, confirm); err != nil {
			return ActionNone, err
		}
		result := s.orchestrator.Complete(ctx, append(msgs, confirm), preselectInstruction, llm.ToolChoiceAuto)
		if result.Error {
			// Preselection is best-effort: the user can still edit and
			// confirm an empty selection.
			slog.Error("filter preselection failed", "session", s.id)
		} else if s.debug {
			slog.Info("filters preselected", "session", s.id)
		}
		s.transition(StateAwaitingFilterConfirm)
		return ActionPreselect, nil

	// Confirmed: search with the user's detailed description as the query
	// and the live (possibly user-edited) facet selection as the filter.
	case s.state == StateAwaitingFilterConfirm && s.confirmed && n == 5 && msgs[n-3].Content == DetailPrompt:
		query := msgs[n-2].Content
		content, serr := s.retriever.Search(ctx, query, s.selection.Clone())
		if serr != nil {
			slog.Error("search failed", "session", s.id, "error", serr)
		}
		if err := s.append(ctx, llm.Message{Role: llm.RoleAssistant, Content: content, Error: serr != nil}); err != nil {
			return ActionNone, err
		}
		s.transition(StateShowingResults)
		return ActionSearch, nil

	// Open-ended follow-up: the previous assistant turn invited another
	// round, so hand the transcript to the model with the lookup tool.
	case (s.state == StateShowingResults || s.state == StateFollowUp) && n > 6 && strings.HasSuffix(msgs[n-2].Content, followUpSuffix):
		result := s.orchestrator.Complete(ctx, msgs, followUpInstruction, llm.ToolChoiceAuto)
		if err := s.append(ctx, result); err != nil {
			return ActionNone, err
		}
		s.transition(StateFollowUp)
		return ActionFollowUp, nil
	}

	return ActionNone, nil
}

// restoredState maps a persisted transcript back to a state machine
// position. Length is the primary cue, mirroring the transition guards;
// a transcript that does not fit the scripted flow still lands on a
// state whose content fingerprints will refuse to fire. Confirmation is
// not persisted, so a session restored at the filter widget waits for
// the user to confirm again.
func restoredState(msgs []llm.Message) State {
	switch n := len(msgs); {
	case n > 6:
		return StateFollowUp
	case n == 6:
		return StateShowingResults
	case n == 5:
		return StateAwaitingFilterConfirm
	default:
		return StateAwaitingDetail
	}
}

func (s *Session) append(ctx context.Context, msg llm.Message) error {
	return s.store.Append(ctx, s.id, msg)
}

func (s *Session) transition(next State) {
	if s.debug && next != s.state {
		slog.Info("session state transition", "session", s.id, "from", s.state.String(), "to", next.String())
	}
	s.state = next
}
