// Package session implements the conversational turn protocol: an explicit
// state machine that decides, for each render of the chat surface, whether
// to append a scripted turn, invoke the model with tools, or run a search,
// and how to fold the result back into the transcript.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/barekit/agrilab/pkg/facets"
	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/retrieval"
	"github.com/barekit/agrilab/pkg/tools"
	"github.com/barekit/agrilab/pkg/transcript"
	"github.com/barekit/agrilab/pkg/transcript/inmemory"
	"github.com/google/uuid"
)

// State is the session's position in the scripted conversation flow. State
// is recorded on each transition rather than re-derived from transcript
// shape; the transcript fingerprints remain as guards so a malformed
// replay still selects at most one action per render.
type State int

const (
	// StateInit is a fresh session with an empty transcript.
	StateInit State = iota
	// StateAwaitingDetail has greeted the user and is collecting what they
	// are looking for.
	StateAwaitingDetail
	// StateAwaitingFilterConfirm has preselected facet filters and is
	// waiting for the user to edit them and confirm the search.
	StateAwaitingFilterConfirm
	// StateShowingResults has appended the match summary.
	StateShowingResults
	// StateFollowUp is handling open-ended follow-up turns.
	StateFollowUp
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingDetail:
		return "awaiting_detail"
	case StateAwaitingFilterConfirm:
		return "awaiting_filter_confirm"
	case StateShowingResults:
		return "showing_results"
	case StateFollowUp:
		return "follow_up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scripted turns and prompts. The welcome and detail-prompt texts double as
// transition guards, so they are fixed strings, not templates.
const (
	WelcomeMessage = "Welcome to the AgriFood Data Lab!  \n  \nExplore agricultural use cases, datasets, and learning resources, with AI-enabled search, retrieval, and analysis capabilities.  \n  \nHow can we help you today?"

	DetailPrompt = "Could you describe what you're looking for to us in more detail?"

	FilterConfirmation = "Thank you. We've added some optional filters that you can edit to help us narrow down your search."

	// followUpSuffix marks assistant turns that invite another round.
	followUpSuffix = "else?"

	preselectInstruction = "Use the conversation to call the preselect function."
	followUpInstruction  = "Use the conversation to call the get_more_information function."
)

// Tool names exposed to the model.
const (
	ToolPreselectFilters   = "preselect_search_filters"
	ToolGetMoreInformation = "get_more_information"
)

// Session owns everything scoped to one conversation: the transcript
// store handle, the facet selection, the confirmation flag, and the state
// machine position. One instance per conversation; Reset tears it down.
type Session struct {
	id        string
	store     transcript.Store
	retriever *retrieval.Adapter
	schema    *facets.Schema

	orchestrator *Orchestrator
	registry     *tools.Registry

	selection facets.Selection
	confirmed bool
	state     State
	debug     bool
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithStore sets the transcript store. Defaults to the in-memory store.
func WithStore(store transcript.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithSchema sets the facet schema. Defaults to facets.Default().
func WithSchema(schema *facets.Schema) Option {
	return func(s *Session) {
		s.schema = schema
	}
}

// WithDebug enables debug logging.
func WithDebug(enable bool) Option {
	return func(s *Session) {
		s.debug = enable
	}
}

// New creates a Session over a completion provider and a retrieval adapter.
func New(provider llm.Provider, retriever *retrieval.Adapter, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		store:     inmemory.New(),
		retriever: retriever,
		schema:    facets.Default(),
		state:     StateInit,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.selection = facets.NewSelection(s.schema)
	s.registry = tools.NewRegistry(
		s.preselectTool(),
		s.moreInformationTool(),
	)
	s.orchestrator = NewOrchestrator(provider, s.registry, s.debug)

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// Selection returns the live facet selection.
func (s *Session) Selection() facets.Selection {
	return s.selection
}

// Schema returns the facet schema the session filters on.
func (s *Session) Schema() *facets.Schema {
	return s.schema
}

// Registry returns the session's tool registry.
func (s *Session) Registry() *tools.Registry {
	return s.registry
}

// Confirmed reports whether the user has confirmed the filter selection.
// The flag persists for the rest of the session once set.
func (s *Session) Confirmed() bool {
	return s.confirmed
}

// Confirm records the user's filter confirmation. It is never reset
// within a session.
func (s *Session) Confirm() {
	s.confirmed = true
}

// SetFilter replaces the user's selection for one facet, dropping values
// outside the facet's domain.
func (s *Session) SetFilter(name string, values []string) error {
	dropped, err := s.selection.Set(s.schema, name, values)
	if err != nil {
		return err
	}
	if len(dropped) > 0 && s.debug {
		slog.Info("dropped out-of-domain filter values", "facet", name, "values", dropped)
	}
	return nil
}

// UserInput appends a user turn to the transcript.
func (s *Session) UserInput(ctx context.Context, text string) error {
	return s.store.Append(ctx, s.id, llm.Message{Role: llm.RoleUser, Content: text})
}

// Transcript returns the persisted transcript. It never contains a system
// turn: system turns live only inside a single orchestrator call.
func (s *Session) Transcript(ctx context.Context) ([]llm.Message, error) {
	return s.store.Load(ctx, s.id)
}

// Reset tears the session down: transcript discarded, selection cleared,
// confirmation flag lowered, state back to init.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx, s.id); err != nil {
		return err
	}
	s.selection = facets.NewSelection(s.schema)
	s.confirmed = false
	s.state = StateInit
	return nil
}

// preselectTool declares preselect_search_filters. Its parameter schema is
// built from the facet configuration so the model sees each facet's closed
// domain; its only observable effect is overwriting the facet selection.
func (s *Session) preselectTool() *tools.Tool {
	properties := make(map[string]interface{}, len(s.schema.Facets))
	for _, f := range s.schema.Facets {
		properties[f.Name] = map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
			"description": fmt.Sprintf("%s. Options include:\n%s",
				f.Description, strings.Join(f.Domain, "\n")),
		}
	}

	def := llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        ToolPreselectFilters,
			Description: "Preselect search filters based on the message history.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": properties,
			},
		},
	}

	return tools.NewWithDefinition(def, func(ctx context.Context, args json.RawMessage) (string, error) {
		var selected map[string][]string
		if err := json.Unmarshal(args, &selected); err != nil {
			return "", &tools.MalformedArgumentsError{Tool: ToolPreselectFilters, Err: err}
		}
		for _, f := range s.schema.Facets {
			if err := s.SetFilter(f.Name, selected[f.Name]); err != nil {
				return "", err
			}
		}
		// The rendered filter widget is the observable effect.
		return "", nil
	})
}

type moreInformationArgs struct {
	ID string `json:"id" description:"The id of the record to retrieve."`
}

// moreInformationTool declares get_more_information over the retrieval
// adapter. An absent id degrades to a visible not-found message.
func (s *Session) moreInformationTool() *tools.Tool {
	t, err := tools.New(
		ToolGetMoreInformation,
		"Get more information on a record from the knowledge base using its id.",
		func(ctx context.Context, args moreInformationArgs) (string, error) {
			return s.retriever.MoreInformation(ctx, args.ID)
		},
	)
	if err != nil {
		// The argument struct is static; a definition failure is a
		// programming error.
		panic(err)
	}
	return t
}
