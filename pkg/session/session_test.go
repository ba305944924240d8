package session_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/barekit/agrilab/pkg/knowledge"
	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/retrieval"
	"github.com/barekit/agrilab/pkg/session"
	"github.com/barekit/agrilab/pkg/transcript/inmemory"
)

type mockProvider struct {
	responses []llm.Message
	calls     int
	err       error
}

func (m *mockProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, choice llm.ToolChoice) (*llm.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.calls > len(m.responses) {
		return &llm.Message{Role: llm.RoleAssistant, Content: "No more responses"}, nil
	}
	resp := m.responses[m.calls-1]
	return &resp, nil
}

func (m *mockProvider) Stream(ctx context.Context, messages []llm.Message) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

type mockStore struct {
	docs       []knowledge.Document
	lastFilter knowledge.Filter
	lastTopK   int
}

func (m *mockStore) Upsert(ctx context.Context, vectors [][]float32, documents []knowledge.Document) error {
	m.docs = append(m.docs, documents...)
	return nil
}

func (m *mockStore) Query(ctx context.Context, vector []float32, topK int, filter knowledge.Filter) ([]knowledge.Document, error) {
	m.lastFilter = filter
	m.lastTopK = topK
	if len(m.docs) > topK {
		return m.docs[:topK], nil
	}
	return m.docs, nil
}

func (m *mockStore) Fetch(ctx context.Context, ids []string) ([]knowledge.Document, error) {
	var out []knowledge.Document
	for _, id := range ids {
		for _, doc := range m.docs {
			if doc.ID == id {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func sampleDoc() knowledge.Document {
	return knowledge.Document{
		ID:      "U10001",
		Content: "A digital extension service for rice farmers. It reaches 40,000 households.",
		Metadata: map[string]interface{}{
			"title":        "Digital Extension for Rice Farmers",
			"description":  "A digital extension service for rice farmers. It reaches 40,000 households.",
			"country":      "Ghana",
			"region":       "Western and Central Africa",
			"type":         "use case",
			"project":      "Ghana Agriculture Modernization",
			"organization": "Ministry of Agriculture and Rural Development",
			"topic":        []interface{}{"Crops"},
			"year":         []interface{}{"2023", "2024"},
			"contact":      []interface{}{"a.owusu@example.org"},
			"project_id":   "P170000",
			"document":     map[string]interface{}{"Appraisal Document": "https://example.org/pad.pdf"},
		},
	}
}

func newTestSession(t *testing.T, provider llm.Provider, store *mockStore) *session.Session {
	t.Helper()
	retriever := retrieval.New(&mockEmbedder{}, store)
	return session.New(provider, retriever)
}

func advance(t *testing.T, s *session.Session) session.Action {
	t.Helper()
	action, err := s.Advance(context.Background())
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	return action
}

func transcript(t *testing.T, s *session.Session) []llm.Message {
	t.Helper()
	msgs, err := s.Transcript(context.Background())
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	return msgs
}

func TestAdvance_EmptyTranscriptAppendsWelcome(t *testing.T) {
	s := newTestSession(t, &mockProvider{}, &mockStore{})

	if got := advance(t, s); got != session.ActionWelcome {
		t.Fatalf("expected ActionWelcome, got %v", got)
	}

	msgs := transcript(t, s)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleAssistant || msgs[0].Content != session.WelcomeMessage {
		t.Errorf("unexpected welcome turn: %+v", msgs[0])
	}
	if s.State() != session.StateAwaitingDetail {
		t.Errorf("expected awaiting_detail, got %v", s.State())
	}
}

func TestAdvance_SecondUserTurnGetsDetailPromptWithoutModelCall(t *testing.T) {
	provider := &mockProvider{}
	s := newTestSession(t, provider, &mockStore{})
	ctx := context.Background()

	advance(t, s)
	if err := s.UserInput(ctx, "I need rice yield data for Ghana"); err != nil {
		t.Fatal(err)
	}

	if got := advance(t, s); got != session.ActionDetailPrompt {
		t.Fatalf("expected ActionDetailPrompt, got %v", got)
	}

	msgs := transcript(t, s)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(msgs))
	}
	if msgs[2].Content != session.DetailPrompt {
		t.Errorf("expected detail prompt, got %q", msgs[2].Content)
	}
	if provider.calls != 0 {
		t.Errorf("expected no model call, got %d", provider.calls)
	}
}

func TestAdvance_PreselectPopulatesSelection(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{
						ID:   "call_1",
						Type: "function",
						Function: llm.Function{
							Name:      session.ToolPreselectFilters,
							Arguments: `{"country": ["Ghana", "Atlantis"], "type": ["use case"]}`,
						},
					},
				},
			},
		},
	}
	s := newTestSession(t, provider, &mockStore{})
	ctx := context.Background()

	advance(t, s)
	_ = s.UserInput(ctx, "I need rice yield data")
	advance(t, s)
	_ = s.UserInput(ctx, "Rice yields in Ghana since 2023, ideally use cases")

	if got := advance(t, s); got != session.ActionPreselect {
		t.Fatalf("expected ActionPreselect, got %v", got)
	}

	msgs := transcript(t, s)
	if msgs[len(msgs)-1].Content != session.FilterConfirmation {
		t.Errorf("expected filter confirmation turn, got %q", msgs[len(msgs)-1].Content)
	}
	// Out-of-domain "Atlantis" is dropped; in-domain values survive.
	if got := s.Selection().Values("country"); len(got) != 1 || got[0] != "Ghana" {
		t.Errorf("unexpected country selection: %v", got)
	}
	if got := s.Selection().Values("type"); len(got) != 1 || got[0] != "use case" {
		t.Errorf("unexpected type selection: %v", got)
	}
	if s.State() != session.StateAwaitingFilterConfirm {
		t.Errorf("expected awaiting_filter_confirm, got %v", s.State())
	}

	// The persisted transcript never holds a system turn.
	for i, msg := range msgs {
		if msg.Role == llm.RoleSystem {
			t.Errorf("system turn persisted at index %d", i)
		}
	}
}

func TestAdvance_SearchWaitsForConfirmation(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolPreselectFilters, Arguments: `{"country": ["Ghana"]}`},
			}}},
		},
	}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	advance(t, s)
	_ = s.UserInput(ctx, "I need rice yield data")
	advance(t, s)
	_ = s.UserInput(ctx, "Rice yields in Ghana")
	advance(t, s)

	// Not confirmed yet: nothing happens.
	if got := advance(t, s); got != session.ActionNone {
		t.Fatalf("expected ActionNone before confirmation, got %v", got)
	}

	s.Confirm()
	if got := advance(t, s); got != session.ActionSearch {
		t.Fatalf("expected ActionSearch, got %v", got)
	}

	msgs := transcript(t, s)
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "Digital Extension for Rice Farmers in Ghana") {
		t.Errorf("match summary missing title/country: %q", last.Content)
	}
	if !strings.HasSuffix(last.Content, "else?") {
		t.Errorf("match summary must end with the follow-up suffix: %q", last.Content)
	}
	if store.lastTopK != retrieval.TopK {
		t.Errorf("expected top_k=%d, got %d", retrieval.TopK, store.lastTopK)
	}
	// The confirmed selection is threaded into the index filter.
	if got := store.lastFilter["country"]; len(got) != 1 || got[0] != "Ghana" {
		t.Errorf("selection not threaded into filter: %v", store.lastFilter)
	}
	if s.State() != session.StateShowingResults {
		t.Errorf("expected showing_results, got %v", s.State())
	}
}

func TestAdvance_FollowUpFetchesRecord(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolPreselectFilters, Arguments: `{}`},
			}}},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_2", Type: "function",
				Function: llm.Function{Name: session.ToolGetMoreInformation, Arguments: `{"id": "U10001"}`},
			}}},
		},
	}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	runToResults(t, s, ctx)

	_ = s.UserInput(ctx, "Tell me more about U10001")
	if got := advance(t, s); got != session.ActionFollowUp {
		t.Fatalf("expected ActionFollowUp, got %v", got)
	}

	msgs := transcript(t, s)
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Content, "**Title:** Digital Extension for Rice Farmers") {
		t.Errorf("record detail missing title: %q", last.Content)
	}
	if !strings.Contains(last.Content, "[Appraisal Document](https://example.org/pad.pdf)") {
		t.Errorf("record detail missing document link: %q", last.Content)
	}
	if s.State() != session.StateFollowUp {
		t.Errorf("expected follow_up, got %v", s.State())
	}
}

func TestAdvance_FollowUpUnknownRecordDegrades(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolPreselectFilters, Arguments: `{}`},
			}}},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_2", Type: "function",
				Function: llm.Function{Name: session.ToolGetMoreInformation, Arguments: `{"id": "U99999"}`},
			}}},
		},
	}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	runToResults(t, s, ctx)

	_ = s.UserInput(ctx, "Tell me more about U99999")
	if got := advance(t, s); got != session.ActionFollowUp {
		t.Fatalf("expected ActionFollowUp, got %v", got)
	}

	msgs := transcript(t, s)
	last := msgs[len(msgs)-1]
	if !last.Error {
		t.Error("expected an error-tagged turn for an absent record")
	}
	if !strings.Contains(last.Content, "U99999") {
		t.Errorf("not-found message should name the id: %q", last.Content)
	}
}

func TestAdvance_UnknownToolDegradesToDiagnostic(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolPreselectFilters, Arguments: `{}`},
			}}},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_2", Type: "function",
				Function: llm.Function{Name: "nonexistent_fn", Arguments: `{}`},
			}}},
		},
	}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	runToResults(t, s, ctx)

	_ = s.UserInput(ctx, "Do the impossible")
	advance(t, s)

	msgs := transcript(t, s)
	last := msgs[len(msgs)-1]
	if last.Content != "Error: function nonexistent_fn does not exist" {
		t.Errorf("unexpected diagnostic: %q", last.Content)
	}
}

func TestAdvance_TransportFailureYieldsErrorTurn(t *testing.T) {
	provider := &mockProvider{err: fmt.Errorf("connection refused")}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	advance(t, s)
	_ = s.UserInput(ctx, "I need rice yield data")
	advance(t, s)
	_ = s.UserInput(ctx, "Rice yields in Ghana")
	// Preselection fails over transport; the flow still proceeds to the
	// filter widget with an empty selection.
	if got := advance(t, s); got != session.ActionPreselect {
		t.Fatalf("expected ActionPreselect, got %v", got)
	}
	if !s.Selection().IsEmpty() {
		t.Error("expected empty selection after failed preselection")
	}

	s.Confirm()
	advance(t, s)

	_ = s.UserInput(ctx, "Tell me more about U10001")
	if got := advance(t, s); got != session.ActionFollowUp {
		t.Fatalf("expected ActionFollowUp, got %v", got)
	}

	msgs := transcript(t, s)
	last := msgs[len(msgs)-1]
	if !last.Error {
		t.Error("expected an error-tagged turn after a transport failure")
	}
	if last.Content != session.TransportFailureMessage {
		t.Errorf("unexpected error turn content: %q", last.Content)
	}
}

func TestAdvance_MalformedReplayFiresAtMostOneAction(t *testing.T) {
	provider := &mockProvider{}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	// A replay that jumps straight to length 6 matches no rule in the
	// init state: nothing fires, nothing is appended.
	for i := 0; i < 6; i++ {
		_ = s.UserInput(ctx, fmt.Sprintf("replayed turn %d", i))
	}
	if got := advance(t, s); got != session.ActionNone {
		t.Fatalf("expected ActionNone for malformed replay, got %v", got)
	}
	if got := len(transcript(t, s)); got != 6 {
		t.Errorf("expected transcript untouched at 6 turns, got %d", got)
	}
	if provider.calls != 0 {
		t.Errorf("expected no model call, got %d", provider.calls)
	}
}

func TestAdvance_ResumesFromPersistedTranscript(t *testing.T) {
	provider := &mockProvider{}
	store := inmemory.New()
	ctx := context.Background()

	// A prior process got as far as the welcome and the first user turn.
	_ = store.Append(ctx, "restored", llm.Message{Role: llm.RoleAssistant, Content: session.WelcomeMessage})
	_ = store.Append(ctx, "restored", llm.Message{Role: llm.RoleUser, Content: "I need rice yield data"})

	retriever := retrieval.New(&mockEmbedder{}, &mockStore{})
	s := session.New(provider, retriever, session.WithID("restored"), session.WithStore(store))

	if got := advance(t, s); got != session.ActionDetailPrompt {
		t.Fatalf("expected ActionDetailPrompt after restore, got %v", got)
	}
	msgs := transcript(t, s)
	if msgs[len(msgs)-1].Content != session.DetailPrompt {
		t.Errorf("expected detail prompt appended, got %q", msgs[len(msgs)-1].Content)
	}
}

func TestAdvance_ResumesAfterResults(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolGetMoreInformation, Arguments: `{"id": "U10001"}`},
			}}},
		},
	}
	store := inmemory.New()
	ctx := context.Background()

	// A prior process completed a full search round.
	for _, msg := range []llm.Message{
		{Role: llm.RoleAssistant, Content: session.WelcomeMessage},
		{Role: llm.RoleUser, Content: "I need rice yield data"},
		{Role: llm.RoleAssistant, Content: session.DetailPrompt},
		{Role: llm.RoleUser, Content: "Rice yields in Ghana"},
		{Role: llm.RoleAssistant, Content: session.FilterConfirmation},
		{Role: llm.RoleAssistant, Content: "Here are the top matches. Would you like to search for something else?"},
	} {
		_ = store.Append(ctx, "restored", msg)
	}

	vectorStore := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	retriever := retrieval.New(&mockEmbedder{}, vectorStore)
	s := session.New(provider, retriever, session.WithID("restored"), session.WithStore(store))

	if err := s.UserInput(ctx, "Tell me more about U10001"); err != nil {
		t.Fatal(err)
	}
	if got := advance(t, s); got != session.ActionFollowUp {
		t.Fatalf("expected ActionFollowUp after restore, got %v", got)
	}
	msgs := transcript(t, s)
	if !strings.Contains(msgs[len(msgs)-1].Content, "**Title:** Digital Extension for Rice Farmers") {
		t.Errorf("expected record detail, got %q", msgs[len(msgs)-1].Content)
	}
}

func TestSession_Reset(t *testing.T) {
	provider := &mockProvider{
		responses: []llm.Message{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_1", Type: "function",
				Function: llm.Function{Name: session.ToolPreselectFilters, Arguments: `{"country": ["Ghana"]}`},
			}}},
		},
	}
	store := &mockStore{docs: []knowledge.Document{sampleDoc()}}
	s := newTestSession(t, provider, store)
	ctx := context.Background()

	runToResults(t, s, ctx)

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := len(transcript(t, s)); got != 0 {
		t.Errorf("expected empty transcript after reset, got %d turns", got)
	}
	if !s.Selection().IsEmpty() {
		t.Error("expected empty selection after reset")
	}
	if s.Confirmed() {
		t.Error("expected confirmation flag lowered after reset")
	}
	if s.State() != session.StateInit {
		t.Errorf("expected init state after reset, got %v", s.State())
	}

	// The session is usable again from the top.
	if got := advance(t, s); got != session.ActionWelcome {
		t.Errorf("expected ActionWelcome after reset, got %v", got)
	}
}

// runToResults drives a session through welcome, detail, preselection, and
// the confirmed search, consuming the provider's first scripted response.
func runToResults(t *testing.T, s *session.Session, ctx context.Context) {
	t.Helper()
	advance(t, s)
	_ = s.UserInput(ctx, "I need rice yield data")
	advance(t, s)
	_ = s.UserInput(ctx, "Rice yields in Ghana")
	if got := advance(t, s); got != session.ActionPreselect {
		t.Fatalf("expected ActionPreselect, got %v", got)
	}
	s.Confirm()
	if got := advance(t, s); got != session.ActionSearch {
		t.Fatalf("expected ActionSearch, got %v", got)
	}
}
