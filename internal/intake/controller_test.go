package intake

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fbruhn/sprechzeit/internal/intake/reasonstore"
	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// fakeStore records saved reasons and optionally fails.
type fakeStore struct {
	saved   []reasonstore.VisitReason
	saveErr error
}

func (s *fakeStore) Save(_ context.Context, r reasonstore.VisitReason) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}

func seeded(t *testing.T, store reasonstore.Store) (*Controller, *convo.Context) {
	t.Helper()
	c := NewController(ControllerConfig{CallID: "call-test", Store: store})
	cctx := convo.New()
	c.Seed(cctx)
	return c, cctx
}

func saveCall(args string) types.ToolCall {
	return types.ToolCall{ID: "tc-1", Name: ToolSaveVisitReason, Arguments: args}
}

func TestController_SeedInstallsScriptAndTool(t *testing.T) {
	c, cctx := seeded(t, &fakeStore{})

	if c.State() != StateCollectingReason {
		t.Errorf("state = %v, want collecting_reason", c.State())
	}
	msgs := cctx.Messages()
	if len(msgs) != 1 || msgs[0].Role != "system" || msgs[0].Content != SystemPrompt {
		t.Errorf("seed wrote %+v, want the practice script as system message", msgs)
	}
	if !cctx.OffersTool(ToolSaveVisitReason) {
		t.Error("save_visit_reason tool not offered after seeding")
	}

	// Seeding twice must not duplicate the script.
	c.Seed(cctx)
	if cctx.Len() != 1 {
		t.Errorf("second seed grew the context to %d messages", cctx.Len())
	}
}

func TestController_RoutineReason(t *testing.T) {
	store := &fakeStore{}
	c, cctx := seeded(t, store)

	result, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"Ich habe seit drei Tagen Fieber","is_emergency":false}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d reasons, want 1", len(store.saved))
	}
	rec := store.saved[0]
	if rec.Reason != "Ich habe seit drei Tagen Fieber" || rec.Emergency {
		t.Errorf("record = %+v", rec)
	}
	if rec.CallID != "call-test" {
		t.Errorf("call id = %q, want call-test", rec.CallID)
	}
	if rec.RecordedAt.IsZero() {
		t.Error("recorded timestamp is zero")
	}

	if !result.Requeue {
		t.Error("result must requeue the context for the farewell turn")
	}
	if c.State() != StateClosing {
		t.Errorf("state = %v, want closing", c.State())
	}

	msgs := cctx.Messages()
	// system script, assistant branch response, closing system instruction
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != RoutineResponse {
		t.Errorf("branch response = %+v, want the routine wording", msgs[1])
	}
	if msgs[2].Role != "system" || msgs[2].Content != ClosingInstruction {
		t.Errorf("closing instruction = %+v", msgs[2])
	}
	if cctx.OffersTool(ToolSaveVisitReason) {
		t.Error("tool still on offer after the reason was recorded")
	}
}

func TestController_EmergencyReason(t *testing.T) {
	store := &fakeStore{}
	c, cctx := seeded(t, store)

	_, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"Starke Brustschmerzen","is_emergency":true}`))
	if err != nil {
		t.Fatal(err)
	}

	if len(store.saved) != 1 || !store.saved[0].Emergency {
		t.Fatalf("emergency flag not recorded: %+v", store.saved)
	}

	msgs := cctx.Messages()
	if msgs[1].Content != EmergencyResponse {
		t.Errorf("branch response = %q, want the emergency wording", msgs[1].Content)
	}
	if !strings.Contains(EmergencyResponse, "116117") {
		t.Error("emergency response does not name the on-call number")
	}
	if c.State() != StateClosing {
		t.Errorf("state = %v, want closing", c.State())
	}
}

func TestController_SecondCallIsNoOp(t *testing.T) {
	store := &fakeStore{}
	c, cctx := seeded(t, store)
	ctx := context.Background()

	if _, err := c.HandleToolCall(ctx, saveCall(`{"reason":"Fieber","is_emergency":false}`)); err != nil {
		t.Fatal(err)
	}
	before := cctx.Len()

	result, err := c.HandleToolCall(ctx, saveCall(`{"reason":"noch einmal","is_emergency":true}`))
	if err != nil {
		t.Fatalf("stray call must not error: %v", err)
	}
	if result.Requeue || result.AckAudio != nil || result.Content != "" {
		t.Errorf("stray call result = %+v, want zero value", result)
	}
	if len(store.saved) != 1 {
		t.Errorf("stray call reached the store: %d saves", len(store.saved))
	}
	if cctx.Len() != before {
		t.Errorf("stray call mutated the context: %d -> %d messages", before, cctx.Len())
	}
}

func TestController_MissingEmergencyFlagDefaultsFalse(t *testing.T) {
	store := &fakeStore{}
	c, _ := seeded(t, store)

	if _, err := c.HandleToolCall(context.Background(), saveCall(`{"reason":"Husten"}`)); err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 1 || store.saved[0].Emergency {
		t.Errorf("saved = %+v, want non-emergency", store.saved)
	}
	if c.State() != StateClosing {
		t.Errorf("state = %v, want closing", c.State())
	}
}

func TestController_MalformedArgumentsTolerated(t *testing.T) {
	store := &fakeStore{}
	c, _ := seeded(t, store)

	if _, err := c.HandleToolCall(context.Background(), saveCall(`{"reason":`)); err != nil {
		t.Fatalf("malformed arguments must not error: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].Reason != "" {
		t.Errorf("saved = %+v, want empty reason record", store.saved)
	}
}

func TestController_ReasonTrimmed(t *testing.T) {
	store := &fakeStore{}
	c, _ := seeded(t, store)

	if _, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"  Rückenschmerzen  ","is_emergency":false}`)); err != nil {
		t.Fatal(err)
	}
	if store.saved[0].Reason != "Rückenschmerzen" {
		t.Errorf("reason = %q, want trimmed", store.saved[0].Reason)
	}
}

func TestController_StoreFailureStillCloses(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("connection refused")}
	c, cctx := seeded(t, store)

	result, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"Fieber","is_emergency":false}`))
	if err != nil {
		t.Fatalf("store failure must not fail the call: %v", err)
	}
	if !result.Requeue {
		t.Error("result must still requeue the farewell")
	}
	if c.State() != StateClosing {
		t.Errorf("state = %v, want closing despite the store failure", c.State())
	}
	if cctx.OffersTool(ToolSaveVisitReason) {
		t.Error("tool still on offer after the store failure")
	}
}

func TestController_WrongToolNameRejected(t *testing.T) {
	c, _ := seeded(t, &fakeStore{})

	_, err := c.HandleToolCall(context.Background(),
		types.ToolCall{ID: "tc-2", Name: "book_appointment", Arguments: "{}"})
	if err == nil {
		t.Fatal("expected error for an unexpected tool name")
	}
}

func TestController_UnseededCallIsStray(t *testing.T) {
	c := NewController(ControllerConfig{CallID: "call-test", Store: &fakeStore{}})

	result, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"Fieber","is_emergency":false}`))
	if err != nil {
		t.Fatalf("call before seeding must not error: %v", err)
	}
	if result.Requeue {
		t.Error("call before seeding must be a no-op")
	}
	if c.State() != StateGreeting {
		t.Errorf("state = %v, want greeting", c.State())
	}
}

func TestController_AckAudioReturned(t *testing.T) {
	ack := types.AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	c := NewController(ControllerConfig{CallID: "call-test", Store: &fakeStore{}, AckSound: &ack})
	c.Seed(convo.New())

	result, err := c.HandleToolCall(context.Background(),
		saveCall(`{"reason":"Fieber","is_emergency":false}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.AckAudio == nil || len(result.AckAudio.Data) != len(ack.Data) {
		t.Error("acknowledgment sound not returned with the result")
	}
}

func TestController_Close(t *testing.T) {
	c, _ := seeded(t, &fakeStore{})
	c.Close()
	if c.State() != StateClosed {
		t.Errorf("state = %v, want closed", c.State())
	}
	c.Close()
	if c.State() != StateClosed {
		t.Error("close must be idempotent")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateGreeting, "greeting"},
		{StateCollectingReason, "collecting_reason"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestSaveVisitReasonTool_Definition(t *testing.T) {
	def := SaveVisitReasonTool()
	if def.Name != ToolSaveVisitReason {
		t.Errorf("name = %q, want %q", def.Name, ToolSaveVisitReason)
	}
	props, ok := def.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatal("parameters missing properties object")
	}
	for _, field := range []string{"reason", "is_emergency"} {
		if _, ok := props[field]; !ok {
			t.Errorf("parameter %q missing", field)
		}
	}
}
