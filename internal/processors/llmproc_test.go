package processors

import (
	"context"
	"testing"

	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	llmmock "github.com/fbruhn/sprechzeit/pkg/provider/llm/mock"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// raisingProvider raises the interrupt when a completion starts, simulating a
// caller speaking over the assistant the moment generation begins.
type raisingProvider struct {
	llm.Provider
	interrupt *Interrupt
}

func (r *raisingProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	r.interrupt.Raise()
	return r.Provider.StreamCompletion(ctx, req)
}

func textFrames(frames []frame.Frame) []string {
	var out []string
	for _, f := range frames {
		if txt, ok := f.(*frame.Text); ok {
			out = append(out, txt.Text)
		}
	}
	return out
}

func responsePair(t *testing.T, frames []frame.Frame) {
	t.Helper()
	var start, end bool
	for _, f := range frames {
		ctl, ok := f.(*frame.Control)
		if !ok {
			continue
		}
		switch ctl.Signal {
		case frame.SignalResponseStart:
			if start {
				t.Error("duplicate SignalResponseStart")
			}
			start = true
		case frame.SignalResponseEnd:
			if !start {
				t.Error("SignalResponseEnd before SignalResponseStart")
			}
			end = true
		}
	}
	if !start || !end {
		t.Errorf("response pair incomplete: start=%v end=%v", start, end)
	}
}

func seededContext() *convo.Context {
	cctx := convo.New()
	cctx.AddSystemMessage("Du bist die Assistenz einer Arztpraxis.")
	cctx.AddUserMessage("Guten Tag.")
	return cctx
}

func TestGenerator_EmitsSentences(t *testing.T) {
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Guten Tag! Wie"},
			{Text: " kann ich Ihnen helfen?"},
		},
	}
	g := NewGenerator(GeneratorConfig{Provider: provider})
	out := &capture{}

	cctx := seededContext()
	if err := g.Process(context.Background(), frame.NewLLMContext(cctx), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	frames := out.all()
	responsePair(t, frames)
	got := textFrames(frames)
	want := []string{"Guten Tag!", "Wie kann ich Ihnen helfen?"}
	if len(got) != len(want) {
		t.Fatalf("text frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("text frames = %v, want %v", got, want)
		}
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("stream calls = %d, want 1", len(calls))
	}
	if len(calls[0].Req.Messages) != 2 {
		t.Errorf("completion saw %d messages, want 2", len(calls[0].Req.Messages))
	}
}

func TestGenerator_AbbreviationDoesNotSplit(t *testing.T) {
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Sie können zu Dr. Pfeiffer kommen. Die Praxis ist bis 17 Uhr offen."},
		},
	}
	g := NewGenerator(GeneratorConfig{Provider: provider})
	out := &capture{}

	if err := g.Process(context.Background(), frame.NewLLMContext(seededContext()), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	got := textFrames(out.all())
	want := []string{"Sie können zu Dr. Pfeiffer kommen.", "Die Praxis ist bis 17 Uhr offen."}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("text frames = %v, want %v", got, want)
	}
}

func TestGenerator_ToolRound(t *testing.T) {
	call := types.ToolCall{ID: "call-1", Name: "save_visit_reason", Arguments: `{"reason":"Fieber","is_emergency":false}`}
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{ToolCalls: []types.ToolCall{call}}},
	}

	registry := convo.NewRegistry()
	var handled []types.ToolCall
	if err := registry.Register("save_visit_reason", convo.ToolHandlerFunc(func(ctx context.Context, tc types.ToolCall) (convo.ToolResult, error) {
		handled = append(handled, tc)
		return convo.ToolResult{Content: "gespeichert"}, nil
	})); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(GeneratorConfig{Provider: provider, Registry: registry})
	out := &capture{}
	cctx := seededContext()

	if err := g.Process(context.Background(), frame.NewLLMContext(cctx), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if len(handled) != 1 || handled[0].ID != "call-1" {
		t.Fatalf("handler saw %v, want the streamed call", handled)
	}

	msgs := cctx.Messages()
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want system+user+assistant+tool", len(msgs))
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 {
		t.Errorf("assistant tool-call message missing: %+v", msgs[2])
	}
	if msgs[3].Role != "tool" || msgs[3].Content != "gespeichert" || msgs[3].ToolCallID != "call-1" {
		t.Errorf("tool result message = %+v", msgs[3])
	}

	var sawCall, sawResult bool
	for _, f := range out.all() {
		switch fr := f.(type) {
		case *frame.ToolCall:
			sawCall = fr.Call.ID == "call-1"
		case *frame.ToolResult:
			sawResult = fr.CallID == "call-1" && fr.Content == "gespeichert"
		}
	}
	if !sawCall || !sawResult {
		t.Errorf("tool frames missing: call=%v result=%v", sawCall, sawResult)
	}

	if calls := provider.Calls(); len(calls) != 1 {
		t.Errorf("stream calls = %d, want 1 without requeue", len(calls))
	}
}

func TestGenerator_RequeueRunsFollowupCompletion(t *testing.T) {
	call := types.ToolCall{ID: "call-1", Name: "save_visit_reason", Arguments: "{}"}
	ack := types.AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	provider := &llmmock.Provider{
		StreamScript: [][]llm.Chunk{
			{{ToolCalls: []types.ToolCall{call}}},
			{{Text: "Gute Besserung und auf Wiederhören!"}},
		},
	}

	registry := convo.NewRegistry()
	if err := registry.Register("save_visit_reason", convo.ToolHandlerFunc(func(ctx context.Context, tc types.ToolCall) (convo.ToolResult, error) {
		return convo.ToolResult{Requeue: true, AckAudio: &ack}, nil
	})); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(GeneratorConfig{Provider: provider, Registry: registry})
	out := &capture{}
	cctx := seededContext()

	if err := g.Process(context.Background(), frame.NewLLMContext(cctx), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if calls := provider.Calls(); len(calls) != 2 {
		t.Fatalf("stream calls = %d, want 2 with requeue", len(calls))
	}

	var sawAck bool
	for _, f := range out.all() {
		if audio, ok := f.(*frame.AudioRaw); ok && len(audio.Audio.Data) == len(ack.Data) {
			sawAck = true
		}
	}
	if !sawAck {
		t.Error("acknowledgment audio frame not emitted")
	}

	got := textFrames(out.all())
	if len(got) != 1 || got[0] != "Gute Besserung und auf Wiederhören!" {
		t.Errorf("follow-up text = %v", got)
	}
	responsePair(t, out.all())
}

func TestGenerator_UnregisteredToolSettledEmpty(t *testing.T) {
	call := types.ToolCall{ID: "call-9", Name: "unbekannt", Arguments: "{}"}
	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{ToolCalls: []types.ToolCall{call}}},
	}
	g := NewGenerator(GeneratorConfig{Provider: provider})
	out := &capture{}
	cctx := seededContext()

	if err := g.Process(context.Background(), frame.NewLLMContext(cctx), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	msgs := cctx.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != "tool" || last.Content != "" || last.ToolCallID != "call-9" {
		t.Errorf("unhandled call not settled with empty result: %+v", last)
	}
}

func TestGenerator_ProviderErrorReportedUpstream(t *testing.T) {
	provider := &llmmock.Provider{StreamErr: context.DeadlineExceeded}
	g := NewGenerator(GeneratorConfig{Provider: provider})
	out := &capture{}

	if err := g.Process(context.Background(), frame.NewLLMContext(seededContext()), frame.Downstream, out); err != nil {
		t.Fatalf("provider failure must be recoverable, got %v", err)
	}

	frames := out.all()
	responsePair(t, frames)
	var sawLog bool
	for i, f := range frames {
		if _, ok := f.(*frame.Log); ok {
			sawLog = true
			if out.dirAt(i) != frame.Upstream {
				t.Error("failure log emitted downstream")
			}
		}
	}
	if !sawLog {
		t.Error("no log frame reporting the failure")
	}
	if texts := textFrames(frames); len(texts) != 0 {
		t.Errorf("failed completion emitted text: %v", texts)
	}
}

func TestGenerator_BargeInAbandonsGeneration(t *testing.T) {
	interrupt := NewInterrupt()
	provider := &raisingProvider{
		Provider: &llmmock.Provider{
			StreamChunks: []llm.Chunk{{Text: "Dieser Satz wird nie gesprochen."}},
		},
		interrupt: interrupt,
	}
	g := NewGenerator(GeneratorConfig{Provider: provider, Interrupt: interrupt})
	out := &capture{}

	if err := g.Process(context.Background(), frame.NewLLMContext(seededContext()), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if texts := textFrames(out.all()); len(texts) != 0 {
		t.Errorf("abandoned generation emitted text: %v", texts)
	}
	responsePair(t, out.all())
}

func TestGenerator_OtherFramesForwarded(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Provider: &llmmock.Provider{}})
	out := &capture{}

	in := frame.NewText("pass")
	if err := g.Process(context.Background(), in, frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	if frames := out.all(); len(frames) != 1 || frames[0] != in {
		t.Fatal("non-context frame not forwarded unchanged")
	}
}
