package processors

import (
	"context"
	"sync"
	"testing"

	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// capture is an Emitter that records every emitted frame for inspection.
type capture struct {
	mu     sync.Mutex
	frames []frame.Frame
	dirs   []frame.Direction
}

func (c *capture) Emit(_ context.Context, f frame.Frame, dir frame.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	c.dirs = append(c.dirs, dir)
	return nil
}

func (c *capture) all() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *capture) dirAt(i int) frame.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirs[i]
}

func finalTranscript(text string) *frame.TranscriptText {
	return frame.NewTranscriptText(types.Transcript{Text: text, IsFinal: true, Confidence: 0.9})
}

func partialTranscript(text string) *frame.TranscriptText {
	return frame.NewTranscriptText(types.Transcript{Text: text, IsFinal: false})
}

func TestUserAggregator_FinalTranscriptBecomesUserTurn(t *testing.T) {
	cctx := convo.New()
	ua := NewUserAggregator(cctx)
	out := &capture{}

	err := ua.Process(context.Background(), finalTranscript("  Ich habe seit drei Tagen Fieber.  "), frame.Downstream, out)
	if err != nil {
		t.Fatal(err)
	}

	msgs := cctx.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Ich habe seit drei Tagen Fieber." {
		t.Errorf("message = %+v, want trimmed user turn", msgs[0])
	}

	frames := out.all()
	if len(frames) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(frames))
	}
	lc, ok := frames[0].(*frame.LLMContext)
	if !ok {
		t.Fatalf("emitted %T, want *frame.LLMContext", frames[0])
	}
	if lc.Context != cctx {
		t.Error("LLMContext does not reference the session context")
	}
	if out.dirAt(0) != frame.Downstream {
		t.Error("LLMContext emitted upstream")
	}
}

func TestUserAggregator_PartialPassesThrough(t *testing.T) {
	cctx := convo.New()
	ua := NewUserAggregator(cctx)
	out := &capture{}

	in := partialTranscript("Ich ha")
	if err := ua.Process(context.Background(), in, frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if cctx.Len() != 0 {
		t.Errorf("context has %d messages, want 0", cctx.Len())
	}
	frames := out.all()
	if len(frames) != 1 || frames[0] != in {
		t.Fatalf("partial not forwarded unchanged: %v", frames)
	}
}

func TestUserAggregator_EmptyFinalSwallowed(t *testing.T) {
	cctx := convo.New()
	ua := NewUserAggregator(cctx)
	out := &capture{}

	if err := ua.Process(context.Background(), finalTranscript("   "), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	if cctx.Len() != 0 || out.len() != 0 {
		t.Errorf("blank final should add nothing, got %d messages, %d frames", cctx.Len(), out.len())
	}
}

func TestUserAggregator_OtherFramesForwarded(t *testing.T) {
	ua := NewUserAggregator(convo.New())
	out := &capture{}

	in := frame.NewText("hallo")
	if err := ua.Process(context.Background(), in, frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	if frames := out.all(); len(frames) != 1 || frames[0] != in {
		t.Fatalf("text frame not forwarded unchanged: %v", frames)
	}
}

func TestAssistantAggregator_CommitsOnResponseEnd(t *testing.T) {
	cctx := convo.New()
	aa := NewAssistantAggregator(cctx)
	out := &capture{}
	ctx := context.Background()

	seq := []frame.Frame{
		frame.NewControl(frame.SignalResponseStart, "llm"),
		frame.NewText("Guten Tag."),
		frame.NewText("Wie kann ich Ihnen helfen?"),
		frame.NewControl(frame.SignalResponseEnd, "llm"),
	}
	for _, f := range seq {
		if err := aa.Process(ctx, f, frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}

	msgs := cctx.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	want := "Guten Tag. Wie kann ich Ihnen helfen?"
	if msgs[0].Role != "assistant" || msgs[0].Content != want {
		t.Errorf("message = %+v, want assistant %q", msgs[0], want)
	}
	// Text frames terminate here and control frames are engine-forwarded.
	if out.len() != 0 {
		t.Errorf("emitted %d frames, want 0", out.len())
	}
}

func TestAssistantAggregator_ResponseStartResetsBuffer(t *testing.T) {
	cctx := convo.New()
	aa := NewAssistantAggregator(cctx)
	out := &capture{}
	ctx := context.Background()

	seq := []frame.Frame{
		frame.NewText("verwaister Rest"),
		frame.NewControl(frame.SignalResponseStart, "llm"),
		frame.NewText("Auf Wiedersehen."),
		frame.NewControl(frame.SignalResponseEnd, "llm"),
	}
	for _, f := range seq {
		if err := aa.Process(ctx, f, frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}

	msgs := cctx.Messages()
	if len(msgs) != 1 || msgs[0].Content != "Auf Wiedersehen." {
		t.Fatalf("messages = %+v, want only the reply after the reset", msgs)
	}
}

func TestAssistantAggregator_InterruptCommitsPartialReply(t *testing.T) {
	cctx := convo.New()
	aa := NewAssistantAggregator(cctx)
	out := &capture{}
	ctx := context.Background()

	seq := []frame.Frame{
		frame.NewControl(frame.SignalResponseStart, "llm"),
		frame.NewText("Die Sprechzeiten sind"),
		frame.NewControl(frame.SignalInterrupt, "stt"),
	}
	for _, f := range seq {
		if err := aa.Process(ctx, f, frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}

	msgs := cctx.Messages()
	if len(msgs) != 1 || msgs[0].Content != "Die Sprechzeiten sind" {
		t.Fatalf("messages = %+v, want the voiced fragment committed", msgs)
	}
}

func TestAssistantAggregator_EmptyResponseAddsNothing(t *testing.T) {
	cctx := convo.New()
	aa := NewAssistantAggregator(cctx)
	out := &capture{}
	ctx := context.Background()

	for _, f := range []frame.Frame{
		frame.NewControl(frame.SignalResponseStart, "llm"),
		frame.NewControl(frame.SignalResponseEnd, "llm"),
	} {
		if err := aa.Process(ctx, f, frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}
	if cctx.Len() != 0 {
		t.Errorf("empty response committed %d messages", cctx.Len())
	}
}

func TestAssistantAggregator_UpstreamFramesForwarded(t *testing.T) {
	aa := NewAssistantAggregator(convo.New())
	out := &capture{}

	in := frame.NewLog(0, "tts", "diagnostic")
	if err := aa.Process(context.Background(), in, frame.Upstream, out); err != nil {
		t.Fatal(err)
	}
	if frames := out.all(); len(frames) != 1 || frames[0] != in {
		t.Fatalf("upstream frame not forwarded: %v", frames)
	}
}

var _ pipeline.Emitter = (*capture)(nil)
