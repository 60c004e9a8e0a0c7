package processors

import (
	"context"
	"strings"

	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
)

// UserAggregator routes final caller transcripts into the conversation
// context. Each final transcript becomes a user message, immediately followed
// by an LLMContext frame downstream so the generator produces the next
// assistant turn. Partial transcripts pass through untouched.
//
// Sitting upstream of the generator, this stage is the single writer of
// user-role messages; the generator and the assistant-side aggregator append
// the remaining roles, which keeps the strict user → assistant → tool
// ordering of the transcript.
type UserAggregator struct {
	convoCtx *convo.Context
}

// NewUserAggregator creates the user-side aggregation stage over convoCtx.
func NewUserAggregator(convoCtx *convo.Context) *UserAggregator {
	return &UserAggregator{convoCtx: convoCtx}
}

// Name implements pipeline.Processor.
func (u *UserAggregator) Name() string { return "context.user" }

// Process implements pipeline.Processor.
func (u *UserAggregator) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	tr, ok := f.(*frame.TranscriptText)
	if !ok || dir != frame.Downstream || !tr.Transcript.IsFinal {
		return pipeline.Forward(ctx, f, dir, out)
	}

	text := strings.TrimSpace(tr.Transcript.Text)
	if text == "" {
		return nil
	}

	u.convoCtx.AddUserMessage(text)
	return out.Emit(ctx, frame.NewLLMContext(u.convoCtx), frame.Downstream)
}

var _ pipeline.Processor = (*UserAggregator)(nil)

// AssistantAggregator is the tail of the chain. It reassembles the assistant
// reply from the Text fragments that survived synthesis and commits the full
// utterance to the conversation context when the response ends. On an
// interrupt, whatever was voiced so far is committed — the caller heard it,
// so the transcript must contain it.
type AssistantAggregator struct {
	convoCtx *convo.Context
	buf      strings.Builder
}

// NewAssistantAggregator creates the assistant-side aggregation stage.
func NewAssistantAggregator(convoCtx *convo.Context) *AssistantAggregator {
	return &AssistantAggregator{convoCtx: convoCtx}
}

// Name implements pipeline.Processor.
func (a *AssistantAggregator) Name() string { return "context.assistant" }

// Process implements pipeline.Processor.
func (a *AssistantAggregator) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	switch fr := f.(type) {
	case *frame.Text:
		if dir == frame.Downstream {
			if a.buf.Len() > 0 {
				a.buf.WriteByte(' ')
			}
			a.buf.WriteString(strings.TrimSpace(fr.Text))
			return nil
		}
	case *frame.Control:
		switch fr.Signal {
		case frame.SignalResponseStart:
			a.buf.Reset()
		case frame.SignalResponseEnd, frame.SignalInterrupt:
			a.commit()
		}
		return nil // engine forwards control frames
	}
	return pipeline.Forward(ctx, f, dir, out)
}

// commit writes the accumulated reply to the context and clears the buffer.
func (a *AssistantAggregator) commit() {
	text := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	if text != "" {
		a.convoCtx.AddAssistantMessage(text)
	}
}

var _ pipeline.Processor = (*AssistantAggregator)(nil)
