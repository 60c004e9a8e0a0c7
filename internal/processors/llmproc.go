package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// maxToolRounds bounds back-to-back completion rounds within one response, so
// a model that keeps requesting tools cannot loop forever.
const maxToolRounds = 4

// Generator turns conversation context into assistant responses. An
// LLMContext frame triggers one response: the context is snapshotted, a
// streaming completion runs, and reply text is emitted sentence by sentence
// as Text frames between a SignalResponseStart/SignalResponseEnd pair.
//
// Tool calls requested by the model are dispatched through the registry
// before the response ends. The assistant tool-call message and every tool
// result are appended to the context here, so by the time the next user turn
// arrives the tool exchange is complete — a caller can never interleave with
// a half-finished tool round. A handler may request a follow-up completion
// (requeue), which runs within the same response.
type Generator struct {
	provider    llm.Provider
	registry    *convo.Registry
	interrupt   *Interrupt
	temperature float64
	timeout     time.Duration
	log         *slog.Logger
	metrics     *observe.Metrics
}

// GeneratorConfig bundles the construction parameters for a Generator.
type GeneratorConfig struct {
	Provider    llm.Provider
	Registry    *convo.Registry
	Interrupt   *Interrupt
	Temperature float64
	// Timeout bounds a single completion stream. Zero means no extra bound
	// beyond the frame context.
	Timeout time.Duration
	Log     *slog.Logger
	Metrics *observe.Metrics
}

// NewGenerator creates the response generation stage.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Interrupt == nil {
		cfg.Interrupt = NewInterrupt()
	}
	if cfg.Registry == nil {
		cfg.Registry = convo.NewRegistry()
	}
	return &Generator{
		provider:    cfg.Provider,
		registry:    cfg.Registry,
		interrupt:   cfg.Interrupt,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
	}
}

// Name implements pipeline.Processor.
func (g *Generator) Name() string { return "llm" }

// Process implements pipeline.Processor.
func (g *Generator) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	lc, ok := f.(*frame.LLMContext)
	if !ok || dir != frame.Downstream {
		return pipeline.Forward(ctx, f, dir, out)
	}
	return g.respond(ctx, lc.Context, out)
}

// respond produces one full assistant response, including any tool rounds.
func (g *Generator) respond(ctx context.Context, cctx *convo.Context, out pipeline.Emitter) error {
	ctx, span := observe.StartSpan(ctx, "assistant response")
	defer span.End()

	epoch := g.interrupt.Epoch()

	if err := out.Emit(ctx, frame.NewControl(frame.SignalResponseStart, g.Name()), frame.Downstream); err != nil {
		return err
	}
	// The response pair must close even on early exits.
	defer func() {
		if err := out.Emit(ctx, frame.NewControl(frame.SignalResponseEnd, g.Name()), frame.Downstream); err != nil {
			g.log.Warn("llm: emit response end", "error", err)
		}
	}()

	for round := 0; round < maxToolRounds; round++ {
		toolCalls, abandoned, err := g.completeOnce(ctx, cctx, epoch, out)
		if err != nil {
			// Recoverable: report upstream and end the response. The caller
			// hears silence for this turn but the call continues.
			g.metrics.RecordProviderError(ctx, "llm", "completion")
			return out.Emit(ctx, frame.NewLog(slog.LevelError, g.Name(),
				fmt.Sprintf("completion failed: %v", err)), frame.Upstream)
		}
		if abandoned || len(toolCalls) == 0 {
			return nil
		}

		requeue, err := g.runToolRound(ctx, cctx, toolCalls, out)
		if err != nil {
			return err
		}
		if !requeue {
			return nil
		}
	}
	g.log.Warn("llm: tool round limit reached", "limit", maxToolRounds)
	return nil
}

// completeOnce runs a single streaming completion over the current context
// snapshot, emitting sentence-sized Text frames as they form.
func (g *Generator) completeOnce(ctx context.Context, cctx *convo.Context, epoch uint64, out pipeline.Emitter) (toolCalls []types.ToolCall, abandoned bool, err error) {
	messages, tools := cctx.Snapshot()

	streamCtx := ctx
	cancel := context.CancelFunc(func() {})
	if g.timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	defer cancel()

	started := time.Now()
	stream, err := g.provider.StreamCompletion(streamCtx, llm.CompletionRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, false, fmt.Errorf("start completion: %w", err)
	}
	g.metrics.RecordProviderRequest(ctx, "llm", "stream_completion", "ok")

	var sentence strings.Builder
	for chunk := range stream {
		if g.interrupt.Stale(epoch) {
			cancel()
			for range stream {
				// drain so the provider goroutine can exit
			}
			g.log.Debug("llm: generation abandoned on barge-in")
			return nil, true, nil
		}

		if chunk.FinishReason == "error" {
			return nil, false, fmt.Errorf("stream error: %s", chunk.Text)
		}

		if chunk.Text != "" {
			sentence.WriteString(chunk.Text)
			for {
				head, rest, found := splitSentence(sentence.String())
				if !found {
					break
				}
				sentence.Reset()
				sentence.WriteString(rest)
				if err := out.Emit(ctx, frame.NewText(head), frame.Downstream); err != nil {
					return nil, false, err
				}
			}
		}
		toolCalls = append(toolCalls, chunk.ToolCalls...)
	}
	g.metrics.LLMDuration.Record(ctx, time.Since(started).Seconds())

	if tail := strings.TrimSpace(sentence.String()); tail != "" {
		if err := out.Emit(ctx, frame.NewText(tail), frame.Downstream); err != nil {
			return nil, false, err
		}
	}
	return toolCalls, false, nil
}

// runToolRound appends the assistant tool-call message, dispatches every
// call, records the results, and reports whether any handler requested a
// follow-up completion.
func (g *Generator) runToolRound(ctx context.Context, cctx *convo.Context, calls []types.ToolCall, out pipeline.Emitter) (requeue bool, err error) {
	cctx.AddMessage(types.Message{Role: "assistant", ToolCalls: calls})

	for _, call := range calls {
		if err := out.Emit(ctx, frame.NewToolCall(call), frame.Downstream); err != nil {
			return false, err
		}

		started := time.Now()
		result, ok, derr := g.registry.Dispatch(ctx, call)
		g.metrics.ToolDuration.Record(ctx, time.Since(started).Seconds())

		content := result.Content
		status := "ok"
		switch {
		case !ok:
			// No handler: answer with an empty acknowledgment so the model
			// sees the call as settled and does not retry it.
			content = ""
			status = "unhandled"
		case derr != nil:
			content = ""
			status = "error"
			if lerr := out.Emit(ctx, frame.NewLog(slog.LevelWarn, g.Name(),
				fmt.Sprintf("tool %s: %v", call.Name, derr)), frame.Upstream); lerr != nil {
				return false, lerr
			}
		}
		g.metrics.RecordToolCall(ctx, call.Name, status)

		cctx.AddToolResult(call.ID, call.Name, content)
		if err := out.Emit(ctx, frame.NewToolResult(call.ID, call.Name, content), frame.Downstream); err != nil {
			return false, err
		}

		if result.AckAudio != nil {
			if err := out.Emit(ctx, frame.NewAudioRaw(*result.AckAudio), frame.Downstream); err != nil {
				return false, err
			}
		}
		requeue = requeue || result.Requeue
	}
	return requeue, nil
}

// abbreviations that end in a period but do not close a sentence.
var abbreviations = []string{"Dr.", "Prof.", "Hr.", "Fr.", "bzw.", "ggf.", "z.B.", "ca.", "Str.", "Nr."}

// splitSentence cuts text at the first sentence boundary followed by a space,
// returning the complete sentence and the remainder. Boundaries are ".", "!",
// "?", and ":". found is false when no boundary exists yet; the closing
// boundary of the reply is flushed when the stream ends.
func splitSentence(text string) (head, rest string, found bool) {
	for i, r := range text {
		switch r {
		case '.', '!', '?', ':':
			j := i + 1
			if j >= len(text) || text[j] != ' ' {
				continue
			}
			if r == '.' && endsWithAbbreviation(text[:j]) {
				continue
			}
			return strings.TrimSpace(text[:j]), strings.TrimSpace(text[j:]), true
		}
	}
	return "", text, false
}

// endsWithAbbreviation reports whether s ends in a known non-terminal
// abbreviation such as "Dr." in "Dr. Pfeiffer".
func endsWithAbbreviation(s string) bool {
	for _, abbr := range abbreviations {
		if strings.HasSuffix(s, abbr) {
			return true
		}
	}
	return false
}

var _ pipeline.Processor = (*Generator)(nil)
