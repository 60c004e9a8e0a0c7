// Package intake drives the patient-intake conversation: it seeds the model
// with the practice script, offers the save_visit_reason tool exactly once,
// and steers the call into a polite farewell after the reason is recorded.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fbruhn/sprechzeit/internal/intake/reasonstore"
	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// ToolSaveVisitReason is the name of the single tool offered to the model.
const ToolSaveVisitReason = "save_visit_reason"

// State tracks where the intake dialogue stands. Transitions are
// monotonic: a call never moves back to an earlier state.
type State int

const (
	// StateGreeting: the context is not seeded yet, nothing has been said.
	StateGreeting State = iota
	// StateCollectingReason: the caller has been greeted and the tool is on
	// offer; the model is expected to invoke it once it knows the reason.
	StateCollectingReason
	// StateClosing: the reason is recorded, the tool set is emptied, and the
	// model has been instructed to say goodbye.
	StateClosing
	// StateClosed: the call ended.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateCollectingReason:
		return "collecting_reason"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SaveVisitReasonTool returns the tool definition offered during intake.
func SaveVisitReasonTool() types.ToolDefinition {
	return types.ToolDefinition{
		Name:        ToolSaveVisitReason,
		Description: "Speichern Sie den Grund des Anrufs und ob es sich um einen Notfall handelt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Der Grund, warum der Patient anruft oder in die Praxis kommen möchte.",
				},
				"is_emergency": map[string]any{
					"type":        "boolean",
					"description": "Ob es sich um einen medizinischen Notfall handelt.",
				},
			},
			"required": []string{"reason", "is_emergency"},
		},
	}
}

// visitReasonArgs mirrors the tool's JSON argument payload. Missing fields
// keep their zero values, so an absent is_emergency reads as false.
type visitReasonArgs struct {
	Reason      string `json:"reason"`
	IsEmergency bool   `json:"is_emergency"`
}

// Controller owns the dialogue state for one call and handles the
// save_visit_reason invocation. It is safe for concurrent use, though in
// practice the pipeline serializes tool dispatches.
type Controller struct {
	mu     sync.Mutex
	state  State
	cctx   *convo.Context
	callID string
	store  reasonstore.Store
	ack    *types.AudioFrame
	log    *slog.Logger
	met    *observe.Metrics
	now    func() time.Time
}

// ControllerConfig configures a Controller. Store and AckSound are optional.
type ControllerConfig struct {
	// CallID identifies the transport session, recorded with the reason.
	CallID string
	// Store receives the recorded visit reason. Defaults to a log sink.
	Store reasonstore.Store
	// AckSound is played to the caller right after the reason is saved, so
	// the line is not silent while the closing response is generated.
	AckSound *types.AudioFrame
	Logger   *slog.Logger
	Metrics  *observe.Metrics
}

func NewController(cfg ControllerConfig) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = reasonstore.NewLogStore(log)
	}
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &Controller{
		state:  StateGreeting,
		callID: cfg.CallID,
		store:  store,
		ack:    cfg.AckSound,
		log:    log.With("component", "intake", "call_id", cfg.CallID),
		met:    met,
		now:    time.Now,
	}
}

var _ convo.ToolHandler = (*Controller)(nil)

// Seed installs the practice script and the tool into the conversation
// context and moves the dialogue into the collecting state. It must be
// called exactly once, before the first model turn.
func (c *Controller) Seed(cctx *convo.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateGreeting {
		return
	}
	c.cctx = cctx
	cctx.AddSystemMessage(SystemPrompt)
	cctx.SetTools([]types.ToolDefinition{SaveVisitReasonTool()})
	c.state = StateCollectingReason
}

// State returns the current dialogue state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close marks the call as ended. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// HandleToolCall records the visit reason and rewrites the conversation for
// the farewell: the branch response is added as an assistant message, the
// tool set is emptied so the tool cannot fire twice, and a closing system
// instruction plus a requeued context frame let the model say goodbye within
// the same exchange. A stray invocation after the tool was already consumed
// is acknowledged with an empty result and mutates nothing.
func (c *Controller) HandleToolCall(ctx context.Context, call types.ToolCall) (convo.ToolResult, error) {
	if call.Name != ToolSaveVisitReason {
		return convo.ToolResult{}, fmt.Errorf("intake: unexpected tool %q", call.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCollectingReason {
		c.log.Warn("ignoring stray tool call", "state", c.state.String())
		return convo.ToolResult{}, nil
	}
	if c.cctx == nil {
		return convo.ToolResult{}, fmt.Errorf("intake: controller not seeded")
	}

	var args visitReasonArgs
	if call.Arguments != "" {
		// Malformed or partial arguments are tolerated: whatever fields
		// decode are used, the rest keep zero values.
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			c.log.Warn("undecodable tool arguments", "error", err, "arguments", call.Arguments)
		}
	}
	args.Reason = strings.TrimSpace(args.Reason)

	reason := reasonstore.VisitReason{
		ID:         uuid.New(),
		CallID:     c.callID,
		Reason:     args.Reason,
		Emergency:  args.IsEmergency,
		RecordedAt: c.now().UTC(),
	}
	if err := c.store.Save(ctx, reason); err != nil {
		// The caller must not be left hanging because the sink is down.
		c.log.Error("saving visit reason failed", "error", err)
	}
	c.met.RecordVisitReason(ctx, args.IsEmergency)
	c.log.Info("visit reason recorded",
		"reason", args.Reason,
		"emergency", args.IsEmergency,
		"reason_id", reason.ID,
	)

	response := RoutineResponse
	if args.IsEmergency {
		response = EmergencyResponse
	}
	c.cctx.AddAssistantMessage(response)
	c.cctx.SetTools(nil)
	c.cctx.AddSystemMessage(ClosingInstruction)
	c.state = StateClosing

	return convo.ToolResult{
		Requeue:  true,
		AckAudio: c.ack,
	}, nil
}
