package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fbruhn/sprechzeit/internal/intake"
	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/internal/processors"
	"github.com/fbruhn/sprechzeit/pkg/convo"
	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	"github.com/fbruhn/sprechzeit/pkg/transport"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

// sttSampleRate is the PCM rate fed into recognition. Inbound transport
// audio is converted down to it.
const sttSampleRate = 16000

// ttsSampleRate is the PCM rate the synthesis provider is configured to
// emit. The transport output converts it to the channel's native format.
const ttsSampleRate = 16000

// call assembles and runs the frame pipeline for one intake conversation.
type call struct {
	id         string
	log        *slog.Logger
	session    transport.Session
	controller *intake.Controller
	cctx       *convo.Context
	task       *pipeline.Task
	runner     *pipeline.Runner
	pump       *processors.TransportIn
	metrics    *observe.Metrics

	greetOnce sync.Once
	stopOnce  sync.Once
}

// newCall builds the conversation context, the intake controller, and the
// nine-stage pipeline for one call on session.
func (a *App) newCall(session transport.Session) (*call, error) {
	callID := uuid.NewString()
	log := slog.Default().With("call_id", callID)

	cctx := convo.New()
	controller := intake.NewController(intake.ControllerConfig{
		CallID:   callID,
		Store:    a.store,
		AckSound: a.sounds.Ding(),
		Logger:   log,
		Metrics:  a.metrics,
	})
	controller.Seed(cctx)

	registry := convo.NewRegistry()
	if err := registry.Register(intake.ToolSaveVisitReason, controller); err != nil {
		return nil, fmt.Errorf("app: registering intake tool: %w", err)
	}
	if err := registry.Validate(cctx.Tools()); err != nil {
		return nil, fmt.Errorf("app: tool set: %w", err)
	}

	interrupt := processors.NewInterrupt()
	turn := processors.NewTurnClock()
	bargeIn := a.cfg.Call.AllowInterruptions

	keywords := make([]types.KeywordBoost, 0, len(intake.Vocabulary))
	for _, word := range intake.Vocabulary {
		keywords = append(keywords, types.KeywordBoost{Keyword: word, Boost: 1.5})
	}

	transportIn := processors.NewTransportIn(session)

	recognizer := processors.NewRecognizer(processors.RecognizerConfig{
		Provider: a.providers.STT,
		Stream: stt.StreamConfig{
			SampleRate: sttSampleRate,
			Channels:   1,
			Language:   a.cfg.Call.Language,
			Keywords:   keywords,
		},
		VAD: a.providers.VAD,
		VADConfig: vad.Config{
			SampleRate:       sttSampleRate,
			FrameSizeMs:      20,
			SpeechThreshold:  0.5,
			SilenceThreshold: 0.35,
		},
		Interrupt: interrupt,
		Turn:      turn,
		BargeIn:   bargeIn,
		Log:       log,
		Metrics:   a.metrics,
	})

	generator := processors.NewGenerator(processors.GeneratorConfig{
		Provider:  a.providers.LLM,
		Registry:  registry,
		Interrupt: interrupt,
		Timeout:   a.cfg.Call.CollaboratorTimeout.Std(),
		Log:       log,
		Metrics:   a.metrics,
	})

	speaker := processors.NewSpeaker(processors.SpeakerConfig{
		Provider: a.providers.TTS,
		Voice: types.VoiceProfile{
			ID:       a.cfg.Call.VoiceID,
			Language: a.cfg.Call.Language,
		},
		SampleRate: ttsSampleRate,
		Interrupt:  interrupt,
		Turn:       turn,
		Timeout:    a.cfg.Call.CollaboratorTimeout.Std(),
		Log:        log,
		Metrics:    a.metrics,
	})

	p, err := pipeline.New(
		transportIn,
		recognizer,
		processors.NewCorrector(intake.Vocabulary),
		processors.NewUserAggregator(cctx),
		generator,
		processors.NewFrameLog(log, a.metrics),
		speaker,
		processors.NewTransportOut(session),
		processors.NewAssistantAggregator(cctx),
	)
	if err != nil {
		return nil, fmt.Errorf("app: building pipeline: %w", err)
	}

	task := pipeline.NewTask(p, pipeline.Params{
		AllowInterruptions:  bargeIn,
		CollaboratorTimeout: a.cfg.Call.CollaboratorTimeout.Std(),
	})

	return &call{
		id:         callID,
		log:        log,
		session:    session,
		controller: controller,
		cctx:       cctx,
		task:       task,
		runner:     pipeline.NewRunner(log),
		pump:       transportIn,
		metrics:    a.metrics,
	}, nil
}

// run drives the call until the caller leaves, the pipeline stops, or ctx is
// cancelled.
func (c *call) run(ctx context.Context) error {
	c.metrics.ActiveCalls.Add(ctx, 1)
	defer c.metrics.ActiveCalls.Add(ctx, -1)
	defer c.controller.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The greeting is triggered by the first participant: a context frame
	// queued downstream makes the model speak first.
	c.session.OnParticipantChange(func(ev transport.Event) {
		switch ev.Type {
		case transport.EventJoin:
			c.greetOnce.Do(func() {
				c.log.Info("caller joined", "user_id", ev.UserID, "username", ev.Username)
				if err := c.task.Queue(runCtx, frame.NewLLMContext(c.cctx)); err != nil {
					c.log.Error("queueing greeting failed", "error", err)
				}
			})
		case transport.EventLeave:
			c.log.Info("caller left", "user_id", ev.UserID)
			c.stop(runCtx)
		}
	})

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := c.pump.Pump(gCtx, c.task)
		if err == nil {
			// Inbound audio closed: the session ended, drain the pipeline.
			c.stop(runCtx)
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		return c.runner.Run(gCtx, c.task)
	})

	err := g.Wait()
	c.log.Info("call ended", "state", c.controller.State().String(), "turns", c.cctx.Len())
	return err
}

// stop requests a graceful pipeline stop. Safe to call more than once.
func (c *call) stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		if err := c.task.Stop(ctx); err != nil {
			c.log.Warn("stopping pipeline failed", "error", err)
		}
	})
}
