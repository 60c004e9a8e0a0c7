package processors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
	sttmock "github.com/fbruhn/sprechzeit/pkg/provider/stt/mock"
	"github.com/fbruhn/sprechzeit/pkg/provider/vad"
	vadmock "github.com/fbruhn/sprechzeit/pkg/provider/vad/mock"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

var testStreamCfg = stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "de"}

// testVADCfg matches 20 ms frames at the stream rate, 640 bytes each.
var testVADCfg = vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 0.5, SilenceThreshold: 0.35}

func vadChunk() *frame.AudioRaw {
	return frame.NewAudioRaw(types.AudioFrame{
		Data:       make([]byte, 640),
		SampleRate: 16000,
		Channels:   1,
	})
}

func newTestRecognizer(session *sttmock.Session, vadSess *vadmock.Session, bargeIn bool, interrupt *Interrupt) (*Recognizer, *sttmock.Provider) {
	provider := &sttmock.Provider{Session: session}
	return NewRecognizer(RecognizerConfig{
		Provider:  provider,
		Stream:    testStreamCfg,
		VAD:       &vadmock.Engine{Session: vadSess},
		VADConfig: testVADCfg,
		Interrupt: interrupt,
		BargeIn:   bargeIn,
	}), provider
}

func TestRecognizer_SpeechReachesProvider(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{
		{Type: types.VADSpeechStart},
		{Type: types.VADSpeechContinue},
	}}
	r, provider := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.Process(ctx, vadChunk(), frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}

	if got := session.SendAudioCallCount(); got != 2 {
		t.Errorf("SendAudio calls = %d, want 2", got)
	}
	if calls := provider.StartStreamCalls; len(calls) != 1 {
		t.Fatalf("StartStream calls = %d, want 1", len(calls))
	} else if calls[0].Cfg.Language != "de" {
		t.Errorf("stream language = %q, want de", calls[0].Cfg.Language)
	}

	r.shutdown()
}

func TestRecognizer_SilenceGated(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSilence}}}
	r, _ := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}

	for i := 0; i < 3; i++ {
		if err := r.Process(context.Background(), vadChunk(), frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}
	if got := session.SendAudioCallCount(); got != 0 {
		t.Errorf("SendAudio calls = %d, want 0 during silence", got)
	}

	r.shutdown()
}

func TestRecognizer_HangoverKeepsTrailingAudio(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{
		{Type: types.VADSpeechStart},
		{Type: types.VADSpeechEnd},
		{Type: types.VADSilence},
		{Type: types.VADSilence},
	}}
	r, _ := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}

	for i := 0; i < 4; i++ {
		if err := r.Process(context.Background(), vadChunk(), frame.Downstream, out); err != nil {
			t.Fatal(err)
		}
	}
	// Start, end, and both silence chunks within the hangover window.
	if got := session.SendAudioCallCount(); got != 4 {
		t.Errorf("SendAudio calls = %d, want 4", got)
	}

	r.shutdown()
}

func TestRecognizer_BargeInRaisesInterrupt(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSpeechStart}}}
	interrupt := NewInterrupt()
	r, _ := newTestRecognizer(session, vadSess, true, interrupt)
	out := &capture{}

	if err := r.Process(context.Background(), vadChunk(), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if interrupt.Epoch() != 1 {
		t.Errorf("epoch = %d, want 1 after speech start", interrupt.Epoch())
	}
	var sawInterrupt bool
	for _, f := range out.all() {
		if ctl, ok := f.(*frame.Control); ok && ctl.Signal == frame.SignalInterrupt {
			sawInterrupt = true
		}
	}
	if !sawInterrupt {
		t.Error("no SignalInterrupt emitted on speech start")
	}

	r.shutdown()
}

func TestRecognizer_TranscriptsFlowDownstream(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSpeechStart}}}
	r, _ := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}

	if err := r.Process(context.Background(), vadChunk(), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	session.FinalsCh <- types.Transcript{Text: "Ich habe Fieber", IsFinal: true}

	deadline := time.After(2 * time.Second)
	for {
		var found *frame.TranscriptText
		for _, f := range out.all() {
			if tr, ok := f.(*frame.TranscriptText); ok {
				found = tr
			}
		}
		if found != nil {
			if found.Transcript.Text != "Ich habe Fieber" || !found.Transcript.IsFinal {
				t.Errorf("transcript = %+v", found.Transcript)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("transcript never emitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	r.shutdown()
}

func TestRecognizer_EndSignalClosesSessions(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSpeechStart}}}
	r, _ := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}
	ctx := context.Background()

	if err := r.Process(ctx, vadChunk(), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	if err := r.Process(ctx, frame.NewControl(frame.SignalEnd, "task"), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if session.CloseCallCount != 1 {
		t.Errorf("session close calls = %d, want 1", session.CloseCallCount)
	}
	if vadSess.CloseCallCount != 1 {
		t.Errorf("vad close calls = %d, want 1", vadSess.CloseCallCount)
	}
}

func TestRecognizer_CancellationClosesSessions(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSpeechStart}}}
	r, _ := newTestRecognizer(session, vadSess, false, nil)
	out := &capture{}
	ctx, cancel := context.WithCancel(context.Background())

	if err := r.Process(ctx, vadChunk(), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for session.CloseCalls() == 0 || vadSess.CloseCalls() == 0 {
		select {
		case <-deadline:
			t.Fatalf("sessions not released after cancellation: stt=%d vad=%d",
				session.CloseCalls(), vadSess.CloseCalls())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRecognizer_BargeInDisabledLeavesEpochAlone(t *testing.T) {
	session := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 16),
		FinalsCh:   make(chan types.Transcript, 16),
	}
	vadSess := &vadmock.Session{Events: []types.VADEvent{{Type: types.VADSpeechStart}}}
	interrupt := NewInterrupt()
	r, _ := newTestRecognizer(session, vadSess, false, interrupt)
	out := &capture{}

	if err := r.Process(context.Background(), vadChunk(), frame.Downstream, out); err != nil {
		t.Fatal(err)
	}

	if interrupt.Epoch() != 0 {
		t.Errorf("epoch = %d, want 0 with interruptions disabled", interrupt.Epoch())
	}
	for _, f := range out.all() {
		if ctl, ok := f.(*frame.Control); ok && ctl.Signal == frame.SignalInterrupt {
			t.Error("SignalInterrupt emitted with interruptions disabled")
		}
	}

	r.shutdown()
}

func TestRecognizer_StartStreamFailureIsFatal(t *testing.T) {
	provider := &sttmock.Provider{StartStreamErr: errors.New("dial refused")}
	r := NewRecognizer(RecognizerConfig{
		Provider:  provider,
		Stream:    testStreamCfg,
		VADConfig: testVADCfg,
	})
	out := &capture{}

	err := r.Process(context.Background(), vadChunk(), frame.Downstream, out)
	if err == nil {
		t.Fatal("expected error when the recognition stream cannot open")
	}
}

func TestRecognizer_UpstreamAudioForwarded(t *testing.T) {
	r, _ := newTestRecognizer(nil, nil, false, nil)
	out := &capture{}

	in := vadChunk()
	if err := r.Process(context.Background(), in, frame.Upstream, out); err != nil {
		t.Fatal(err)
	}
	if frames := out.all(); len(frames) != 1 || frames[0] != in {
		t.Fatal("upstream audio not forwarded unchanged")
	}
}
