// Package cartesia provides a Cartesia-backed TTS provider using the Cartesia
// streaming WebSocket API. It implements the tts.Provider interface.
package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

const (
	wsEndpointFmt  = "wss://api.cartesia.ai/tts/websocket?api_key=%s&cartesia_version=%s"
	voicesEndpoint = "https://api.cartesia.ai/voices"
	apiVersion     = "2024-06-10"

	defaultModel      = "sonic-2"
	defaultSampleRate = 16000
	defaultLanguage   = "de"
)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Cartesia model ID (e.g., "sonic-2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate sets the PCM output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithLanguage sets the synthesis language code (e.g., "de", "en").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// Provider implements tts.Provider backed by the Cartesia streaming API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	language   string
	httpClient *http.Client
}

// New creates a new Cartesia Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		language:   defaultLanguage,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// generateRequest is the JSON payload sent to Cartesia for each text fragment.
// Fragments belonging to the same utterance share a context ID and set
// Continue on all but the last message.
type generateRequest struct {
	ContextID    string       `json:"context_id"`
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceRef     `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
	Continue     bool         `json:"continue"`
}

// voiceRef selects a catalogue voice by ID.
type voiceRef struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// outputFormat describes the requested PCM encoding.
type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// serverMessage is a single message received from Cartesia over the WebSocket.
type serverMessage struct {
	Type      string `json:"type"` // "chunk", "done", "error"
	ContextID string `json:"context_id"`
	Data      string `json:"data"` // base64-encoded PCM for "chunk"
	Error     string `json:"error,omitempty"`
}

// SynthesizeStream opens a WebSocket to Cartesia, pipes text fragments from
// the text channel, and returns a channel emitting raw PCM audio chunks.
//
// All fragments read from text are synthesised under one Cartesia context so
// prosody carries across sentence boundaries. The returned audio channel is
// closed when synthesis is complete or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("cartesia: voice.ID must not be empty")
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, p.apiKey, apiVersion)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cartesia: dial: %w", err)
	}

	contextID := uuid.NewString()
	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		// Reader goroutine: decode chunk messages into the audio channel.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var sm serverMessage
				if err := json.Unmarshal(msg, &sm); err != nil {
					continue
				}
				switch sm.Type {
				case "chunk":
					pcm, err := base64.StdEncoding.DecodeString(sm.Data)
					if err != nil {
						continue
					}
					select {
					case audioCh <- pcm:
					case <-ctx.Done():
						return
					}
				case "done", "error":
					return
				}
			}
		}()

		// Writer loop: forward text fragments under the shared context.
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// Text channel closed — send the terminating message so
					// Cartesia flushes the remaining audio.
					_ = p.writeFragment(ctx, conn, contextID, voice.ID, "", false)
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				if err := p.writeFragment(ctx, conn, contextID, voice.ID, fragment, true); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// writeFragment sends one generate message on conn.
func (p *Provider) writeFragment(ctx context.Context, conn *websocket.Conn, contextID, voiceID, fragment string, more bool) error {
	req := generateRequest{
		ContextID:  contextID,
		ModelID:    p.model,
		Transcript: fragment,
		Voice:      voiceRef{Mode: "id", ID: voiceID},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: p.sampleRate,
		},
		Language: p.language,
		Continue: more,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

// ---- ListVoices ----

// catalogueVoice is a single voice entry from the Cartesia API.
type catalogueVoice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Language    string `json:"language"`
}

// ListVoices returns all voices available from Cartesia for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cartesia: list voices: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Cartesia-Version", apiVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia: list voices: unexpected status %d", resp.StatusCode)
	}

	var voices []catalogueVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("cartesia: list voices decode: %w", err)
	}

	profiles := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		meta := map[string]string{}
		if v.Description != "" {
			meta["description"] = v.Description
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.ID,
			Name:     v.Name,
			Provider: "cartesia",
			Language: v.Language,
			Metadata: meta,
		})
	}
	return profiles, nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
