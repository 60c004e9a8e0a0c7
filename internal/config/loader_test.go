package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  tts:
    name: cartesia
    api_key: ca-test
    model: sonic-2
  vad:
    name: energy
discord:
  token: bot-token
  guild_id: "123"
  channel_id: "456"
call:
  voice_id: voice-de-1
  allow_interruptions: false
  collaborator_timeout: 30s
storage:
  postgres_dsn: postgres://localhost/sprechzeit
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if cfg.Call.CollaboratorTimeout.Std() != 30*time.Second {
		t.Errorf("collaborator_timeout = %v, want 30s", cfg.Call.CollaboratorTimeout)
	}
	if cfg.Call.Language != "de" {
		t.Errorf("language = %q, want default de", cfg.Call.Language)
	}
	if cfg.Call.AllowInterruptions {
		t.Error("allow_interruptions = true, want false")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := strings.Replace(validYAML, "storage:", "sorage:", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for misspelled top-level key")
	}
}

func TestLoadFromReader_MissingRequiredFieldsJoined(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_addr: ':8080'\n"))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"providers.llm.name",
		"providers.stt.name",
		"providers.tts.name",
		"discord.token",
		"discord.guild_id",
		"discord.channel_id",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	yaml := strings.Replace(validYAML, "log_level: info", "log_level: verbose", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("error = %v, want log_level complaint", err)
	}
}

func TestLoadFromReader_NegativeTimeoutRejected(t *testing.T) {
	yaml := strings.Replace(validYAML, "collaborator_timeout: 30s", "collaborator_timeout: -5s", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "collaborator_timeout") {
		t.Fatalf("error = %v, want collaborator_timeout complaint", err)
	}
}

func TestLoadFromReader_EnvFallbacks(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-from-env")
	t.Setenv("DISCORD_TOKEN", "token-from-env")

	yaml := strings.Replace(validYAML, "    api_key: dg-test\n", "", 1)
	yaml = strings.Replace(yaml, "  token: bot-token\n", "", 1)

	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.APIKey != "dg-from-env" {
		t.Errorf("stt api key = %q, want env fallback", cfg.Providers.STT.APIKey)
	}
	if cfg.Discord.Token != "token-from-env" {
		t.Errorf("discord token = %q, want env fallback", cfg.Discord.Token)
	}
}

func TestLoadFromReader_FallbackProvidersParsed(t *testing.T) {
	yaml := strings.Replace(validYAML, "    model: gpt-4o\n", "    model: gpt-4o\n    fallbacks:\n      - name: ollama\n        model: llama3.1\n", 1)
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	fbs := cfg.Providers.LLM.Fallbacks
	if len(fbs) != 1 || fbs[0].Name != "ollama" || fbs[0].Model != "llama3.1" {
		t.Errorf("fallbacks = %+v", fbs)
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want time.Duration
	}{
		{"string form", "collaborator_timeout: 45s", 45 * time.Second},
		{"minutes", "collaborator_timeout: 2m", 2 * time.Minute},
		{"integer nanoseconds", "collaborator_timeout: 1000000000", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := strings.Replace(validYAML, "collaborator_timeout: 30s", tt.yaml, 1)
			cfg, err := LoadFromReader(strings.NewReader(yaml))
			if err != nil {
				t.Fatalf("LoadFromReader: %v", err)
			}
			if got := cfg.Call.CollaboratorTimeout.Std(); got != tt.want {
				t.Errorf("duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	yaml := strings.Replace(validYAML, "collaborator_timeout: 30s", "collaborator_timeout: bald", 1)
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, lvl := range []LogLevel{"debug", "info", "warn", "error"} {
		if !lvl.IsValid() {
			t.Errorf("%q should be valid", lvl)
		}
	}
	if LogLevel("verbose").IsValid() {
		t.Error("verbose should not be valid")
	}
}
