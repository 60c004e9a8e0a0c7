// Package config provides the configuration schema and loader for the
// Sprechzeit intake agent.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "30s".
// Plain integers are read as nanoseconds, matching time.Duration itself.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration, loaded from YAML via [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Discord   DiscordConfig   `yaml:"discord"`
	Call      CallConfig      `yaml:"call"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr is the address for the health and metrics endpoint
	// (e.g., ":8080"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default info.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the external services for each pipeline stage.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the implementation (e.g., "openai", "deepgram",
	// "cartesia", "energy").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty, the loader
	// falls back to the provider's conventional environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists providers tried in order when this one fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// DiscordConfig configures the call transport.
type DiscordConfig struct {
	// Token is the bot token. Falls back to DISCORD_TOKEN.
	Token string `yaml:"token"`

	// GuildID is the server hosting the practice voice channel.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the voice channel the agent joins to take calls.
	ChannelID string `yaml:"channel_id"`
}

// CallConfig tunes per-call behaviour.
type CallConfig struct {
	// VoiceID is the TTS voice used for the receptionist.
	VoiceID string `yaml:"voice_id"`

	// Language is the BCP-47 tag for STT and TTS. Default "de".
	Language string `yaml:"language"`

	// AllowInterruptions lets the caller barge in over the agent's speech.
	// Off by default: the intake script is short and interruptions cut off
	// the emergency guidance.
	AllowInterruptions bool `yaml:"allow_interruptions"`

	// CollaboratorTimeout bounds every provider call made from the pipeline.
	// Default 30s.
	CollaboratorTimeout Duration `yaml:"collaborator_timeout"`

	// SoundsDir optionally overrides the embedded sound assets.
	SoundsDir string `yaml:"sounds_dir"`
}

// StorageConfig configures the visit reason sink.
type StorageConfig struct {
	// PostgresDSN enables the Postgres reason store. Empty means reasons
	// are written to the log only.
	PostgresDSN string `yaml:"postgres_dsn"`
}
