package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known implementations per provider kind.
// Unknown names only warn, so third-party builds can plug in their own.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "mistral", "ollama"},
	"stt": {"deepgram"},
	"tts": {"cartesia"},
	"vad": {"energy"},
}

// envFallbacks maps provider kinds to the conventional credential variable
// consulted when the YAML api_key is empty.
var envFallbacks = map[string]string{
	"llm-openai":    "OPENAI_API_KEY",
	"llm-anthropic": "ANTHROPIC_API_KEY",
	"llm-mistral":   "MISTRAL_API_KEY",
	"stt-deepgram":  "DEEPGRAM_API_KEY",
	"tts-cartesia":  "CARTESIA_API_KEY",
}

// Load reads the YAML file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// fallbacks, and validates the result. Useful in tests where configs are
// built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvFallbacks(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvFallbacks fills empty credentials from the environment.
func applyEnvFallbacks(cfg *Config) {
	fillKey("llm", &cfg.Providers.LLM)
	fillKey("stt", &cfg.Providers.STT)
	fillKey("tts", &cfg.Providers.TTS)
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Storage.PostgresDSN == "" {
		cfg.Storage.PostgresDSN = os.Getenv("DATABASE_URL")
	}
}

func fillKey(kind string, entry *ProviderEntry) {
	if entry.APIKey == "" {
		if env := envFallbacks[kind+"-"+entry.Name]; env != "" {
			entry.APIKey = os.Getenv(env)
		}
	}
	for i := range entry.Fallbacks {
		fillKey(kind, &entry.Fallbacks[i])
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Call.Language == "" {
		cfg.Call.Language = "de"
	}
}

// Validate checks that cfg is coherent, returning a joined error listing
// every failure found. Suspicious but workable values only warn.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM)
	validateProviderName("stt", cfg.Providers.STT)
	validateProviderName("tts", cfg.Providers.TTS)
	validateProviderName("vad", cfg.Providers.VAD)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.ChannelID == "" {
		errs = append(errs, errors.New("discord.channel_id is required"))
	}

	if cfg.Call.CollaboratorTimeout < 0 {
		errs = append(errs, fmt.Errorf("call.collaborator_timeout %s must not be negative", cfg.Call.CollaboratorTimeout))
	}
	if cfg.Call.VoiceID == "" {
		slog.Warn("call.voice_id is empty; the TTS provider's default voice will be used")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; visit reasons will only be written to the log")
	}

	return errors.Join(errs...)
}

// validateProviderName warns when a non-empty provider name is not in the
// known list for its kind, then recurses into fallbacks.
func validateProviderName(kind string, entry ProviderEntry) {
	if entry.Name != "" {
		known := ValidProviderNames[kind]
		if known != nil && !slices.Contains(known, entry.Name) {
			slog.Warn("unknown provider name — may be a typo or third-party provider",
				"kind", kind,
				"name", entry.Name,
				"known", known,
			)
		}
	}
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb)
	}
}
