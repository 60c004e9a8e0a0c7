// Command sprechzeit runs the voice intake agent for Praxis Dr. Pfeiffer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/fbruhn/sprechzeit/internal/app"
	"github.com/fbruhn/sprechzeit/internal/config"
	"github.com/fbruhn/sprechzeit/internal/observe"
	"github.com/fbruhn/sprechzeit/internal/resilience"
	"github.com/fbruhn/sprechzeit/pkg/provider/llm"
	"github.com/fbruhn/sprechzeit/pkg/provider/llm/anyllm"
	openaillm "github.com/fbruhn/sprechzeit/pkg/provider/llm/openai"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt"
	"github.com/fbruhn/sprechzeit/pkg/provider/stt/deepgram"
	"github.com/fbruhn/sprechzeit/pkg/provider/tts"
	"github.com/fbruhn/sprechzeit/pkg/provider/tts/cartesia"
	"github.com/fbruhn/sprechzeit/pkg/provider/vad/energy"
	discordtransport "github.com/fbruhn/sprechzeit/pkg/transport/discord"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sprechzeit: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sprechzeit: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sprechzeit starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	discord, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		slog.Error("failed to create Discord session", "err", err)
		return 1
	}
	discord.Identify.Intents = discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuilds
	if err := discord.Open(); err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}
	defer func() {
		if err := discord.Close(); err != nil {
			slog.Warn("discord close error", "err", err)
		}
	}()
	slog.Info("discord connected", "guild_id", cfg.Discord.GuildID)

	providers, err := buildProviders(cfg, discord)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready for calls — press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the configured providers, wrapping each with a
// failover group when fallbacks are declared.
func buildProviders(cfg *config.Config, discord *discordgo.Session) (*app.Providers, error) {
	breaker := resilience.BreakerConfig{}

	primaryLLM, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	var llmProvider llm.Provider = primaryLLM
	if len(cfg.Providers.LLM.Fallbacks) > 0 {
		group := resilience.NewLLMFailover(cfg.Providers.LLM.Name, primaryLLM, breaker)
		for _, fb := range cfg.Providers.LLM.Fallbacks {
			p, err := buildLLM(fb)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, p)
		}
		llmProvider = group
	}

	primarySTT, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	var sttProvider stt.Provider = primarySTT
	if len(cfg.Providers.STT.Fallbacks) > 0 {
		group := resilience.NewSTTFailover(cfg.Providers.STT.Name, primarySTT, breaker)
		for _, fb := range cfg.Providers.STT.Fallbacks {
			p, err := buildSTT(fb)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, p)
		}
		sttProvider = group
	}

	primaryTTS, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	var ttsProvider tts.Provider = primaryTTS
	if len(cfg.Providers.TTS.Fallbacks) > 0 {
		group := resilience.NewTTSFailover(cfg.Providers.TTS.Name, primaryTTS, breaker)
		for _, fb := range cfg.Providers.TTS.Fallbacks {
			p, err := buildTTS(fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, p)
		}
		ttsProvider = group
	}

	ps := &app.Providers{
		LLM:       llmProvider,
		STT:       sttProvider,
		TTS:       ttsProvider,
		Transport: discordtransport.New(discord, cfg.Discord.GuildID),
	}
	if cfg.Providers.VAD.Name == "energy" || cfg.Providers.VAD.Name == "" {
		ps.VAD = energy.New()
	}
	return ps, nil
}

func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	case "anthropic", "mistral", "ollama":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "cartesia":
		var opts []cartesia.Option
		if entry.Model != "" {
			opts = append(opts, cartesia.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, cartesia.WithLanguage(lang))
		}
		return cartesia.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Sprechzeit — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  Voice channel   : %-19s ║\n", cfg.Discord.ChannelID)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Reason store    : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Reason store    : %-19s ║\n", "log only")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
