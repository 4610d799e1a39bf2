package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamcast/streamcast/internal/asr"
	"github.com/streamcast/streamcast/internal/config"
	"github.com/streamcast/streamcast/internal/session"
	"github.com/streamcast/streamcast/internal/trace"
	"github.com/streamcast/streamcast/internal/translator"
	"github.com/streamcast/streamcast/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := config.Load()

	if cfg.ASRBackendURL == "" {
		slog.Error("fatal startup failure: no ASR backend configured")
		os.Exit(1)
	}
	asrClient := asr.NewHTTPClient(cfg.ASRBackendURL, cfg.ASRPoolSize)
	providers := initTranslators(cfg)
	if len(providers) == 0 {
		slog.Error("fatal startup failure: no translator providers configured")
		os.Exit(1)
	}

	var traceStore *trace.Store
	if cfg.PostgresURL != "" {
		var err error
		traceStore, err = trace.Open(cfg.PostgresURL)
		if err != nil {
			slog.Error("trace store open failed", "error", err)
		} else {
			slog.Info("tracing enabled", "postgres", cfg.PostgresURL)
		}
	}

	speakers := session.NewRegistry[*session.Speaker](cfg.MaxSpeakers, cfg.MaxConnectionTime)
	listeners := session.NewRegistry[*session.Listener](cfg.MaxListeners, cfg.MaxConnectionTime)
	broadcaster := session.NewBroadcaster(listeners)

	stop := make(chan struct{})
	go session.StartHeartbeat(stop, listeners, cfg.HeartbeatInterval)
	go session.StartTimeoutSweep(stop, speakers, cfg.TimeoutSweepPeriod)
	go session.StartTimeoutSweep(stop, listeners, cfg.TimeoutSweepPeriod)

	handler := ws.NewHandler(ws.HandlerConfig{
		ASRClient:   asrClient,
		Providers:   providers,
		Speakers:    speakers,
		Listeners:   listeners,
		Broadcaster: broadcaster,
		RetryCount:  cfg.TranslationRetries,
		RetryDelay:  cfg.TranslationDelay,
		TraceStore:  traceStore,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		wsHandler:  handler,
		speakers:   speakers,
		listeners:  listeners,
		providers:  providers,
		traceStore: traceStore,
		ollamaURL:  cfg.OllamaURL,
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	go awaitShutdown(srv, stop, speakers, listeners)

	slog.Info("streamcast starting", "addr", addr, "max_speakers", cfg.MaxSpeakers, "max_listeners", cfg.MaxListeners)

	var err error
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("streamcast stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then stops background
// sweeps, drives every active speaker/listener through DRAINING, and
// drains the HTTP server (spec §4.8 "explicit server shutdown"). Driving
// sessions first matters: their read loops block synchronously on
// conn.ReadMessage (internal/ws/handler.go), which srv.Shutdown cannot
// unblock on its own — it only stops accepting new connections and waits
// for in-flight handlers to return.
func awaitShutdown(srv *http.Server, stop chan struct{}, speakers *session.Registry[*session.Speaker], listeners *session.Registry[*session.Listener]) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	close(stop)

	var wg sync.WaitGroup
	for _, speaker := range speakers.Snapshot() {
		wg.Add(1)
		go func(s *session.Speaker) {
			defer wg.Done()
			s.Stop()
		}(speaker)
	}
	for _, listener := range listeners.Snapshot() {
		wg.Add(1)
		go func(l *session.Listener) {
			defer wg.Done()
			_ = l.Close()
		}(listener)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// initTranslators constructs the translator pool's provider list,
// registering each engine only when its credentials/URL are configured.
func initTranslators(cfg config.Config) []translator.Provider {
	var providers []translator.Provider

	if cfg.OllamaURL != "" {
		providers = append(providers, translator.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaPoolSize))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, translator.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, translator.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, 2048))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := translator.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("gemini provider init failed", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if cfg.AgentBaseURL != "" {
		agentProvider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			BaseURL:      param.NewOpt(cfg.AgentBaseURL),
			APIKey:       param.NewOpt(cfg.AgentAPIKey),
			UseResponses: param.NewOpt(false),
		})
		providers = append(providers, translator.NewAgentProvider(cfg.AgentProviderTag, agentProvider, cfg.AgentModel, 2048))
	}

	return providers
}
