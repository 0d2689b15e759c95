// Command pipd serves the companion's HTTP gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lumikids/pip/pkg/core/providers/gemini"
	"github.com/lumikids/pip/pkg/gateway"
	"github.com/lumikids/pip/pkg/session"
	"github.com/lumikids/pip/pkg/voice/tts"
)

func buildHTTPServer(cfg gateway.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := gateway.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var geminiOpts []gemini.Option
	if cfg.GeminiBaseURL != "" {
		geminiOpts = append(geminiOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	provider := gemini.New(cfg.GeminiAPIKey, geminiOpts...)

	store, err := session.OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	narrators := map[string]tts.Provider{
		"gemini": tts.NewGemini(provider, cfg.SpeechModel),
	}
	if cfg.CartesiaAPIKey != "" {
		narrators["cartesia"] = tts.NewCartesia(cfg.CartesiaAPIKey,
			tts.WithCartesiaVoice(cfg.CartesiaVoice))
	}

	srv := gateway.New(cfg, gateway.Deps{
		Provider:  provider,
		Store:     store,
		Narrators: narrators,
		Default:   "gemini",
	}, logger)
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting pipd", "addr", cfg.Addr, "chat_model", cfg.ChatModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("pipd stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	// Missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not load .env", "error", err)
	}

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "pipd: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
