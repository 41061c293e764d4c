package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/email-template-translator/internal/config"
	"github.com/MimeLyc/email-template-translator/internal/httpapi"
	"github.com/MimeLyc/email-template-translator/internal/llm"
	"github.com/MimeLyc/email-template-translator/internal/persistence"
	"github.com/MimeLyc/email-template-translator/internal/tasks"
	"github.com/MimeLyc/email-template-translator/internal/templates"
	"github.com/MimeLyc/email-template-translator/internal/translator"
	"github.com/MimeLyc/email-template-translator/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.InitLogger(log.ParseLevel(cfg.LogLevel, log.LevelInfo))

	if err := run(cfg); err != nil {
		log.Error("Service stopped with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	store, err := persistence.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	llmClient, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		return err
	}

	bus := tasks.NewCompletionBus()
	evaluator := tasks.NewEvaluator(store, bus, cfg.Orchestrator.SettleDelay)
	worker := tasks.NewWorker(store, translator.NewLLMTranslator(llmClient), evaluator)
	dispatcher := tasks.NewDispatcher(worker,
		cfg.Orchestrator.WorkerConcurrency,
		cfg.Orchestrator.DispatchRetries,
		cfg.Orchestrator.DispatchBackoff)
	coordinator := tasks.NewCoordinator(store, dispatcher, evaluator, bus, cfg.Orchestrator.CompletionTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Re-engage tasks interrupted by the previous shutdown or crash.
	if err := coordinator.Resume(ctx); err != nil {
		return err
	}

	// Backstop sweep: tasks whose waits died with a previous process and
	// were never resumed get force-failed once they go stale.
	sweeper := cron.New()
	staleAfter := cfg.Orchestrator.CompletionTimeout + 5*time.Minute
	if _, err := sweeper.AddFunc(cfg.Maintenance.StaleSweepCron, func() {
		cutoff := time.Now().UTC().Add(-staleAfter)
		n, err := store.FailStaleTasks(context.Background(), cutoff)
		if err != nil {
			log.Error("Stale task sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Warn("Stale task sweep force-failed %d tasks", n)
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	browser := templates.NewClient(cfg.Templates.APIURL, cfg.Templates.APIKey)
	server := httpapi.NewServer(coordinator, store, browser)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}
	dispatcher.Stop()
	coordinator.Stop()
	return nil
}
