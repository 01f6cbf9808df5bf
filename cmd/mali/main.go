package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ploy/mali/config"
	"github.com/ploy/mali/internal/db"
	"github.com/ploy/mali/internal/engine"
	"github.com/ploy/mali/internal/line"
	"github.com/ploy/mali/internal/llm"
	"github.com/ploy/mali/internal/scheduler"
	"github.com/ploy/mali/internal/web"
)

func main() {
	cfg := config.Load()

	if cfg.LINEChannelSecret == "" || cfg.LINEChannelToken == "" {
		log.Fatal("LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN must be set")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	// Schema init must succeed before serving anything.
	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	apiKey := cfg.GeminiAPIKey
	if cfg.LLMProvider == "openai" {
		apiKey = cfg.OpenAIKey
	}
	client, err := llm.NewClient(llm.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   apiKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.OllamaBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to create LLM client: %v", err)
	}

	eng := engine.New(database, client, loc)
	lineClient := line.NewClient(cfg.LINEChannelToken)
	webhook := line.NewWebhook(cfg.LINEChannelSecret, eng, lineClient, database)

	sched := scheduler.New(database, lineClient, loc)
	if err := sched.Start(cfg.DailySweepCron); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method("POST", "/callback", webhook)
	r.Method("GET", "/", web.NewDashboard(database, loc))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down.")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
