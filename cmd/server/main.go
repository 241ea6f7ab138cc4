package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dotagpt/dotagpt/internal/api"
	"github.com/dotagpt/dotagpt/internal/config"
	"github.com/dotagpt/dotagpt/internal/draft"
	"github.com/dotagpt/dotagpt/internal/llm"
	"github.com/dotagpt/dotagpt/internal/logger"
	"github.com/dotagpt/dotagpt/internal/news"
	"github.com/dotagpt/dotagpt/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	appLog, err := logger.New(config.AppConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	// Initialize the chatroom store (authenticated sessions)
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		appLog.Fatal("failed to initialize database", "error", err)
	}
	defer dbStore.Close()

	// Initialize the draft store (anonymous sessions)
	draftStore, err := draft.Open(config.AppConfig.DraftDBPath, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize draft store", "error", err)
	}
	defer draftStore.Close()

	// Initialize the completion client
	llmClient, err := llm.NewClient(context.Background(), config.AppConfig.GeminiAPIKey, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize completion client", "error", err)
	}
	defer llmClient.Close()

	// Initialize the news aggregator
	newsClient := news.NewClient(
		config.AppConfig.SteamAPIBaseURL,
		config.AppConfig.SteamAppID,
		time.Duration(config.AppConfig.NewsCacheTTLSec)*time.Second,
		appLog,
	)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(dbStore, draftStore, llmClient, newsClient, appLog)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		appLog.Info("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("could not listen", "addr", serverAddr, "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down server")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.Fatal("server forced to shutdown", "error", err)
	}

	appLog.Info("server exiting gracefully")
}
