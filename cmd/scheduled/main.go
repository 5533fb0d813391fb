package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberhearth/scheduler/internal/database"
	"github.com/emberhearth/scheduler/internal/handler"
	"github.com/emberhearth/scheduler/internal/logging"
	"github.com/emberhearth/scheduler/internal/notify"
	"github.com/emberhearth/scheduler/internal/schedule"
	"github.com/emberhearth/scheduler/internal/store"
)

func main() {
	port := os.Getenv("SCHEDULED_PORT")
	if port == "" {
		port = "8099"
	}

	dbPath := os.Getenv("SCHEDULED_DB_PATH")
	if dbPath == "" {
		dbPath = "scheduler.db"
	}

	logger := logging.Setup(os.Getenv("SCHEDULED_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	hub := notify.NewHub(logger.With("component", "notify"))
	manager := schedule.NewManager(store.NewScheduleStore(db), hub, logger.With("component", "schedule"))
	scheduleH := handler.NewScheduleHandler(manager, logger.With("component", "handler"))

	mux := http.NewServeMux()
	scheduleH.Routes(mux)
	mux.HandleFunc("GET /ws", notify.HandleWebSocket(hub))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("scheduler daemon running", "port", port, "db", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
