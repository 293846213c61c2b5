package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ignatij/marketflow/internal/log"
)

// StatusSource reports the live state of the scheduling daemon.
type StatusSource interface {
	InFlight() bool
	NextTrigger(after time.Time) time.Time
}

type healthResponse struct {
	Status   string `json:"status"`
	InFlight bool   `json:"in_flight"`
	NextRun  string `json:"next_run"`
}

// HealthHandler answers liveness probes for the schedule command.
func HealthHandler(src StatusSource, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := healthResponse{
			Status:   "ok",
			InFlight: src.InFlight(),
			NextRun:  src.NextTrigger(now()).Format(time.RFC3339),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.GetLogger().Errorf("Failed to write health response: %v", err)
		}
	}
}

// StartServer serves /health on addr until ctx is done.
func StartServer(ctx context.Context, addr string, src StatusSource) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler(src, time.Now))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.GetLogger().Infof("Starting health server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
