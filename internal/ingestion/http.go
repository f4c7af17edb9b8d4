package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler returns the daemon's HTTP surface:
//
//	/health       liveness
//	/metrics      Prometheus exposition
//	/api/metrics  IngestionMetrics as JSON
//	/ws           pointer stream; ?render=1 streams frames back
func (d *DaemonIngester) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.Handle("/metrics", promhttp.HandlerFor(d.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d.Metrics())
	})

	mux.HandleFunc("/ws", d.handleWebSocket)

	return mux
}

func (d *DaemonIngester) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr:              d.config.HTTPAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	d.log.Info("http server listening", zap.String("url", "http://"+d.config.HTTPAddr+"/metrics"))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// checkOrigin allows every origin unless AllowedOrigins is set, in which case
// the Origin host must match one of them exactly.
func (d *DaemonIngester) checkOrigin(r *http.Request) bool {
	if len(d.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range d.config.AllowedOrigins {
		if strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
