package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TrackSync/internal/integrations/seventeentrack"
	"github.com/BearBump/TrackSync/internal/services/coordinator"
	"github.com/BearBump/TrackSync/internal/services/publisher"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

const refreshTimeout = 30 * time.Second

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	worker *worker
}

type addPackageRequest struct {
	Number string `json:"number" validate:"required,max=64"`
	Title  string `json:"title" validate:"omitempty,max=128"`
}

type summaryResponse struct {
	Account  string                      `json:"account"`
	Fresh    bool                        `json:"fresh"`
	Source   string                      `json:"source"`
	Total    int                         `json:"total"`
	Statuses []*coordinator.StatusBucket `json:"statuses"`
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("worker HTTP listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

func newWorkerRouter(opts workerHTTPOpts) http.Handler {
	w := opts.worker
	validate := validator.New()
	r := chi.NewRouter()

	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(rw http.ResponseWriter, r *http.Request) {
		if !w.coord.Fresh() {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"status": "stale"})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, w.coord.Stats())
	})

	r.Get("/config", func(rw http.ResponseWriter, r *http.Request) {
		// Operational settings only; the api key is never exposed.
		o := w.coord.Options()
		writeJSON(rw, http.StatusOK, map[string]any{
			"account":             w.accountID,
			"clientMode":          w.cfg.TrackSync.ClientMode,
			"pollIntervalSeconds": int(o.PollInterval.Seconds()),
			"showArchived":        o.ShowArchived,
			"showDelivered":       o.ShowDelivered,
			"rateLimitPerMinute":  w.rateLimitPerMinute,
			"backoff1Seconds":     w.cfg.TrackSync.Backoff1Seconds,
			"backoff2Seconds":     w.cfg.TrackSync.Backoff2Seconds,
			"backoff3Seconds":     w.cfg.TrackSync.Backoff3Seconds,
		})
	})

	r.With(w.rateLimited("17track:trigger")).Post("/trigger", func(rw http.ResponseWriter, r *http.Request) {
		w.coord.Trigger()
		writeJSON(rw, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	r.With(w.rateLimited("17track:refresh")).Post("/refresh", func(rw http.ResponseWriter, r *http.Request) {
		// A client that hangs up must not leave the coordinator stale.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshTimeout)
		defer cancel()
		snap, err := w.coord.Refresh(ctx)
		if err != nil {
			writeUpstreamError(rw, err)
			return
		}
		writeJSON(rw, http.StatusOK, w.summary(snap, "live"))
	})

	r.Get("/summary", func(rw http.ResponseWriter, r *http.Request) {
		snap, source := w.currentSnapshot(r.Context())
		if snap == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(rw, http.StatusOK, w.summary(snap, source))
	})

	r.Get("/packages", func(rw http.ResponseWriter, r *http.Request) {
		snap, _ := w.currentSnapshot(r.Context())
		if snap == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"packages": w.coord.Options().VisiblePackages(snap)})
	})

	r.Get("/packages/{number}", func(rw http.ResponseWriter, r *http.Request) {
		snap, _ := w.currentSnapshot(r.Context())
		if snap == nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
			return
		}
		p, ok := snap.Package(chi.URLParam(r, "number"))
		if !ok {
			writeJSON(rw, http.StatusNotFound, map[string]string{"error": "package not found"})
			return
		}
		writeJSON(rw, http.StatusOK, p)
	})

	r.With(w.rateLimited("17track:register")).Post("/packages", func(rw http.ResponseWriter, r *http.Request) {
		var req addPackageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := w.client.AddPackage(r.Context(), req.Number, req.Title); err != nil {
			writeUpstreamError(rw, err)
			return
		}
		w.coord.Trigger()
		writeJSON(rw, http.StatusAccepted, map[string]string{"number": req.Number})
	})

	r.With(w.rateLimited("17track:delete")).Delete("/packages/{number}", func(rw http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		if err := w.client.ArchivePackage(r.Context(), number); err != nil {
			writeUpstreamError(rw, err)
			return
		}
		w.coord.Trigger()
		writeJSON(rw, http.StatusAccepted, map[string]string{"number": number})
	})

	if w.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(w.gatherer, promhttp.HandlerOpts{}))
	}

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Cache-Control", "no-store")
			http.ServeFile(rw, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

// currentSnapshot prefers the in-memory snapshot and falls back to the one cached in Redis
// by a previous run.
func (w *worker) currentSnapshot(ctx context.Context) (*coordinator.Snapshot, string) {
	if snap := w.coord.Snapshot(); snap != nil {
		return snap, "live"
	}
	if w.cache == nil {
		return nil, ""
	}
	snap, _, err := publisher.LoadCached(ctx, w.cache, w.accountID)
	if err != nil {
		slog.Warn("load cached snapshot", "account", w.accountID, "error", err.Error())
		return nil, ""
	}
	if snap == nil {
		return nil, ""
	}
	return snap, "cache"
}

func (w *worker) summary(snap *coordinator.Snapshot, source string) summaryResponse {
	return summaryResponse{
		Account:  w.accountID,
		Fresh:    w.coord.Fresh() && source == "live",
		Source:   source,
		Total:    snap.Len(),
		Statuses: snap.Summary(),
	}
}

// rateLimited guards calls that hit the 17TRACK quota. Limiter errors let the request through.
func (w *worker) rateLimited(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if w.rl != nil {
				ok, err := w.rl.AllowPerMinute(r.Context(), scope+":"+w.accountID, w.rateLimitPerMinute)
				if err != nil {
					slog.Warn("rate limiter", "scope", scope, "error", err.Error())
				} else if !ok {
					writeJSON(rw, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
					return
				}
			}
			next.ServeHTTP(rw, r)
		})
	}
}

func writeUpstreamError(rw http.ResponseWriter, err error) {
	var apiErr *seventeentrack.APIError
	var trErr *seventeentrack.TransportError
	switch {
	case errors.As(err, &apiErr):
		writeJSON(rw, http.StatusBadGateway, map[string]string{"error": apiErr.Message})
	case errors.As(err, &trErr):
		writeJSON(rw, http.StatusGatewayTimeout, map[string]string{"error": trErr.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(rw, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	default:
		slog.Error("worker http", "error", err.Error())
		writeJSON(rw, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
