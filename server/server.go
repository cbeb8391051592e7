// Package server exposes the chat ingest endpoint. A game plugin posts each
// chat line as JSON; the server stamps missing translation languages from
// the configuration and appends the entry to the scheduler queue.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/minios-linux/dialogkit/dialogue"
	"github.com/minios-linux/dialogkit/i18n"
)

const maxBodyBytes = 1 << 20

// Scheduler is the queue the server feeds.
type Scheduler interface {
	Add(entry *dialogue.Entry) int
	Restart() uint64
	Len() int
	Epoch() uint64
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

// Options wires the router.
type Options struct {
	Scheduler Scheduler
	// Directive fills empty translation fields of posted entries.
	Directive func(dialogue.Directive) dialogue.Directive
	Notifier  Notifier
	Logger    *zap.Logger
	// Now overrides the clock used for uptime.
	Now func() time.Time
}

type handlers struct {
	opts    Options
	started time.Time
}

// NewRouter constructs the chi router with shared middleware.
func NewRouter(opts Options) chi.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Directive == nil {
		opts.Directive = func(d dialogue.Directive) dialogue.Directive { return d }
	}
	h := &handlers{opts: opts, started: opts.Now()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path))
	})

	r.Get("/healthz", h.healthz)
	r.Post("/dialogue", h.postDialogue)
	r.Post("/restart", h.restart)
	return r
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queue":  h.opts.Scheduler.Len(),
		"epoch":  h.opts.Scheduler.Epoch(),
		"uptime": h.opts.Now().Sub(h.started).Round(time.Second).String(),
	})
}

func (h *handlers) postDialogue(w http.ResponseWriter, r *http.Request) {
	var entry dialogue.Entry
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(entry.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if strings.TrimSpace(entry.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	entry.Translation = h.opts.Directive(entry.Translation)
	length := h.opts.Scheduler.Add(&entry)

	logger(r, h.opts.Logger).Debug("dialogue queued",
		zap.String("code", entry.Code),
		zap.Int("queue", length),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":  length,
		"message": fmt.Sprintf(i18n.N("%d entry queued", "%d entries queued", length), length),
	})
}

func (h *handlers) restart(w http.ResponseWriter, _ *http.Request) {
	epoch := h.opts.Scheduler.Restart()
	if h.opts.Notifier != nil {
		h.opts.Notifier.Notify(i18n.T("Translation queue restarted"))
	}
	writeJSON(w, http.StatusOK, map[string]any{"epoch": epoch})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		"message": message,
	})
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ingest server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ingest server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down ingest server: %w", err)
	}
	return nil
}
