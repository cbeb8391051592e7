package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minios-linux/dialogkit/dialogue"
)

type fakeScheduler struct {
	mu      sync.Mutex
	entries []*dialogue.Entry
	epoch   uint64
}

func (f *fakeScheduler) Add(e *dialogue.Entry) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return len(f.entries)
}

func (f *fakeScheduler) Restart() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
	f.epoch++
	return f.epoch
}

func (f *fakeScheduler) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeScheduler) Epoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

type notes struct{ messages []string }

func (n *notes) Notify(m string) { n.messages = append(n.messages, m) }

func defaults(d dialogue.Directive) dialogue.Directive {
	if d.From == "" {
		d.From = "ja"
	}
	if d.FromPlayer == "" {
		d.FromPlayer = "en"
	}
	if d.To == "" {
		d.To = "zh-TW"
	}
	return d
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestPostDialogueQueuesEntry(t *testing.T) {
	sched := &fakeScheduler{}
	h := NewRouter(Options{Scheduler: sched, Directive: defaults})

	rr := do(t, h, http.MethodPost, "/dialogue",
		`{"code":"000A","playerName":"Tataru","name":"Tataru","text":"hello","translation":{"to":"ja"}}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, float64(1), decode(t, rr)["queued"])

	require.Len(t, sched.entries, 1)
	e := sched.entries[0]
	require.Equal(t, "000A", e.Code)
	require.Equal(t, "Tataru", e.Player)
	require.Equal(t, "hello", e.Text)
	require.Equal(t, dialogue.Directive{From: "ja", FromPlayer: "en", To: "ja"}, e.Translation)
	require.Empty(t, e.ID, "ids are assigned by the scheduler")
}

func TestPostDialogueRejectsBadInput(t *testing.T) {
	sched := &fakeScheduler{}
	h := NewRouter(Options{Scheduler: sched})

	cases := map[string]string{
		"not json":                    "invalid JSON",
		`{"text":"hi"}`:               "code is required",
		`{"code":"003D","text":"  "}`: "text is required",
	}
	for body, want := range cases {
		rr := do(t, h, http.MethodPost, "/dialogue", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		require.Contains(t, decode(t, rr)["message"], want)
		require.Equal(t, "bad_request", decode(t, rr)["error"])
	}
	require.Empty(t, sched.entries)
}

func TestRestart(t *testing.T) {
	sched := &fakeScheduler{}
	n := &notes{}
	h := NewRouter(Options{Scheduler: sched, Notifier: n})

	do(t, h, http.MethodPost, "/dialogue", `{"code":"003D","text":"はい"}`)
	rr := do(t, h, http.MethodPost, "/restart", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, float64(1), decode(t, rr)["epoch"])
	require.Equal(t, 0, sched.Len())
	require.Equal(t, []string{"Translation queue restarted"}, n.messages)
}

func TestHealthz(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	sched := &fakeScheduler{}
	h := NewRouter(Options{Scheduler: sched, Now: func() time.Time { return now }})
	now = start.Add(90 * time.Second)

	rr := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(0), body["queue"])
	require.Equal(t, "1m30s", body["uptime"])
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewRouter(Options{Scheduler: &fakeScheduler{}})

	rr := do(t, h, http.MethodGet, "/missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/dialogue", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRequestLoggerLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewRouter(Options{Scheduler: &fakeScheduler{}, Logger: zap.New(core)})

	do(t, h, http.MethodPost, "/dialogue", `{}`)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, int64(http.StatusBadRequest), fields["status"])
	require.Equal(t, "/dialogue", fields["route"])
}

func TestRecovererReturns500(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := NewRouter(Options{Scheduler: &fakeScheduler{}, Logger: zap.New(core)})
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := do(t, router, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	failed := logs.FilterMessage("request completed").FilterField(zap.Int("status", http.StatusInternalServerError))
	require.Equal(t, 1, failed.Len())
	require.Equal(t, zapcore.ErrorLevel, failed.All()[0].Level)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), nil)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
