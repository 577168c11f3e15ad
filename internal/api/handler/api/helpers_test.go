package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/presetd/internal/api/job"
	"github.com/newthinker/presetd/internal/autosave"
	"github.com/newthinker/presetd/internal/backtest"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/lifecycle"
	"github.com/newthinker/presetd/internal/store"
	"github.com/stretchr/testify/require"
)

const ns = "strategies/ema"

type stubBacktester struct {
	err error
}

func (b stubBacktester) Run(_ context.Context, path string, values map[string]any) (*backtest.Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &backtest.Result{StrategyPath: path, Inputs: values}, nil
}

type testEnv struct {
	store   *store.MemoryStore
	manager *lifecycle.Manager
	jobs    *job.Store
	router  chi.Router
}

func emaSet(fast float64) core.ParameterSet {
	return core.NewParameterSet(
		core.Parameter{Name: "fast", Value: fast, Description: "Fast EMA"},
		core.Parameter{Name: "slow", Value: 21, Description: "Slow EMA"},
	)
}

func newTestEnv(t *testing.T, bt lifecycle.Backtester, seed ...string) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	for i, name := range seed {
		require.NoError(t, st.Save(context.Background(), ns, name, emaSet(float64(5+i))))
	}

	m := lifecycle.NewManager(st, lifecycle.Options{
		Backtester: bt,
		// Keep autosave out of the way of request assertions.
		Autosave: autosave.Options{QuietPeriod: time.Hour},
	})
	t.Cleanup(m.Close)

	env := &testEnv{store: st, manager: m, jobs: job.NewStore(10, time.Hour)}

	sessions := NewSessionHandler(m)
	presets := NewPresetHandler(st, nil)
	backtests := NewBacktestHandler(m, env.jobs, nil)
	events := NewEventsHandler(m, nil)

	r := chi.NewRouter()
	r.Post(store.ListPath, presets.List)
	r.Post(store.LoadPath, presets.Load)
	r.Post(store.SavePath, presets.Save)
	r.Post(store.DeletePath, presets.Delete)
	r.Get("/api/presets/visible", presets.Visible)
	r.Get("/api/sessions", sessions.List)
	r.Post("/api/sessions", sessions.Create)
	r.Get("/api/sessions/{id}", sessions.Get)
	r.Delete("/api/sessions/{id}", sessions.Close)
	r.Post("/api/sessions/{id}/load", sessions.Load)
	r.Put("/api/sessions/{id}/values", sessions.Values)
	r.Post("/api/sessions/{id}/save", sessions.Save)
	r.Post("/api/sessions/{id}/switch", sessions.Switch)
	r.Post("/api/sessions/{id}/delete", sessions.Delete)
	r.Post("/api/sessions/{id}/backtest", backtests.Create)
	r.Get("/api/sessions/{id}/events", events.Stream)
	r.Get("/api/jobs/{id}", backtests.GetStatus)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// open creates a session and returns its id.
func (e *testEnv) open(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", OpenSessionRequest{PresetPath: ns})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeSnapshot(t, w).SessionID
}

func (e *testEnv) names(t *testing.T) []string {
	t.Helper()
	names, err := e.store.List(context.Background(), ns)
	require.NoError(t, err)
	return names
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) lifecycle.Snapshot {
	t.Helper()
	var snap lifecycle.Snapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snap))
	return snap
}
