// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/presetd/internal/api/job"
	"github.com/newthinker/presetd/internal/api/response"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/lifecycle"
)

const (
	backtestJobType = "backtest"
	backtestTimeout = 5 * time.Minute
)

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	StrategyPath string `json:"strategyPath"`
}

// BacktestRecorder observes backtest jobs. *metrics.Registry satisfies it.
type BacktestRecorder interface {
	RecordBacktest(status string, seconds float64)
	SetJobsActive(jobType string, n int)
}

// BacktestHandler runs the active preset of a session through the
// backtest engine as an async job.
type BacktestHandler struct {
	manager  *lifecycle.Manager
	jobStore *job.Store
	recorder BacktestRecorder
	timeout  time.Duration
}

// NewBacktestHandler creates a new backtest handler. recorder may be nil.
func NewBacktestHandler(manager *lifecycle.Manager, jobStore *job.Store, recorder BacktestRecorder) *BacktestHandler {
	return &BacktestHandler{
		manager:  manager,
		jobStore: jobStore,
		recorder: recorder,
		timeout:  backtestTimeout,
	}
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	var req BacktestRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}
	if req.StrategyPath == "" {
		req.StrategyPath = c.PresetPath()
	}
	if _, ok := c.LiveBase(); !ok {
		response.FromError(w, core.ErrNoActivePreset)
		return
	}

	j := h.jobStore.Create(backtestJobType, c.ID())
	h.observeJobs()

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	go h.runBacktest(jobID, c, req.StrategyPath)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, c *lifecycle.Controller, strategyPath string) {
	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	start := time.Now()
	result, err := c.Backtest(ctx, strategyPath)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		var coreErr *core.Error
		if !errors.As(err, &coreErr) {
			coreErr = core.WrapError(core.ErrBacktestFailed, err)
		}
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = coreErr
		})
		h.record("error", elapsed)
		return
	}

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
	})
	h.record("ok", elapsed)
}

func (h *BacktestHandler) record(status string, seconds float64) {
	if h.recorder == nil {
		return
	}
	h.recorder.RecordBacktest(status, seconds)
	h.observeJobs()
}

func (h *BacktestHandler) observeJobs() {
	if h.recorder != nil {
		h.recorder.SetJobsActive(backtestJobType, h.jobStore.Active(backtestJobType))
	}
}

// GetStatus returns the status of a job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	resp := map[string]any{
		"job_id":     j.ID,
		"type":       j.Type,
		"session_id": j.SessionID,
		"status":     j.Status,
	}
	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
	}

	response.JSON(w, http.StatusOK, resp)
}
