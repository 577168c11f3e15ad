// internal/api/handler/api/sessions.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/presetd/internal/api/response"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/lifecycle"
)

// OpenSessionRequest opens an editing session on a namespace.
type OpenSessionRequest struct {
	PresetPath string `json:"presetPath"`
}

// NameRequest names the target of load, switch and delete.
type NameRequest struct {
	Name     string `json:"name"`
	Decision string `json:"decision,omitempty"`
}

// SaveRequest saves the given inputs, or the session's current values
// when inputs are omitted.
type SaveRequest struct {
	Name     string             `json:"name"`
	Inputs   *core.ParameterSet `json:"inputs,omitempty"`
	Decision string             `json:"decision,omitempty"`
}

// ValuesRequest carries an edit of the active preset.
type ValuesRequest struct {
	Inputs core.ParameterSet `json:"inputs"`
}

// SessionHandler exposes the lifecycle controller over HTTP.
type SessionHandler struct {
	manager *lifecycle.Manager
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *lifecycle.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*lifecycle.Controller, bool) {
	c, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return nil, false
	}
	return c, true
}

// List returns snapshots of all open sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.manager.Sessions())
}

// Create opens a session and resumes its last active draft if any.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}

	c, err := h.manager.Open(r.Context(), req.PresetPath)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, c.Snapshot())
}

// Get returns the session snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, c.Snapshot())
}

// Close ends the session. Pending autosaves are cancelled.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.CloseSession(chi.URLParam(r, "id")); err != nil {
		response.FromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Load activates a preset in an idle session.
func (h *SessionHandler) Load(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}

	if _, err := c.Load(r.Context(), req.Name); err != nil {
		writeOpError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c.Snapshot())
}

// Values records an edit and schedules an autosave.
func (h *SessionHandler) Values(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ValuesRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}

	if err := c.Update(r.Context(), req.Inputs); err != nil {
		writeOpError(w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, c.Snapshot())
}

// Save writes the preset under a base name.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SaveRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}
	decision, err := lifecycle.ParseDecision(req.Decision)
	if err != nil {
		response.FromError(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}

	values := c.Snapshot().Values
	if req.Inputs != nil {
		values = *req.Inputs
	}
	if err := c.Save(r.Context(), req.Name, values, lifecycle.WithDecision(decision)); err != nil {
		writeOpError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c.Snapshot())
}

// Switch moves the session to another preset.
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}
	decision, err := lifecycle.ParseDecision(req.Decision)
	if err != nil {
		response.FromError(w, core.WrapError(core.ErrInvalidRequest, err))
		return
	}

	if _, err := c.Switch(r.Context(), req.Name, lifecycle.WithDecision(decision)); err != nil {
		writeOpError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c.Snapshot())
}

// Delete removes a preset and its drafts.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.session(w, r)
	if !ok {
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		response.FromError(w, err)
		return
	}

	if err := c.Delete(r.Context(), req.Name); err != nil {
		writeOpError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c.Snapshot())
}
