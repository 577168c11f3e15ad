// internal/api/handler/api/presets.go
package api

import (
	"errors"
	"net/http"

	"github.com/newthinker/presetd/internal/api/response"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/naming"
	"github.com/newthinker/presetd/internal/store"
	"go.uber.org/zap"
)

// PresetHandler serves the persistence protocol, so one presetd can act as
// another's remote store.
type PresetHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewPresetHandler creates a new preset handler.
func NewPresetHandler(st store.Store, logger *zap.Logger) *PresetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresetHandler{store: st, logger: logger}
}

func (h *PresetHandler) reply(w http.ResponseWriter, status int, resp store.ProtocolResponse) {
	writeJSON(w, status, resp)
}

func (h *PresetHandler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, core.ErrPresetNotFound) {
		h.reply(w, http.StatusNotFound, store.ProtocolResponse{Error: store.NotFoundMessage})
		return
	}
	status := response.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("preset protocol call failed", zap.String("op", op), zap.Error(err))
	}
	h.reply(w, status, store.ProtocolResponse{Error: err.Error()})
}

func (h *PresetHandler) request(w http.ResponseWriter, r *http.Request, needName bool) (store.ProtocolRequest, bool) {
	var req store.ProtocolRequest
	if err := decode(r, &req); err != nil {
		h.reply(w, http.StatusBadRequest, store.ProtocolResponse{Error: err.Error()})
		return req, false
	}
	if req.PresetPath == "" || (needName && req.PresetName == "") {
		h.reply(w, http.StatusBadRequest, store.ProtocolResponse{Error: "presetPath and presetName are required"})
		return req, false
	}
	return req, true
}

// List returns every name in the namespace, drafts included.
func (h *PresetHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(w, r, false)
	if !ok {
		return
	}
	names, err := h.store.List(r.Context(), req.PresetPath)
	if err != nil {
		h.fail(w, "list", err)
		return
	}
	h.reply(w, http.StatusOK, store.ProtocolResponse{Success: true, Presets: names})
}

// Load returns one record.
func (h *PresetHandler) Load(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(w, r, true)
	if !ok {
		return
	}
	ps, err := h.store.Load(r.Context(), req.PresetPath, req.PresetName)
	if err != nil {
		h.fail(w, "load", err)
		return
	}
	h.reply(w, http.StatusOK, store.ProtocolResponse{Success: true, Inputs: &ps})
}

// Save creates or replaces one record.
func (h *PresetHandler) Save(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(w, r, true)
	if !ok {
		return
	}
	if req.Inputs == nil {
		h.reply(w, http.StatusBadRequest, store.ProtocolResponse{Error: "inputs are required"})
		return
	}
	if err := h.store.Save(r.Context(), req.PresetPath, req.PresetName, *req.Inputs); err != nil {
		h.fail(w, "save", err)
		return
	}
	h.reply(w, http.StatusOK, store.ProtocolResponse{Success: true})
}

// Delete removes one record. Absent records succeed.
func (h *PresetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.request(w, r, true)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), req.PresetPath, req.PresetName); err != nil && !errors.Is(err, core.ErrPresetNotFound) {
		h.fail(w, "delete", err)
		return
	}
	h.reply(w, http.StatusOK, store.ProtocolResponse{Success: true})
}

// Visible lists the user-visible base names of ?path=.
func (h *PresetHandler) Visible(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		response.FromError(w, core.WrapError(core.ErrInvalidRequest, errors.New("path query parameter is required")))
		return
	}
	names, err := h.store.List(r.Context(), path)
	if err != nil {
		response.FromError(w, core.WrapError(core.ErrNetwork, err))
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"presetPath": path,
		"presets":    naming.Visible(names),
	})
}
