// internal/api/handler/api/request.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/newthinker/presetd/internal/api/response"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/lifecycle"
)

const maxBodyBytes = 1 << 20

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return core.WrapError(core.ErrInvalidRequest, err)
	}
	return nil
}

// writeOpError answers a failed lifecycle call. Confirmation failures carry
// the request the client must answer.
func writeOpError(w http.ResponseWriter, err error) {
	var ce *lifecycle.ConfirmationError
	if errors.As(err, &ce) {
		response.ErrorWithDetails(w, http.StatusConflict, err, ce.Request)
		return
	}
	response.FromError(w, err)
}

// writeJSON writes v without the response envelope.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
