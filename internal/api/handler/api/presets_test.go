package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/newthinker/presetd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProtocol(t *testing.T, body []byte) store.ProtocolResponse {
	t.Helper()
	var resp store.ProtocolResponse
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp
}

func TestPresetHandler_RoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ps := emaSet(9)

	w := env.do(t, http.MethodPost, store.SavePath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi", Inputs: &ps})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeProtocol(t, w.Body.Bytes()).Success)

	w = env.do(t, http.MethodPost, store.ListPath, store.ProtocolRequest{PresetPath: ns})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"rsi"}, decodeProtocol(t, w.Body.Bytes()).Presets)

	w = env.do(t, http.MethodPost, store.LoadPath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeProtocol(t, w.Body.Bytes())
	require.NotNil(t, resp.Inputs)
	assert.True(t, resp.Inputs.Equal(ps))

	w = env.do(t, http.MethodPost, store.DeletePath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.names(t))
}

func TestPresetHandler_LoadMissing(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, store.LoadPath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeProtocol(t, w.Body.Bytes())
	assert.False(t, resp.Success)
	assert.Equal(t, store.NotFoundMessage, resp.Error)
}

func TestPresetHandler_DeleteMissingSucceeds(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, store.DeletePath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeProtocol(t, w.Body.Bytes()).Success)
}

func TestPresetHandler_RequiresFields(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
		req  store.ProtocolRequest
	}{
		{"list without path", store.ListPath, store.ProtocolRequest{}},
		{"load without name", store.LoadPath, store.ProtocolRequest{PresetPath: ns}},
		{"save without inputs", store.SavePath, store.ProtocolRequest{PresetPath: ns, PresetName: "rsi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decodeProtocol(t, w.Body.Bytes()).Success)
		})
	}
}

func TestPresetHandler_VisibleHidesDrafts(t *testing.T) {
	env := newTestEnv(t, nil, "rsi", "__0__rsi", "__3__macd")

	w := env.do(t, http.MethodGet, "/api/presets/visible?path="+ns, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Presets []string `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	assert.Equal(t, []string{"rsi"}, data.Presets)

	w = env.do(t, http.MethodGet, "/api/presets/visible", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
