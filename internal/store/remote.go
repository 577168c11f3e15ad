package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

// Protocol endpoints served by a preset persistence service.
const (
	ListPath   = "/api/presets/list"
	LoadPath   = "/api/presets/load"
	SavePath   = "/api/presets/save"
	DeletePath = "/api/presets/delete"
)

// NotFoundMessage is the error text a persistence service returns for a
// missing record.
const NotFoundMessage = "Preset not found"

// ProtocolRequest is the JSON body of every persistence call.
type ProtocolRequest struct {
	PresetPath string             `json:"presetPath"`
	PresetName string             `json:"presetName,omitempty"`
	Inputs     *core.ParameterSet `json:"inputs,omitempty"`
}

// ProtocolResponse is the JSON reply of every persistence call.
type ProtocolResponse struct {
	Success bool               `json:"success"`
	Presets []string           `json:"presets,omitempty"`
	Inputs  *core.ParameterSet `json:"inputs,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// RemoteStore talks to a persistence service over HTTP.
type RemoteStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteStore creates a client for the service at baseURL.
func NewRemoteStore(baseURL, apiKey string, timeout time.Duration) *RemoteStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *RemoteStore) List(ctx context.Context, presetPath string) ([]string, error) {
	resp, err := r.post(ctx, ListPath, ProtocolRequest{PresetPath: presetPath})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("remote: list %s: %s", presetPath, resp.Error)
	}
	if resp.Presets == nil {
		return []string{}, nil
	}
	return resp.Presets, nil
}

func (r *RemoteStore) Load(ctx context.Context, presetPath, presetName string) (core.ParameterSet, error) {
	resp, err := r.post(ctx, LoadPath, ProtocolRequest{PresetPath: presetPath, PresetName: presetName})
	if err != nil {
		return core.ParameterSet{}, err
	}
	if !resp.Success {
		if resp.Error == NotFoundMessage {
			return core.ParameterSet{}, notFound(presetPath, presetName)
		}
		return core.ParameterSet{}, fmt.Errorf("remote: load %s/%s: %s", presetPath, presetName, resp.Error)
	}
	if resp.Inputs == nil {
		return core.ParameterSet{}, nil
	}
	return *resp.Inputs, nil
}

func (r *RemoteStore) Save(ctx context.Context, presetPath, presetName string, ps core.ParameterSet) error {
	resp, err := r.post(ctx, SavePath, ProtocolRequest{PresetPath: presetPath, PresetName: presetName, Inputs: &ps})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("remote: save %s/%s: %s", presetPath, presetName, resp.Error)
	}
	return nil
}

// Delete treats a "not found" reply as success.
func (r *RemoteStore) Delete(ctx context.Context, presetPath, presetName string) error {
	resp, err := r.post(ctx, DeletePath, ProtocolRequest{PresetPath: presetPath, PresetName: presetName})
	if err != nil {
		return err
	}
	if !resp.Success && resp.Error != NotFoundMessage {
		return fmt.Errorf("remote: delete %s/%s: %s", presetPath, presetName, resp.Error)
	}
	return nil
}

func (r *RemoteStore) post(ctx context.Context, endpoint string, body ProtocolRequest) (*ProtocolResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: request failed: %w", err)
	}
	defer resp.Body.Close()

	var out ProtocolResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("remote: server returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("remote: failed to decode response: %w", err)
	}
	if resp.StatusCode >= 500 && out.Error == "" {
		return nil, fmt.Errorf("remote: server returned %d", resp.StatusCode)
	}
	return &out, nil
}
