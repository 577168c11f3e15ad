package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

// RunPath is the engine endpoint that executes a strategy.
const RunPath = "/run-strategy"

// metadataKeys never reach the engine.
var metadataKeys = map[string]struct{}{
	core.ActiveKey: {},
	"description":  {},
	"step":         {},
}

// Client submits strategy runs to an external execution engine.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CleanInputs drops metadata keys and unwraps {"value": v} entries so only
// raw name -> scalar pairs remain.
func CleanInputs(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if _, ok := metadataKeys[k]; ok {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			inner, ok := obj["value"]
			if !ok {
				continue
			}
			v = inner
		}
		out[k] = v
	}
	return out
}

// Run executes the strategy at strategyPath with values.
func (c *Client) Run(ctx context.Context, strategyPath string, values map[string]any) (*Result, error) {
	inputs := CleanInputs(values)
	body, err := json.Marshal(Request{Path: strategyPath, Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("backtest: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RunPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backtest: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrBacktestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapError(core.ErrBacktestFailed, err)
	}
	if resp.StatusCode >= 400 {
		return nil, core.WrapError(core.ErrBacktestFailed,
			fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	result := &Result{
		StrategyPath: strategyPath,
		Inputs:       inputs,
		Raw:          json.RawMessage(raw),
		StartedAt:    started,
		Duration:     time.Since(started),
	}

	var decoded struct {
		Trades []Trade `json:"trades"`
		Stats  *Stats  `json:"stats"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil {
		result.Trades = decoded.Trades
		if decoded.Stats != nil {
			result.Stats = *decoded.Stats
		} else {
			result.Stats = CalculateStats(decoded.Trades)
		}
	}
	return result, nil
}
