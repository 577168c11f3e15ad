package backtest

import (
	"encoding/json"
	"time"
)

// Request is the body sent to the execution engine.
type Request struct {
	Path   string         `json:"path"`
	Inputs map[string]any `json:"inputs"`
}

// Result holds what the engine returned for one run
type Result struct {
	StrategyPath string          `json:"strategy_path"`
	Inputs       map[string]any  `json:"inputs"`
	Trades       []Trade         `json:"trades,omitempty"`
	Stats        Stats           `json:"stats"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     time.Duration   `json:"duration"`
}

// Trade represents a simulated trade from entry to exit
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   *time.Time `json:"exit_time,omitempty"` // nil if position still open
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	Return     float64    `json:"return"` // Fractional return, 0.05 = 5%
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`     // Percentage of profitable trades
	TotalReturn   float64 `json:"total_return"` // Net return percentage
	MaxDrawdown   float64 `json:"max_drawdown"` // Largest peak-to-trough decline
	SharpeRatio   float64 `json:"sharpe_ratio"` // Risk-adjusted return (annualized)
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return t.ExitTime != nil
}
