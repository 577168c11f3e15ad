package backtest

import "math"

// tradingDays annualizes per-trade Sharpe ratios.
const tradingDays = 252

// equityCurve accumulates closed-trade returns in one pass.
type equityCurve struct {
	n        int
	wins     int
	sum      float64
	mean     float64
	m2       float64 // sum of squared deviations (Welford)
	equity   float64
	peak     float64
	drawdown float64
}

func newEquityCurve() *equityCurve {
	return &equityCurve{equity: 1, peak: 1}
}

func (c *equityCurve) add(r float64) {
	c.n++
	if r > 0 {
		c.wins++
	}
	c.sum += r

	delta := r - c.mean
	c.mean += delta / float64(c.n)
	c.m2 += delta * (r - c.mean)

	c.equity *= 1 + r
	c.peak = math.Max(c.peak, c.equity)
	if c.peak > 0 {
		c.drawdown = math.Max(c.drawdown, (c.peak-c.equity)/c.peak)
	}
}

// sharpe is the annualized mean over sample deviation, risk-free rate 0.
func (c *equityCurve) sharpe() float64 {
	if c.n < 2 {
		return 0
	}
	sd := math.Sqrt(c.m2 / float64(c.n-1))
	if sd == 0 {
		return 0
	}
	return c.mean / sd * math.Sqrt(tradingDays)
}

// CalculateStats computes performance statistics from trades. Open trades
// count toward TotalTrades only. Percent fields are scaled to 0-100.
func CalculateStats(trades []Trade) Stats {
	c := newEquityCurve()
	for _, t := range trades {
		if t.IsClosed() {
			c.add(t.Return)
		}
	}

	s := Stats{
		TotalTrades:   len(trades),
		WinningTrades: c.wins,
		LosingTrades:  c.n - c.wins,
		TotalReturn:   c.sum * 100,
		MaxDrawdown:   c.drawdown * 100,
		SharpeRatio:   c.sharpe(),
	}
	if c.n > 0 {
		s.WinRate = float64(c.wins) / float64(c.n) * 100
	}
	return s
}
