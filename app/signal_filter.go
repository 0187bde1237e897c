package app

import (
	"fmt"
	"log"
)

// Verdict is one filter's decision. A rejecting verdict always carries a
// non-empty reason.
type Verdict struct {
	Pass   bool
	Reason string
}

func pass() Verdict                { return Verdict{Pass: true} }
func reject(reason string) Verdict { return Verdict{Reason: reason} }

func rejectf(f string, a ...interface{}) Verdict {
	return Verdict{Reason: fmt.Sprintf(f, a...)}
}

// SignalFilter is one predicate in the admission pipeline. Filters are pure
// over the signal plus preloaded caches; no I/O runs here.
type SignalFilter interface {
	Name() string
	Evaluate(s *Signal) Verdict
}

// FilterChain runs the ordered predicates; the first rejection
// short-circuits. Sector concentration and market regime complete the
// admission contract but run inside the position manager, where live
// account and market state is available.
type FilterChain struct {
	filters []SignalFilter
}

// NewFilterChain builds the chain in its fixed order.
func NewFilterChain(ref *RefDataHandle, regime *RegimeMonitor, minScore int, minNotional float64) *FilterChain {
	return &FilterChain{
		filters: []SignalFilter{
			&ETFFilter{ref: ref},
			&ScoreFilter{min: minScore},
			&TrendSMA20Filter{},
			&RSIFilter{regime: regime},
			&SMA50Filter{},
			&NotionalFilter{min: minNotional},
			&CrowdedFilter{ref: ref},
			&EarningsFilter{ref: ref},
		},
	}
}

// Evaluate runs the chain and returns (passed, rejectionReason).
func (c *FilterChain) Evaluate(s *Signal) (bool, string) {
	for _, f := range c.filters {
		if v := f.Evaluate(s); !v.Pass {
			log.Printf("🚫 %s rejected by %s: %s", s.Symbol, f.Name(), v.Reason)
			return false, v.Reason
		}
	}
	return true, ""
}

// ETFFilter rejects index and leveraged ETFs.
type ETFFilter struct{ ref *RefDataHandle }

func (f *ETFFilter) Name() string { return "ETF Exclusion" }

func (f *ETFFilter) Evaluate(s *Signal) Verdict {
	if f.ref.Current().IsETF(s.Symbol) {
		return reject("etf_excluded")
	}
	return pass()
}

// ScoreFilter requires the minimum total score.
type ScoreFilter struct{ min int }

func (f *ScoreFilter) Name() string { return "Score" }

func (f *ScoreFilter) Evaluate(s *Signal) Verdict {
	if s.Score < f.min {
		return rejectf("score<%d", f.min)
	}
	return pass()
}

// TrendSMA20Filter requires a spot price above the 20-day moving average.
// Missing price or missing TA reject with their own reasons.
type TrendSMA20Filter struct{}

func (f *TrendSMA20Filter) Name() string { return "Trend SMA20" }

func (f *TrendSMA20Filter) Evaluate(s *Signal) Verdict {
	if s.SpotPrice <= 0 {
		return reject("no_price")
	}
	if s.SMA20 == nil {
		return reject("no_ta")
	}
	if s.SpotPrice <= *s.SMA20 {
		return reject("below_sma20")
	}
	return pass()
}

// RSIFilter rejects overbought entries. The threshold is 50 on a normal
// day and 60 on a bounce day; the boundary itself rejects.
type RSIFilter struct{ regime *RegimeMonitor }

func (f *RSIFilter) Name() string { return "RSI" }

func (f *RSIFilter) Evaluate(s *Signal) Verdict {
	if s.RSI14 == nil {
		return reject("no_ta")
	}
	threshold := f.regime.EffectiveRSIThreshold()
	if *s.RSI14 >= threshold {
		return reject("rsi_high")
	}
	return pass()
}

// SMA50Filter requires spot above the 50-day moving average.
type SMA50Filter struct{}

func (f *SMA50Filter) Name() string { return "SMA50 Momentum" }

func (f *SMA50Filter) Evaluate(s *Signal) Verdict {
	if s.SMA50 == nil {
		return reject("no_ta")
	}
	if s.SpotPrice <= *s.SMA50 {
		return reject("below_sma50")
	}
	return pass()
}

// NotionalFilter requires the window notional minimum.
type NotionalFilter struct{ min float64 }

func (f *NotionalFilter) Name() string { return "Notional Minimum" }

func (f *NotionalFilter) Evaluate(s *Signal) Verdict {
	if s.Stats.NotionalTotal < f.min {
		return reject("notional_low")
	}
	return pass()
}

// CrowdedFilter rejects names already saturated in the media: five or more
// mentions, or negative sentiment. Missing media data passes.
type CrowdedFilter struct{ ref *RefDataHandle }

func (f *CrowdedFilter) Name() string { return "Crowded Trade" }

func (f *CrowdedFilter) Evaluate(s *Signal) Verdict {
	m, ok := f.ref.Current().Media(s.Symbol)
	if !ok {
		return pass()
	}
	if m.Mentions >= 5 || m.Sentiment < 0 {
		return reject("crowded")
	}
	return pass()
}

// EarningsFilter rejects symbols with an earnings event within two calendar
// days in either direction.
type EarningsFilter struct{ ref *RefDataHandle }

func (f *EarningsFilter) Name() string { return "Earnings Proximity" }

func (f *EarningsFilter) Evaluate(s *Signal) Verdict {
	if f.ref.Current().HasEarningsWithin(s.Symbol, s.At, 2) {
		return reject("earnings_window")
	}
	return pass()
}
