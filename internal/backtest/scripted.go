package backtest

import (
	"sync"

	"scalping-backtest-lab/internal/domain"
)

// ScriptedSignals replays signals keyed by the timestamp of the latest fast
// bar. Bars without an entry produce no signal. Useful for deterministic runs
// and tests.
type ScriptedSignals struct {
	mu      sync.Mutex
	signals map[int64]domain.Signal
	errs    map[int64]error
	calls   int
}

// NewScriptedSignals creates an empty script.
func NewScriptedSignals() *ScriptedSignals {
	return &ScriptedSignals{
		signals: make(map[int64]domain.Signal),
		errs:    make(map[int64]error),
	}
}

// At schedules sig for the fast bar opening at ts.
func (s *ScriptedSignals) At(ts int64, sig domain.Signal) *ScriptedSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[ts] = sig
	return s
}

// FailAt makes Generate return err for the fast bar opening at ts.
func (s *ScriptedSignals) FailAt(ts int64, err error) *ScriptedSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[ts] = err
	return s
}

// Generate implements SignalSource.
func (s *ScriptedSignals) Generate(fast, _ []domain.Bar, r domain.Regime) (domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(fast) == 0 {
		return domain.Signal{}, nil
	}
	ts := fast[len(fast)-1].TimestampMs
	if err, ok := s.errs[ts]; ok {
		return domain.Signal{}, err
	}
	sig, ok := s.signals[ts]
	if !ok {
		return domain.Signal{Side: domain.SideNone}, nil
	}
	sig.Details.Regime = r
	return sig, nil
}

// Calls returns how many times Generate ran.
func (s *ScriptedSignals) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FixedRegime always reports the same regime, optionally overridden from a
// given fast-bar timestamp onward.
type FixedRegime struct {
	Default   domain.Regime
	overrides []regimeOverride
}

type regimeOverride struct {
	fromMs int64
	regime domain.Regime
}

// From switches to r for every fast bar opening at or after ts.
// Overrides must be added in ascending ts order.
func (f *FixedRegime) From(ts int64, r domain.Regime) *FixedRegime {
	f.overrides = append(f.overrides, regimeOverride{fromMs: ts, regime: r})
	return f
}

// Detect implements RegimeDetector.
func (f *FixedRegime) Detect(fast, _ []domain.Bar) domain.Regime {
	r := f.Default
	if len(fast) == 0 {
		return r
	}
	ts := fast[len(fast)-1].TimestampMs
	for _, o := range f.overrides {
		if ts >= o.fromMs {
			r = o.regime
		}
	}
	return r
}

var (
	_ SignalSource   = (*ScriptedSignals)(nil)
	_ RegimeDetector = (*FixedRegime)(nil)
)
