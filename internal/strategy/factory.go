package strategy

import (
	"errors"
	"fmt"
	"sort"
)

// Registry names.
const (
	NameEMACrossover = "ema_crossover"
	NameEMAVWAP      = "ema_vwap"
	NamePullbackEMA  = "pullback_ema"
	NameVWAP         = "vwap"
	NameRSI          = "rsi"
	NameBollinger    = "bollinger"
	NameBollingerRSI = "bollinger_rsi"
	NameLiquidity    = "liquidity"
	NameOrderFlow    = "order_flow"
	NameBreakout     = "breakout"
)

// ErrUnknownStrategy is returned for names missing from the registry.
var ErrUnknownStrategy = errors.New("unknown sub-strategy")

var constructors = map[string]func() SubStrategy{
	NameEMACrossover: func() SubStrategy { return NewEMACrossover() },
	NameEMAVWAP:      func() SubStrategy { return NewEMAVWAP() },
	NamePullbackEMA:  func() SubStrategy { return NewPullbackEMA() },
	NameVWAP:         func() SubStrategy { return NewVWAPReversion() },
	NameRSI:          func() SubStrategy { return NewRSIReversion() },
	NameBollinger:    func() SubStrategy { return NewBollingerReversion() },
	NameBollingerRSI: func() SubStrategy { return NewBollingerRSI() },
	NameLiquidity:    func() SubStrategy { return NewLiquiditySweep() },
	NameOrderFlow:    func() SubStrategy { return NewOrderFlow() },
	NameBreakout:     func() SubStrategy { return NewBreakout() },
}

// FromName creates a sub-strategy with default parameters.
func FromName(name string) (SubStrategy, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return ctor(), nil
}

// Names returns all registered names, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry creates every sub-strategy keyed by name.
func Registry() map[string]SubStrategy {
	out := make(map[string]SubStrategy, len(constructors))
	for n, ctor := range constructors {
		out[n] = ctor()
	}
	return out
}
