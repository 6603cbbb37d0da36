package backtest

import (
	"errors"
	"fmt"

	"scalping-backtest-lab/internal/sizing"
)

// ErrorKind classifies run and bar-level failures.
type ErrorKind string

// Error kinds. Only InsufficientHistory and DataSynchronization abort a run.
const (
	KindInsufficientHistory   ErrorKind = "InsufficientHistory"
	KindDataSynchronization   ErrorKind = "DataSynchronizationError"
	KindInvalidTradeSetup     ErrorKind = "InvalidTradeSetup"
	KindSizeRejected          ErrorKind = "SizeRejected"
	KindDrawdownLimitBreached ErrorKind = "DrawdownLimitBreached"
	KindUnexpectedComputation ErrorKind = "UnexpectedComputationError"
	KindCircuitBreaker        ErrorKind = "CircuitBreakerTripped"
)

// Sentinel errors, one per kind.
var (
	ErrInsufficientHistory   = errors.New("insufficient history")
	ErrDataSynchronization   = errors.New("data synchronization failed")
	ErrInvalidTradeSetup     = errors.New("invalid trade setup")
	ErrSizeRejected          = sizing.ErrSizeRejected
	ErrDrawdownLimitBreached = errors.New("drawdown limit breached")
	ErrUnexpectedComputation = errors.New("unexpected computation error")
	ErrCircuitBreaker        = errors.New("circuit breaker tripped")
)

var sentinels = map[ErrorKind]error{
	KindInsufficientHistory:   ErrInsufficientHistory,
	KindDataSynchronization:   ErrDataSynchronization,
	KindInvalidTradeSetup:     ErrInvalidTradeSetup,
	KindSizeRejected:          ErrSizeRejected,
	KindDrawdownLimitBreached: ErrDrawdownLimitBreached,
	KindUnexpectedComputation: ErrUnexpectedComputation,
	KindCircuitBreaker:        ErrCircuitBreaker,
}

// Sentinel returns the sentinel error of k, nil if unknown.
func (k ErrorKind) Sentinel() error {
	return sentinels[k]
}

// RunError is a top-level run failure. errors.Is matches the kind's
// sentinel and the underlying cause.
type RunError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func runError(kind ErrorKind, err error, format string, args ...any) *RunError {
	return &RunError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
