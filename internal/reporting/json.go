package reporting

import (
	"encoding/json"
	"fmt"

	"scalping-backtest-lab/internal/domain"
)

// ErrorBody is the top-level failure document.
type ErrorBody struct {
	Error string `json:"error"`
}

// RenderJSON encodes a result with its contract field names. Nil slices are
// emitted as empty arrays.
func RenderJSON(res domain.Result) ([]byte, error) {
	if res.Trades == nil {
		res.Trades = []domain.TradeLog{}
	}
	if res.EquityCurve == nil {
		res.EquityCurve = []domain.EquitySample{}
	}
	if res.Errors == nil {
		res.Errors = []domain.ErrorRecord{}
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result %s: %w", res.RunID, err)
	}
	return b, nil
}

// RenderErrorJSON renders err as {"error": "..."}.
func RenderErrorJSON(err error) []byte {
	b, _ := json.Marshal(ErrorBody{Error: err.Error()})
	return b
}
