package ensemble

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/provider"
)

// Sentinel errors for aggregate call failures.
var (
	ErrEnsembleExhausted = eris.New("ensemble: all provider calls failed")
	ErrFallbackExhausted = eris.New("ensemble: fallback chain exhausted")
)

// Result aggregates the outcome of one ensemble-policy call.
type Result struct {
	// Results holds the successful provider results, in model order.
	Results []provider.Result `json:"results"`
	// Failures holds failed calls, retained as diagnostics only. They do
	// not contribute to Consensus, TotalCostUSD, or Duration.
	Failures []provider.Result `json:"failures,omitempty"`
	// Consensus is the arithmetic mean of successful confidences.
	Consensus float64 `json:"consensus"`
	// TotalCostUSD sums billable cost over successful calls.
	TotalCostUSD float64 `json:"total_cost_usd"`
	// Duration is the slowest successful call (calls run in parallel).
	Duration time.Duration `json:"duration"`
	// ModelsUsed names the models that contributed to the consensus.
	ModelsUsed []string `json:"models_used"`
}

// FallbackResult is the outcome of one fallback-policy call.
type FallbackResult struct {
	provider.Result
	// ModelUsed names the chain entry that produced the result.
	ModelUsed string `json:"model_used"`
	// Attempts holds the failed attempts that preceded the success.
	Attempts []provider.Result `json:"attempts,omitempty"`
	// CostUSD is the billable cost of the winning call.
	CostUSD float64 `json:"cost_usd"`
	// TotalDuration sums wall time across all attempts (sequential chain).
	TotalDuration time.Duration `json:"total_duration"`
}

// ExhaustedError reports that every constituent call of an aggregate failed.
// It unwraps to ErrEnsembleExhausted or ErrFallbackExhausted and carries the
// failed attempts so callers can surface per-model diagnostics.
type ExhaustedError struct {
	Policy   string
	Attempts []provider.Result
	sentinel error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%s: %d attempts failed", e.Policy, len(e.Attempts))
	if n := len(e.Attempts); n > 0 {
		last := e.Attempts[n-1]
		msg += fmt.Sprintf(" (last: %s %s: %s)", last.Model, last.ErrKind, last.Err)
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error {
	return e.sentinel
}

func newEnsembleExhausted(attempts []provider.Result) *ExhaustedError {
	return &ExhaustedError{Policy: "ensemble", Attempts: attempts, sentinel: ErrEnsembleExhausted}
}

func newFallbackExhausted(attempts []provider.Result) *ExhaustedError {
	return &ExhaustedError{Policy: "fallback", Attempts: attempts, sentinel: ErrFallbackExhausted}
}
