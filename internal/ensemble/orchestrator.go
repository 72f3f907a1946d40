// Package ensemble drives multi-model provider calls under two policies:
// ensemble (call a model set concurrently and combine by consensus) and
// fallback (walk an ordered chain, first success wins).
package ensemble

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scamlens/scamlens/internal/cost"
	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/provider"
	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
)

const defaultCallTimeout = 90 * time.Second

// Orchestrator resolves eligible models and executes provider calls with
// retry, aggregation, and cost accounting.
type Orchestrator struct {
	registry *registry.Registry
	adapters provider.Map
	costCalc *cost.Calculator
	retry    resilience.RetryConfig
	timeout  time.Duration
}

// New creates an Orchestrator. The retry policy is shared by both the
// ensemble and fallback paths.
func New(reg *registry.Registry, adapters provider.Map, calc *cost.Calculator, retry resilience.RetryConfig) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		adapters: adapters,
		costCalc: calc,
		retry:    retry,
		timeout:  defaultCallTimeout,
	}
}

// WithTimeout overrides the per-call timeout.
func (o *Orchestrator) WithTimeout(d time.Duration) *Orchestrator {
	o.timeout = d
	return o
}

// CallOptions tunes a single orchestrated call.
type CallOptions struct {
	// Models overrides tier-based model resolution when non-empty.
	Models []string
	// Timeout overrides the orchestrator's per-call timeout when positive.
	Timeout time.Duration
}

// Ensemble calls every eligible model for the tier concurrently and combines
// the successful results into a consensus. All calls are awaited (a join, not
// a race); failures are kept as diagnostics but never dilute the consensus.
// Returns an *ExhaustedError wrapping ErrEnsembleExhausted if no call
// succeeds, and registry.ErrNoModelsForTier without issuing any call if the
// tier has no eligible models.
func (o *Orchestrator) Ensemble(ctx context.Context, tier model.Tier, prompt string, opts CallOptions) (*Result, error) {
	names := opts.Models
	if len(names) == 0 {
		var err error
		names, err = o.registry.AvailableFor(tier)
		if err != nil {
			return nil, err
		}
	}

	timeout := o.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	results := make([]provider.Result, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			results[i] = o.callModel(gCtx, name, prompt, timeout)
			return nil
		})
	}
	_ = g.Wait()

	agg := &Result{}
	var sumConfidence float64
	for _, res := range results {
		if !res.OK {
			agg.Failures = append(agg.Failures, res)
			continue
		}
		agg.Results = append(agg.Results, res)
		agg.ModelsUsed = append(agg.ModelsUsed, res.Model)
		sumConfidence += res.Confidence
		if res.Duration > agg.Duration {
			agg.Duration = res.Duration
		}

		callCost, err := o.costCalc.Cost(res.Model, res.TokensUsed)
		if err != nil {
			zap.L().Warn("ensemble: cost lookup failed",
				zap.String("model", res.Model),
				zap.Error(err),
			)
			continue
		}
		agg.TotalCostUSD += callCost
	}

	if len(agg.Results) == 0 {
		return nil, newEnsembleExhausted(agg.Failures)
	}

	agg.Consensus = sumConfidence / float64(len(agg.Results))
	zap.L().Debug("ensemble: batch complete",
		zap.Int("succeeded", len(agg.Results)),
		zap.Int("failed", len(agg.Failures)),
		zap.Float64("consensus", agg.Consensus),
		zap.Float64("cost_usd", agg.TotalCostUSD),
	)
	return agg, nil
}

// Fallback walks the chain strictly in order, retrying each model up to the
// configured attempts, and returns the first success tagged with the model
// that produced it. A chain entry missing from the registry counts as an
// immediate failed attempt for that slot. The chain is walked exactly once;
// exhaustion returns an *ExhaustedError wrapping ErrFallbackExhausted that
// carries every failed attempt.
func (o *Orchestrator) Fallback(ctx context.Context, chain []string, prompt string, opts CallOptions) (*FallbackResult, error) {
	timeout := o.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	var attempts []provider.Result
	var totalDuration time.Duration

	for _, name := range chain {
		res := o.callModel(ctx, name, prompt, timeout)
		totalDuration += res.Duration
		if !res.OK {
			zap.L().Debug("fallback: model failed, trying next",
				zap.String("model", name),
				zap.String("kind", string(res.ErrKind)),
			)
			attempts = append(attempts, res)
			continue
		}

		callCost, err := o.costCalc.Cost(res.Model, res.TokensUsed)
		if err != nil {
			zap.L().Warn("fallback: cost lookup failed",
				zap.String("model", res.Model),
				zap.Error(err),
			)
		}
		return &FallbackResult{
			Result:        res,
			ModelUsed:     name,
			Attempts:      attempts,
			CostUSD:       callCost,
			TotalDuration: totalDuration,
		}, nil
	}

	return nil, newFallbackExhausted(attempts)
}

// callModel executes one model call through the shared retry policy. It
// always returns a well-formed provider.Result; registry misses and missing
// adapters surface as failed results, not errors.
func (o *Orchestrator) callModel(ctx context.Context, name, prompt string, timeout time.Duration) provider.Result {
	cfg, err := o.registry.Get(name)
	if err != nil {
		return provider.Result{
			Model:   name,
			ErrKind: provider.ErrUnknown,
			Err:     err.Error(),
		}
	}

	adapter, ok := o.adapters.ForModel(cfg)
	if !ok {
		return provider.Result{
			Model:   name,
			ErrKind: provider.ErrUnknown,
			Err:     "no adapter configured for family " + string(cfg.Family),
		}
	}

	retryCfg := o.retry
	retryCfg.ShouldRetry = retryableCall
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(string(cfg.Family), name)
	}

	var last provider.Result
	res, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (provider.Result, error) {
		r := adapter.Call(ctx, cfg, prompt, timeout)
		if !r.OK {
			last = r
			return provider.Result{}, &callError{res: r}
		}
		return r, nil
	})
	if err != nil {
		return last
	}
	return res
}

// callError carries a failed provider result through the retry machinery.
type callError struct {
	res provider.Result
}

func (e *callError) Error() string {
	return string(e.res.ErrKind) + ": " + e.res.Err
}

// retryableCall retries transient provider failures. Auth failures and
// malformed responses will not improve on a retry.
func retryableCall(err error) bool {
	ce, ok := err.(*callError)
	if !ok {
		return resilience.IsTransient(err)
	}
	switch ce.res.ErrKind {
	case provider.ErrTimeout, provider.ErrRateLimited, provider.ErrUnknown:
		return true
	default:
		return false
	}
}
