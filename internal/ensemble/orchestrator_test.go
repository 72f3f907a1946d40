package ensemble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamlens/scamlens/internal/cost"
	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/provider"
	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
)

// scriptedAdapter returns canned results per model name and counts calls.
type scriptedAdapter struct {
	family  registry.Family
	mu      sync.Mutex
	results map[string][]provider.Result
	calls   map[string]int
}

func newScriptedAdapter(family registry.Family) *scriptedAdapter {
	return &scriptedAdapter{
		family:  family,
		results: make(map[string][]provider.Result),
		calls:   make(map[string]int),
	}
}

// script queues results for a model; the last entry repeats once drained.
func (a *scriptedAdapter) script(name string, results ...provider.Result) {
	a.results[name] = results
}

func (a *scriptedAdapter) Family() registry.Family { return a.family }

func (a *scriptedAdapter) Call(_ context.Context, cfg registry.ModelConfig, _ string, _ time.Duration) provider.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[cfg.Name]++
	queue := a.results[cfg.Name]
	if len(queue) == 0 {
		return provider.Result{Model: cfg.Name, OK: false, ErrKind: provider.ErrUnknown, Err: "unscripted"}
	}
	res := queue[0]
	if len(queue) > 1 {
		a.results[cfg.Name] = queue[1:]
	}
	return res
}

func (a *scriptedAdapter) callCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func ok(name string, confidence float64, tokens int) provider.Result {
	return provider.Result{
		Model:      name,
		Content:    "analysis",
		Confidence: confidence,
		TokensUsed: tokens,
		Duration:   10 * time.Millisecond,
		OK:         true,
	}
}

func failed(name string, kind provider.ErrKind) provider.Result {
	return provider.Result{
		Model:    name,
		Duration: 5 * time.Millisecond,
		OK:       false,
		ErrKind:  kind,
		Err:      string(kind),
	}
}

type testEnv struct {
	reg     *registry.Registry
	adapter *scriptedAdapter
	orch    *Orchestrator
}

func newTestEnv(t *testing.T, names ...string) *testEnv {
	t.Helper()
	reg := registry.New()
	for i, name := range names {
		require.NoError(t, reg.Register(registry.ModelConfig{
			Name:         name,
			Family:       registry.FamilyOpenWeights,
			Tiers:        []model.Tier{model.TierBasic},
			CostPerToken: float64(i+1) * 0.000001,
			MaxTokens:    4096,
		}, false))
	}
	adapter := newScriptedAdapter(registry.FamilyOpenWeights)
	orch := New(reg,
		provider.Map{registry.FamilyOpenWeights: adapter},
		cost.NewCalculator(reg),
		resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	)
	return &testEnv{reg: reg, adapter: adapter, orch: orch}
}

func TestEnsemble_Consensus(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	env.adapter.script("a", ok("a", 0.9, 1000))
	env.adapter.script("b", ok("b", 0.85, 2000))
	env.adapter.script("c", failed("c", provider.ErrTimeout))

	res, err := env.orch.Ensemble(context.Background(), model.TierBasic, "prompt", CallOptions{})
	require.NoError(t, err)

	// Consensus is the mean of successful confidences only.
	assert.InDelta(t, 0.875, res.Consensus, 1e-9)
	assert.Len(t, res.Results, 2)
	assert.Len(t, res.Failures, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, res.ModelsUsed)

	// Cost sums only the successful calls: a = 1000*1e-6, b = 2000*2e-6.
	assert.InDelta(t, 0.001+0.004, res.TotalCostUSD, 1e-12)
}

func TestEnsemble_AllCallsAwaited(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	env.adapter.script("a", ok("a", 0.9, 100))
	env.adapter.script("b", ok("b", 0.8, 100))
	env.adapter.script("c", failed("c", provider.ErrAuth))

	_, err := env.orch.Ensemble(context.Background(), model.TierBasic, "prompt", CallOptions{})
	require.NoError(t, err)

	// A join, not a race: every eligible model was called exactly once.
	assert.Equal(t, 1, env.adapter.callCount("a"))
	assert.Equal(t, 1, env.adapter.callCount("b"))
	assert.Equal(t, 1, env.adapter.callCount("c"))
}

func TestEnsemble_Exhausted(t *testing.T) {
	env := newTestEnv(t, "a", "b")
	env.adapter.script("a", failed("a", provider.ErrTimeout))
	env.adapter.script("b", failed("b", provider.ErrAuth))

	res, err := env.orch.Ensemble(context.Background(), model.TierBasic, "prompt", CallOptions{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEnsembleExhausted))

	var exhausted *ExhaustedError
	require.True(t, eris.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 2)
}

func TestEnsemble_NoModelsForTier(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ModelConfig{
		Name:         "ent-only",
		Family:       registry.FamilyOpenWeights,
		Tiers:        []model.Tier{model.TierEnterprise},
		CostPerToken: 0.000001,
		MaxTokens:    4096,
	}, false))
	adapter := newScriptedAdapter(registry.FamilyOpenWeights)
	orch := New(reg, provider.Map{registry.FamilyOpenWeights: adapter},
		cost.NewCalculator(reg), resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond})

	res, err := orch.Ensemble(context.Background(), model.TierBasic, "prompt", CallOptions{})
	assert.Nil(t, res)
	assert.True(t, eris.Is(err, registry.ErrNoModelsForTier))

	// The error surfaces before any provider call is issued.
	assert.Equal(t, 0, adapter.callCount("ent-only"))
}

func TestEnsemble_ModelOverride(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	env.adapter.script("b", ok("b", 0.7, 100))

	res, err := env.orch.Ensemble(context.Background(), model.TierBasic, "prompt", CallOptions{Models: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.ModelsUsed)
	assert.Equal(t, 0, env.adapter.callCount("a"))
	assert.Equal(t, 0, env.adapter.callCount("c"))
}

func TestFallback_FirstSuccessWins(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	env.adapter.script("a", ok("a", 0.9, 100))
	env.adapter.script("b", ok("b", 0.8, 100))

	res, err := env.orch.Fallback(context.Background(), []string{"a", "b", "c"}, "prompt", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a", res.ModelUsed)
	assert.Empty(t, res.Attempts)

	// Later chain entries are never touched.
	assert.Equal(t, 0, env.adapter.callCount("b"))
	assert.Equal(t, 0, env.adapter.callCount("c"))
}

func TestFallback_WalksChainInOrder(t *testing.T) {
	env := newTestEnv(t, "a", "b", "c")
	env.adapter.script("a", failed("a", provider.ErrAuth))
	env.adapter.script("b", failed("b", provider.ErrMalformed))
	env.adapter.script("c", ok("c", 0.6, 500))

	res, err := env.orch.Fallback(context.Background(), []string{"a", "b", "c"}, "prompt", CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "c", res.ModelUsed)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, "a", res.Attempts[0].Model)
	assert.Equal(t, "b", res.Attempts[1].Model)

	// Winning call cost: 500 tokens at c's 3e-6 per token.
	assert.InDelta(t, 0.0015, res.CostUSD, 1e-12)

	// Sequential chain: total duration sums the failed attempts too.
	assert.Equal(t, 5*time.Millisecond+5*time.Millisecond+10*time.Millisecond, res.TotalDuration)
}

func TestFallback_Exhausted_WalksOnce(t *testing.T) {
	env := newTestEnv(t, "a", "b")
	env.adapter.script("a", failed("a", provider.ErrAuth))
	env.adapter.script("b", failed("b", provider.ErrAuth))

	res, err := env.orch.Fallback(context.Background(), []string{"a", "b"}, "prompt", CallOptions{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrFallbackExhausted))

	var exhausted *ExhaustedError
	require.True(t, eris.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 2)

	// The chain is walked exactly once; no re-loop after exhaustion.
	assert.Equal(t, 1, env.adapter.callCount("a"))
	assert.Equal(t, 1, env.adapter.callCount("b"))
}

func TestFallback_UnknownChainEntry(t *testing.T) {
	env := newTestEnv(t, "a")
	env.adapter.script("a", ok("a", 0.8, 100))

	res, err := env.orch.Fallback(context.Background(), []string{"ghost", "a"}, "prompt", CallOptions{})
	require.NoError(t, err)

	// The unknown entry counts as an immediate failed attempt for its slot.
	assert.Equal(t, "a", res.ModelUsed)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "ghost", res.Attempts[0].Model)
	assert.Equal(t, provider.ErrUnknown, res.Attempts[0].ErrKind)
}

func TestCallModel_RetriesTransient(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ModelConfig{
		Name:         "flaky",
		Family:       registry.FamilyOpenWeights,
		Tiers:        []model.Tier{model.TierBasic},
		CostPerToken: 0.000001,
		MaxTokens:    4096,
	}, false))
	adapter := newScriptedAdapter(registry.FamilyOpenWeights)
	adapter.script("flaky",
		failed("flaky", provider.ErrRateLimited),
		ok("flaky", 0.7, 100),
	)
	orch := New(reg, provider.Map{registry.FamilyOpenWeights: adapter},
		cost.NewCalculator(reg),
		resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	res, err := orch.Fallback(context.Background(), []string{"flaky"}, "prompt", CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "flaky", res.ModelUsed)
	assert.Equal(t, 2, adapter.callCount("flaky"))
}

func TestCallModel_NoRetryOnAuthFailure(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ModelConfig{
		Name:         "locked",
		Family:       registry.FamilyOpenWeights,
		Tiers:        []model.Tier{model.TierBasic},
		CostPerToken: 0.000001,
		MaxTokens:    4096,
	}, false))
	adapter := newScriptedAdapter(registry.FamilyOpenWeights)
	adapter.script("locked", failed("locked", provider.ErrAuth))
	orch := New(reg, provider.Map{registry.FamilyOpenWeights: adapter},
		cost.NewCalculator(reg),
		resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	_, err := orch.Fallback(context.Background(), []string{"locked"}, "prompt", CallOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, adapter.callCount("locked"))
}

func TestCallModel_MissingAdapter(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.ModelConfig{
		Name:         "orphan",
		Family:       registry.FamilySpecialized,
		Tiers:        []model.Tier{model.TierBasic},
		CostPerToken: 0.000001,
		MaxTokens:    4096,
	}, false))
	orch := New(reg, provider.Map{}, cost.NewCalculator(reg),
		resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})

	_, err := orch.Fallback(context.Background(), []string{"orphan"}, "prompt", CallOptions{})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.True(t, eris.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 1)
	assert.Contains(t, exhausted.Attempts[0].Err, "no adapter configured")
}
