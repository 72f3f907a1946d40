// Package investigation composes orchestrator calls per artifact into a
// final fraud report, tracks in-flight investigations, and hands finished
// results to the persistence collaborator.
package investigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scamlens/scamlens/internal/cost"
	"github.com/scamlens/scamlens/internal/ensemble"
	"github.com/scamlens/scamlens/internal/model"
	"github.com/scamlens/scamlens/internal/provider"
	"github.com/scamlens/scamlens/internal/registry"
)

// ErrInvestigationFailed is the sentinel for a fully exhausted investigation.
var ErrInvestigationFailed = eris.New("investigation: failed")

// FailedError carries per-artifact diagnostics when an investigation
// exhausts every provider call. Reporting which models were attempted and
// why each failed is part of the contract.
type FailedError struct {
	ID          string                     `json:"id"`
	Diagnostics []model.ArtifactDiagnostic `json:"diagnostics"`
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("investigation %s failed: %d artifacts exhausted", e.ID, len(e.Diagnostics))
}

func (e *FailedError) Unwrap() error {
	return ErrInvestigationFailed
}

// Persister is the narrow contract the engine needs from the persistence
// collaborator. A nil Persister disables persistence (one-shot CLI runs).
type Persister interface {
	SaveInvestigation(ctx context.Context, req model.InvestigationRequest, result *model.InvestigationResult) error
	RecordDebit(ctx context.Context, entry model.LedgerEntry) error
}

// StatusInfo is the non-blocking view of an in-flight investigation.
type StatusInfo struct {
	ID        string                    `json:"id"`
	Status    model.InvestigationStatus `json:"status"`
	Tier      model.Tier                `json:"tier"`
	Type      model.InvestigationType   `json:"type"`
	StartedAt time.Time                 `json:"started_at"`
}

// Engine conducts investigations. The in-flight map is its only mutable
// shared state and is guarded for concurrent submits and status polls.
type Engine struct {
	orch       *ensemble.Orchestrator
	registry   *registry.Registry
	costCalc   *cost.Calculator
	store      Persister
	thresholds []ThreatThreshold

	mu       sync.RWMutex
	inflight map[string]StatusInfo
}

// NewEngine creates an Engine with the default threshold table.
func NewEngine(orch *ensemble.Orchestrator, reg *registry.Registry, calc *cost.Calculator, store Persister) *Engine {
	return &Engine{
		orch:       orch,
		registry:   reg,
		costCalc:   calc,
		store:      store,
		thresholds: DefaultThresholds,
		inflight:   make(map[string]StatusInfo),
	}
}

// WithThresholds overrides the threat classification table.
func (e *Engine) WithThresholds(table []ThreatThreshold) *Engine {
	e.thresholds = table
	return e
}

// Conduct runs one investigation to completion. The id is tracked in the
// in-flight map for the duration of the call and removed before returning,
// whether the investigation succeeds or fails.
func (e *Engine) Conduct(ctx context.Context, req model.InvestigationRequest) (*model.InvestigationResult, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	if err := e.track(req); err != nil {
		return nil, err
	}
	defer e.untrack(req.ID)

	log := zap.L().With(
		zap.String("investigation", req.ID),
		zap.String("tier", string(req.Tier)),
		zap.String("type", string(req.Type)),
	)
	log.Info("investigation: starting", zap.Int("artifacts", len(req.Artifacts)))

	e.setStatus(req.ID, model.StatusAnalyzing)

	var result *model.InvestigationResult
	var err error
	switch req.Type {
	case model.TypeQuickScan:
		result, err = e.quickScan(ctx, req)
	default:
		result, err = e.multiPass(ctx, req)
	}
	if err != nil {
		log.Error("investigation: failed", zap.Error(err))
		return nil, err
	}

	e.persist(ctx, req, result)
	log.Info("investigation: complete",
		zap.String("threat_level", string(result.ThreatLevel)),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("cost_usd", result.CostUSD),
	)
	return result, nil
}

// Status returns the in-flight view of an investigation. It consults only
// the in-flight map; completed investigations report not-found here and are
// the persistence collaborator's to serve.
func (e *Engine) Status(id string) (StatusInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.inflight[id]
	return info, ok
}

// InFlightCount returns the number of investigations currently executing.
func (e *Engine) InFlightCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.inflight)
}

// ModelSummary is the registry projection for pricing and tier pages.
type ModelSummary struct {
	Name         string   `json:"name"`
	Family       string   `json:"family"`
	Capabilities []string `json:"capabilities"`
	CostPerToken float64  `json:"cost_per_token"`
	MaxTokens    int      `json:"max_tokens"`
}

// ListModels returns the models a tier may invoke.
func (e *Engine) ListModels(tier model.Tier) ([]ModelSummary, error) {
	names, err := e.registry.AvailableFor(tier)
	if err != nil {
		return nil, err
	}
	out := make([]ModelSummary, 0, len(names))
	for _, name := range names {
		cfg, err := e.registry.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelSummary{
			Name:         cfg.Name,
			Family:       string(cfg.Family),
			Capabilities: cfg.Capabilities,
			CostPerToken: cfg.CostPerToken,
			MaxTokens:    cfg.MaxTokens,
		})
	}
	return out, nil
}

// QuoteCost pre-quotes the cost of a token count against a model, for
// billing collaborators.
func (e *Engine) QuoteCost(modelName string, tokens int) (float64, error) {
	return e.costCalc.Cost(modelName, tokens)
}

// quickScan runs a single fallback call on the tier's cheapest chain.
func (e *Engine) quickScan(ctx context.Context, req model.InvestigationRequest) (*model.InvestigationResult, error) {
	chain, err := e.registry.CheapestChain(req.Tier)
	if err != nil {
		return nil, err
	}

	art := req.Artifacts[0]
	fb, err := e.orch.Fallback(ctx, chain, artifactPrompt(req, art), ensemble.CallOptions{})
	if err != nil {
		var exhausted *ensemble.ExhaustedError
		if eris.As(err, &exhausted) {
			return nil, &FailedError{
				ID:          req.ID,
				Diagnostics: []model.ArtifactDiagnostic{{Artifact: art, Attempts: attemptDiagnostics(exhausted.Attempts)}},
			}
		}
		return nil, err
	}

	level := ClassifyThreat(fb.Confidence, e.thresholds)
	return e.finalize(req, &model.InvestigationResult{
		ThreatLevel: level,
		Confidence:  fb.Confidence,
		Summary:     fmt.Sprintf("Quick scan of 1 artifact: %s threat (confidence %.2f)", level, fb.Confidence),
		Findings: []model.Finding{{
			Artifact:   art,
			Confidence: fb.Confidence,
			Analysis:   fb.Content,
			ModelsUsed: []string{fb.ModelUsed},
		}},
		Evidence:   fb.Content,
		ModelsUsed: []string{fb.ModelUsed},
		CostUSD:    fb.CostUSD,
		Duration:   fb.TotalDuration.Seconds(),
	}), nil
}

// multiPass runs an ensemble per artifact, folds the per-artifact consensus
// scores through the threshold table, and for deep analysis adds a synthesis
// pass over the findings.
func (e *Engine) multiPass(ctx context.Context, req model.InvestigationRequest) (*model.InvestigationResult, error) {
	var (
		findings    []model.Finding
		diagnostics []model.ArtifactDiagnostic
		modelsUsed  = map[string]bool{}
		totalCost   float64
		totalTime   time.Duration
		sumScore    float64
	)

	for _, art := range req.Artifacts {
		agg, err := e.orch.Ensemble(ctx, req.Tier, artifactPrompt(req, art), ensemble.CallOptions{})
		if err != nil {
			var exhausted *ensemble.ExhaustedError
			if !eris.As(err, &exhausted) {
				// Registry misconfiguration surfaces immediately.
				return nil, err
			}
			diagnostics = append(diagnostics, model.ArtifactDiagnostic{Artifact: art, Attempts: attemptDiagnostics(exhausted.Attempts)})
			continue
		}

		findings = append(findings, model.Finding{
			Artifact:   art,
			Confidence: agg.Consensus,
			Analysis:   summarizeResults(agg.Results),
			ModelsUsed: agg.ModelsUsed,
		})
		for _, m := range agg.ModelsUsed {
			modelsUsed[m] = true
		}
		totalCost += agg.TotalCostUSD
		totalTime += agg.Duration
		sumScore += agg.Consensus
	}

	if len(findings) == 0 {
		return nil, &FailedError{ID: req.ID, Diagnostics: diagnostics}
	}

	confidence := sumScore / float64(len(findings))
	level := ClassifyThreat(confidence, e.thresholds)
	summary := fmt.Sprintf("Analyzed %d of %d artifacts: %s threat (consensus %.2f)",
		len(findings), len(req.Artifacts), level, confidence)
	evidence := ""

	if req.Type == model.TypeDeepAnalysis {
		if synth := e.synthesize(ctx, req, findings); synth != nil {
			summary = synth.Content
			evidence = synth.Content
			modelsUsed[synth.ModelUsed] = true
			totalCost += synth.CostUSD
			totalTime += synth.TotalDuration
		}
	}

	names := make([]string, 0, len(modelsUsed))
	for m := range modelsUsed {
		names = append(names, m)
	}

	return e.finalize(req, &model.InvestigationResult{
		ThreatLevel: level,
		Confidence:  confidence,
		Summary:     summary,
		Findings:    findings,
		Diagnostics: diagnostics,
		Evidence:    evidence,
		ModelsUsed:  names,
		CostUSD:     totalCost,
		Duration:    totalTime.Seconds(),
	}), nil
}

// attemptDiagnostics flattens provider attempts into the report form, keeping
// the model name and failure classification for each call.
func attemptDiagnostics(attempts []provider.Result) []model.ModelAttempt {
	out := make([]model.ModelAttempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, model.ModelAttempt{
			Model:   a.Model,
			ErrKind: string(a.ErrKind),
			Err:     a.Err,
		})
	}
	return out
}

// synthesize runs the deep-analysis second pass. Synthesis failure is
// non-fatal: the per-artifact verdict stands on its own.
func (e *Engine) synthesize(ctx context.Context, req model.InvestigationRequest, findings []model.Finding) *ensemble.FallbackResult {
	chain, err := e.registry.CheapestChain(req.Tier)
	if err != nil {
		return nil
	}
	// Most capable model first for synthesis.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	fb, err := e.orch.Fallback(ctx, chain, synthesisPrompt(req, findings), ensemble.CallOptions{})
	if err != nil {
		zap.L().Warn("investigation: synthesis pass failed",
			zap.String("investigation", req.ID),
			zap.Error(err),
		)
		return nil
	}
	return fb
}

func (e *Engine) finalize(req model.InvestigationRequest, result *model.InvestigationResult) *model.InvestigationResult {
	result.ID = req.ID
	result.UserID = req.UserID
	result.Recommendations = recommendationsFor(result.ThreatLevel)
	result.CompletedAt = time.Now().UTC()
	return result
}

// persist hands the finished result to the collaborator. Persistence errors
// are logged, not returned: the verdict is already final.
func (e *Engine) persist(ctx context.Context, req model.InvestigationRequest, result *model.InvestigationResult) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveInvestigation(ctx, req, result); err != nil {
		zap.L().Error("investigation: persist failed",
			zap.String("investigation", req.ID),
			zap.Error(err),
		)
	}
	if result.CostUSD > 0 {
		entry := model.LedgerEntry{
			ID:              uuid.New().String(),
			UserID:          req.UserID,
			InvestigationID: req.ID,
			DeltaUSD:        -result.CostUSD,
			Reason:          "investigation " + string(req.Type),
			CreatedAt:       time.Now().UTC(),
		}
		if err := e.store.RecordDebit(ctx, entry); err != nil {
			zap.L().Error("investigation: ledger debit failed",
				zap.String("investigation", req.ID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) track(req model.InvestigationRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.inflight[req.ID]; exists {
		return eris.Errorf("investigation: id %s already in flight", req.ID)
	}
	e.inflight[req.ID] = StatusInfo{
		ID:        req.ID,
		Status:    model.StatusQueued,
		Tier:      req.Tier,
		Type:      req.Type,
		StartedAt: time.Now().UTC(),
	}
	return nil
}

func (e *Engine) setStatus(id string, status model.InvestigationStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if info, ok := e.inflight[id]; ok {
		info.Status = status
		e.inflight[id] = info
	}
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

func validate(req *model.InvestigationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if !req.Tier.Valid() {
		return eris.Errorf("investigation: unknown tier %q", req.Tier)
	}
	if !req.Type.Valid() {
		return eris.Errorf("investigation: unknown type %q", req.Type)
	}
	if len(req.Artifacts) == 0 {
		return eris.New("investigation: at least one artifact is required")
	}
	for _, a := range req.Artifacts {
		if !a.Type.Valid() {
			return eris.Errorf("investigation: unknown artifact type %q", a.Type)
		}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	return nil
}

// summarizeResults joins constituent analyses for a finding. The individual
// provider results are discarded after aggregation.
func summarizeResults(results []provider.Result) string {
	if len(results) == 0 {
		return ""
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best.Content
}
