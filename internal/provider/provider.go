// Package provider normalizes calls to external model endpoints into a
// common result envelope. Adapters never return errors past this boundary:
// every call yields a well-formed Result the orchestrator can aggregate.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
	"github.com/scamlens/scamlens/pkg/openrouter"
	"github.com/scamlens/scamlens/pkg/perplexity"
)

// ErrKind classifies a failed provider call.
type ErrKind string

const (
	ErrNone        ErrKind = ""
	ErrTimeout     ErrKind = "timeout"
	ErrRateLimited ErrKind = "rate_limited"
	ErrAuth        ErrKind = "auth_failure"
	ErrMalformed   ErrKind = "malformed_response"
	ErrUnknown     ErrKind = "unknown"
)

// Result is the outcome of one call to one model.
type Result struct {
	Model      string        `json:"model"`
	Content    string        `json:"content,omitempty"`
	Confidence float64       `json:"confidence"`
	TokensUsed int           `json:"tokens_used"`
	Duration   time.Duration `json:"duration"`
	OK         bool          `json:"ok"`
	ErrKind    ErrKind       `json:"err_kind,omitempty"`
	Err        string        `json:"err,omitempty"`
}

// Adapter is the uniform call interface to one provider family.
type Adapter interface {
	Family() registry.Family
	Call(ctx context.Context, model registry.ModelConfig, prompt string, timeout time.Duration) Result
}

// Map resolves a model's provider family to its adapter instance.
type Map map[registry.Family]Adapter

// ForModel returns the adapter for a model's family, or false if the family
// has no adapter configured.
func (m Map) ForModel(cfg registry.ModelConfig) (Adapter, bool) {
	a, ok := m[cfg.Family]
	return a, ok
}

// payload is what a family-specific call returns before normalization.
type payload struct {
	content string
	tokens  int
}

// execute wraps a family-specific call with rate limiting, circuit breaking,
// wall-clock timing, per-call timeout, and error classification.
func execute(
	ctx context.Context,
	model registry.ModelConfig,
	timeout time.Duration,
	limiter *rate.Limiter,
	breaker *resilience.CircuitBreaker,
	fn func(ctx context.Context) (payload, error),
) Result {
	start := time.Now()

	fail := func(err error) Result {
		kind := Classify(err)
		zap.L().Debug("provider: call failed",
			zap.String("model", model.Name),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return Result{
			Model:    model.Name,
			Duration: time.Since(start),
			OK:       false,
			ErrKind:  kind,
			Err:      err.Error(),
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var p payload
	call := func(ctx context.Context) error {
		var err error
		p, err = fn(ctx)
		return err
	}

	var err error
	if breaker != nil {
		err = breaker.Execute(callCtx, call)
	} else {
		err = call(callCtx)
	}
	if err != nil {
		return fail(err)
	}

	content, confidence := parseVerdict(p.content)
	return Result{
		Model:      model.Name,
		Content:    content,
		Confidence: confidence,
		TokensUsed: p.tokens,
		Duration:   time.Since(start),
		OK:         true,
	}
}

// Classify maps a raw call error to an ErrKind.
func Classify(err error) ErrKind {
	if err == nil {
		return ErrNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	if code, ok := httpStatus(err); ok {
		switch {
		case code == 429:
			return ErrRateLimited
		case code == 401 || code == 403:
			return ErrAuth
		case code == 408 || code == 504:
			return ErrTimeout
		}
		return ErrUnknown
	}

	if errors.Is(err, errEmptyCompletion) {
		return ErrMalformed
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrMalformed
	}
	if strings.Contains(err.Error(), "unmarshal response") {
		return ErrMalformed
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrUnknown
}

// httpStatus extracts an HTTP status code from the pkg clients' error types.
func httpStatus(err error) (int, bool) {
	var pplxErr *perplexity.APIError
	if errors.As(err, &pplxErr) {
		return pplxErr.StatusCode, true
	}
	var orErr *openrouter.APIError
	if errors.As(err, &orErr) {
		return orErr.StatusCode, true
	}
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		return sdkErr.StatusCode, true
	}
	return 0, false
}

// verdict is the JSON envelope analysis models are instructed to emit.
type verdict struct {
	Confidence *float64 `json:"confidence"`
	Analysis   string   `json:"analysis"`
}

// parseVerdict extracts a confidence score from model output. Models are
// prompted to respond with a JSON object carrying "confidence" and
// "analysis"; responses that do not parse keep their raw text and fall back
// to a neutral confidence.
func parseVerdict(raw string) (content string, confidence float64) {
	const fallback = 0.5

	text := strings.TrimSpace(raw)
	// Strip a markdown fence if the model wrapped its JSON.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return raw, fallback
	}

	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil || v.Confidence == nil {
		return raw, fallback
	}

	conf := *v.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	if v.Analysis != "" {
		return v.Analysis, conf
	}
	return raw, conf
}
