package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/pkg/openrouter"
	"github.com/scamlens/scamlens/pkg/perplexity"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{"nil", nil, ErrNone},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), ErrTimeout},
		{"rate limited", &perplexity.APIError{StatusCode: 429, Body: "slow down"}, ErrRateLimited},
		{"unauthorized", &openrouter.APIError{StatusCode: 401, Body: "bad key"}, ErrAuth},
		{"forbidden", &perplexity.APIError{StatusCode: 403, Body: "denied"}, ErrAuth},
		{"gateway timeout", &openrouter.APIError{StatusCode: 504, Body: ""}, ErrTimeout},
		{"server error", &perplexity.APIError{StatusCode: 500, Body: "boom"}, ErrUnknown},
		{"empty completion", errEmptyCompletion, ErrMalformed},
		{"json syntax", &json.SyntaxError{Offset: 3}, ErrMalformed},
		{"opaque", errors.New("connection reset"), ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantConf float64
		wantText string
	}{
		{
			name:     "plain json",
			raw:      `{"confidence": 0.92, "analysis": "phishing kit detected"}`,
			wantConf: 0.92,
			wantText: "phishing kit detected",
		},
		{
			name:     "fenced json",
			raw:      "```json\n{\"confidence\": 0.4, \"analysis\": \"low signal\"}\n```",
			wantConf: 0.4,
			wantText: "low signal",
		},
		{
			name:     "json with preamble",
			raw:      "Here is my assessment:\n{\"confidence\": 0.75, \"analysis\": \"spoofed domain\"}",
			wantConf: 0.75,
			wantText: "spoofed domain",
		},
		{
			name:     "clamped above one",
			raw:      `{"confidence": 1.7, "analysis": "certain"}`,
			wantConf: 1,
			wantText: "certain",
		},
		{
			name:     "clamped below zero",
			raw:      `{"confidence": -0.2, "analysis": "benign"}`,
			wantConf: 0,
			wantText: "benign",
		},
		{
			name:     "no json falls back",
			raw:      "I cannot produce structured output.",
			wantConf: 0.5,
			wantText: "I cannot produce structured output.",
		},
		{
			name:     "missing confidence falls back",
			raw:      `{"analysis": "something"}`,
			wantConf: 0.5,
			wantText: `{"analysis": "something"}`,
		},
		{
			name:     "empty analysis keeps raw",
			raw:      `{"confidence": 0.3}`,
			wantConf: 0.3,
			wantText: `{"confidence": 0.3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, conf := parseVerdict(tt.raw)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
			assert.Equal(t, tt.wantText, content)
		})
	}
}

// fakeOpenRouter implements openrouter.Client for adapter tests.
type fakeOpenRouter struct {
	resp *openrouter.ChatCompletionResponse
	err  error
	reqs []openrouter.ChatCompletionRequest
}

func (f *fakeOpenRouter) ChatCompletion(_ context.Context, req openrouter.ChatCompletionRequest) (*openrouter.ChatCompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func basicModel() registry.ModelConfig {
	return registry.ModelConfig{
		Name:         "llama-3.3-70b-instruct",
		Family:       registry.FamilyOpenWeights,
		CostPerToken: 0.0000004,
		MaxTokens:    4096,
	}
}

func TestOpenRouterAdapter_Call(t *testing.T) {
	fake := &fakeOpenRouter{
		resp: &openrouter.ChatCompletionResponse{
			Choices: []openrouter.Choice{{
				Message: openrouter.Message{Role: "assistant", Content: `{"confidence": 0.88, "analysis": "advance-fee scam"}`},
			}},
			Usage: openrouter.Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
		},
	}
	a := NewOpenRouterAdapter(fake, "you are an analyst", 0)

	res := a.Call(context.Background(), basicModel(), "check this", 5*time.Second)

	require.True(t, res.OK)
	assert.Equal(t, "llama-3.3-70b-instruct", res.Model)
	assert.InDelta(t, 0.88, res.Confidence, 1e-9)
	assert.Equal(t, "advance-fee scam", res.Content)
	assert.Equal(t, 160, res.TokensUsed)
	assert.Equal(t, ErrNone, res.ErrKind)

	// System prompt is prepended as the first message.
	require.Len(t, fake.reqs, 1)
	require.Len(t, fake.reqs[0].Messages, 2)
	assert.Equal(t, "system", fake.reqs[0].Messages[0].Role)
	assert.Equal(t, "user", fake.reqs[0].Messages[1].Role)
}

func TestOpenRouterAdapter_Call_APIError(t *testing.T) {
	fake := &fakeOpenRouter{err: &openrouter.APIError{StatusCode: 429, Body: "rate limited"}}
	a := NewOpenRouterAdapter(fake, "", 0)

	res := a.Call(context.Background(), basicModel(), "check this", 5*time.Second)

	assert.False(t, res.OK)
	assert.Equal(t, ErrRateLimited, res.ErrKind)
	assert.NotEmpty(t, res.Err)
	assert.Zero(t, res.Confidence)
}

func TestOpenRouterAdapter_Call_EmptyCompletion(t *testing.T) {
	fake := &fakeOpenRouter{resp: &openrouter.ChatCompletionResponse{}}
	a := NewOpenRouterAdapter(fake, "", 0)

	res := a.Call(context.Background(), basicModel(), "check this", 5*time.Second)

	assert.False(t, res.OK)
	assert.Equal(t, ErrMalformed, res.ErrKind)
}

// fakePerplexity implements perplexity.Client for adapter tests.
type fakePerplexity struct {
	resp *perplexity.ChatCompletionResponse
	err  error
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, _ perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return f.resp, f.err
}

func TestPerplexityAdapter_Call(t *testing.T) {
	fake := &fakePerplexity{
		resp: &perplexity.ChatCompletionResponse{
			Choices: []perplexity.Choice{{
				Message: perplexity.Message{Role: "assistant", Content: `{"confidence": 0.95, "analysis": "known scam domain"}`},
			}},
			Usage: perplexity.Usage{PromptTokens: 200, CompletionTokens: 50, TotalTokens: 250},
		},
	}
	a := NewPerplexityAdapter(fake, "analyst", 0)

	cfg := registry.ModelConfig{Name: "sonar-pro", Family: registry.FamilySpecialized, MaxTokens: 4096}
	res := a.Call(context.Background(), cfg, "check this", 5*time.Second)

	require.True(t, res.OK)
	assert.Equal(t, "sonar-pro", res.Model)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, 250, res.TokensUsed)
}

func TestMap_ForModel(t *testing.T) {
	a := NewOpenRouterAdapter(&fakeOpenRouter{}, "", 0)
	m := Map{registry.FamilyOpenWeights: a}

	got, ok := m.ForModel(basicModel())
	require.True(t, ok)
	assert.Equal(t, registry.FamilyOpenWeights, got.Family())

	_, ok = m.ForModel(registry.ModelConfig{Family: registry.FamilySpecialized})
	assert.False(t, ok)
}
