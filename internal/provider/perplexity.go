package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
	"github.com/scamlens/scamlens/pkg/perplexity"
)

// errEmptyCompletion is treated as a malformed provider response.
var errEmptyCompletion = eris.New("provider: completion contained no choices")

// PerplexityAdapter serves the specialized provider family: web-grounded
// models with live scam-database lookup.
type PerplexityAdapter struct {
	client  perplexity.Client
	system  string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewPerplexityAdapter creates the adapter. rps bounds request rate; zero
// disables limiting.
func NewPerplexityAdapter(client perplexity.Client, system string, rps float64) *PerplexityAdapter {
	a := &PerplexityAdapter{
		client:  client,
		system:  system,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	if rps > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return a
}

func (a *PerplexityAdapter) Family() registry.Family {
	return registry.FamilySpecialized
}

func (a *PerplexityAdapter) Call(ctx context.Context, model registry.ModelConfig, prompt string, timeout time.Duration) Result {
	return execute(ctx, model, timeout, a.limiter, a.breaker, func(ctx context.Context) (payload, error) {
		messages := []perplexity.Message{}
		if a.system != "" {
			messages = append(messages, perplexity.Message{Role: "system", Content: a.system})
		}
		messages = append(messages, perplexity.Message{Role: "user", Content: prompt})

		resp, err := a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Model:    model.Name,
			Messages: messages,
		})
		if err != nil {
			return payload{}, err
		}
		if len(resp.Choices) == 0 {
			return payload{}, errEmptyCompletion
		}

		tokens := resp.Usage.TotalTokens
		if tokens == 0 {
			tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
		}
		return payload{
			content: resp.Choices[0].Message.Content,
			tokens:  tokens,
		}, nil
	})
}
