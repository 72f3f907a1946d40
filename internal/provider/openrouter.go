package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
	"github.com/scamlens/scamlens/pkg/openrouter"
)

// OpenRouterAdapter serves the open-weights provider family through an
// OpenAI-compatible endpoint.
type OpenRouterAdapter struct {
	client  openrouter.Client
	system  string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewOpenRouterAdapter creates the adapter. rps bounds request rate; zero
// disables limiting.
func NewOpenRouterAdapter(client openrouter.Client, system string, rps float64) *OpenRouterAdapter {
	a := &OpenRouterAdapter{
		client:  client,
		system:  system,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	if rps > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return a
}

func (a *OpenRouterAdapter) Family() registry.Family {
	return registry.FamilyOpenWeights
}

func (a *OpenRouterAdapter) Call(ctx context.Context, model registry.ModelConfig, prompt string, timeout time.Duration) Result {
	return execute(ctx, model, timeout, a.limiter, a.breaker, func(ctx context.Context) (payload, error) {
		messages := []openrouter.Message{}
		if a.system != "" {
			messages = append(messages, openrouter.Message{Role: "system", Content: a.system})
		}
		messages = append(messages, openrouter.Message{Role: "user", Content: prompt})

		resp, err := a.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
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
