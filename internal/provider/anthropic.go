package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/scamlens/scamlens/internal/registry"
	"github.com/scamlens/scamlens/internal/resilience"
	"github.com/scamlens/scamlens/pkg/anthropic"
)

// AnthropicAdapter serves the proprietary-cloud provider family.
type AnthropicAdapter struct {
	client  anthropic.Client
	system  string
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewAnthropicAdapter creates the adapter. rps bounds request rate; zero
// disables limiting.
func NewAnthropicAdapter(client anthropic.Client, system string, rps float64) *AnthropicAdapter {
	a := &AnthropicAdapter{
		client:  client,
		system:  system,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	if rps > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return a
}

func (a *AnthropicAdapter) Family() registry.Family {
	return registry.FamilyProprietaryCloud
}

func (a *AnthropicAdapter) Call(ctx context.Context, model registry.ModelConfig, prompt string, timeout time.Duration) Result {
	return execute(ctx, model, timeout, a.limiter, a.breaker, func(ctx context.Context) (payload, error) {
		maxTokens := int64(model.MaxTokens)
		if maxTokens > 8192 {
			maxTokens = 8192
		}
		resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     model.Name,
			MaxTokens: maxTokens,
			System:    a.system,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return payload{}, err
		}
		return payload{
			content: resp.Text(),
			tokens:  int(resp.Usage.Total()),
		}, nil
	})
}
