// Package cost computes token-based charges from the model registry.
package cost

import (
	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/registry"
)

// Calculator maps (model, token count) to a USD cost using registry pricing.
type Calculator struct {
	registry *registry.Registry
}

// NewCalculator creates a Calculator over the given registry.
func NewCalculator(r *registry.Registry) *Calculator {
	return &Calculator{registry: r}
}

// Cost returns tokenCount x cost-per-token for the named model. It is linear
// in the token count and fails with registry.ErrUnknownModel for unregistered
// names.
func (c *Calculator) Cost(modelName string, tokenCount int) (float64, error) {
	if tokenCount < 0 {
		return 0, eris.Errorf("cost: negative token count %d", tokenCount)
	}
	cfg, err := c.registry.Get(modelName)
	if err != nil {
		return 0, err
	}
	return float64(tokenCount) * cfg.CostPerToken, nil
}
