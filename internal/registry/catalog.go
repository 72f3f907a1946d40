package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/scamlens/scamlens/internal/model"
)

// catalogFile is the on-disk shape of the model catalog.
type catalogFile struct {
	Models []ModelConfig `yaml:"models"`
}

// LoadFile reads a YAML model catalog and returns a populated registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read catalog %s", path)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "registry: parse catalog")
	}
	if len(file.Models) == 0 {
		return nil, eris.Errorf("registry: catalog %s contains no models", path)
	}

	r := New()
	for _, cfg := range file.Models {
		if err := r.Register(cfg, false); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultCatalog returns a registry populated with the built-in model set,
// used when no catalog file is configured.
func DefaultCatalog() *Registry {
	r := New()
	for _, cfg := range []ModelConfig{
		{
			Name:         "claude-haiku-4-5-20251001",
			Family:       FamilyProprietaryCloud,
			Tiers:        []model.Tier{model.TierBasic},
			CostPerToken: 0.0000008,
			MaxTokens:    200000,
			Capabilities: []string{"fraud-analysis", "url-analysis", "fast"},
		},
		{
			Name:         "claude-sonnet-4-5-20250929",
			Family:       FamilyProprietaryCloud,
			Tiers:        []model.Tier{model.TierProfessional},
			CostPerToken: 0.000003,
			MaxTokens:    200000,
			Capabilities: []string{"fraud-analysis", "url-analysis", "reasoning"},
		},
		{
			Name:         "claude-opus-4-6",
			Family:       FamilyProprietaryCloud,
			Tiers:        []model.Tier{model.TierEnterprise},
			CostPerToken: 0.000015,
			MaxTokens:    200000,
			Capabilities: []string{"fraud-analysis", "reasoning", "deep-analysis"},
		},
		{
			Name:         "llama-3.3-70b-instruct",
			Family:       FamilyOpenWeights,
			Tiers:        []model.Tier{model.TierBasic},
			CostPerToken: 0.0000004,
			MaxTokens:    131072,
			Capabilities: []string{"fraud-analysis", "fast"},
			Endpoint:     "https://openrouter.ai/api/v1",
		},
		{
			Name:         "qwen-2.5-72b-instruct",
			Family:       FamilyOpenWeights,
			Tiers:        []model.Tier{model.TierProfessional},
			CostPerToken: 0.0000009,
			MaxTokens:    131072,
			Capabilities: []string{"fraud-analysis", "multilingual"},
			Endpoint:     "https://openrouter.ai/api/v1",
		},
		{
			Name:         "sonar-pro",
			Family:       FamilySpecialized,
			Tiers:        []model.Tier{model.TierEnterprise},
			CostPerToken: 0.000003,
			MaxTokens:    127072,
			Capabilities: []string{"fraud-analysis", "web-search", "scam-database"},
		},
		{
			Name:         "sonar-reasoning-pro",
			Family:       FamilySpecialized,
			Tiers:        []model.Tier{model.TierIntelligence},
			CostPerToken: 0.000008,
			MaxTokens:    127072,
			Capabilities: []string{"fraud-analysis", "web-search", "reasoning"},
		},
	} {
		// Built-in entries are static and unique; Register cannot fail here.
		_ = r.Register(cfg, false)
	}
	return r
}
