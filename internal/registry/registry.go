// Package registry holds the static catalog of callable models and their
// tier eligibility, capabilities, and pricing.
package registry

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/scamlens/scamlens/internal/model"
)

// Sentinel errors for registry lookups and registration.
var (
	ErrUnknownModel    = eris.New("registry: unknown model")
	ErrDuplicateModel  = eris.New("registry: duplicate model")
	ErrNoModelsForTier = eris.New("registry: no models for tier")
)

// Family identifies the provider family a model belongs to. The orchestrator
// maps families to adapter instances; it never branches on model names.
type Family string

const (
	FamilyProprietaryCloud Family = "proprietary-cloud"
	FamilyOpenWeights      Family = "open-weights"
	FamilySpecialized      Family = "specialized"
)

// ModelConfig is the immutable descriptor of one callable model.
type ModelConfig struct {
	Name          string       `yaml:"name"`
	Family        Family       `yaml:"family"`
	Tiers         []model.Tier `yaml:"tiers"`
	CostPerToken  float64      `yaml:"cost_per_token"`
	MaxTokens     int          `yaml:"max_tokens"`
	Capabilities  []string     `yaml:"capabilities"`
	Endpoint      string       `yaml:"endpoint,omitempty"`
	CredentialRef string       `yaml:"credential_ref,omitempty"`
}

// HasCapability reports whether the model carries the given capability tag.
func (m ModelConfig) HasCapability(tag string) bool {
	for _, c := range m.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Registry is the static model catalog. It is populated at startup and
// read-only afterwards; reads are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelConfig
	byTier map[model.Tier][]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models: make(map[string]ModelConfig),
		byTier: make(map[model.Tier][]string),
	}
}

// Register inserts a model into the catalog. Registering a model for a tier
// also registers it for every tier above it, so higher tiers are availability
// supersets by construction. Returns ErrDuplicateModel if the name is already
// registered and replace is false.
func (r *Registry) Register(cfg ModelConfig, replace bool) error {
	if cfg.Name == "" {
		return eris.New("registry: model name is required")
	}
	if cfg.CostPerToken < 0 {
		return eris.Errorf("registry: negative cost_per_token for %s", cfg.Name)
	}
	if cfg.MaxTokens <= 0 {
		return eris.Errorf("registry: non-positive max_tokens for %s", cfg.Name)
	}
	for _, t := range cfg.Tiers {
		if !t.Valid() {
			return eris.Errorf("registry: unknown tier %q for %s", t, cfg.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[cfg.Name]; exists {
		if !replace {
			return eris.Wrapf(ErrDuplicateModel, "%s", cfg.Name)
		}
		r.removeLocked(cfg.Name)
	}

	r.models[cfg.Name] = cfg

	// Expand each declared tier upward.
	seen := make(map[model.Tier]bool)
	for _, t := range cfg.Tiers {
		for _, eligible := range model.TiersFrom(t) {
			if seen[eligible] {
				continue
			}
			seen[eligible] = true
			r.byTier[eligible] = append(r.byTier[eligible], cfg.Name)
		}
	}
	return nil
}

func (r *Registry) removeLocked(name string) {
	delete(r.models, name)
	for tier, names := range r.byTier {
		filtered := names[:0]
		for _, n := range names {
			if n != name {
				filtered = append(filtered, n)
			}
		}
		r.byTier[tier] = filtered
	}
}

// Get returns the config for a model name, or ErrUnknownModel.
func (r *Registry) Get(name string) (ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.models[name]
	if !ok {
		return ModelConfig{}, eris.Wrapf(ErrUnknownModel, "%s", name)
	}
	return cfg, nil
}

// AvailableFor returns the names of all models a tier may invoke, sorted for
// stable iteration. Returns ErrNoModelsForTier if the tier has none.
func (r *Registry) AvailableFor(tier model.Tier) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byTier[tier]
	if len(names) == 0 {
		return nil, eris.Wrapf(ErrNoModelsForTier, "%s", tier)
	}
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	return out, nil
}

// ByCapability returns the names of all models carrying the capability tag,
// sorted for stable iteration.
func (r *Registry) ByCapability(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, cfg := range r.models {
		if cfg.HasCapability(tag) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CheapestChain returns the tier's eligible models ordered by ascending
// cost-per-token. Used as the default fallback chain for quick scans.
func (r *Registry) CheapestChain(tier model.Tier) ([]string, error) {
	names, err := r.AvailableFor(tier)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sort.SliceStable(names, func(i, j int) bool {
		return r.models[names[i]].CostPerToken < r.models[names[j]].CostPerToken
	})
	return names, nil
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
