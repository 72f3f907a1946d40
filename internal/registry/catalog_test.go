package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamlens/scamlens/internal/model"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	catalog := `models:
  - name: fast-model
    family: open-weights
    tiers: [basic]
    cost_per_token: 0.0000006
    max_tokens: 8192
    capabilities: [text-analysis]
  - name: deep-model
    family: proprietary-cloud
    tiers: [enterprise]
    cost_per_token: 0.00003
    max_tokens: 16384
    capabilities: [text-analysis, synthesis]
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	cfg, err := r.Get("fast-model")
	require.NoError(t, err)
	assert.Equal(t, FamilyOpenWeights, cfg.Family)
	assert.Equal(t, 8192, cfg.MaxTokens)

	names, err := r.AvailableFor(model.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep-model", "fast-model"}, names)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_DuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	catalog := `models:
  - name: dup
    family: open-weights
    tiers: [basic]
    cost_per_token: 0.000001
    max_tokens: 4096
  - name: dup
    family: open-weights
    tiers: [basic]
    cost_per_token: 0.000002
    max_tokens: 4096
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
