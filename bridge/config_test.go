package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverridesMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigOverrides("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesNonexistentFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesAppliesNonZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
control:
  pcm_target_fill: 256
  history_size: 32
detect:
  window: 32
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfigOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.PCMTargetFill)
	assert.Equal(t, 32, cfg.HistorySize)
	assert.Equal(t, 32, cfg.DetectionWindow)
	assert.Equal(t, defaultAC3TargetFill, cfg.AC3TargetFill)
}

func TestLoadConfigOverridesRejectsNonPowerOfTwoHistorySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "control:\n  history_size: 15\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := LoadConfigOverrides(path)
	assert.Error(t, err)
}
