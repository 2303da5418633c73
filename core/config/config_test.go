package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sentgraph/core/neural"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
model:
  embed_dim: 64
  num_heads: 8
  residual: residual
preprocessing:
  unk_thres: 2
cache:
  dir: /tmp/sentgraph-cache
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Model.EmbedDim)
	assert.Equal(t, 8, cfg.Model.NumHeads)
	assert.Equal(t, string(neural.ResidualPlain), cfg.Model.Residual)
	assert.Equal(t, 2, cfg.Preprocessing.UnkThres)
	assert.Equal(t, "/tmp/sentgraph-cache", cfg.Cache.Dir)

	// Untouched keys keep their defaults.
	assert.Equal(t, 4, cfg.Model.NumLayers)
	assert.True(t, cfg.Preprocessing.LowerCase)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  num_heads: 7\n"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, neural.ErrConfiguration)
}

func TestModelValidateRejectsBadResidual(t *testing.T) {
	cfg := Default()
	cfg.Model.Residual = "layernorm"
	require.ErrorIs(t, cfg.Validate(), neural.ErrConfiguration)
}

func TestPreprocessingValidate(t *testing.T) {
	cfg := Default()
	cfg.Preprocessing.TextColumn = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Preprocessing.UnkThres = 0
	require.Error(t, cfg.Validate())
}

func TestEncoderConfigRendering(t *testing.T) {
	enc := Default().Model.EncoderConfig(5)
	assert.Equal(t, 5, enc.Attention.NumEdgeTypes)
	assert.Equal(t, 256, enc.Attention.EmbedDim)
	assert.Equal(t, neural.ResidualRezero, enc.Residual)
	require.NoError(t, enc.Validate())
}
