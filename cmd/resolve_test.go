package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcerer/internal/config"
)

func withConfig(t *testing.T, modify func(*config.Config)) {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	modify(cfg)
	t.Cleanup(func() { cfg = prev })
}

func TestPickExtractor(t *testing.T) {
	withConfig(t, func(*config.Config) {})
	registry := newRegistry()

	ext, err := pickExtractor(registry, "https://vidmoly.to/w/abc", "")
	require.NoError(t, err)
	assert.Equal(t, "vidmoly", ext.ID())

	ext, err = pickExtractor(registry, "https://mirror.test/w/abc", "vidmoly")
	require.NoError(t, err)
	assert.Equal(t, "vidmoly", ext.ID())

	_, err = pickExtractor(registry, "https://vidmoly.to/w/abc", "streamwish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown extractor "streamwish"`)
	assert.Contains(t, err.Error(), "known: vidmoly")

	_, err = pickExtractor(registry, "https://example.com/e/1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: vidmoly")
}

func TestNewRegistryUsesConfiguredReferrers(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.VidmolyReferrers = []string{"fmovies"} })
	registry := newRegistry()

	_, ok := registry.For("https://fmovies.test/go/1")
	assert.True(t, ok, "configured referrer should match")
	_, ok = registry.For("https://www.primewire.tf/links/go/1")
	assert.False(t, ok, "default referrer should be replaced")
}
