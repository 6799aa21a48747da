package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15, cfg.CypherMaxHops)
	assert.Equal(t, 10, cfg.DefaultTopK)
	assert.Equal(t, "WAL", cfg.JournalMode)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRAFITO_CYPHER_MAX_HOPS", "7")
	t.Setenv("GRAFITO_DEFAULT_TOP_K", "25")
	t.Setenv("GRAFITO_JOURNAL_MODE", "MEMORY")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CypherMaxHops)
	assert.Equal(t, 25, cfg.DefaultTopK)
	assert.Equal(t, "MEMORY", cfg.JournalMode)

	t.Setenv("GRAFITO_CYPHER_MAX_HOPS", "zero")
	_, err = LoadFromEnv()
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JournalMode = "FANCY"
	assert.Error(t, cfg.Validate())
	cfg = DefaultConfig()
	cfg.CypherMaxHops = 0
	assert.Error(t, cfg.Validate())
}
