package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_AppliesSchemaAndMaxConns(t *testing.T) {
	cfg, err := PoolConfig("postgres://u:p@localhost:5432/jobs", "jobs_tracker_v1", 7)
	require.NoError(t, err)
	assert.Equal(t, int32(7), cfg.MaxConns)
	assert.Equal(t, "jobs_tracker_v1", cfg.ConnConfig.RuntimeParams["search_path"])
}

func TestPoolConfig_EmptySchemaLeavesDefault(t *testing.T) {
	cfg, err := PoolConfig("postgres://u:p@localhost:5432/jobs", "", 0)
	require.NoError(t, err)
	_, ok := cfg.ConnConfig.RuntimeParams["search_path"]
	assert.False(t, ok)
	assert.Greater(t, cfg.MaxConns, int32(0))
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	_, err := PoolConfig("postgres://%zz", "x", 1)
	assert.Error(t, err)
}
