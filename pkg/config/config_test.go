package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("nonexistent.yaml")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, 5000, cfg.BatchSize)
	assert.False(t, cfg.ResetColumn)
	assert.Equal(t, "mongo2postgres", cfg.ControlDatabase())
	assert.Equal(t, "mongo_dev", cfg.StagingDatabase())
	assert.Equal(t, "sync_table_dev", cfg.LedgerTable())
	assert.Equal(t, "raw_dev_datahub_mongo", cfg.BQDataset())
	assert.False(t, cfg.IsTest())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATASET_POSTFIX", "test")
	t.Setenv("NUM_WORKERS", "2")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("STAGING_PGPASSWORD", "s3cret")

	cfg, err := load("nonexistent.yaml")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, "s3cret", cfg.Staging.Password)
	assert.Equal(t, "mongo_test", cfg.StagingDatabase())
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	t.Setenv("DATASET_POSTFIX", "staging")

	_, err := load("nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid env")
}

func TestLoadRejectsBadWorkerCount(t *testing.T) {
	t.Setenv("NUM_WORKERS", "0")

	_, err := load("nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_workers")
}

func TestValidateWorkerID(t *testing.T) {
	cfg := &Config{NumWorkers: 3}

	assert.NoError(t, cfg.ValidateWorkerID(0))
	assert.NoError(t, cfg.ValidateWorkerID(2))
	assert.Error(t, cfg.ValidateWorkerID(3))
	assert.Error(t, cfg.ValidateWorkerID(-1))
}

func TestDSN(t *testing.T) {
	d := &DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=mongo_dev sslmode=disable",
		d.DSN("mongo_dev"))
}
