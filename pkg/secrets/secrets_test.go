package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewell-health/datahub-sync/pkg/config"
)

func TestSourceURIFallsBackToEnvURI(t *testing.T) {
	uri, err := SourceURI(context.Background(), &config.SourceConfig{URI: "mongodb://localhost:27017"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", uri)
}

func TestSourceURIRequiresSomeSource(t *testing.T) {
	_, err := SourceURI(context.Background(), &config.SourceConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source URI")
}
