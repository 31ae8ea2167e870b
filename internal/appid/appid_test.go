package appid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	identity := Get()
	require.Equal(t, "crawlpace", identity.BinaryName)
	require.Equal(t, "CRAWLPACE_", identity.EnvPrefix)
	require.NotEmpty(t, identity.Description)
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "CRAWLPACE_BACKOFF_MAX_RETRIES", Get().EnvName("backoff.max_retries"))
	require.Equal(t, "CRAWLPACE_PACING_DEFAULT_RATE_LIMIT", Get().EnvName("pacing.default_rate_limit"))
}
