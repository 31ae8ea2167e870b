package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/core/engine"
	"github.com/crawlpace/crawlpace/internal/core/robots"
	"github.com/crawlpace/crawlpace/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLILogger", func(t *testing.T) {
		observability.InitCLILogger("crawlpace-test", "warn", false)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Warn("cli logger ready", zap.String("domain", "example.com"))
	})

	t.Run("VerboseCLILogger", func(t *testing.T) {
		observability.InitCLILogger("crawlpace-test", "error", true)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("debug visible", zap.Int("attempt", 1))
	})

	t.Run("ServerLogger", func(t *testing.T) {
		observability.InitServerLogger("crawlpace-test", "info", "crawlpace")
		require.NotNil(t, observability.ServerLogger)
		observability.ServerLogger.Info("server logger ready", zap.String("component", "test"))
		require.Same(t, observability.ServerLogger, observability.Current())
	})
}

func TestLoggerSatisfiesComponentInterfaces(t *testing.T) {
	logger, err := logging.NewCLI("crawlpace-iface")
	require.NoError(t, err)

	var _ engine.Logger = logger
	var _ robots.Logger = logger
	var _ observability.Logger = logger
	var _ observability.Logger = zap.NewNop()
}

func TestCurrentFallsBackToNop(t *testing.T) {
	cli, server := observability.CLILogger, observability.ServerLogger
	observability.CLILogger, observability.ServerLogger = nil, nil
	t.Cleanup(func() { observability.CLILogger, observability.ServerLogger = cli, server })

	require.NotNil(t, observability.Current())
	observability.Current().Info("discarded")
}
