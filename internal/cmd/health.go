package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/config"
	errwrap "github.com/crawlpace/crawlpace/internal/errors"
	"github.com/crawlpace/crawlpace/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration is valid, the pacing pipeline can be built and the history store is reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing",
				errwrap.NewInternalError("version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))

		cfg := config.GetConfig()
		if cfg == nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration not loaded",
				errwrap.NewInternalError("configuration not loaded"))
			return
		}
		if _, err := cfg.EngineSettings(); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Pacing settings invalid", err)
			return
		}
		logger.Info("✅ Pacing configuration valid")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := checkStore(ctx, cfg); err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "History store unavailable", err)
			return
		}
		logger.Info(fmt.Sprintf("✅ History store reachable (%s)", storeLocation(cfg)))

		logger.Info("✅ All health checks passed")
	},
}

func checkStore(ctx context.Context, cfg *config.Config) error {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup
	return db.CheckHealth(ctx)
}

func storeLocation(cfg *config.Config) string {
	if cfg.Store.URL != "" {
		return cfg.Store.URL
	}
	return cfg.Store.Path
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
