package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/crawlpace/crawlpace/internal/appid"
	"github.com/crawlpace/crawlpace/internal/config"
	"github.com/crawlpace/crawlpace/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// appViper holds the layered configuration source built in initConfig.
	appViper *viper.Viper

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   appid.Get().BinaryName,
	Short: appid.Get().Description,
	Long: fmt.Sprintf(`%s - %s

Crawl URLs under per-domain rate limits that honor robots.txt, back off
when servers signal throttling, and adapt to observed latency.`, appid.Get().BinaryName, appid.Get().Description),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve re-initializes telemetry.
	observability.DisableGlobalTelemetry()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig builds the layered config source and the CLI logger.
func initConfig() {
	identity := appid.Get()

	v, err := config.NewViper(cfgFile)
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to open config file", err)
	}
	appViper = v

	cfg, err := config.Load(context.Background(), v)
	if err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Invalid configuration", err)
	}

	observability.InitCLILogger(identity.BinaryName, cfg.Logging.Level, verbose)
	if used := v.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	} else {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}
}

// loadConfig returns the loaded config, re-resolving it when flags supply
// runtime overrides.
func loadConfig(ctx context.Context, overrides map[string]any) (*config.Config, error) {
	if len(overrides) == 0 {
		if cfg := config.GetConfig(); cfg != nil {
			return cfg, nil
		}
	}
	return config.Load(ctx, appViper, overrides)
}
