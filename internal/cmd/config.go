package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crawlpace/crawlpace/internal/appid"
	"github.com/crawlpace/crawlpace/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			return err
		}

		redacted := *cfg
		if redacted.Store.AuthToken != "" {
			redacted.Store.AuthToken = "********"
		}

		payload, err := yaml.Marshal(&redacted)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(payload))
		return err
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print config and data locations and environment variable names",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		used := ""
		if appViper != nil {
			used = appViper.ConfigFileUsed()
		}
		if used == "" {
			used = "(none)"
		}

		fmt.Fprintf(out, "Config file:     %s\n", used)
		fmt.Fprintf(out, "Default config:  %s\n", config.DefaultConfigPath())
		fmt.Fprintf(out, "Default store:   %s\n", config.DefaultStorePath())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Environment overrides:")

		identity := appid.Get()
		keys := appViper.AllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %-45s %s\n", identity.EnvName(key), key)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathsCmd)
	rootCmd.AddCommand(configCmd)
}
