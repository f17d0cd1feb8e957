package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting reelforge configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all configuration options after merging defaults, the config
file, and environment variables. Redirect the output to a file to create
a configuration template:

  reelforge config dump > config.yaml

Environment variables use the REELFORGE_ prefix with underscores for
nesting. Example: pipeline.segment_duration -> REELFORGE_PIPELINE_SEGMENT_DURATION`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()

	// Never write credentials to stdout.
	for _, provider := range []string{"storyboard", "videogen", "narration"} {
		if p, ok := settings["providers"].(map[string]any); ok {
			if cfg, ok := p[provider].(map[string]any); ok {
				if key, ok := cfg["api_key"].(string); ok && key != "" {
					cfg["api_key"] = "[REDACTED]"
				}
			}
		}
	}

	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# reelforge Configuration File")
	fmt.Println("# ============================")
	fmt.Println("#")
	fmt.Println("# Values below reflect the current effective configuration.")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   REELFORGE_SERVER_HOST, REELFORGE_SERVER_PORT")
	fmt.Println("#   REELFORGE_DATABASE_DRIVER, REELFORGE_DATABASE_DSN")
	fmt.Println("#   REELFORGE_STORAGE_BASE_DIR, REELFORGE_PIPELINE_SEGMENT_DURATION")
	fmt.Println("#   REELFORGE_PROVIDERS_VIDEOGEN_API_KEY, etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
