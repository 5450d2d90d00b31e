package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/flowanalyzer/internal/config"
)

// effectiveConfig is the YAML view printed by the config command.
type effectiveConfig struct {
	FlowAnalyzer struct {
		Filter        string `yaml:"filter"`
		config.Config `yaml:",inline"`
	} `yaml:"flowanalyzer"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and environment
variables are applied, as YAML.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		var out effectiveConfig
		out.FlowAnalyzer.Filter = cfg.Filter.String()
		out.FlowAnalyzer.Config = *cfg

		data, err := yaml.Marshal(&out)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
