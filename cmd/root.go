// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/metrics"
	"firestige.xyz/flowanalyzer/plugins/reporter"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowanalyzer",
	Short: "FlowAnalyzer - extract HTTP request/response records from packet captures",
	Long: `FlowAnalyzer runs a packet dissector over a capture file and emits one
tab-separated record per HTTP packet: type, frame, time, header hex, body hex,
URI or status code, and the request frame a response answers.

The capture filter comes from FLOWANALYZER_FILTER (default "http").
Records go to stdout; diagnostics go to stderr.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(pairsCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads configuration, initializes logging and registers plugins.
func setup() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, err
	}
	reporter.RegisterBuiltins()
	return cfg, nil
}

// startMetrics starts the metrics server when enabled and returns its stop func.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}
	srv := metrics.NewServer(cfg.Listen, cfg.Path)
	if err := srv.Start(ctx); err != nil {
		log.GetLogger().WithError(err).Warn("metrics server not started")
		return func() {}
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("metrics server stop failed")
		}
	}
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
