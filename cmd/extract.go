package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/flowanalyzer/internal/config"
	"firestige.xyz/flowanalyzer/internal/pipeline"
	"firestige.xyz/flowanalyzer/internal/source/pcapfile"
	"firestige.xyz/flowanalyzer/internal/source/tshark"
	"firestige.xyz/flowanalyzer/pkg/plugin"
	"firestige.xyz/flowanalyzer/plugins/reporter/console"
)

var (
	sourceType string
	tsharkPath string
	bpfFilter  string
)

var extractCmd = &cobra.Command{
	Use:   "extract <pcap>",
	Short: "Emit one record per HTTP packet of a capture",
	Long: `Run the configured engine over a capture file and send every record to the
configured reporters (console by default).

Examples:
  flowanalyzer extract traffic.pcap
  FLOWANALYZER_FILTER='http.request.method == "POST"' flowanalyzer extract traffic.pcap
  flowanalyzer extract --source pcap --bpf 'tcp port 8080' traffic.pcapng`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		applySourceFlags(cmd, cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer startMetrics(ctx, cfg.Metrics)()

		src, err := newSource(cfg, args[0])
		if err != nil {
			return err
		}
		reporters, err := newReporters(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return pipeline.New(pipeline.Config{Source: src, Reporters: reporters}).Run(ctx)
	},
}

func init() {
	for _, fs := range []*cobra.Command{extractCmd, pairsCmd} {
		fs.Flags().StringVar(&sourceType, "source", "", "engine: tshark or pcap (overrides config)")
		fs.Flags().StringVar(&tsharkPath, "tshark", "", "tshark binary path (overrides config)")
		fs.Flags().StringVar(&bpfFilter, "bpf", "", "BPF pre-filter for the pcap engine (overrides config)")
	}
}

func applySourceFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("source") {
		cfg.Source.Type = sourceType
	}
	if cmd.Flags().Changed("tshark") {
		cfg.Source.Tshark.Path = tsharkPath
	}
	if cmd.Flags().Changed("bpf") {
		cfg.Source.Pcap.BPF = bpfFilter
	}
}

// newSource builds and initializes the configured engine for one capture.
func newSource(cfg *config.Config, pcap string) (plugin.Source, error) {
	factory, err := plugin.GetSourceFactory(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	src := factory()

	var sourceCfg map[string]any
	switch cfg.Source.Type {
	case tshark.Name:
		sourceCfg = map[string]any{
			"path":   cfg.Source.Tshark.Path,
			"pcap":   pcap,
			"filter": cfg.Filter.String(),
		}
	case pcapfile.Name:
		sourceCfg = map[string]any{
			"pcap":     pcap,
			"filter":   cfg.Filter.String(),
			"bpf":      cfg.Source.Pcap.BPF,
			"pair_ttl": cfg.Source.Pcap.PairTTL.String(),
		}
	}
	if err := src.Init(sourceCfg); err != nil {
		return nil, fmt.Errorf("init source %s: %w", cfg.Source.Type, err)
	}
	return src, nil
}

// newReporters builds the configured reporters. The console reporter writes
// to out.
func newReporters(cfg *config.Config, out io.Writer) ([]plugin.Reporter, error) {
	reporters := make([]plugin.Reporter, 0, len(cfg.Reporters))
	for _, rc := range cfg.Reporters {
		var r plugin.Reporter
		if rc.Name == console.Name {
			r = console.NewWriterReporter(out)
		} else {
			factory, err := plugin.GetReporterFactory(rc.Name)
			if err != nil {
				return nil, err
			}
			r = factory()
		}
		if err := r.Init(rc.Config); err != nil {
			return nil, fmt.Errorf("init reporter %s: %w", rc.Name, err)
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

