package cmd

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/flowanalyzer/internal/log"
	"firestige.xyz/flowanalyzer/internal/pipeline"
	"firestige.xyz/flowanalyzer/internal/store"
	"firestige.xyz/flowanalyzer/pkg/plugin"
	"firestige.xyz/flowanalyzer/plugins/reporter/sqlite"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs <pcap>",
	Short: "List HTTP request/response pairs of a capture",
	Long: `Extract the capture into a SQLite cache next to it (reused while the capture
and filter are unchanged) and print one line per request/response pair:

  request_frame  response_frame  status  uri  response_body_bytes

Missing values print as "-". Responses whose request is not in the capture
are listed after all requests.

Examples:
  flowanalyzer pairs traffic.pcap`,
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

		pcap := args[0]
		dbPath := store.DefaultPath(pcap)
		logger := log.GetLogger().WithField("db", dbPath)

		if store.Valid(ctx, dbPath, pcap, cfg.Filter) {
			logger.Debug("using cached database")
		} else {
			logger.Debug("building database")
			src, err := newSource(cfg, pcap)
			if err != nil {
				return err
			}
			db := sqlite.NewSQLiteReporter()
			err = db.Init(map[string]any{
				"pcap":       pcap,
				"path":       dbPath,
				"filter":     cfg.Filter.String(),
				"batch_size": cfg.Store.BatchSize,
			})
			if err != nil {
				return err
			}
			p := pipeline.New(pipeline.Config{Source: src, Reporters: []plugin.Reporter{db}})
			if err := p.Run(ctx); err != nil {
				return err
			}
		}

		r, err := store.Open(ctx, dbPath)
		if err != nil {
			return err
		}
		defer r.Close()

		out := cmd.OutOrStdout()
		return r.Pairs(ctx, func(p store.Pair) error {
			reqFrame, respFrame, status, uri, bodyLen := "-", "-", "-", "-", "-"
			if p.Request != nil {
				reqFrame = strconv.FormatUint(p.Request.FrameNumber, 10)
				if p.Request.FullURI != "" {
					uri = p.Request.FullURI
				}
			}
			if p.Response != nil {
				respFrame = strconv.FormatUint(p.Response.FrameNumber, 10)
				if code, ok := p.Response.StatusCode.Get(); ok {
					status = strconv.Itoa(code)
				}
				bodyLen = strconv.Itoa(len(p.Response.FileData))
			}
			printf(out, "%s\t%s\t%s\t%s\t%s\n", reqFrame, respFrame, status, uri, bodyLen)
			return nil
		})
	},
}
