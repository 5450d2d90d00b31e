package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/flowanalyzer/internal/split"
)

var (
	splitOutDir    string
	splitThreshold float64
	splitChunks    int
)

var splitCmd = &cobra.Command{
	Use:   "split <pcap>",
	Short: "Split a large capture into TCP-stream-balanced chunks",
	Long: `Split a capture into batch_<i>.pcap files holding whole TCP streams, balanced
by byte volume. Captures below the threshold are left alone. Prints the
resulting file paths, one per line.

Examples:
  flowanalyzer split big.pcapng -o chunks
  flowanalyzer split big.pcap -o chunks --threshold-mb 50 --chunks 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(); err != nil {
			return err
		}
		files, err := split.Split(args[0], splitOutDir, splitThreshold, splitChunks)
		if err != nil {
			return err
		}
		for _, f := range files {
			printf(cmd.OutOrStdout(), "%s\n", f)
		}
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVarP(&splitOutDir, "output", "o", ".", "output directory")
	splitCmd.Flags().Float64Var(&splitThreshold, "threshold-mb", split.DefaultThresholdMB,
		"do not split captures smaller than this many MB")
	splitCmd.Flags().IntVar(&splitChunks, "chunks", split.DefaultChunks, "number of chunks")
}
