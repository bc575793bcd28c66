package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MothMetrics/respclim-cli/internal/summary"
)

var (
	insOutputPath string
	insDelimiter  string
	insSampleRows int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarize an input CSV/TSV before running the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := summary.DefaultOptions()
		if insSampleRows > 0 {
			opt.SampleRows = insSampleRows
		}
		switch insDelimiter {
		case "":
		case ",":
			opt.Delimiter = ','
		case "\t", "tab":
			opt.Delimiter = '\t'
		case ";":
			opt.Delimiter = ';'
		default:
			return fmt.Errorf("unsupported --delimiter: %s", insDelimiter)
		}

		rep, err := summary.Profile(args[0], opt)
		if err != nil {
			return err
		}
		md := rep.Markdown()
		if insOutputPath != "" {
			if err := os.WriteFile(insOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote summary to %s\n", insOutputPath)
			return nil
		}
		fmt.Println(md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&insOutputPath, "output", "o", "", "optional path to write the summary (Markdown)")
	inspectCmd.Flags().StringVar(&insDelimiter, "delimiter", "", "delimiter: ',' | ';' | 'tab'")
	inspectCmd.Flags().IntVar(&insSampleRows, "sample-rows", 5, "number of sample rows to include")
}
