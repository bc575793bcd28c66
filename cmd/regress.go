package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MothMetrics/respclim-cli/internal/pipeline"
	"github.com/MothMetrics/respclim-cli/internal/report"
)

var (
	regMeasurements string
	regClimate      string
	regOutputPath   string
	regComponents   int
)

var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Regress marginal-mean rate on the leading climate components",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInputFlags(cmd, regMeasurements, regClimate, "", "")
		if cmd.Flags().Changed("components") {
			cfg.Components = regComponents
		}
		res, err := pipeline.Run(cfg)
		if err != nil {
			return err
		}
		var data report.Data
		data.Regressions = res.Regressions
		return emit(data.Markdown(), regOutputPath)
	},
}

func init() {
	rootCmd.AddCommand(regressCmd)
	regressCmd.Flags().StringVarP(&regMeasurements, "measurements", "m", "", "respirometry measurement table (CSV/TSV)")
	regressCmd.Flags().StringVarP(&regClimate, "climate", "c", "", "climate/geography normals table (CSV/TSV)")
	regressCmd.Flags().StringVarP(&regOutputPath, "output", "o", "", "optional path to write the table (Markdown)")
	regressCmd.Flags().IntVar(&regComponents, "components", 2, "leading components used in the regressions")
}
