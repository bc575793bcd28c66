package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
	"github.com/MothMetrics/respclim-cli/internal/pca"
	"github.com/MothMetrics/respclim-cli/internal/report"
)

var (
	pcaClimate    string
	pcaOutputPath string
	pcaLoadings   bool
)

var pcaCmd = &cobra.Command{
	Use:   "pca",
	Short: "Decompose the climate/geography table into principal components",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInputFlags(cmd, "", pcaClimate, "", "")
		if cfg.ClimatePath == "" {
			return fmt.Errorf("climate path is required")
		}
		climate, err := dataset.LoadClimate(cfg.ClimatePath)
		if err != nil {
			return err
		}
		wide, err := dataset.BuildWideClimate(climate)
		if err != nil {
			return err
		}
		res, err := pca.Fit(wide)
		if err != nil {
			return err
		}

		var data report.Data
		data.Wide = wide
		data.PCA = res
		md := data.Markdown()
		if pcaLoadings {
			md += loadingsTable(res)
		}
		return emit(md, pcaOutputPath)
	},
}

func loadingsTable(res *pca.Result) string {
	k := res.Components()
	if k > 2 {
		k = 2
	}
	var b strings.Builder
	b.WriteString("\n[LOADINGS]\n| variable |")
	for c := 1; c <= k; c++ {
		fmt.Fprintf(&b, " PC%d |", c)
	}
	b.WriteString("\n| --- |")
	b.WriteString(strings.Repeat(" --- |", k))
	b.WriteString("\n")
	for j, v := range res.Columns {
		fmt.Fprintf(&b, "| %s |", v)
		for c := 0; c < k; c++ {
			fmt.Fprintf(&b, " %.3f |", res.Loadings.At(j, c))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(pcaCmd)
	pcaCmd.Flags().StringVarP(&pcaClimate, "climate", "c", "", "climate/geography normals table (CSV/TSV)")
	pcaCmd.Flags().StringVarP(&pcaOutputPath, "output", "o", "", "optional path to write the tables (Markdown)")
	pcaCmd.Flags().BoolVar(&pcaLoadings, "loadings", false, "include the per-variable loadings table")
}
