package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MothMetrics/respclim-cli/internal/pipeline"
	"github.com/MothMetrics/respclim-cli/internal/utils"
)

var (
	runMeasurements string
	runClimate      string
	runBoundary     string
	runOutputDir    string
	runAlpha        float64
	runAdjust       string
	runComponents   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and write all artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInputFlags(cmd, runMeasurements, runClimate, runBoundary, runOutputDir)
		f := cmd.Flags()
		if f.Changed("alpha") {
			cfg.Alpha = runAlpha
		}
		if f.Changed("adjust") {
			cfg.Adjust = runAdjust
		}
		if f.Changed("components") {
			cfg.Components = runComponents
		}

		res, err := pipeline.Run(cfg)
		if err != nil {
			return err
		}
		debugf("run %s: %d long rows, %d coefficients, %d regressions",
			res.Manifest.RunID, res.Manifest.LongRows, len(res.Fit.Beta), len(res.Regressions))

		dir := cfg.OutputDir
		if err := res.WriteArtifacts(dir); err != nil {
			return err
		}
		if err := utils.SafeWriteFile(filepath.Join(dir, "report.md"), []byte(res.Markdown())); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if err := res.Manifest.Save(dir); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}

		for _, w := range res.Manifest.Warnings {
			fmt.Fprintln(os.Stderr, "⚠", w)
		}
		fmt.Printf("✓ Wrote artifacts and report to %s (run %s)\n", dir, res.Manifest.RunID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runMeasurements, "measurements", "m", "", "respirometry measurement table (CSV/TSV)")
	runCmd.Flags().StringVarP(&runClimate, "climate", "c", "", "climate/geography normals table (CSV/TSV)")
	runCmd.Flags().StringVar(&runBoundary, "boundary", "", "optional quarantine boundary (GeoJSON)")
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "directory for artifacts and report")
	runCmd.Flags().Float64Var(&runAlpha, "alpha", 0.05, "significance level for intervals")
	runCmd.Flags().StringVar(&runAdjust, "adjust", "sidak", "comparison-interval adjustment: sidak|bonferroni|none")
	runCmd.Flags().IntVar(&runComponents, "components", 2, "leading components used in the regressions")
}
