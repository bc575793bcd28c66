package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
	"github.com/MothMetrics/respclim-cli/internal/emmeans"
	"github.com/MothMetrics/respclim-cli/internal/mixedmodel"
	"github.com/MothMetrics/respclim-cli/internal/report"
)

var (
	modMeasurements string
	modClimate      string
	modOutputPath   string
	modAlpha        float64
	modAdjust       string
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Fit the mixed model and print coefficients, ANOVA and marginal means",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInputFlags(cmd, modMeasurements, modClimate, "", "")
		f := cmd.Flags()
		if f.Changed("alpha") {
			cfg.Alpha = modAlpha
		}
		if f.Changed("adjust") {
			cfg.Adjust = modAdjust
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.MeasurementsPath == "" || cfg.ClimatePath == "" {
			return fmt.Errorf("measurements and climate paths are required")
		}

		obs, err := dataset.LoadMeasurements(cfg.MeasurementsPath)
		if err != nil {
			return err
		}
		climate, err := dataset.LoadClimate(cfg.ClimatePath)
		if err != nil {
			return err
		}
		long := dataset.PivotLong(obs)
		long, _ = dataset.JoinLatitude(long, climate)

		design, err := mixedmodel.BuildDesign(long, dataset.BuildLevels(long, cfg.ReferencePolicy))
		if err != nil {
			return err
		}
		fit, err := mixedmodel.FitREML(design)
		if err != nil {
			return err
		}
		if !fit.Converged {
			fmt.Fprintln(os.Stderr, "⚠", fit.Message)
		}

		var data report.Data
		data.Fit = fit
		if data.Anova, err = fit.Anova(); err != nil {
			return err
		}
		data.Diag = fit.Diagnose()
		if data.Emmeans, err = emmeans.Grid(fit, emmeans.Options{Alpha: cfg.Alpha, Adjust: cfg.Adjust}); err != nil {
			return err
		}
		return emit(data.Markdown(), modOutputPath)
	},
}

// emit writes markdown to a file or stdout.
func emit(md, path string) error {
	if path != "" {
		if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("✓ Wrote %s\n", path)
		return nil
	}
	fmt.Println(md)
	return nil
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.Flags().StringVarP(&modMeasurements, "measurements", "m", "", "respirometry measurement table (CSV/TSV)")
	modelCmd.Flags().StringVarP(&modClimate, "climate", "c", "", "climate/geography normals table (CSV/TSV)")
	modelCmd.Flags().StringVarP(&modOutputPath, "output", "o", "", "optional path to write the tables (Markdown)")
	modelCmd.Flags().Float64Var(&modAlpha, "alpha", 0.05, "significance level for intervals")
	modelCmd.Flags().StringVar(&modAdjust, "adjust", "sidak", "comparison-interval adjustment: sidak|bonferroni|none")
}
