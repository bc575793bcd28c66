package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/MothMetrics/respclim-cli/internal/config"
)

var (
	// Global flags (wired to config/viper)
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "respclim",
	Short: "respclim: respirometry × climate analysis pipeline",
	Long: `respclim runs a reproducible analysis of repeated-measures respirometry
readings against population climate normals: mixed-effects model, estimated
marginal means, climate PCA, and marginal-mean vs component regressions.`,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.respclim/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = &cfgpkg.Global{}
		return
	}
	cfg = c
}

// applyInputFlags overrides config with any explicitly set command flags.
func applyInputFlags(cmd *cobra.Command, measurements, climate, boundary, outputDir string) {
	f := cmd.Flags()
	if f.Changed("measurements") {
		cfg.MeasurementsPath = measurements
	}
	if f.Changed("climate") {
		cfg.ClimatePath = climate
	}
	if f.Changed("boundary") {
		cfg.BoundaryPath = boundary
	}
	if f.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
}

func debugf(format string, args ...any) {
	if debug {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
