package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	MeasurementsPath string `mapstructure:"measurements_path" yaml:"measurements_path"`
	ClimatePath      string `mapstructure:"climate_path" yaml:"climate_path"`
	BoundaryPath     string `mapstructure:"boundary_path" yaml:"boundary_path"`
	OutputDir        string `mapstructure:"output_dir" yaml:"output_dir"`

	// Inference settings
	Alpha      float64 `mapstructure:"alpha" yaml:"alpha"`
	Adjust     string  `mapstructure:"adjust" yaml:"adjust"` // sidak | bonferroni | none
	Components int     `mapstructure:"components" yaml:"components"`
	// Reference-level policy for categorical encoding: alphabetical | first-seen
	ReferencePolicy string `mapstructure:"reference_policy" yaml:"reference_policy"`
}

// Validate checks settings that would otherwise fail deep inside a stage.
func (c *Global) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %g", c.Alpha)
	}
	switch c.Adjust {
	case "sidak", "bonferroni", "none":
	default:
		return fmt.Errorf("unsupported adjust %q (use sidak|bonferroni|none)", c.Adjust)
	}
	switch c.ReferencePolicy {
	case "alphabetical", "first-seen":
	default:
		return fmt.Errorf("unsupported reference_policy %q (use alphabetical|first-seen)", c.ReferencePolicy)
	}
	if c.Components < 1 {
		return fmt.Errorf("components must be >= 1, got %d", c.Components)
	}
	return nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.respclim/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".respclim")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("RESPCLIM")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("measurements_path", "")
	v.SetDefault("climate_path", "")
	v.SetDefault("boundary_path", "")
	v.SetDefault("output_dir", "respclim-out")
	v.SetDefault("alpha", 0.05)
	v.SetDefault("adjust", "sidak")
	v.SetDefault("components", 2)
	v.SetDefault("reference_policy", "alphabetical")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".respclim")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
