package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is prepended to every key when read from the environment,
	// e.g. CHURNFLOW_RAW_DATA_PATH.
	EnvPrefix = "CHURNFLOW"
	// FileName is the config file base name searched in ./ and ~/.churnflow/.
	FileName = "churnflow"
)

// Global configuration structure. It is built once per process and passed
// explicitly to each stage; nothing mutates it after Load returns.
type Global struct {
	RawDataPath       string `mapstructure:"raw_data_path" yaml:"raw_data_path" validate:"required"`
	ProcessedDataPath string `mapstructure:"processed_data_path" yaml:"processed_data_path" validate:"required"`
	ReportsDir        string `mapstructure:"reports_dir" yaml:"reports_dir" validate:"required"`

	// TargetColumn is the raw column holding the churn label; it is renamed to LabelColumn.
	TargetColumn string `mapstructure:"target_column" yaml:"target_column" validate:"required"`
	LabelColumn  string `mapstructure:"label_column" yaml:"label_column" validate:"required"`
	// XLSXSheet selects the worksheet when the raw file is a workbook (empty = first sheet).
	XLSXSheet string `mapstructure:"xlsx_sheet" yaml:"xlsx_sheet"`

	PlotDPI         int  `mapstructure:"plot_dpi" yaml:"plot_dpi" validate:"min=50,max=600"`
	PlotMaxDisplay  int  `mapstructure:"plot_max_display" yaml:"plot_max_display" validate:"min=1,max=100"`
	CheckAdditivity bool `mapstructure:"check_additivity" yaml:"check_additivity"`

	// Observability
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
	Trace       bool   `mapstructure:"trace" yaml:"trace"`
}

// Defaults returns the configuration used when no file or env overrides exist.
func Defaults() Global {
	return Global{
		RawDataPath:       filepath.Join("data", "raw", "churn.csv"),
		ProcessedDataPath: filepath.Join("data", "processed", "churn.parquet"),
		ReportsDir:        "reports",
		TargetColumn:      "Target_Churn",
		LabelColumn:       "churn",
		PlotDPI:           200,
		PlotMaxDisplay:    20,
	}
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. An explicit cfgFile must exist.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("raw_data_path", d.RawDataPath)
	v.SetDefault("processed_data_path", d.ProcessedDataPath)
	v.SetDefault("reports_dir", d.ReportsDir)
	v.SetDefault("target_column", d.TargetColumn)
	v.SetDefault("label_column", d.LabelColumn)
	v.SetDefault("xlsx_sheet", "")
	v.SetDefault("plot_dpi", d.PlotDPI)
	v.SetDefault("plot_max_display", d.PlotMaxDisplay)
	v.SetDefault("check_additivity", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("trace", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".churnflow"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required keys and value ranges.
func (c *Global) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the given configuration to cfgFile. If cfgFile is empty,
// it writes to ~/.churnflow/churnflow.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".churnflow")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, FileName+".yaml")
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
