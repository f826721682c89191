package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Addr          string `yaml:"addr" env:"ADV_ADDR"`
	BlueprintsDir string `yaml:"blueprints_dir" env:"ADV_BLUEPRINTS"`
	// Empty means the tables compiled into the binary.
	CatalogsDir string `yaml:"catalogs_dir" env:"ADV_CATALOGS"`
	DataDir     string `yaml:"data_dir" env:"ADV_DATA"`

	LogLevel  string `yaml:"log_level" env:"ADV_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"ADV_LOG_FORMAT"`

	DisableDB      bool `yaml:"disable_db" env:"ADV_DISABLE_DB"`
	DisableJournal bool `yaml:"disable_journal" env:"ADV_DISABLE_JOURNAL"`

	MaxCreateDepth int `yaml:"max_create_depth" env:"ADV_MAX_CREATE_DEPTH"`
	EventBuffer    int `yaml:"event_buffer" env:"ADV_EVENT_BUFFER"`
}

func Defaults() Tuning {
	return Tuning{
		Addr:           ":8080",
		BlueprintsDir:  "./configs/blueprints",
		DataDir:        "./data",
		LogLevel:       "info",
		LogFormat:      "text",
		MaxCreateDepth: 8,
		EventBuffer:    1024,
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, t.Validate()
}

// ApplyEnv overrides fields from ADV_* variables that are set.
func (t *Tuning) ApplyEnv() error {
	if err := env.Parse(t); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return t.Validate()
}

func (t Tuning) Validate() error {
	if strings.TrimSpace(t.Addr) == "" {
		return fmt.Errorf("tuning: addr is empty")
	}
	if t.BlueprintsDir == "" {
		return fmt.Errorf("tuning: blueprints_dir is empty")
	}
	switch strings.ToLower(t.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("tuning: log_format %q (want text or json)", t.LogFormat)
	}
	if t.MaxCreateDepth < 2 {
		return fmt.Errorf("tuning: max_create_depth %d below 2", t.MaxCreateDepth)
	}
	if t.EventBuffer <= 0 {
		return fmt.Errorf("tuning: event_buffer must be positive")
	}
	if t.DataDir == "" && !(t.DisableDB && t.DisableJournal) {
		return fmt.Errorf("tuning: data_dir is required unless db and journal are disabled")
	}
	return nil
}
