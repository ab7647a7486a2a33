// Package config loads environment defaults for the server flags and the
// optional registry override file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hjson/hjson-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"world-study/pkg/worlddata"
)

// Prefix is the environment variable prefix, e.g. WORLD_STUDY_PORT.
const Prefix = "WORLD_STUDY"

// Settings are the environment-provided defaults. Command-line flags win
// over them.
type Settings struct {
	Port      int    `envconfig:"PORT" default:"8765"`
	Domain    string `envconfig:"DOMAIN"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Regions   string `envconfig:"REGIONS"`
	Snapshot  string `envconfig:"SNAPSHOT"`
	Overrides string `envconfig:"OVERRIDES"`
	PublicURL string `envconfig:"PUBLIC_URL"`

	DBType    string `envconfig:"DB_TYPE"`
	DBPath    string `envconfig:"DB_PATH"`
	DBConn    string `envconfig:"DB_CONN"`
	DBHost    string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort    int    `envconfig:"DB_PORT" default:"5432"`
	DBUser    string `envconfig:"DB_USER" default:"postgres"`
	DBPass    string `envconfig:"DB_PASS"`
	DBName    string `envconfig:"DB_NAME" default:"world_study"`
	PGSSLMode string `envconfig:"PG_SSL_MODE" default:"prefer"`
}

// Load reads .env files (missing files are ignored) and then the process
// environment.
func Load(envFiles ...string) (Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// Overrides adjusts the registry build options. Absent fields keep the
// defaults.
type Overrides struct {
	Scale         map[string]float64 `json:"scale"`
	Exclude       *[]string          `json:"exclude"`
	Tolerance     *float64           `json:"tolerance"`
	FlipY         *bool              `json:"flip_y"`
	CapitalRadius *float64           `json:"capital_radius"`
}

// ParseOverrides decodes an Hjson override document.
func ParseOverrides(data []byte) (Overrides, error) {
	var generic map[string]any
	if err := hjson.Unmarshal(data, &generic); err != nil {
		return Overrides{}, fmt.Errorf("config: overrides: %w", err)
	}
	js, err := json.Marshal(generic)
	if err != nil {
		return Overrides{}, fmt.Errorf("config: overrides: %w", err)
	}
	var o Overrides
	if err := json.Unmarshal(js, &o); err != nil {
		return Overrides{}, fmt.Errorf("config: overrides: %w", err)
	}
	return o, nil
}

// LoadOverrides reads and parses an override file.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("config: %w", err)
	}
	return ParseOverrides(data)
}

// Apply returns opt with the overrides applied. Scale entries are merged
// into the existing map; a zero or negative scale removes the entry.
func (o Overrides) Apply(opt worlddata.Options) (worlddata.Options, error) {
	scale := make(map[string]float64, len(opt.ScaleOverrides)+len(o.Scale))
	for id, f := range opt.ScaleOverrides {
		scale[worlddata.NormalizeID(id)] = f
	}
	for id, f := range o.Scale {
		if f <= 0 {
			delete(scale, worlddata.NormalizeID(id))
			continue
		}
		scale[worlddata.NormalizeID(id)] = f
	}
	opt.ScaleOverrides = scale

	if o.Exclude != nil {
		opt.Exclude = append([]string(nil), (*o.Exclude)...)
	}
	if o.Tolerance != nil {
		if *o.Tolerance < 0 {
			return opt, fmt.Errorf("config: negative tolerance %v", *o.Tolerance)
		}
		opt.Tolerance = *o.Tolerance
	}
	if o.FlipY != nil {
		opt.FlipY = *o.FlipY
	}
	if o.CapitalRadius != nil {
		opt.CapitalRadius = *o.CapitalRadius
	}
	return opt, nil
}
