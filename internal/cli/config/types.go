// Package config loads shopflow configuration.
//
// Values are layered with koanf: built-in defaults, then shopflow.yaml,
// then SHOPFLOW_* environment variables, then explicitly set flags.
// Environment sections (environments.<name>) are merged last.
package config

import (
	"time"

	"github.com/leapstack-labs/shopflow/pkg/core"
)

// TargetConfig is the warehouse target.
type TargetConfig = core.TargetConfig

// Config holds the fully resolved CLI configuration.
type Config struct {
	// ProjectRoot is the directory relative paths resolve against.
	ProjectRoot string `koanf:"-"`

	ModelsDir    string               `koanf:"models_dir"`
	DataDir      string               `koanf:"data_dir"`
	ReportsDir   string               `koanf:"reports_dir"`
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	LogFormat    string               `koanf:"log_format"`
	Threads      int                  `koanf:"threads"`
	Vars         map[string]any       `koanf:"vars"`
	Target       *TargetConfig        `koanf:"target"`
	Generate     GenerateConfig       `koanf:"generate"`
	Serve        ServeConfig          `koanf:"serve"`
	Schedule     ScheduleConfig       `koanf:"schedule"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds per-environment overrides.
type EnvConfig struct {
	Target  *TargetConfig  `koanf:"target"`
	Vars    map[string]any `koanf:"vars"`
	Threads int            `koanf:"threads"`
	DataDir string         `koanf:"data_dir"`
}

// GenerateConfig holds defaults for `shopflow generate`.
type GenerateConfig struct {
	Seed      uint64      `koanf:"seed"`
	Customers int         `koanf:"customers"`
	Products  int         `koanf:"products"`
	Orders    int         `koanf:"orders"`
	Sessions  int         `koanf:"sessions"`
	Days      int         `koanf:"days"`
	StartDate string      `koanf:"start_date"`
	NoiseRate float64     `koanf:"noise_rate"`
	Sink      string      `koanf:"sink"` // csv or kafka
	Kafka     KafkaConfig `koanf:"kafka"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers     []string `koanf:"brokers"`
	TopicPrefix string   `koanf:"topic_prefix"`
	BatchSize   int      `koanf:"batch_size"`
}

// ServeConfig configures the dashboard server.
type ServeConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// RefreshSeconds adds a meta refresh to report pages when positive.
	RefreshSeconds int `koanf:"refresh_seconds"`
}

// ScheduleConfig configures `shopflow schedule`.
type ScheduleConfig struct {
	Every    time.Duration `koanf:"every"`
	Cron     string        `koanf:"cron"`
	Timezone string        `koanf:"timezone"`
}

// Default configuration values.
const (
	DefaultModelsDir  = "models"
	DefaultDataDir    = "data"
	DefaultReportsDir = "reports"
	DefaultStateFile  = ".shopflow/state.db"
	DefaultDatabase   = ".shopflow/warehouse.duckdb"
	DefaultEnv        = "dev"
	DefaultOutput     = "auto" // text on a TTY, markdown otherwise
	DefaultLogFormat  = "text"
	DefaultThreads    = 1
	DefaultServePort  = 8484
	DefaultSink       = "csv"
)

// ConfigFileNames are searched in order.
var ConfigFileNames = []string{"shopflow.yaml", "shopflow.yml"}
