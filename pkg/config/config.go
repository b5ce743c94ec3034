package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Environments the pipeline can run against. The environment selects
// credentials, the dataset suffix on every tier, and the test-run
// document cap.
var validEnvs = map[string]bool{
	"test": true,
	"dev":  true,
	"demo": true,
	"aids": true,
	"prod": true,
}

// TestDocumentCap bounds how many documents a collection contributes in
// the test environment.
const TestDocumentCap = 999

// Config holds all configuration for the sync pipeline. Values come
// from config.yaml with environment variable overrides; secrets only
// from environment variables (yaml:"-" fields).
type Config struct {
	// Env selects the target environment. DATASET_POSTFIX is the
	// historical variable name the schedulers already set.
	Env string `yaml:"env" env:"DATASET_POSTFIX" env-default:"dev"`

	// Team is stamped on every log record.
	Team string `yaml:"team" env:"TEAM" env-default:"datahub"`

	// NumWorkers is the shard count the coordinator balances across.
	NumWorkers int `yaml:"num_workers" env:"NUM_WORKERS" env-default:"4"`

	// BatchSize is the bulk-copy flush threshold in rows.
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE" env-default:"5000"`

	// ResetColumn forces schema discovery instead of reusing the live
	// table's columns.
	ResetColumn bool `yaml:"reset_column" env:"RESET_COLUMN" env-default:"false"`

	Source    SourceConfig    `yaml:"source"`
	Control   DatabaseConfig  `yaml:"control"`
	Staging   DatabaseConfig  `yaml:"staging"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
}

// SourceConfig locates the document store being mirrored.
type SourceConfig struct {
	// URI is the fallback connection string when no secret is
	// configured. Secret only, never in YAML.
	URI string `yaml:"-" env:"MONGO_URI"`

	// SecretProject/SecretName identify the Secret Manager secret
	// holding the connection string.
	SecretProject string `yaml:"secret_project" env:"MONGO_SECRET_PROJECT" env-default:""`
	SecretName    string `yaml:"secret_name" env:"MONGO_SECRET_NAME" env-default:""`

	// Database is the source database whose collections are mirrored.
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"datahub"`
}

// DatabaseConfig holds PostgreSQL connection settings for one tier.
// The database name is derived from Env, not configured.
type DatabaseConfig struct {
	Host           string `yaml:"host" env-default:"localhost"`
	Port           int    `yaml:"port" env-default:"5432"`
	User           string `yaml:"user" env-default:"datahub"`
	Password       string `yaml:"-"`
	SSLMode        string `yaml:"ssl_mode" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env-default:"5"`
}

// WarehouseConfig locates the analytics warehouse.
type WarehouseConfig struct {
	// ProjectID is the warehouse billing project.
	ProjectID string `yaml:"project_id" env:"BQ_PROJECT_ID" env-default:""`

	// PGDataset is the federated connection resource the warehouse
	// uses to read the staging store, e.g.
	// "projectid.asia-east1.mongo-dev".
	PGDataset string `yaml:"pg_dataset" env:"BQ_PG_DATASET" env-default:""`

	// PollSeconds is the job poll interval.
	PollSeconds int `yaml:"poll_seconds" env:"BQ_POLL_SECONDS" env-default:"5"`
}

// Load reads config.yaml with environment variable overrides. The file
// is optional: scheduled invocations often carry everything in the
// environment.
func Load() (*Config, error) {
	return load("config.yaml")
}

func load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	// Passwords follow the Postgres convention per tier.
	cfg.Control.Password = os.Getenv("CONTROL_PGPASSWORD")
	cfg.Staging.Password = os.Getenv("STAGING_PGPASSWORD")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !validEnvs[c.Env] {
		return fmt.Errorf("invalid env %q: must be one of test|dev|demo|aids|prod", c.Env)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// ValidateWorkerID checks a shard id against the configured shard count.
func (c *Config) ValidateWorkerID(workerID int) error {
	if workerID < 0 || workerID >= c.NumWorkers {
		return fmt.Errorf("worker_id %d out of range [0, %d)", workerID, c.NumWorkers)
	}
	return nil
}

// ControlDatabase is the control database holding the sync ledger.
func (c *Config) ControlDatabase() string { return "mongo2postgres" }

// StagingDatabase is the staging database holding the mirrored tables.
func (c *Config) StagingDatabase() string { return "mongo_" + c.Env }

// LedgerTable is the per-environment control table name.
func (c *Config) LedgerTable() string { return "sync_table_" + c.Env }

// BQDataset is the warehouse mirror dataset for this environment.
func (c *Config) BQDataset() string { return "raw_" + c.Env + "_datahub_mongo" }

// IsTest reports whether test-run caps apply.
func (c *Config) IsTest() bool { return c.Env == "test" }

// DSN renders a connection string for one tier against the given
// database name.
func (d *DatabaseConfig) DSN(database string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, database, d.SSLMode,
	)
}
