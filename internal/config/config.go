// Package config holds the settings of the countries data-access layer.
//
// Settings come from an optional YAML file, are overridden by COUNTRIES_*
// environment variables, and are clamped into their supported ranges by
// Normalize:
//
//	COUNTRIES_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	COUNTRIES_SQLITE_PATH: sqlite file (default ./countries.db)
//	COUNTRIES_POSTGRES_DSN: postgres DSN when driver=postgres
//	COUNTRIES_UPDATE_RETRY_LIMIT: attempts per save, 1..5 (default 3)
//	COUNTRIES_UPDATE_RETRY_INTERVAL_MINUTES: pause between attempts, 1..15 (default 5)
//	COUNTRIES_SQL_COMMAND_TIMEOUT_SECONDS: per-command timeout (default 1800)
//	COUNTRIES_SQL_COMMAND_TIMEOUT_SECONDS_MINIMUM: floor of the timeout, >= 30
//	COUNTRIES_TRANSACTION_SCOPE: Required|RequiresNew|Suppress
//	COUNTRIES_ISOLATION_LEVEL: ReadUncommitted|ReadCommitted|RepeatableRead|Serializable|Snapshot
//	COUNTRIES_LOG_CHANGES_DURING_SAVE, COUNTRIES_VALIDATE_ON_SAVE,
//	COUNTRIES_PROXY_CREATION, COUNTRIES_LAZY_LOADING,
//	COUNTRIES_GUARD_CONCURRENT_USE: true|false
//	COUNTRIES_BLOB_DRIVER: fs|s3|memory (default fs)
//	COUNTRIES_BLOB_FS_ROOT, COUNTRIES_BLOB_S3_BUCKET, COUNTRIES_BLOB_S3_REGION,
//	COUNTRIES_BLOB_S3_ENDPOINT, COUNTRIES_BLOB_S3_PATH_STYLE
package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Retry and timeout bounds.
const (
	DefaultUpdateRetryLimit           = 3
	MaxUpdateRetryLimit               = 5
	DefaultUpdateRetryIntervalMinutes = 5
	MaxUpdateRetryIntervalMinutes     = 15
	MinCommandTimeoutSeconds          = 30
	DefaultCommandTimeoutSeconds      = 1800
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COUNTRIES_"

// TransactionScope controls how a save relates to an ambient transaction.
type TransactionScope string

const (
	// ScopeRequired joins an ambient transaction or opens a new one.
	ScopeRequired TransactionScope = "Required"
	// ScopeRequiresNew always opens a new transaction.
	ScopeRequiresNew TransactionScope = "RequiresNew"
	// ScopeSuppress runs without a transaction.
	ScopeSuppress TransactionScope = "Suppress"
)

// ParseTransactionScope accepts scope names case-insensitively.
func ParseTransactionScope(s string) (TransactionScope, error) {
	for _, scope := range []TransactionScope{ScopeRequired, ScopeRequiresNew, ScopeSuppress} {
		if strings.EqualFold(strings.TrimSpace(s), string(scope)) {
			return scope, nil
		}
	}
	return "", errors.Errorf("unknown transaction scope %q", s)
}

var isolationLevels = map[string]sql.IsolationLevel{
	"readuncommitted": sql.LevelReadUncommitted,
	"readcommitted":   sql.LevelReadCommitted,
	"repeatableread":  sql.LevelRepeatableRead,
	"serializable":    sql.LevelSerializable,
	"snapshot":        sql.LevelSnapshot,
}

// ParseIsolationLevel maps names such as "ReadCommitted" or "read committed"
// onto database/sql levels.
func ParseIsolationLevel(s string) (sql.IsolationLevel, error) {
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	if lvl, ok := isolationLevels[key]; ok {
		return lvl, nil
	}
	return sql.LevelDefault, errors.Errorf("unknown isolation level %q", s)
}

// StorageConfig selects the database.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects where exported reports are written.
type BlobConfig struct {
	Driver      string `yaml:"driver"`
	FSRoot      string `yaml:"fs_root"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Config is passed to the manager constructor.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Log     LogConfig     `yaml:"log"`

	UpdateRetryLimit                int              `yaml:"update_retry_limit"`
	UpdateRetryIntervalMinutes      int              `yaml:"update_retry_interval_minutes"`
	SQLCommandTimeoutSeconds        int              `yaml:"sql_command_timeout_seconds"`
	SQLCommandTimeoutSecondsMinimum int              `yaml:"sql_command_timeout_seconds_minimum"`
	TransactionScope                TransactionScope `yaml:"transaction_scope"`
	IsolationLevel                  string           `yaml:"isolation_level"`

	LogChangesDuringSave  bool `yaml:"log_changes_during_save"`
	ValidateOnSaveEnabled bool `yaml:"validate_on_save_enabled"`
	// AutoDetectChangesEnabled makes Manager.HasChanges reconcile before it
	// inspects the tracker.
	AutoDetectChangesEnabled bool `yaml:"auto_detect_changes_enabled"`
	// ProxyCreationEnabled turns on dirty-field tracking: only fields written
	// through domain.SetField are diffed.
	ProxyCreationEnabled bool `yaml:"proxy_creation_enabled"`
	LazyLoadingEnabled   bool `yaml:"lazy_loading_enabled"`
	GuardConcurrentUse   bool `yaml:"guard_concurrent_use"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Storage:                         StorageConfig{Driver: "sqlite", SQLitePath: "countries.db"},
		Blob:                            BlobConfig{Driver: "fs", FSRoot: "./blobdata"},
		Log:                             LogConfig{Level: "warn", Format: "text"},
		UpdateRetryLimit:                DefaultUpdateRetryLimit,
		UpdateRetryIntervalMinutes:      DefaultUpdateRetryIntervalMinutes,
		SQLCommandTimeoutSeconds:        DefaultCommandTimeoutSeconds,
		SQLCommandTimeoutSecondsMinimum: MinCommandTimeoutSeconds,
		TransactionScope:                ScopeRequired,
		IsolationLevel:                  "ReadCommitted",
		ValidateOnSaveEnabled:           true,
		AutoDetectChangesEnabled:        true,
		ProxyCreationEnabled:            true,
		LazyLoadingEnabled:              true,
		GuardConcurrentUse:              true,
	}
}

// Load reads path over the defaults, applies environment overrides and
// normalizes. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parse config")
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from COUNTRIES_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []string
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Blob.S3Bucket)
	str("BLOB_S3_REGION", &c.Blob.S3Region)
	str("BLOB_S3_ENDPOINT", &c.Blob.S3Endpoint)
	flag("BLOB_S3_PATH_STYLE", &c.Blob.S3PathStyle)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	num("UPDATE_RETRY_LIMIT", &c.UpdateRetryLimit)
	num("UPDATE_RETRY_INTERVAL_MINUTES", &c.UpdateRetryIntervalMinutes)
	num("SQL_COMMAND_TIMEOUT_SECONDS", &c.SQLCommandTimeoutSeconds)
	num("SQL_COMMAND_TIMEOUT_SECONDS_MINIMUM", &c.SQLCommandTimeoutSecondsMinimum)
	var scope string
	str("TRANSACTION_SCOPE", &scope)
	if scope != "" {
		c.TransactionScope = TransactionScope(scope)
	}
	str("ISOLATION_LEVEL", &c.IsolationLevel)
	flag("LOG_CHANGES_DURING_SAVE", &c.LogChangesDuringSave)
	flag("VALIDATE_ON_SAVE", &c.ValidateOnSaveEnabled)
	flag("AUTO_DETECT_CHANGES", &c.AutoDetectChangesEnabled)
	flag("PROXY_CREATION", &c.ProxyCreationEnabled)
	flag("LAZY_LOADING", &c.LazyLoadingEnabled)
	flag("GUARD_CONCURRENT_USE", &c.GuardConcurrentUse)

	if len(errs) > 0 {
		return errors.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Normalize clamps numeric settings into range and validates the names of
// the transaction scope and isolation level.
func (c *Config) Normalize() error {
	if c.UpdateRetryLimit < 1 || c.UpdateRetryLimit > MaxUpdateRetryLimit {
		c.UpdateRetryLimit = DefaultUpdateRetryLimit
	}
	if c.UpdateRetryIntervalMinutes < 1 || c.UpdateRetryIntervalMinutes > MaxUpdateRetryIntervalMinutes {
		c.UpdateRetryIntervalMinutes = DefaultUpdateRetryIntervalMinutes
	}
	if c.SQLCommandTimeoutSecondsMinimum < MinCommandTimeoutSeconds {
		c.SQLCommandTimeoutSecondsMinimum = MinCommandTimeoutSeconds
	}
	switch {
	case c.SQLCommandTimeoutSeconds == 0:
		c.SQLCommandTimeoutSeconds = DefaultCommandTimeoutSeconds
	case c.SQLCommandTimeoutSeconds < c.SQLCommandTimeoutSecondsMinimum:
		c.SQLCommandTimeoutSeconds = c.SQLCommandTimeoutSecondsMinimum
	}

	if c.TransactionScope == "" {
		c.TransactionScope = ScopeRequired
	}
	scope, err := ParseTransactionScope(string(c.TransactionScope))
	if err != nil {
		return err
	}
	c.TransactionScope = scope
	if c.IsolationLevel == "" {
		c.IsolationLevel = "ReadCommitted"
	}
	if _, err := ParseIsolationLevel(c.IsolationLevel); err != nil {
		return err
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "fs"
	}
	return nil
}

// RetryInterval is the pause between save attempts.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.UpdateRetryIntervalMinutes) * time.Minute
}

// CommandTimeout bounds a single save attempt or native command.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.SQLCommandTimeoutSeconds) * time.Second
}

// Isolation returns the parsed isolation level, ReadCommitted when unset or
// unknown.
func (c Config) Isolation() sql.IsolationLevel {
	lvl, err := ParseIsolationLevel(c.IsolationLevel)
	if err != nil {
		return sql.LevelReadCommitted
	}
	return lvl
}
