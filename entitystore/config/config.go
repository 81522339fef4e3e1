// Package config loads the settings of an application composing entity stores: which engine backs
// the providers, connection settings per engine, the optional Redis cache and Kafka event sink,
// behavior switches, logging and the filter catalog.
//
// Settings come from an optional YAML file, overridden by ENTITYSTORE_* environment variables,
// for example ENTITYSTORE_ENGINE=postgres or ENTITYSTORE_POSTGRES_DSN=postgres://...
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore/behaviors"
)

var ErrInvalidSettings = errors.New("invalid settings")

const EnvPrefix = "ENTITYSTORE"

const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
	EngineMongo    = "mongo"
)

type Settings struct {
	Engine    string    `mapstructure:"engine"    validate:"oneof=memory postgres sqlite mongo"`
	Postgres  Postgres  `mapstructure:"postgres"`
	SQLite    SQLite    `mapstructure:"sqlite"`
	Mongo     Mongo     `mapstructure:"mongo"`
	Redis     Redis     `mapstructure:"redis"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Behaviors Behaviors `mapstructure:"behaviors"`
	Logging   Logging   `mapstructure:"logging"`
	Catalog   Catalog   `mapstructure:"catalog"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`

	// ReplicaDSN is used for reads under eventual consistency when set.
	ReplicaDSN  string `mapstructure:"replica_dsn"`
	OutboxTable string `mapstructure:"outbox_table" validate:"required"`
}

type SQLite struct {
	Path string `mapstructure:"path"`
}

type Mongo struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type Redis struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Behaviors struct {
	Logging      bool   `mapstructure:"logging"`
	Audit        bool   `mapstructure:"audit"`
	SoftDelete   bool   `mapstructure:"soft_delete"`
	DomainEvents bool   `mapstructure:"domain_events"`
	PublishPhase string `mapstructure:"publish_phase" validate:"oneof=before after"`
	EventOrder   string `mapstructure:"event_order"   validate:"oneof=parent_first child_first"`
}

type Logging struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type Catalog struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", EngineMemory)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.replica_dsn", "")
	v.SetDefault("postgres.outbox_table", "entity_outbox")
	v.SetDefault("sqlite.path", "entitystore.db")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "entitystore")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "entity-events")
	v.SetDefault("behaviors.logging", true)
	v.SetDefault("behaviors.audit", true)
	v.SetDefault("behaviors.soft_delete", false)
	v.SetDefault("behaviors.domain_events", true)
	v.SetDefault("behaviors.publish_phase", "after")
	v.SetDefault("behaviors.event_order", "parent_first")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("catalog.path", "")
}

// Load reads settings from path, which may be empty to use defaults and the environment only.
// The loaded settings are validated.
func Load(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("reading settings: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

// Validate checks the field constraints and the settings the selected engine and the enabled
// integrations depend on.
func (s Settings) Validate() error {
	var errs []error

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(s); err != nil {
		errs = append(errs, err)
	}

	switch s.Engine {
	case EnginePostgres:
		if s.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres engine"))
		}
	case EngineSQLite:
		if s.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite engine"))
		}
	case EngineMongo:
		if !strings.HasPrefix(s.Mongo.URI, "mongodb://") && !strings.HasPrefix(s.Mongo.URI, "mongodb+srv://") {
			errs = append(errs, errors.New("mongo.uri must start with mongodb:// or mongodb+srv://"))
		}
		if s.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.database is required for the mongo engine"))
		}
	}

	if s.Redis.Enabled && s.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}

	if s.Kafka.Enabled && (len(s.Kafka.Brokers) == 0 || s.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}

	if s.Behaviors.SoftDelete && !s.Behaviors.Audit {
		errs = append(errs, errors.New("behaviors.soft_delete requires behaviors.audit"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}

	return nil
}

func (b Behaviors) Phase() behaviors.PublishPhase {
	if b.PublishPhase == "before" {
		return behaviors.PublishBefore
	}

	return behaviors.PublishAfter
}

func (b Behaviors) Order() behaviors.EventOrder {
	if b.EventOrder == "child_first" {
		return behaviors.ChildFirst
	}

	return behaviors.ParentFirst
}

// SlogLevel converts Level, which Validate restricts to known names.
func (l Logging) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}
