// Package config resolves the configurator's process settings.
//
// Settings come from four places; highest wins:
//
//	CLI flags > environment variables > optional YAML file > defaults
//
// Every key binds a MATCHFORGE_* environment variable and (with one
// exception, the subcommand fallback) a CLI flag. Values resolve as strings
// and are coerced afterwards, so a non-numeric integer in the environment
// fails resolution instead of silently becoming zero. Missing optional
// values stay empty; Validate decides what a subcommand actually needs.
//
// Example usage:
//
//	flags := pflag.NewFlagSet("service", pflag.ContinueOnError)
//	config.AddFlags(flags)
//	_ = flags.Parse(os.Args[1:])
//
//	settings, err := config.Resolve(flags)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/dburl"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
)

// Settings is the resolved process configuration.
type Settings struct {
	// ConfigPath locates the engine's configuration artifacts.
	ConfigPath string `yaml:"config_path" json:"config_path"`

	// DatabaseURLGeneric is the canonical, engine-agnostic URL of the
	// engine's configuration store.
	DatabaseURLGeneric string `yaml:"database_url_generic,omitempty" json:"database_url_generic,omitempty"`

	// DatabaseURLSpecific is derived during resolution: the driver-facing
	// form of DatabaseURLGeneric, or a synthesized sqlite URL when
	// InternalDatabase is set. Empty when derivation failed.
	DatabaseURLSpecific string `yaml:"database_url_specific,omitempty" json:"database_url_specific,omitempty"`

	// Debug enables debug logging and verbose engine initialization.
	Debug bool `yaml:"debug" json:"debug"`

	// EngineConfigurationJSON, when set, is handed to engine
	// initialization verbatim instead of the document built by
	// EngineSettingsJSON.
	EngineConfigurationJSON string `yaml:"engine_configuration_json,omitempty" json:"engine_configuration_json,omitempty"`

	// EngineURL is the base URL of the engine service.
	EngineURL string `yaml:"engine_url" json:"engine_url"`

	// EngineAPIVersion pins the engine service API major version.
	// Zero probes the service at startup.
	EngineAPIVersion int `yaml:"engine_api_version" json:"engine_api_version" validate:"oneof=0 2 3"`

	// Host is the HTTP listen address.
	Host string `yaml:"host" json:"host"`

	// InternalDatabase, when set, names a process-local sqlite database
	// seeded from SeedDatabasePath at resolution.
	InternalDatabase string `yaml:"internal_database,omitempty" json:"internal_database,omitempty"`

	// KafkaBootstrapServers lists Kafka brokers for activation events,
	// comma-separated. Empty disables publishing.
	KafkaBootstrapServers string `yaml:"kafka_bootstrap_servers,omitempty" json:"kafka_bootstrap_servers,omitempty"`

	// KafkaTopic is the topic activation events are published to.
	KafkaTopic string `yaml:"kafka_topic" json:"kafka_topic"`

	// LicenseBase64Encoded is the base64-encoded engine license string.
	LicenseBase64Encoded string `yaml:"license_base64_encoded,omitempty" json:"license_base64_encoded,omitempty"`

	// LogLevel sets logging verbosity.
	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`

	// MaxConnections caps concurrent HTTP connections. Zero is unlimited.
	MaxConnections int `yaml:"max_connections" json:"max_connections" validate:"gte=0"`

	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`

	// ResourcePath locates the engine's resource files.
	ResourcePath string `yaml:"resource_path" json:"resource_path"`

	// SeedDatabasePath is the bundled database copied to InternalDatabase.
	SeedDatabasePath string `yaml:"seed_database_path" json:"seed_database_path"`

	// SleepTimeInSeconds is the sleep subcommand's duration. Zero sleeps
	// forever.
	SleepTimeInSeconds int `yaml:"sleep_time_in_seconds" json:"sleep_time_in_seconds" validate:"gte=0"`

	// Subcommand records which subcommand runs; settable only through the
	// environment, as the fallback when no CLI arguments are given.
	Subcommand string `yaml:"subcommand,omitempty" json:"subcommand,omitempty"`

	// SupportPath locates the engine's support data.
	SupportPath string `yaml:"support_path" json:"support_path"`
}

const (
	kindString = iota
	kindInt
	kindBool
)

// binding wires one settings key to its default, environment variable, and
// CLI flag.
type binding struct {
	key   string
	flag  string
	env   string
	def   string
	kind  int
	usage string
}

var bindings = []binding{
	{"config_file", "config-file", "MATCHFORGE_CONFIG_FILE", "", kindString,
		"YAML settings file, read below environment variables"},
	{"config_path", "config-path", "MATCHFORGE_CONFIG_PATH", "/etc/opt/matchforge", kindString,
		"directory holding the engine's configuration artifacts"},
	{"database_url_generic", "database-url", "MATCHFORGE_DATABASE_URL", "sqlite3://na:na@/var/opt/matchforge/sqlite/MF.db", kindString,
		"canonical URL of the engine configuration store"},
	{"debug", "debug", "MATCHFORGE_DEBUG", "false", kindBool,
		"enable debug logging"},
	{"engine_configuration_json", "engine-configuration-json", "MATCHFORGE_ENGINE_CONFIGURATION_JSON", "", kindString,
		"verbatim engine settings document, overriding the built one"},
	{"engine_url", "engine-url", "MATCHFORGE_ENGINE_URL", "", kindString,
		"base URL of the engine service"},
	{"engine_api_version", "engine-api-version", "MATCHFORGE_ENGINE_API_VERSION", "0", kindInt,
		"engine service API major version (0 probes at startup)"},
	{"host", "host", "MATCHFORGE_HOST", "0.0.0.0", kindString,
		"HTTP listen address"},
	{"internal_database", "internal-database", "MATCHFORGE_INTERNAL_DATABASE", "", kindString,
		"path of a process-local sqlite database seeded at startup"},
	{"kafka_bootstrap_servers", "kafka-bootstrap-servers", "MATCHFORGE_KAFKA_BOOTSTRAP_SERVERS", "", kindString,
		"comma-separated Kafka brokers for activation events"},
	{"kafka_topic", "kafka-topic", "MATCHFORGE_KAFKA_TOPIC", "matchforge-config-events", kindString,
		"Kafka topic for activation events"},
	{"license_base64_encoded", "license-base64-encoded", "MATCHFORGE_LICENSE_BASE64_ENCODED", "", kindString,
		"base64-encoded engine license string"},
	{"log_level", "log-level", "MATCHFORGE_LOG_LEVEL", "info", kindString,
		"log level (debug, info, warn, error)"},
	{"max_connections", "max-connections", "MATCHFORGE_MAX_CONNECTIONS", "0", kindInt,
		"maximum concurrent HTTP connections (0 = unlimited)"},
	{"port", "port", "MATCHFORGE_PORT", "8253", kindInt,
		"HTTP listen port"},
	{"resource_path", "resource-path", "MATCHFORGE_RESOURCE_PATH", "/opt/matchforge/resources", kindString,
		"directory holding the engine's resource files"},
	{"seed_database_path", "seed-database-path", "MATCHFORGE_SEED_DATABASE_PATH", "/var/opt/matchforge/data/MF.db", kindString,
		"bundled database copied to internal-database at startup"},
	{"sleep_time_in_seconds", "sleep-time-in-seconds", "MATCHFORGE_SLEEP_TIME_IN_SECONDS", "0", kindInt,
		"sleep subcommand duration (0 = forever)"},
	{"subcommand", "", "MATCHFORGE_SUBCOMMAND", "", kindString, ""},
	{"support_path", "support-path", "MATCHFORGE_SUPPORT_PATH", "/opt/matchforge/data", kindString,
		"directory holding the engine's support data"},
}

// AddFlags registers every settings flag on fs. Defaults shown in help
// match the resolution defaults.
func AddFlags(fs *pflag.FlagSet) {
	for _, b := range bindings {
		if b.flag == "" {
			continue
		}
		switch b.kind {
		case kindBool:
			def, _ := strconv.ParseBool(b.def)
			fs.Bool(b.flag, def, b.usage)
		case kindInt:
			def, _ := strconv.Atoi(b.def)
			fs.Int(b.flag, def, b.usage)
		default:
			fs.String(b.flag, b.def, b.usage)
		}
	}
}

// Resolve merges defaults, the optional YAML settings file, environment
// variables, and CLI flags into one Settings value, then applies the
// coercion and derivation steps. flags may be nil.
//
// Resolution never fails on missing optional values. It fails on
// non-numeric integer keys, unreadable settings files, and internal
// database preparation errors. A database URL whose dialect form cannot be
// derived is logged and leaves DatabaseURLSpecific empty rather than
// failing; subcommands that need the store reject it at startup.
func Resolve(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "binding environment variable").
				WithDetail("key", b.key)
		}
		if flags == nil || b.flag == "" {
			continue
		}
		if f := flags.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig, "binding flag").
					WithDetail("flag", b.flag)
			}
		}
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "reading settings file").
				WithDetail("config_file", path)
		}
	}

	s := &Settings{
		ConfigPath:              v.GetString("config_path"),
		DatabaseURLGeneric:      v.GetString("database_url_generic"),
		Debug:                   truthy(v.GetString("debug")),
		EngineConfigurationJSON: v.GetString("engine_configuration_json"),
		EngineURL:               v.GetString("engine_url"),
		Host:                    v.GetString("host"),
		InternalDatabase:        v.GetString("internal_database"),
		KafkaBootstrapServers:   v.GetString("kafka_bootstrap_servers"),
		KafkaTopic:              v.GetString("kafka_topic"),
		LicenseBase64Encoded:    v.GetString("license_base64_encoded"),
		LogLevel:                v.GetString("log_level"),
		ResourcePath:            v.GetString("resource_path"),
		SeedDatabasePath:        v.GetString("seed_database_path"),
		Subcommand:              v.GetString("subcommand"),
		SupportPath:             v.GetString("support_path"),
	}

	var err error
	if s.EngineAPIVersion, err = intKey(v, "engine_api_version"); err != nil {
		return nil, err
	}
	if s.MaxConnections, err = intKey(v, "max_connections"); err != nil {
		return nil, err
	}
	if s.Port, err = intKey(v, "port"); err != nil {
		return nil, err
	}
	if s.SleepTimeInSeconds, err = intKey(v, "sleep_time_in_seconds"); err != nil {
		return nil, err
	}

	for _, p := range []*string{&s.ConfigPath, &s.ResourcePath, &s.SupportPath} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolving absolute path").
				WithDetail("path", *p)
		}
		*p = abs
	}

	if s.InternalDatabase != "" {
		if err := prepareInternalDatabase(s.SeedDatabasePath, s.InternalDatabase); err != nil {
			return nil, err
		}
		s.DatabaseURLSpecific = "sqlite3://na:na@" + s.InternalDatabase
	} else if specific, derr := dburl.ToDialectURL(s.DatabaseURLGeneric); derr != nil {
		logger.Error("could not derive dialect-specific database URL", zap.Error(derr))
	} else {
		s.DatabaseURLSpecific = specific
	}

	return s, nil
}

// Addr returns the HTTP listen address in host:port form.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// truthy reports whether value is one of the accepted true tokens. Anything
// else, including the empty string, is false.
func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "t", "y", "yes":
		return true
	}
	return false
}

func intKey(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "invalid integer setting").
			WithDetail("key", key).
			WithDetail("value", raw)
	}
	return n, nil
}

// prepareInternalDatabase copies the bundled seed database to path so the
// process starts with a private, writable store.
func prepareInternalDatabase(seedPath, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "creating internal database directory").
			WithDetail("internal_database", path)
	}
	seed, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "reading seed database").
			WithDetail("seed_database_path", seedPath)
	}
	if err := os.WriteFile(path, seed, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "copying seed database").
			WithDetail("internal_database", path)
	}
	return nil
}
