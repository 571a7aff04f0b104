// Package config loads the bridge configuration from YAML with TECHLIFE_* environment overrides.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nlowe/techlife/mqtt"
)

// EnvPrefix prefixes every environment variable that overrides a config key.
const EnvPrefix = "TECHLIFE_"

const (
	DefaultBroker          = "mqtt://localhost:1883"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultTopicPrefix     = "techlife"
	DefaultListen          = ":9466"
	DefaultKeepAlive       = 20
	DefaultSessionExpiry   = 60
	DefaultDataDir         = "."

	// DatabaseFile is the name of the config entry database inside DataDir.
	DatabaseFile = "techlife.db"
)

var (
	// ErrNotFound is the error returned by FindConfig when no config file exists on the search path.
	ErrNotFound = errors.New("no config file found")
	// ErrInvalid is wrapped by every error returned from Config.Validate.
	ErrInvalid = errors.New("invalid config")
)

// Schemes accepted in mqtt.broker.
var brokerSchemes = []string{"mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss"}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientID defaults to techlife-<random uuid>.
	ClientID string `yaml:"client_id"`

	// KeepAlive in seconds
	KeepAlive uint16 `yaml:"keep_alive"`
	// SessionExpiry is how long, in seconds, the broker keeps the session after a disconnect.
	SessionExpiry uint32 `yaml:"session_expiry"`
}

type Config struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`

	// DataDir holds the config entry database.
	DataDir string `yaml:"data_dir"`

	// Listen is the address the metrics and health endpoints are served on. Empty disables them.
	Listen string `yaml:"listen"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file sets a key.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:        DefaultBroker,
			KeepAlive:     DefaultKeepAlive,
			SessionExpiry: DefaultSessionExpiry,
		},
		DiscoveryPrefix: DefaultDiscoveryPrefix,
		TopicPrefix:     DefaultTopicPrefix,
		DataDir:         DefaultDataDir,
		Listen:          DefaultListen,
		LogLevel:        "info",
	}
}

// DefaultSearchPaths returns the config file search order: ./techlife.yaml, ~/.config/techlife/techlife.yaml,
// /etc/techlife/techlife.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"techlife.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "techlife", "techlife.yaml"))
	}

	return append(paths, "/etc/techlife/techlife.yaml")
}

// FindConfig locates a config file. If explicit is non-empty it must exist. Otherwise the first existing file in
// DefaultSearchPaths is returned, or ErrNotFound.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}

		return explicit, nil
	}

	paths := DefaultSearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNotFound, paths)
}

// Load reads the YAML file at path over Default, expanding environment variables in the file. An empty path skips
// the file. TECHLIFE_* overrides are applied afterward, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.MQTT.ClientID = cmp.Or(cfg.MQTT.ClientID, "techlife-"+uuid.NewString())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MQTT_BROKER":      &c.MQTT.Broker,
		"MQTT_USERNAME":    &c.MQTT.Username,
		"MQTT_PASSWORD":    &c.MQTT.Password,
		"MQTT_CLIENT_ID":   &c.MQTT.ClientID,
		"DISCOVERY_PREFIX": &c.DiscoveryPrefix,
		"TOPIC_PREFIX":     &c.TopicPrefix,
		"DATA_DIR":         &c.DataDir,
		"LISTEN":           &c.Listen,
		"LOG_LEVEL":        &c.LogLevel,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	var err error
	if v, ok := lookup(EnvPrefix + "MQTT_KEEP_ALIVE"); ok {
		n, pErr := strconv.ParseUint(v, 10, 16)
		if pErr != nil {
			err = errors.Join(err, fmt.Errorf("%sMQTT_KEEP_ALIVE: %w", EnvPrefix, pErr))
		}
		c.MQTT.KeepAlive = uint16(n)
	}

	if v, ok := lookup(EnvPrefix + "MQTT_SESSION_EXPIRY"); ok {
		n, pErr := strconv.ParseUint(v, 10, 32)
		if pErr != nil {
			err = errors.Join(err, fmt.Errorf("%sMQTT_SESSION_EXPIRY: %w", EnvPrefix, pErr))
		}
		c.MQTT.SessionExpiry = uint32(n)
	}

	return err
}

// Validate checks every key and reports all problems at once. Each returned error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if _, err := c.BrokerURL(); err != nil {
		invalid("mqtt.broker: %v", err)
	}

	for key, prefix := range map[string]string{"discovery_prefix": c.DiscoveryPrefix, "topic_prefix": c.TopicPrefix} {
		switch {
		case mqtt.TrimTopic(prefix) == "":
			invalid("%s must not be empty", key)
		case strings.ContainsAny(prefix, mqtt.SingleLevelWildcard+mqtt.MultiLevelWildcard):
			invalid("%s must not contain wildcards: %q", key, prefix)
		}
	}

	if c.DataDir == "" {
		invalid("data_dir must not be empty")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		invalid("log_level: %v", err)
	}

	return errors.Join(errs...)
}

// BrokerURL parses mqtt.broker.
func (c *Config) BrokerURL() (*url.URL, error) {
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(brokerSchemes, u.Scheme) {
		return nil, fmt.Errorf("unsupported scheme %q (valid: %v)", u.Scheme, brokerSchemes)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("missing host in %q", c.MQTT.Broker)
	}

	return u, nil
}

// DatabasePath is the path of the config entry database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFile)
}

// ParseLogLevel converts a case-insensitive level name to a slog.Level. The empty string is info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}
