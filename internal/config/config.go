// Package config provides broker configuration, grounded on
// app/config.Config's viper singleton and defaults-map pattern and on
// core/mdp/config.go's YAML Save/String/LoadConfig convenience methods.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the broker's full configuration surface.
type Config struct {
	Env      string    `mapstructure:"env" yaml:"env"`
	Endpoint string    `mapstructure:"endpoint" yaml:"endpoint"`
	Log      LogConfig `mapstructure:"log" yaml:"log"`

	// Dispatch settings.
	DispatchMode   string `mapstructure:"dispatch-mode" yaml:"dispatch_mode"`
	RejectAttempts int    `mapstructure:"reject-attempts" yaml:"reject_attempts"`

	// Heartbeat settings.
	HeartbeatMS int `mapstructure:"heartbeat-ms" yaml:"heartbeat_ms"`

	// Response cache settings.
	CacheEnabled    bool `mapstructure:"cache-enabled" yaml:"cache_enabled"`
	CacheMaxEntries int  `mapstructure:"cache-max-entries" yaml:"cache_max_entries"`

	// Persistence settings.
	PersistDriver string `mapstructure:"persist-driver" yaml:"persist_driver"` // "memory" or "sqlite"
	PersistPath   string `mapstructure:"persist-path" yaml:"persist_path"`

	// Admin HTTP introspection endpoint (supplemental feature).
	AdminAddress string `mapstructure:"admin-address" yaml:"admin_address"`
}

var (
	lock     = &sync.Mutex{}
	instance *Config

	defaults = map[string]interface{}{
		"env":               "development",
		"endpoint":          "tcp://*:9797",
		"log.formatter":     "text",
		"log.level":         "info",
		"log.loki.address":  "",
		"log.loki.labels":   map[string]string{"app": "broker", "environment": "development"},
		"dispatch-mode":     "load",
		"reject-attempts":   5,
		"heartbeat-ms":      2500,
		"cache-enabled":     false,
		"cache-max-entries": 10000,
		"persist-driver":    "memory",
		"persist-path":      "./broker.db",
		"admin-address":     "127.0.0.1:8420",
	}
)

// DefaultConfig returns a Config populated with the same values as the
// defaults map GetConfig seeds viper with, for callers that want a
// resolved Config without touching env vars or a config file (e.g.
// LoadFile's starting point before a YAML snapshot is merged on top).
func DefaultConfig() *Config {
	return &Config{
		Env:      "development",
		Endpoint: "tcp://*:9797",
		Log: LogConfig{
			Formatter: "text",
			Level:     "info",
			Loki: LokiConfig{
				Address: "",
				Labels:  map[string]string{"app": "broker", "environment": "development"},
			},
		},
		DispatchMode:    "load",
		RejectAttempts:  5,
		HeartbeatMS:     2500,
		CacheEnabled:    false,
		CacheMaxEntries: 10000,
		PersistDriver:   "memory",
		PersistPath:     "./broker.db",
		AdminAddress:    "127.0.0.1:8420",
	}
}

// GetConfig returns the broker configuration singleton, loading it on
// first use via viper (env vars prefixed PLANTD_BROKER_, a config file
// named broker.yaml in the current directory or under
// $HOME/.config/plantd, and the defaults map above, in descending
// precedence).
func GetConfig() *Config {
	if instance == nil {
		lock.Lock()
		defer lock.Unlock()
		if instance == nil {
			cfg, err := loadConfig()
			if err != nil {
				log.Fatalf("error reading broker config: %s\n", err)
			}
			instance = cfg
		}
	}

	log.Tracef("config: %+v", instance)

	return instance
}

func loadConfig() (*Config, error) {
	v := viper.New()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("PLANTD_BROKER")
	v.AutomaticEnv()

	v.SetConfigName("broker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "plantd"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read broker config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal broker config: %w", err)
	}

	return &cfg, nil
}

// Snapshot marshals the configuration to YAML, grounded on
// core/mdp/config.go's String method.
func (c *Config) Snapshot() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// Dump writes the configuration to filename as YAML, grounded on
// core/mdp/config.go's Save method. Operators use this to version or
// inspect a resolved snapshot of the running broker's configuration on
// disk, separately from the env/file-driven GetConfig singleton.
func (c *Config) Dump(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal broker config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write broker config %s: %w", filename, err)
	}
	return nil
}

// LoadFile reads a YAML config dump, grounded on core/mdp/config.go's
// LoadConfig: it starts from DefaultConfig so any field the file omits
// keeps its default rather than zeroing out.
func LoadFile(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read broker config %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse broker config %s: %w", filename, err)
	}
	return cfg, nil
}
