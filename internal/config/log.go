package config

// LokiConfig names a Grafana Loki push endpoint and the static labels
// attached to every entry shipped there, grounded on
// core/config/log_config_test.go's LokiConfig shape.
type LokiConfig struct {
	Address string            `yaml:"address" mapstructure:"address"`
	Labels  map[string]string `yaml:"labels" mapstructure:"labels"`
}

// LogConfig is the logging half of Config, grounded on the same test
// file's LogConfig shape (Formatter/Level/Loki).
type LogConfig struct {
	Formatter string     `yaml:"formatter" mapstructure:"formatter"`
	Level     string     `yaml:"level" mapstructure:"level"`
	Loki      LokiConfig `yaml:"loki" mapstructure:"loki"`
}
