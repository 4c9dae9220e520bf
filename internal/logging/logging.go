// Package logging configures the process-wide logrus logger, grounded
// on core/log (its Initialize contract, verified by core/log/log_test.go)
// and on proxy/main.go's initLogging for the concrete Loki wiring.
package logging

import (
	log "github.com/sirupsen/logrus"
	loki "github.com/yukitsune/lokirus"

	"github.com/geoffjay/plantd/broker/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05"

// Initialize applies formatter, level, and an optional Loki shipping
// hook to the standard logrus logger. Invalid levels and an empty or
// unset Loki address are tolerated by falling back to sane defaults,
// matching core/log's tested behavior (TestInitializeInvalidLevel,
// TestInitializeEmptyFormatter, TestInitializeMinimalConfig).
func Initialize(cfg config.LogConfig) {
	if cfg.Level != "" {
		if level, err := log.ParseLevel(cfg.Level); err == nil {
			log.SetLevel(level)
		}
	}

	if cfg.Formatter == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	if cfg.Loki.Address == "" {
		return
	}

	labels := loki.Labels{}
	for k, v := range cfg.Loki.Labels {
		labels[k] = v
	}

	opts := loki.NewLokiHookOptions().
		WithLevelMap(loki.LevelMap{log.PanicLevel: "critical"}).
		WithFormatter(&log.JSONFormatter{}).
		WithStaticLabels(labels)

	hook := loki.NewLokiHookWithOpts(
		cfg.Loki.Address,
		opts,
		log.InfoLevel,
		log.WarnLevel,
		log.ErrorLevel,
		log.FatalLevel,
	)

	log.AddHook(hook)
}
