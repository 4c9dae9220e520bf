// Package main provides the entry point for the plantd broker service.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/geoffjay/plantd/broker/internal/admin"
	"github.com/geoffjay/plantd/broker/internal/config"
	"github.com/geoffjay/plantd/broker/internal/logging"
	"github.com/geoffjay/plantd/broker/internal/mdp"
	"github.com/geoffjay/plantd/broker/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "broker",
	Short: "plantd message broker",
	Long:  "Runs the plantd Majordomo-protocol broker: a single ROUTER socket matching client requests to registered workers.",
	Run:   runBroker,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("broker exited with error")
	}
}

func runBroker(cmd *cobra.Command, args []string) {
	cfg := config.GetConfig()
	logging.Initialize(cfg.Log)

	// PLANTD_BROKER_LOG_LEVEL overrides the config file/viper value
	// without requiring a restart-time config edit, mirroring
	// proxy/main.go's use of util.Getenv for the same purpose.
	if override := util.Getenv("PLANTD_BROKER_LOG_LEVEL", ""); override != "" {
		if level, err := log.ParseLevel(override); err == nil {
			log.SetLevel(level)
		}
	}

	log.Debug(cfg.Snapshot())

	cache := buildCache(cfg)
	persistence, err := buildPersistence(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize persistence controller")
	}

	broker, err := mdp.Bind(mdp.Options{
		Endpoint:          cfg.Endpoint,
		DispatchMode:      cfg.DispatchMode,
		RejectAttempts:    cfg.RejectAttempts,
		CacheEnabled:      cfg.CacheEnabled,
		CacheMaxEntries:   cfg.CacheMaxEntries,
		HeartbeatInterval: time.Duration(cfg.HeartbeatMS) * time.Millisecond,
	}, cache, persistence)
	if err != nil {
		log.WithError(err).Fatal("failed to bind broker")
	}

	adminServer := admin.NewServer(cfg.AdminAddress, broker)
	adminServer.SetStatus(admin.StatusStarting)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminServer.ListenAndServe(); err != nil {
			log.WithError(err).Error("admin server stopped")
		}
	}()

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		adminServer.SetStatus(admin.StatusRunning)
		if err := broker.Run(stop); err != nil {
			adminServer.SetLastError(err)
			log.WithError(err).Error("broker run loop exited")
		}
	}()

	log.WithField("endpoint", cfg.Endpoint).Info("broker started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.Debug("broker shutting down")
	adminServer.SetStatus(admin.StatusStopping)
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownAdmin(ctx, adminServer)

	if err := broker.Close(); err != nil {
		log.WithError(err).Warn("error closing broker")
	}

	wg.Wait()
	adminServer.SetStatus(admin.StatusStopped)
	log.Debug("broker exiting")
}

func shutdownAdmin(ctx context.Context, s *admin.Server) {
	done := make(chan struct{})
	go func() {
		_ = s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("admin server shutdown timed out")
	}
}

func buildCache(cfg *config.Config) mdp.ResponseCache {
	if !cfg.CacheEnabled {
		return nil
	}
	return mdp.NewResponseCache(cfg.CacheMaxEntries)
}

func buildPersistence(cfg *config.Config) (mdp.PersistenceController, error) {
	if cfg.PersistDriver == "sqlite" {
		return mdp.NewSQLitePersistence(cfg.PersistPath)
	}
	return mdp.NewMemoryPersistence(), nil
}
