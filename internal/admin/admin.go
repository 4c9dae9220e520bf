// Package admin exposes read-only HTTP introspection over the broker's
// event-loop state, a supplemental feature grounded on gin-gonic/gin
// (the only HTTP framework anywhere in the retrieved pack, used across
// geoffjay-plantd's app and identity services) and on
// geoffjay-plantd/broker/state.go's status tracking, which this
// package's own state.go now carries.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geoffjay/plantd/broker/internal/mdp"
)

// BrokerStatus mirrors state.go's status vocabulary, now fed by the
// real broker rather than a handful of package-level setters.
type BrokerStatus string

const (
	StatusStarting BrokerStatus = "starting"
	StatusRunning  BrokerStatus = "running"
	StatusStopping BrokerStatus = "stopping"
	StatusStopped  BrokerStatus = "stopped"
)

// Server is the admin HTTP surface. It never mutates broker state; it
// only calls the broker's Snapshot(), which is safe to call from any
// goroutine.
type Server struct {
	broker *mdp.Broker
	state  *state
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the admin server bound to addr, wired to broker.
func NewServer(addr string, broker *mdp.Broker) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		broker: broker,
		state:  newState(),
		engine: engine,
		http:   &http.Server{Addr: addr, Handler: engine},
	}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/status", s.handleStatus)
	engine.GET("/services", s.handleServices)
	engine.GET("/workers", s.handleWorkers)

	return s
}

// SetStatus records the broker's lifecycle phase for /healthz.
func (s *Server) SetStatus(status BrokerStatus) { s.state.setStatus(status) }

// SetLastError records the most recent run-loop error for /status.
func (s *Server) SetLastError(err error) { s.state.setLastError(err) }

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.http.Shutdown(context.Background())
}

func (s *Server) handleHealthz(c *gin.Context) {
	status := s.state.getStatus()
	code := http.StatusOK
	if status != StatusRunning {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.broker.Snapshot()
	errCount, lastErr := s.state.errors()

	resp := gin.H{
		"status":      s.state.getStatus(),
		"instance_id": snapshot.Stats.InstanceID,
		"error_count": errCount,
		"services":    snapshot.Stats.Services,
		"workers":     snapshot.Stats.Workers,
		"requests":    snapshot.Stats.Requests,
		"metrics":     snapshot.Stats.Metrics,
	}
	if lastErr != nil {
		resp["last_error"] = lastErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleServices(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Snapshot().Services)
}

func (s *Server) handleWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, s.broker.Snapshot().Workers)
}
