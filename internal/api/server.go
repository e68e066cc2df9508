// Package api serves the daemon's HTTP interface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/db"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/livelog"
	"github.com/ah-its-andy/docconv/internal/worker"
)

// WatchControl is the part of the watcher the API drives.
type WatchControl interface {
	Pause()
	Resume()
	Paused() bool
	ScanAll(ctx context.Context) (int, error)
}

type Deps struct {
	Config  *config.Config
	Presets config.Presets
	Pool    *worker.Pool
	Store   *db.Store
	// Queue and Watcher are nil when the daemon runs without watch rules.
	Queue   *worker.Queue
	Watcher WatchControl
	Live    *livelog.Manager
	// Capabilities reports the engines usable right now.
	Capabilities func() engine.Capabilities
	Logger       zerolog.Logger
}

type Server struct {
	Router *gin.Engine
	deps   Deps
	log    zerolog.Logger

	// ctx parents every batch started over HTTP; Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]*worker.Batch
	wg      sync.WaitGroup
}

func NewServer(deps Deps) *Server {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Router:  g,
		deps:    deps,
		log:     deps.Logger.With().Str("component", "api").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*worker.Batch),
	}

	api := g.Group("/api")
	api.GET("/engines", s.listEngines)
	api.PUT("/engines/:name", s.updateEngine)
	api.GET("/presets", s.listPresets)
	api.POST("/analyze", s.analyze)
	api.POST("/batches", s.createBatch)
	api.GET("/batches", s.listBatches)
	api.GET("/batches/:id", s.getBatch)
	api.DELETE("/batches/:id", s.cancelBatch)
	api.GET("/results", s.listResults)
	api.POST("/results/:id/retry", s.retryResult)
	api.GET("/stats", s.getStats)
	api.GET("/active", s.listActive)
	api.POST("/watcher/pause", s.pauseWatcher)
	api.POST("/watcher/resume", s.resumeWatcher)
	api.POST("/scan-now", s.scanNow)

	return s
}

// Shutdown cancels batches still running and waits until their summaries
// are stored.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) getStats(c *gin.Context) {
	st, err := s.deps.Store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	running := len(s.running)
	s.mu.Unlock()
	queueLen := 0
	if s.deps.Queue != nil {
		queueLen = s.deps.Queue.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"history":         st,
		"running_batches": running,
		"queue_len":       queueLen,
		"workers":         s.deps.Pool.Size(),
		"active_jobs":     len(s.deps.Live.Active()),
		"watcher_state":   s.watcherState(),
	})
}

func (s *Server) watcherState() string {
	switch {
	case s.deps.Watcher == nil:
		return "disabled"
	case s.deps.Watcher.Paused():
		return "paused"
	default:
		return "running"
	}
}

func (s *Server) listActive(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Live.Active())
}

func (s *Server) pauseWatcher(c *gin.Context) {
	if !s.requireWatcher(c) {
		return
	}
	s.deps.Watcher.Pause()
	c.JSON(http.StatusOK, gin.H{"watcher_state": s.watcherState()})
}

func (s *Server) resumeWatcher(c *gin.Context) {
	if !s.requireWatcher(c) {
		return
	}
	s.deps.Watcher.Resume()
	c.JSON(http.StatusOK, gin.H{"watcher_state": s.watcherState()})
}

func (s *Server) scanNow(c *gin.Context) {
	if !s.requireWatcher(c) {
		return
	}
	go func() {
		n, err := s.deps.Watcher.ScanAll(s.ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("scan failed")
			return
		}
		s.log.Info().Int("queued", n).Msg("scan finished")
	}()
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

func (s *Server) requireWatcher(c *gin.Context) bool {
	if s.deps.Watcher == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no watch rules configured"})
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
