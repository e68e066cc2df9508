package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ah-its-andy/docconv/internal/analyzer"
	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/db"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
	"github.com/ah-its-andy/docconv/internal/worker"
)

// OriginAPI marks batches started over HTTP in the history.
const OriginAPI = "api"

type analyzeRequest struct {
	Path    string `json:"path" binding:"required"`
	Quality string `json:"quality"`
}

type analyzeResponse struct {
	*analyzer.Info
	Estimates []analyzer.Estimate `json:"estimates"`
}

func (s *Server) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := domain.ParseQuality(req.Quality)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := analyzer.Analyze(req.Path)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "error_kind": domain.KindOf(err)})
		return
	}
	resp := analyzeResponse{Info: info}
	for _, t := range info.Recommended {
		resp.Estimates = append(resp.Estimates, analyzer.EstimateFor(info, t, q))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createBatch(c *gin.Context) {
	var req config.JobSpec
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	jobs, err := req.Jobs(s.deps.Config, s.deps.Presets)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := s.submit(jobs)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "total": len(jobs)})
}

// submit starts a batch and stores its summary once it finishes.
func (s *Server) submit(jobs []domain.Job) string {
	b := s.deps.Pool.Submit(s.ctx, jobs, worker.SubmitOptions{})
	s.mu.Lock()
	s.running[b.ID] = b
	s.mu.Unlock()
	if err := s.deps.Store.SaveBatch(OriginAPI, b.Snapshot()); err != nil {
		s.log.Error().Err(err).Str("batch", b.ID).Msg("cannot record batch")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sum := b.Wait()
		if err := s.deps.Store.SaveBatch(OriginAPI, sum); err != nil {
			s.log.Error().Err(err).Str("batch", b.ID).Msg("cannot record batch")
		}
		s.mu.Lock()
		delete(s.running, b.ID)
		s.mu.Unlock()
		s.log.Info().Str("batch", sum.ID).Int("total", sum.Total).Int("succeeded", sum.Succeeded).
			Int("failed", sum.Failed).Int("timed_out", sum.TimedOut).Msg("batch finished")
	}()
	return b.ID
}

func (s *Server) listBatches(c *gin.Context) {
	limit := parseIntDefault(c.Query("limit"), 50)
	offset := parseIntDefault(c.Query("offset"), 0)
	rows, err := s.deps.Store.ListBatches(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// getBatch serves a live snapshot while the batch runs and the stored
// summary afterwards.
func (s *Server) getBatch(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	b, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		c.JSON(http.StatusOK, gin.H{"running": true, "batch": b.Snapshot()})
		return
	}
	rec, err := s.deps.Store.GetBatch(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false, "origin": rec.Origin, "created_at": rec.CreatedAt, "batch": rec.Summary()})
}

func (s *Server) cancelBatch(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	b, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running batch " + id})
		return
	}
	b.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"id": id, "cancelled": true})
}

func (s *Server) listResults(c *gin.Context) {
	limit := parseIntDefault(c.Query("limit"), 50)
	offset := parseIntDefault(c.Query("offset"), 0)
	rows, err := s.deps.Store.ListResults(c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// retryResult resubmits the job behind a stored result as a new batch.
func (s *Server) retryResult(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
		return
	}
	rec, err := s.deps.Store.GetResult(uint(id))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	job := rec.Job()
	if !format.Supported(job.SourceFormat(), job.TargetFormat) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "conversion is not supported", "error_kind": domain.KindUnsupported})
		return
	}
	batch := s.submit([]domain.Job{job})
	c.JSON(http.StatusAccepted, gin.H{"id": batch, "total": 1})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnreadableFile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
