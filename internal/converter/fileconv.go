package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
)

// maxAbandonGrace caps how long a cancelled engine call may take to unwind
// before the job is reported without it.
const maxAbandonGrace = 3 * time.Second

// abandonGrace is a quarter of the budget, capped at maxAbandonGrace.
func abandonGrace(budget time.Duration) time.Duration {
	if g := budget / 4; g < maxAbandonGrace {
		return g
	}
	return maxAbandonGrace
}

// maxResultLog caps the tool output kept on a result.
const maxResultLog = 8 << 10

// Tracker receives live progress for running jobs.
type Tracker interface {
	StartTask(key string)
	AppendLog(key, content string)
	EndTask(key string)
}

// Options configures a FileConverter.
type Options struct {
	Worker      int
	TempRoot    string
	Timeouts    Timeouts
	PDFPriority []engine.Choice
	Toolbox     ToolboxOptions
	Tracker     Tracker
	Logger      zerolog.Logger
}

// FileConverter converts one file at a time for one worker.
type FileConverter struct {
	opts Options
	tb   *Toolbox
	log  zerolog.Logger
}

// New creates the converter for one worker with its own toolbox.
func New(opts Options) *FileConverter {
	return &FileConverter{
		opts: opts,
		tb:   NewToolbox(opts.Worker, opts.Toolbox),
		log:  opts.Logger.With().Int("worker", opts.Worker).Logger(),
	}
}

// Toolbox exposes the worker's engine handles.
func (c *FileConverter) Toolbox() *Toolbox { return c.tb }

// Plan resolves the route for job without running anything.
func (c *FileConverter) Plan(job domain.Job) (engine.Route, error) {
	prefs := engine.Preferences{
		PreserveLayout: job.PreserveLayout,
		OCR:            job.OCR,
		PDFPriority:    c.opts.PDFPriority,
	}
	return engine.Select(job.SourceFormat(), job.TargetFormat, prefs, c.tb.Capabilities())
}

// Convert runs job to completion. Every failure is reported on the result;
// the scratch directory is gone by the time it returns.
func (c *FileConverter) Convert(ctx context.Context, job domain.Job) domain.Result {
	start := time.Now()
	if job.Quality == "" {
		job.Quality = domain.QualityBalanced
	}
	route, err := c.Plan(job)
	if err != nil {
		c.log.Warn().Err(err).Str("file", job.SourcePath).Msg("no route")
		return domain.FailedWith(job, "", err, time.Since(start))
	}
	eng := string(route.Engine())
	if fi, err := os.Stat(job.SourcePath); err != nil || fi.IsDir() {
		if err == nil {
			err = fmt.Errorf("is a directory")
		}
		return domain.FailedWith(job, eng, domain.Unreadable(job.SourcePath, err), time.Since(start))
	}

	logw := &jobLog{key: job.SourcePath, tracker: c.opts.Tracker}
	if logw.tracker != nil {
		logw.tracker.StartTask(logw.key)
		defer logw.tracker.EndTask(logw.key)
	}
	output, err := c.run(ctx, job, route, logw)
	elapsed := time.Since(start)
	if err != nil {
		res := domain.FailedWith(job, eng, err, elapsed)
		res.Log = logw.String()
		c.log.Warn().Err(err).Str("file", job.SourcePath).Str("engine", eng).
			Str("status", string(res.Status)).Dur("elapsed", elapsed).Msg("conversion failed")
		return res
	}
	res := domain.Succeeded(job, eng, output, elapsed)
	res.Log = logw.String()
	c.log.Info().Str("file", job.SourcePath).Str("output", output).Str("route", route.String()).
		Dur("elapsed", elapsed).Msg("converted")
	return res
}

func (c *FileConverter) run(ctx context.Context, job domain.Job, route engine.Route, logw *jobLog) (string, error) {
	workDir, err := os.MkdirTemp(c.opts.TempRoot, fmt.Sprintf("docconv-w%d-*", c.opts.Worker))
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	budget := c.opts.Timeouts.For(job.Quality)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cur := job.SourcePath
	stem := stemOf(job.SourcePath)
	for i, step := range route.Steps {
		e, err := c.tb.Engine(step.Engine)
		if err != nil {
			return "", domain.Unavailable(string(step.Engine), err)
		}
		task := Task{
			SrcPath: cur,
			DstPath: filepath.Join(workDir, fmt.Sprintf("%s.step%d.%s", stem, i, step.To.Extension())),
			From:    step.From,
			To:      step.To,
			Quality: job.Quality,
			OCR:     job.OCR,
			WorkDir: workDir,
			Log:     logw,
		}
		if err := invoke(ctx, e, task, abandonGrace(budget)); err != nil {
			return "", classify(ctx, step.Engine, budget, err)
		}
		if fi, err := os.Stat(task.DstPath); err != nil || fi.Size() == 0 {
			return "", domain.Failed(fmt.Sprintf("%s produced no output", step.Engine), err)
		}
		cur = task.DstPath
	}

	final := job.OutputPath()
	if err := moveFile(cur, final); err != nil {
		return "", domain.Failed("store output", err)
	}
	return final, nil
}

// invoke calls the engine on its own goroutine so a call that ignores ctx
// still cannot hold the worker past its budget.
func invoke(ctx context.Context, e Engine, t Task, grace time.Duration) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("engine %s panicked: %v", e.Choice(), r)
			}
		}()
		done <- e.Convert(ctx, t)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			if err == nil {
				return ctx.Err()
			}
			return err
		case <-time.After(grace):
			return ctx.Err()
		}
	}
}

func classify(ctx context.Context, c engine.Choice, budget time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.TimedOut(fmt.Sprintf("%s exceeded %s", c, budget), err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if ctx.Err() != nil {
		return domain.Failed(string(c)+" cancelled", err)
	}
	return domain.Failed(string(c), err)
}

// jobLog collects tool output for one job and mirrors it to the tracker.
type jobLog struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	key     string
	tracker Tracker
}

func (l *jobLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	l.buf.Write(p)
	l.mu.Unlock()
	if l.tracker != nil {
		l.tracker.AppendLog(l.key, string(p))
	}
	return len(p), nil
}

func (l *jobLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buf.Bytes()
	if len(b) > maxResultLog {
		b = b[len(b)-maxResultLog:]
	}
	return string(b)
}
