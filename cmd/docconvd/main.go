package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ah-its-andy/docconv/internal/api"
	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/db"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/livelog"
	"github.com/ah-its-andy/docconv/internal/logging"
	"github.com/ah-its-andy/docconv/internal/watcher"
	"github.com/ah-its-andy/docconv/internal/worker"
)

// OriginWatcher marks batches started by the auto-converter.
const OriginWatcher = "watcher"

const (
	shutdownTimeout = 20 * time.Second
	liveLogMaxAge   = time.Hour
)

func main() {
	var cfgFile string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "docconvd",
		Short: "Watch folders and serve the conversion API",
		Long: `docconvd converts files dropped into watched folders according to the
watch rules, serves an HTTP API for batches and analysis, and keeps the
history of every batch in SQLite.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Log.Level = "debug"
			}
			if problems := cfg.Validate(); len(problems) > 0 {
				return fmt.Errorf("invalid configuration: %v", problems)
			}
			log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "docconvd"})
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./docconv.yaml)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("config", cfg.File).Str("http", cfg.Daemon.HTTPAddr).Str("db", cfg.Daemon.DBPath).
		Int("workers", cfg.Workers).Str("isolation", cfg.Isolation).Msg("starting docconvd")

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return err
	}
	watch, err := config.LoadWatch(cfg.WatchFile, presets)
	if err != nil {
		return err
	}

	store, err := db.Open(cfg.Daemon.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	live := livelog.NewManager()
	convOpts, err := cfg.ConverterOptions(live, logging.Component(log, "converter"))
	if err != nil {
		return err
	}
	probe := converter.NewToolbox(-1, convOpts.Toolbox)
	for _, info := range converter.ListInfo(probe.Capabilities()) {
		log.Info().Str("engine", string(info.Name)).Bool("available", info.Available).Bool("enabled", info.Enabled).Msg("engine")
	}

	var factory worker.RunnerFactory
	if cfg.Isolation == config.IsolationProcess {
		args := []string{"worker"}
		if cfg.File != "" {
			args = append(args, "--config", cfg.File)
		}
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		// the child mode lives in the docconv binary next to this one
		child := siblingBinary(exe, "docconv")
		if _, err := os.Stat(child); err != nil {
			return fmt.Errorf("process isolation needs %s (or set isolation: inprocess): %w", child, err)
		}
		factory = worker.ProcessFactory(worker.ProcessOptions{
			Command:  child,
			Args:     args,
			Timeouts: cfg.Timeouts,
			Logger:   log,
		})
	} else {
		factory = worker.InProcessFactory(convOpts)
	}
	pool := worker.NewPool(cfg.Workers, factory, log)
	if err := pool.Start(); err != nil {
		return err
	}
	defer pool.Stop()

	queue := worker.NewQueue(cfg.Daemon.QueueSize)
	onDone := func(s domain.BatchSummary) {
		if err := store.SaveBatch(OriginWatcher, s); err != nil {
			log.Error().Err(err).Str("batch", s.ID).Msg("cannot record batch")
		}
		for _, r := range s.Results {
			status := db.IndexDone
			if r.Status != domain.StatusSuccess {
				status = db.IndexFailed
			}
			if err := store.SetIndexStatus(r.Job.SourcePath, status); err != nil && !errors.Is(err, db.ErrNotFound) {
				log.Warn().Err(err).Str("file", r.Job.SourcePath).Msg("cannot update index")
			}
		}
	}
	dispatcher := worker.NewDispatcher(pool, queue, onDone, log)

	var wr *watcher.Watcher
	var watchCtl api.WatchControl
	if len(watch.Rules) > 0 {
		wr, err = watcher.New(watcher.Options{
			Rules:          watch.Rules,
			Presets:        presets,
			Submitter:      queue,
			Index:          store,
			StabilityDelay: cfg.Daemon.StabilityDelay,
			MD5ChunkSize:   cfg.Daemon.MD5ChunkSize,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer wr.Close()
		watchCtl = wr
	} else {
		log.Warn().Str("file", cfg.WatchFile).Msg("no watch rules, auto-conversion disabled")
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(api.Deps{
		Config:       cfg,
		Presets:      presets,
		Pool:         pool,
		Store:        store,
		Queue:        queue,
		Watcher:      watchCtl,
		Live:         live,
		Capabilities: probe.Capabilities,
		Logger:       log,
	})
	httpSrv := &http.Server{Addr: cfg.Daemon.HTTPAddr, Handler: server.Router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	if wr != nil {
		g.Go(func() error { return wr.Start(gctx) })
		g.Go(func() error {
			n, err := wr.ScanAll(gctx)
			if err != nil {
				log.Error().Err(err).Msg("initial scan failed")
				return nil
			}
			log.Info().Int("queued", n).Msg("initial scan finished")
			return nil
		})
	}
	g.Go(func() error {
		t := time.NewTicker(liveLogMaxAge / 4)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := live.CleanOld(liveLogMaxAge); n > 0 {
					log.Debug().Int("removed", n).Msg("cleaned stale live logs")
				}
			}
		}
	})
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		if wr != nil {
			wr.Pause()
		}
		queue.StopAccepting()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)
		server.Shutdown()
		return err
	})

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

func siblingBinary(exe, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(exe), name)
}
