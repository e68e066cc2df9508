package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ah-its-andy/docconv/internal/config"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/format"
	"github.com/ah-its-andy/docconv/internal/logging"
	"github.com/ah-its-andy/docconv/internal/ui"
	"github.com/ah-its-andy/docconv/internal/worker"
)

type rootFlags struct {
	cfgFile        string
	verbose        bool
	noColor        bool
	format         string
	output         string
	batch          bool
	workers        int
	quality        string
	ocr            bool
	preserveLayout bool
	analyze        bool
	preset         string
	isolation      string
}

// app is what every subcommand gets after PersistentPreRunE.
type app struct {
	flags   *rootFlags
	cfg     *config.Config
	presets config.Presets
	log     zerolog.Logger
	ui      *ui.UI
}

func newRootCmd() *cobra.Command {
	return (&app{flags: &rootFlags{}}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	f := a.flags
	cmd := &cobra.Command{
		Use:   "docconv [files|globs|dirs...]",
		Short: "Convert documents between formats",
		Long: `docconv converts office documents, PDFs, markup, images and ebooks
between formats. For each file it picks the best engine installed on this
machine, runs it under a quality-dependent timeout and reports the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if f.analyze {
				return a.runAnalyze(args)
			}
			return a.runConvert(cmd.Context(), args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.cfgFile, "config", "", "config file (default ./docconv.yaml)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&f.noColor, "no-color", false, "disable colored output")

	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", "", "target format (pdf, docx, markdown, html, png, ...)")
	fl.StringVarP(&f.output, "output", "o", "", "output directory (default ./converted)")
	fl.BoolVar(&f.batch, "batch", false, "show a progress bar instead of one line per file")
	fl.IntVar(&f.workers, "workers", 0, "number of parallel workers (default min(CPUs, 4))")
	fl.StringVar(&f.quality, "quality", "", "low, balanced or high")
	fl.BoolVar(&f.ocr, "ocr", false, "run OCR on scanned input")
	fl.BoolVar(&f.preserveLayout, "preserve-layout", false, "prefer layout-preserving engines for PDFs")
	fl.BoolVar(&f.analyze, "analyze", false, "analyze the inputs instead of converting them")
	fl.StringVar(&f.preset, "preset", "", "named preset (see 'docconv presets')")
	fl.StringVar(&f.isolation, "isolation", "", "process (default) or inprocess")

	cmd.AddCommand(newEnginesCmd(a), newPresetsCmd(a), newAnalyzeCmd(a), newWorkerCmd(a))
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.cfgFile)
	if err != nil {
		return err
	}
	fl := cmd.Flags()
	if fl.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if fl.Changed("isolation") {
		cfg.Isolation = a.flags.isolation
	}
	if a.flags.verbose {
		cfg.Log.Level = "debug"
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}
	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.presets = presets
	a.ui = ui.New(a.flags.noColor)
	a.log = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "docconv"})
	if !a.flags.verbose && cfg.Log.Level == "info" {
		// keep the terminal for status lines
		a.log = a.log.Level(zerolog.WarnLevel)
	}
	if cfg.File != "" {
		a.log.Debug().Str("file", cfg.File).Msg("config loaded")
	}
	return nil
}

func (a *app) runConvert(ctx context.Context, args []string) error {
	files, err := expandInputs(args)
	if err != nil {
		return err
	}
	spec := config.JobSpec{
		Files:          files,
		Format:         a.flags.format,
		Preset:         a.flags.preset,
		Quality:        a.flags.quality,
		OCR:            a.flags.ocr,
		PreserveLayout: a.flags.preserveLayout,
		OutputDir:      a.flags.output,
	}
	jobs, err := spec.Jobs(a.cfg, a.presets)
	if err != nil {
		return err
	}

	factory, err := a.runnerFactory()
	if err != nil {
		return err
	}
	pool := worker.NewPool(a.cfg.Workers, factory, a.log)
	defer pool.Stop()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *ui.ProgressBar
	if a.flags.batch {
		bar = a.ui.NewProgressBar(len(jobs), "converting")
	}
	opts := worker.SubmitOptions{OnProgress: func(p worker.Progress) {
		if bar != nil {
			bar.Set(p.Done)
		}
		if !a.flags.batch {
			a.ui.Result(p.Result)
		}
	}}

	a.log.Debug().Int("jobs", len(jobs)).Int("workers", pool.Size()).Str("isolation", a.cfg.Isolation).Msg("starting batch")
	summary, runErr := pool.Run(ctx, jobs, opts)
	if bar != nil {
		bar.Finish()
	}
	if a.flags.batch {
		for _, r := range summary.Results {
			if r.Status != domain.StatusSuccess {
				a.ui.Result(r)
			}
		}
	}
	if a.flags.batch || len(jobs) > 1 {
		a.ui.Summary(summary)
	}
	if runErr != nil {
		a.ui.Warning("interrupted: %v", runErr)
	}
	if !summary.OK() {
		return exitError{failed: summary.Total - summary.Succeeded}
	}
	return nil
}

func (a *app) runnerFactory() (worker.RunnerFactory, error) {
	if a.cfg.Isolation == config.IsolationProcess {
		args := []string{"worker"}
		if a.flags.cfgFile != "" {
			args = append(args, "--config", a.flags.cfgFile)
		}
		return worker.ProcessFactory(worker.ProcessOptions{
			Args:     args,
			Timeouts: a.cfg.Timeouts,
			Logger:   a.log,
		}), nil
	}
	opts, err := a.cfg.ConverterOptions(nil, a.log)
	if err != nil {
		return nil, err
	}
	return worker.InProcessFactory(opts), nil
}

// expandInputs resolves globs and directories into a sorted, de-duplicated
// list of files. Directory entries are taken one level deep and only when
// their extension names a known format.
func expandInputs(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			// let the converter report it as unreadable
			add(arg)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			st, err := os.Stat(m)
			if err != nil || !st.IsDir() {
				add(m)
				continue
			}
			entries, err := os.ReadDir(m)
			if err != nil {
				return nil, fmt.Errorf("read dir %s: %w", m, err)
			}
			for _, e := range entries {
				if e.IsDir() || !format.FromPath(e.Name()).Known() {
					continue
				}
				add(filepath.Join(m, e.Name()))
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no input files")
	}
	return out, nil
}
