package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ah-its-andy/docconv/internal/analyzer"
	"github.com/ah-its-andy/docconv/internal/converter"
	"github.com/ah-its-andy/docconv/internal/domain"
	"github.com/ah-its-andy/docconv/internal/engine"
	"github.com/ah-its-andy/docconv/internal/worker"
)

func newEnginesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "Show which conversion engines are usable on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.cfg.ConverterOptions(nil, a.log)
			if err != nil {
				return err
			}
			caps := converter.NewToolbox(0, opts.Toolbox).Capabilities()

			a.ui.Section("Engines")
			for _, info := range converter.ListInfo(caps) {
				switch {
				case !info.Enabled:
					a.ui.Warning("%-17s disabled", info.Name)
				case info.Available:
					a.ui.Success("%-17s available", info.Name)
				default:
					a.ui.Error("%-17s not installed", info.Name)
				}
			}

			a.ui.Section("Tools")
			tools := make([]string, 0, len(engine.ToolCandidates))
			for tool := range engine.ToolCandidates {
				tools = append(tools, tool)
			}
			sort.Strings(tools)
			for _, tool := range tools {
				if p := caps.Tools[tool]; p != "" {
					a.ui.Success("%-9s %s", tool, p)
				} else {
					a.ui.Error("%-9s not found", tool)
				}
			}
			if caps.PDFRaster {
				a.ui.Success("%-9s in-process", "pdf raster")
			}

			a.ui.Section("PDF priority")
			names := make([]string, len(opts.PDFPriority))
			for i, c := range opts.PDFPriority {
				names[i] = string(c)
			}
			fmt.Fprintf(a.ui.Out, "  %s\n", strings.Join(names, " > "))
			return nil
		},
	}
}

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the named conversion presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.ui.Section("Presets")
			for _, name := range a.presets.Names() {
				p := a.presets[name]
				var flags []string
				if p.OCR {
					flags = append(flags, "ocr")
				}
				if p.PreserveLayout {
					flags = append(flags, "preserve-layout")
				}
				line := fmt.Sprintf("  %-10s %-9s %-9s", name, p.Format, p.Quality)
				if len(flags) > 0 {
					line += " " + strings.Join(flags, ", ")
				}
				fmt.Fprintln(a.ui.Out, strings.TrimRight(line, " "))
			}
			return nil
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var quality string
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Inspect files and estimate conversion times",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quality != "" {
				a.flags.quality = quality
			}
			return a.runAnalyze(args)
		},
	}
	cmd.Flags().StringVar(&quality, "quality", "", "quality used for the estimates")
	return cmd
}

func (a *app) runAnalyze(args []string) error {
	q := a.cfg.QualityLevel()
	if a.flags.quality != "" {
		var err error
		if q, err = domain.ParseQuality(a.flags.quality); err != nil {
			return err
		}
	}
	files, err := expandInputs(args)
	if err != nil {
		return err
	}
	failed := 0
	for _, f := range files {
		sp := a.ui.NewSpinner("analyzing " + f)
		sp.Start()
		info, err := analyzer.Analyze(f)
		sp.Stop()
		if err != nil {
			a.ui.Error("%s: %v", f, err)
			failed++
			continue
		}
		a.ui.Analysis(info, q)
	}
	if failed > 0 {
		return exitError{failed: failed}
	}
	return nil
}

// newWorkerCmd is the child side of --isolation process. It reads jobs as
// JSON lines on stdin and answers on stdout.
func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run as an isolated conversion worker",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := strconv.Atoi(os.Getenv(worker.WorkerIDEnv))
			opts, err := a.cfg.ConverterOptions(nil, a.log)
			if err != nil {
				return err
			}
			opts.Worker = id
			opts.Logger = a.log.With().Str("component", "child").Int("worker", id).Logger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return worker.ServeChild(ctx, os.Stdin, os.Stdout, worker.NewInProcessRunner(opts))
		},
	}
}
