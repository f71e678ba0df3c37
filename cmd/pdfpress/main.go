package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"pdfpress/internal/batch"
	"pdfpress/internal/common"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/profile"
	"pdfpress/internal/stats"
)

var (
	flagQuality    string
	flagOutputDir  string
	flagJobs       int
	flagConfig     string
	flagStripMeta  bool
	flagNoOptimize bool
	flagQuiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "pdfpress <file.pdf> [file.pdf...]",
	Short: "Batch PDF compression with Ghostscript and an in-process fallback",
	Long: `Compresses one or more PDF files at a chosen quality level.
Ghostscript is used when available; otherwise an in-process compressor
re-encodes embedded images and rewrites the document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&flagQuality, "quality", "q", string(profile.DefaultLevel),
		"quality level: maximum, high, medium or low")
	rootCmd.Flags().StringVarP(&flagOutputDir, "out", "o", ".", "output directory")
	rootCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "concurrent documents (0 = config default)")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.Flags().BoolVar(&flagStripMeta, "strip-metadata", false, "remove document metadata")
	rootCmd.Flags().BoolVar(&flagNoOptimize, "no-optimize-images", false, "skip image downsampling and re-encoding")
	rootCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "suppress the progress bar")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCompress(paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagJobs > 0 {
		cfg.MaxWorkers = flagJobs
	}

	level := profile.Level(flagQuality)
	if _, err := profile.Resolve(level); err != nil {
		return err
	}

	opts := compression.DefaultOptions()
	opts.StripMetadata = flagStripMeta
	opts.OptimizeImages = !flagNoOptimize

	var docs []pipeline.SourceDocument
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("input %s: %w", path, err)
		}
		docs = append(docs, pipeline.SourceDocument{
			ID:       common.GenerateUUID(),
			Filename: filepath.Base(path),
			Path:     path,
		})
	}

	if err := os.MkdirAll(flagOutputDir, 0755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}

	// The CLI keeps its stderr readable; detail goes to the log at warn+.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	probe := compression.NewProbe(cfg.GhostscriptPath, cfg.ProbeTimeout, logger)
	primary := compression.NewGhostscript(cfg.GhostscriptPath, cfg.DocumentTimeout, logger)
	fallback := compression.NewFallback(logger)
	p := pipeline.New(cfg, probe, primary, fallback, logger)
	orchestrator := batch.NewOrchestrator(cfg, p, logger)

	var bar *pb.ProgressBar
	if !flagQuiet {
		bar = pb.New(len(docs)).SetWriter(os.Stderr).Start()
	}
	onProgress := func(batch.Progress) {
		if bar != nil {
			bar.Increment()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := orchestrator.ProcessBatch(ctx, docs, level, opts, flagOutputDir, onProgress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	renameArtifacts(report)
	printReport(report)
	recordRun(cfg, report)

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", report.Failed, len(report.Results))
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.New(), nil
	}
	return config.Load(flagConfig)
}

// renameArtifacts moves published outputs from their batch IDs to
// "<name>_compressed.pdf" next to the requested output directory. Inputs
// sharing a basename get a numeric suffix instead of clobbering each
// other.
func renameArtifacts(report *batch.Report) {
	taken := make(map[string]int)
	for i := range report.Results {
		res := &report.Results[i]
		if !res.Succeeded() || res.OutputPath == "" {
			continue
		}
		name := common.CompressedFilename(res.Filename)
		if n := taken[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		taken[common.CompressedFilename(res.Filename)]++

		target := filepath.Join(filepath.Dir(res.OutputPath), name)
		if err := os.Rename(res.OutputPath, target); err == nil {
			res.OutputPath = target
		}
	}
}

func printReport(report *batch.Report) {
	fmt.Println()
	for _, res := range report.Results {
		switch {
		case res.Status == pipeline.StatusFailed:
			fmt.Printf("  %-40s FAILED: %s\n", res.Filename, res.Reason)
		case res.Status == pipeline.StatusNoImprovement:
			fmt.Printf("  %-40s %s (already compact)\n", res.Filename, common.FormatFileSize(res.OriginalSize))
		default:
			fmt.Printf("  %-40s %s -> %s (%.1f%%, %s)\n",
				res.Filename,
				common.FormatFileSize(res.OriginalSize),
				common.FormatFileSize(res.CompressedSize),
				res.SavingsPercent,
				res.Backend)
		}
	}
	fmt.Println()
	fmt.Printf("  %d succeeded, %d failed, saved %s (%.1f%%)\n",
		report.Succeeded+report.NoImprovement,
		report.Failed,
		common.FormatFileSize(report.SavedBytes()),
		report.SavingsPercent)
}

func recordRun(cfg *config.Config, report *batch.Report) {
	store, err := stats.Open(cfg.DatabasePath)
	if err != nil {
		slog.Warn("run history unavailable", "error", err)
		return
	}
	if err := store.RecordRun(report); err != nil {
		slog.Warn("recording run history", "error", err)
	}
}
