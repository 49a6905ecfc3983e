package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ehr/cdastats/internal/config"
	"github.com/ehr/cdastats/internal/domain/analysis"
	"github.com/ehr/cdastats/internal/platform/ccda"
	"github.com/ehr/cdastats/internal/platform/corpus"
	"github.com/ehr/cdastats/internal/report"
)

// analyzeOptions are the flag values of the analyze command. Zero values
// leave the configured setting in place.
type analyzeOptions struct {
	format        string
	documents     bool
	referenceYear int
	workers       int
	noProgress    bool
}

func analyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Parse a corpus of CDA files and print statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAnalyze(ctx, args, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", report.FormatTable, "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.documents, "documents", false, "Also print the extracted documents")
	cmd.Flags().IntVar(&opts.referenceYear, "reference-year", 0, "Year ages are computed against (default REFERENCE_YEAR)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parser workers (default BATCH_WORKERS, 0 = one per CPU)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func (o *analyzeOptions) apply(cfg *config.Config) {
	if o.referenceYear != 0 {
		cfg.ReferenceYear = o.referenceYear
	}
	if o.workers != 0 {
		cfg.BatchWorkers = o.workers
	}
}

func runAnalyze(ctx context.Context, paths []string, opts *analyzeOptions, out, errOut io.Writer) error {
	cfg, err := loadConfig(opts.apply)
	if err != nil {
		return err
	}
	logger := newLogger(cfg).With().Str("command", "analyze").Logger()

	// fail on a bad format before reading the corpus
	renderer, err := report.New(out, opts.format)
	if err != nil {
		return err
	}

	loaded, err := corpus.Load(ctx, paths, corpus.Options{
		MaxFileSize: cfg.MaxFileSize,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	for _, s := range loaded.Skipped {
		color.New(color.FgYellow).Fprintf(errOut, "skipped %s: %v\n", s.Path, s.Err)
	}
	if len(loaded.Files) == 0 {
		return fmt.Errorf("no CDA documents found in %v", paths)
	}

	hist, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer hist.close()

	svc := analysis.NewService(
		ccda.NewParser(ccda.WithReferenceYear(cfg.ReferenceYear)),
		hist.repo,
		analysis.WithWorkers(cfg.BatchWorkers),
		analysis.WithLogger(logger),
	)

	files := make([]analysis.FileInput, len(loaded.Files))
	for i, f := range loaded.Files {
		files[i] = analysis.FileInput{Name: f.Name, Content: f.Content}
	}

	var progress analysis.ProgressFunc
	var bar *pb.ProgressBar
	if !opts.noProgress && !color.NoColor {
		bar = pb.New(len(files))
		bar.Output = errOut
		bar.Start()
		progress = func() { bar.Increment() }
	}

	result, err := svc.RunBatch(ctx, analysis.SourceCLI, files, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if err := renderer.Batch(result); err != nil {
		return err
	}
	if opts.documents {
		return renderer.Documents(svc.Documents(ctx))
	}
	return nil
}
