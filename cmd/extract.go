package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/batch"
	"github.com/sells-group/bill-extract/internal/monitoring"
	"github.com/sells-group/bill-extract/internal/ocr"
	"github.com/sells-group/bill-extract/internal/scan"
	"github.com/sells-group/bill-extract/internal/store"
)

var (
	extractRoot      string
	extractOutput    string
	extractDriver    string
	extractChunkSize int
	extractWorkers   int
	extractResume    bool
	extractLimit     int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract every bill under the source root into the configured output",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		flags := cmd.Flags()
		if flags.Changed("root") {
			cfg.Source.Root = extractRoot
		}
		if flags.Changed("output") {
			cfg.Output.Path = extractOutput
		}
		if flags.Changed("driver") {
			cfg.Output.Driver = extractDriver
		}
		if flags.Changed("chunk-size") {
			cfg.Batch.ChunkSize = extractChunkSize
		}
		if flags.Changed("workers") {
			cfg.Batch.Workers = extractWorkers
		}
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		ext, err := newExtractor(cfg.Extract)
		if err != nil {
			return err
		}
		fallback, err := ocr.NewFallback(cfg.OCR)
		if err != nil {
			return eris.Wrap(err, "extract: fallback extractor")
		}
		if fallback != nil {
			defer ocr.Close(fallback) //nolint:errcheck
		}

		sources, err := scan.Find(ctx, scan.FromConfig(cfg.Source))
		if err != nil {
			return err
		}
		if extractLimit > 0 && len(sources) > extractLimit {
			sources = sources[:extractLimit]
		}
		zap.L().Info("extract: sources found",
			zap.String("root", cfg.Source.Root),
			zap.Int("count", len(sources)))

		sink, err := store.Open(ctx, cfg.Output)
		if err != nil {
			return eris.Wrap(err, "extract: open output")
		}
		defer sink.Close() //nolint:errcheck

		runner := batch.New(cfg.Batch, ext, ocr.NewFactory(cfg.OCR), sink,
			batch.WithFallback(fallback),
			batch.WithResume(extractResume))

		sum, err := runner.Run(ctx, sources)
		fmt.Fprintf(cmd.OutOrStdout(),
			"documents=%d flushed=%d chunks=%d skipped=%d unreadable=%d panics=%d filename_bill_no=%d missing_running_bill=%d duration=%s\n",
			sum.Documents, sum.Flushed, sum.Chunks, sum.Skipped, sum.Unreadable, sum.Panics,
			sum.FilenameDocumentNo, sum.MissingSequence, sum.Duration.Round(time.Millisecond))

		alerter := monitoring.NewAlerter(cfg.Monitor)
		if alerts := alerter.Evaluate(sum, err); len(alerts) > 0 {
			alerter.SendAlerts(context.WithoutCancel(ctx), alerts)
		}
		if err != nil {
			return eris.Wrap(err, "extract: run")
		}
		return nil
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractRoot, "root", "", "folder to scan for bills (default from config)")
	f.StringVar(&extractOutput, "output", "", "output file or database path (default from config)")
	f.StringVar(&extractDriver, "driver", "", "output driver: csv, xlsx, sqlite or postgres")
	f.IntVar(&extractChunkSize, "chunk-size", 0, "documents per flushed chunk")
	f.IntVar(&extractWorkers, "workers", 0, "worker count, 0 for one per CPU")
	f.BoolVar(&extractResume, "resume", false, "skip bills already present in the output")
	f.IntVar(&extractLimit, "limit", 0, "process at most this many bills, 0 for all")
	rootCmd.AddCommand(extractCmd)
}
