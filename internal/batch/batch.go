// Package batch turns a list of bill sources into persisted records. Sources
// are processed chunk by chunk on a persistent worker pool, and each chunk is
// handed to the sink only after every one of its documents has completed.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/extract"
	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/ocr"
	"github.com/sells-group/bill-extract/internal/store"
)

// DefaultChunkSize is used when the configured chunk size is not positive.
const DefaultChunkSize = 500

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID              string        `json:"run_id"`
	Documents          int           `json:"documents"`
	Skipped            int           `json:"skipped"`
	Chunks             int           `json:"chunks"`
	Flushed            int           `json:"flushed"`
	Unreadable         int           `json:"unreadable"`
	Panics             int           `json:"panics"`
	TimedOut           int           `json:"timed_out"`
	Recycled           int           `json:"recycled"`
	Recovered          int           `json:"recovered_by_fallback"`
	FilenameDocumentNo int           `json:"filename_document_no"`
	MissingSequence    int           `json:"missing_sequence"`
	Cancelled          bool          `json:"cancelled"`
	Duration           time.Duration `json:"duration"`
}

// Runner drives a batch run against one sink.
type Runner struct {
	cfg      config.BatchConfig
	ext      *extract.Extractor
	factory  ocr.Factory
	fallback ocr.Extractor
	sink     store.Sink
	resume   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithFallback sets the extractor used to re-read documents whose
// identifiers were not found.
func WithFallback(e ocr.Extractor) Option {
	return func(r *Runner) { r.fallback = e }
}

// WithResume skips sources the sink already holds.
func WithResume(resume bool) Option {
	return func(r *Runner) { r.resume = resume }
}

// New creates a Runner. Each worker builds its own text extractor from factory.
func New(cfg config.BatchConfig, ext *extract.Extractor, factory ocr.Factory, sink store.Sink, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, ext: ext, factory: factory, sink: sink}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Run processes sources and appends one record per source to the sink.
//
// Cancelling ctx stops the run before the next chunk; the chunk in flight
// still completes and is flushed. A sink failure aborts the run; chunks
// flushed before it stay in the output.
func (r *Runner) Run(ctx context.Context, sources []model.Source) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", sum.RunID))

	pending := sources
	if r.resume {
		done, err := r.sink.Processed(ctx)
		if err != nil {
			return sum, eris.Wrap(err, "batch: read processed sources")
		}
		pending = make([]model.Source, 0, len(sources))
		for _, s := range sources {
			if done[s.Name] {
				sum.Skipped++
				continue
			}
			pending = append(pending, s)
		}
		if sum.Skipped > 0 {
			log.Info("batch: resuming", zap.Int("skipped", sum.Skipped), zap.Int("remaining", len(pending)))
		}
	}

	chunks := Chunk(pending, r.cfg.ChunkSize)
	if len(chunks) == 0 {
		sum.Duration = time.Since(start)
		return sum, nil
	}

	// Work continues on the in-flight chunk after ctx is cancelled.
	workCtx := context.WithoutCancel(ctx)
	workers := min(r.cfg.WorkerCount(), len(pending))
	p := r.startPool(workCtx, workers)
	defer p.stop()

	log.Info("batch: starting",
		zap.Int("documents", len(pending)),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", workers))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			sum.Cancelled = true
			sum.Duration = time.Since(start)
			log.Warn("batch: cancelled", zap.Int("chunks_done", sum.Chunks), zap.Int("chunks_total", len(chunks)))
			return sum, err
		}

		outcomes := p.run(chunk)
		records := make([]model.Record, len(outcomes))
		for j, o := range outcomes {
			records[j] = o.record
			sum.tally(o)
		}

		if err := r.sink.Append(workCtx, records); err != nil {
			sum.Duration = time.Since(start)
			return sum, eris.Wrapf(err, "batch: flush chunk %d of %d", i+1, len(chunks))
		}
		sum.Chunks++
		sum.Flushed += len(records)
		log.Info("batch: chunk flushed",
			zap.Int("chunk", i+1),
			zap.Int("of", len(chunks)),
			zap.Int("rows", len(records)))
	}

	sum.Duration = time.Since(start)
	log.Info("batch: complete",
		zap.Int("flushed", sum.Flushed),
		zap.Int("unreadable", sum.Unreadable),
		zap.Int("panics", sum.Panics),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

func (s *Summary) tally(o outcome) {
	s.Documents++
	if o.unreadable {
		s.Unreadable++
	}
	if o.panicked {
		s.Panics++
	}
	if o.timedOut {
		s.TimedOut++
	}
	if o.recycled {
		s.Recycled++
	}
	if o.recovered {
		s.Recovered++
	}
	if o.record.MissingDocumentNo() {
		s.FilenameDocumentNo++
	}
	if o.record.MissingSequenceNo() {
		s.MissingSequence++
	}
}
