package batch

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/ocr"
)

// outcome is what a worker reports for one source.
type outcome struct {
	record     model.Record
	unreadable bool
	panicked   bool
	timedOut   bool
	recycled   bool
	recovered  bool
}

// pool is a fixed set of workers that lives for the whole run.
type pool struct {
	tasks   chan model.Source
	results chan outcome
	g       errgroup.Group
}

func (r *Runner) startPool(ctx context.Context, workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		tasks:   make(chan model.Source, workers),
		results: make(chan outcome, workers),
	}
	for id := range workers {
		p.g.Go(func() error {
			r.work(ctx, id, p.tasks, p.results)
			return nil
		})
	}
	return p
}

// run submits every source of the chunk and waits for exactly as many
// outcomes. Outcomes arrive in completion order.
func (p *pool) run(chunk []model.Source) []outcome {
	go func() {
		for _, s := range chunk {
			p.tasks <- s
		}
	}()
	out := make([]outcome, 0, len(chunk))
	for range chunk {
		out = append(out, <-p.results)
	}
	return out
}

func (p *pool) stop() {
	close(p.tasks)
	_ = p.g.Wait()
}

// work owns one text extractor and replaces it after MaxTasksPerWorker
// documents, or right away when a timed-out call may still be using it.
func (r *Runner) work(ctx context.Context, id int, tasks <-chan model.Source, results chan<- outcome) {
	log := zap.L().With(zap.Int("worker", id))

	var (
		ext  ocr.Extractor
		used int
	)
	defer func() {
		if ext != nil {
			_ = ocr.Close(ext)
		}
	}()

	for src := range tasks {
		if ext == nil {
			e, err := r.factory()
			if err != nil {
				log.Error("batch: create text extractor", zap.String("source", src.Name), zap.Error(err))
				results <- outcome{record: model.NewRecord(src.Name), unreadable: true}
				continue
			}
			ext, used = e, 0
		}

		o, abandoned := r.process(ctx, ext, src)
		used++

		switch {
		case abandoned:
			// Already closed, or closed by the timed-out call when it returns.
			ext = nil
			o.recycled = true
		case r.cfg.MaxTasksPerWorker > 0 && used >= r.cfg.MaxTasksPerWorker:
			if err := ocr.Close(ext); err != nil {
				log.Warn("batch: close text extractor", zap.Error(err))
			}
			ext = nil
			o.recycled = true
			log.Debug("batch: worker recycled", zap.Int("tasks", used))
		}

		results <- o
	}
}
