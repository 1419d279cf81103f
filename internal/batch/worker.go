package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/ocr"
)

// panicError carries a panic raised inside a text extractor.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

type textResult struct {
	text string
	err  error
}

// readText calls ext under the per-document timeout. When the deadline hits
// first the call is abandoned and onAbandon runs once it finally returns.
func (r *Runner) readText(ctx context.Context, ext ocr.Extractor, path string, onAbandon func()) (string, bool, error) {
	if d := r.cfg.DocumentTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ch := make(chan textResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- textResult{err: &panicError{value: p, stack: debug.Stack()}}
			}
		}()
		text, err := ext.ExtractText(ctx, path)
		ch <- textResult{text: text, err: err}
	}()

	select {
	case res := <-ch:
		return res.text, false, res.err
	case <-ctx.Done():
		go func() {
			<-ch
			if onAbandon != nil {
				onAbandon()
			}
		}()
		return "", true, eris.Wrap(ctx.Err(), "batch: text extraction")
	}
}

// process turns one source into a record. It never fails: every failure is
// logged and leaves the record at its defaults.
func (r *Runner) process(ctx context.Context, ext ocr.Extractor, src model.Source) (o outcome, abandoned bool) {
	log := zap.L().With(zap.String("source", src.Name))

	defer func() {
		if p := recover(); p != nil {
			log.Error("batch: recovered panic",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			o = outcome{record: model.NewRecord(src.Name), panicked: true, unreadable: true}
		}
	}()

	text, abandoned, err := r.readText(ctx, ext, src.Path, func() { _ = ocr.Close(ext) })
	if err != nil {
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			log.Error("batch: text extractor panicked",
				zap.Any("panic", pe.value),
				zap.ByteString("stack", pe.stack))
			o.panicked = true
			// A panicking instance is not reused.
			abandoned = true
			_ = ocr.Close(ext)
		case abandoned || errors.Is(err, context.DeadlineExceeded):
			log.Warn("batch: text extraction timed out", zap.Duration("timeout", r.cfg.DocumentTimeout()))
			o.timedOut = true
			if !abandoned {
				_ = ocr.Close(ext)
				abandoned = true
			}
		default:
			log.Warn("batch: text extraction failed", zap.Error(err))
		}
		text = ""
	}

	res := r.ext.Extract(model.Document{SourceName: src.Name, RawText: text})
	o.record = res.Record
	o.unreadable = strings.TrimSpace(text) == ""
	for _, w := range res.Warnings {
		log.Warn("batch: " + w)
	}

	if r.fallback != nil && (o.record.MissingDocumentNo() || o.record.MissingSequenceNo()) {
		o.recovered = r.applyFallback(ctx, &o.record, src)
	}
	return o, abandoned
}

// applyFallback re-reads src with the fallback extractor and fills in
// identifiers the primary text did not yield. It reports whether anything
// was filled in.
func (r *Runner) applyFallback(ctx context.Context, rec *model.Record, src model.Source) bool {
	log := zap.L().With(zap.String("source", src.Name))

	text, _, err := r.readText(ctx, r.fallback, src.Path, nil)
	if err != nil {
		log.Warn("batch: fallback extraction failed", zap.Error(err))
		return false
	}
	if strings.TrimSpace(text) == "" {
		return false
	}

	ids := r.ext.ResolveIdentifiers(model.Document{SourceName: src.Name, RawText: text})
	filled := false
	if rec.MissingDocumentNo() && !ids.DocumentNoFallback {
		rec.DocumentNo = ids.DocumentNo
		rec.DocumentNoFromFilename = false
		filled = true
	}
	if rec.MissingSequenceNo() && ids.SequenceNo != model.MissingSequence {
		rec.SequenceNo = ids.SequenceNo
		filled = true
	}
	if filled {
		log.Info("batch: identifiers recovered by fallback",
			zap.String("bill_no", rec.DocumentNo),
			zap.String("running_bill", rec.SequenceNo))
	}
	return filled
}
