// Package extract turns the plain text of one contractor bill into a
// model.Record. It holds no mutable state and is safe for concurrent use.
package extract

import (
	"strings"

	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/patterns"
)

// Config tunes an Extractor. Zero values select the defaults.
type Config struct {
	Registry     *patterns.Registry
	Taxonomy     Taxonomy
	AmountWindow int
}

// Extractor runs every field extractor over a document.
type Extractor struct {
	reg          *patterns.Registry
	tax          Taxonomy
	amountWindow int
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	e := &Extractor{
		reg:          cfg.Registry,
		tax:          cfg.Taxonomy,
		amountWindow: cfg.AmountWindow,
	}
	if e.reg == nil {
		e.reg = patterns.Default()
	}
	if e.tax.Empty() {
		e.tax = DefaultTaxonomy()
	}
	if e.amountWindow <= 0 {
		e.amountWindow = DefaultAmountWindow
	}
	return e
}

// Trace keys, one per resolved field.
const (
	TraceDocumentNo = "document_no"
	TraceSequenceNo = "sequence_no"
	TraceAmounts    = "amounts"
)

// Result is a record plus how each field was resolved.
type Result struct {
	Record   model.Record
	Trace    map[string]string
	Warnings []string
}

// Extract builds a record from doc. It never fails: every field that cannot
// be found keeps its default.
func (e *Extractor) Extract(doc model.Document) Result {
	rec := model.NewRecord(doc.SourceName)
	res := Result{Trace: map[string]string{}}

	if strings.TrimSpace(doc.RawText) == "" {
		res.Record = rec
		res.Trace[TraceDocumentNo] = SourceFilename
		res.Trace[TraceSequenceNo] = SourceMissing
		res.Trace[TraceAmounts] = SourceMissing
		res.Warnings = append(res.Warnings, "no text extracted")
		return res
	}

	t := prepare(doc.RawText)

	ids := resolveIdentifiers(e.reg, t, doc.SourceName)
	ids.apply(&rec)
	res.Trace[TraceDocumentNo] = ids.DocumentNoSource
	res.Trace[TraceSequenceNo] = ids.SequenceNoSource
	if ids.DocumentNoFallback {
		res.Warnings = append(res.Warnings, "bill number not found, using filename")
	}
	if ids.SequenceNo == model.MissingSequence {
		res.Warnings = append(res.Warnings, "running bill number not found")
	}

	h := extractHeader(e.reg, t)
	rec.WorkOrderRef = h.WorkOrderRef
	rec.JobLabel = h.JobLabel
	rec.PeriodLabel = h.PeriodLabel

	if amt, ok := extractAmounts(t, e.amountWindow); ok {
		rec.TaxAmount = amt.Tax
		rec.CurrentAmount = amt.Current
		res.Trace[TraceAmounts] = "work_done_row"
	} else {
		res.Trace[TraceAmounts] = SourceMissing
		res.Warnings = append(res.Warnings, "work done amount row not found")
	}

	rec.Deductions = extractDeductions(t.Full, e.tax)

	res.Record = rec
	return res
}

// ResolveIdentifiers runs only the bill number and running bill number chains.
func (e *Extractor) ResolveIdentifiers(doc model.Document) Identifiers {
	return resolveIdentifiers(e.reg, prepare(doc.RawText), doc.SourceName)
}

// ResultView is the serialized form of a Result.
type ResultView struct {
	Record   model.RecordView  `json:"record" yaml:"record"`
	Trace    map[string]string `json:"trace" yaml:"trace"`
	Warnings []string          `json:"warnings" yaml:"warnings"`
}

// View converts the result for JSON or YAML output.
func (r Result) View() ResultView {
	w := r.Warnings
	if w == nil {
		w = []string{}
	}
	return ResultView{Record: r.Record.View(), Trace: r.Trace, Warnings: w}
}

// Taxonomy returns the deduction categories in use.
func (e *Extractor) Taxonomy() Taxonomy { return e.tax }
