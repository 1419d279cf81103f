package patterns

import (
	"regexp"
	"strings"
	"unicode"
)

// Registry is the process-wide, read-only collection of field strategies.
type Registry struct {
	DocumentNo   Set
	SequenceNo   Set
	WorkOrderRef Set
	JobLabel     Set
	PeriodLabel  Set
}

// Options tunes lookahead windows.
type Options struct {
	// LabelLookahead bounds the search after a label line.
	LabelLookahead int
	// AnchorLookahead bounds the search for a running bill number after the bill number line.
	AnchorLookahead int
}

// DefaultOptions returns the windows used by Default.
func DefaultOptions() Options {
	return Options{LabelLookahead: DefaultWindow, AnchorLookahead: 8}
}

var (
	// Compact bill number: two-letter prefix, 3 digits, BIL, 7 digits.
	reBillExact = regexp.MustCompile(`^([A-Z]{2}\d{3}BIL\d{7})$`)
	reBillToken = regexp.MustCompile(`\b([A-Z]{2}\d{3}BIL\d{7})\b`)
	// Same shape with single separators between groups, trusted only near a label.
	reBillSeparated = regexp.MustCompile(`(?i)\b([A-Z]{2}[ \t\-/]?\d{3}[ \t\-/]?BIL[ \t\-/]?\d{7})\b`)
	// Labelled or bare forms anywhere in the text, allowed to wrap lines.
	reBillLabelledText = regexp.MustCompile(`(?i)BILL\s*NO\.?\s*:?\s*([A-Z]{2}[\s\-/]*\d{3}[\s\-/]*BIL[\s\-/]*\d{7})\b`)
	reBillLooseText    = regexp.MustCompile(`(?i)\b([A-Z]{2}[\s\-/]*\d{3}[\s\-/]*BIL[\s\-/]*\d{7})\b`)

	reBillLabel = regexp.MustCompile(`(?i)\b(?:BILL|DOCUMENT)[ \t]*(?:NO\b|NUMBER\b)`)

	// The counter may be followed by other header fields on the same line,
	// but never by more digits, a decimal part or a date.
	reRunningSameLine  = regexp.MustCompile(`(?im)RUNNING[ \t]*BILL[ \t]*(?:NO\.?|NUMBER)?[ \t]*[:\-]?[ \t]*(\d{1,4})(?:[^\d.,/]|$)`)
	reRABillSameLine   = regexp.MustCompile(`(?im)\bR[ \t]?\.?[ \t]?A[ \t]?\.?[ \t]*BILL[ \t]*NO\.?[ \t]*[:\-]?[ \t]*(\d{1,4})(?:[^\d.,/]|$)`)
	reSequenceSameLine = regexp.MustCompile(`(?im)\bSEQ(?:UENCE)?\.?[ \t]*NO\.?[ \t]*[:\-]?[ \t]*(\d{1,4})(?:[^\d.,/]|$)`)
	reRunningLabel     = regexp.MustCompile(`(?i)\bRUNNING[ \t]*BILL\b|\bSEQ(?:UENCE)?\.?[ \t]*NO\b`)
	reBareCounter      = regexp.MustCompile(`^(\d{1,4})$`)

	reWorkOrder = regexp.MustCompile(`(?i)\bWO[ \t]*No\.?[ \t]*:?[ \t]*(?:\n[ \t]*)?([\w/\-]+)`)
	reJob       = regexp.MustCompile(`(?i)\bJob\b[ \t]*:?[ \t]*(?:\n[ \t]*)?([A-Za-z0-9][A-Za-z0-9 \-/&.,()]*)`)
	rePeriod    = regexp.MustCompile(`(?i)\bBILL[ \t]*PERIOD\b[ \t]*:?[ \t]*(?:\n[ \t]*)?([A-Za-z0-9][A-Za-z0-9 \-/&.,]*)`)
)

var defaultRegistry = New(DefaultOptions())

// Default returns the shared registry. Callers must not modify it.
func Default() *Registry {
	return defaultRegistry
}

// New builds a registry with the given lookahead windows.
func New(opts Options) *Registry {
	if opts.LabelLookahead <= 0 {
		opts.LabelLookahead = DefaultWindow
	}
	if opts.AnchorLookahead <= 0 {
		opts.AnchorLookahead = DefaultOptions().AnchorLookahead
	}

	return &Registry{
		DocumentNo: Set{
			Field: "document_no",
			Strategies: []Strategy{
				{Name: "line_exact", Kind: KindLine, Pattern: reBillExact},
				{Name: "line_token", Kind: KindLine, Pattern: reBillToken},
				{Name: "label_lookahead", Kind: KindLabelLookahead, Label: reBillLabel, Pattern: reBillSeparated, Window: opts.LabelLookahead},
				{Name: "text_labelled", Kind: KindText, Pattern: reBillLabelledText},
				{Name: "text_loose", Kind: KindText, Pattern: reBillLooseText},
			},
			Normalize: CompactIdentifier,
		},
		SequenceNo: Set{
			Field: "sequence_no",
			Strategies: []Strategy{
				{Name: "running_label", Kind: KindText, Pattern: reRunningSameLine},
				{Name: "ra_label", Kind: KindText, Pattern: reRABillSameLine},
				{Name: "sequence_label", Kind: KindText, Pattern: reSequenceSameLine},
				{Name: "label_lookahead", Kind: KindLabelLookahead, Label: reRunningLabel, Pattern: reBareCounter, Window: opts.LabelLookahead},
				{Name: "after_bill_no", Kind: KindAnchorLookahead, Pattern: reBareCounter, Window: opts.AnchorLookahead},
			},
		},
		WorkOrderRef: Set{
			Field:      "work_order_ref",
			Strategies: []Strategy{{Name: "wo_no", Kind: KindText, Pattern: reWorkOrder}},
		},
		JobLabel: Set{
			Field:      "job_label",
			Strategies: []Strategy{{Name: "job", Kind: KindText, Pattern: reJob}},
		},
		PeriodLabel: Set{
			Field:      "period_label",
			Strategies: []Strategy{{Name: "bill_period", Kind: KindText, Pattern: rePeriod}},
		},
	}
}

// CompactIdentifier drops separators and upper-cases a bill number.
func CompactIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
