package extract

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/sells-group/bill-extract/internal/patterns"
)

// Ledger column names.
const (
	ColPriorCumulative = "prior_cumulative"
	ColCurrentPeriod   = "current_period"
	ColNewCumulative   = "new_cumulative"
	ColTax             = "tax"
	ColGrandTotal      = "grand_total"
)

// RowSchema names the columns of a positional amount row, left to right.
type RowSchema []string

// WorkDoneSchema is the layout of the "Total Work Done Amount" row.
var WorkDoneSchema = RowSchema{ColPriorCumulative, ColCurrentPeriod, ColNewCumulative, ColTax, ColGrandTotal}

// LedgerSchema is the layout of one deduction entry's amounts.
var LedgerSchema = RowSchema{ColPriorCumulative, ColCurrentPeriod, ColNewCumulative}

// Index returns the position of col, or -1.
func (s RowSchema) Index(col string) int {
	for i, c := range s {
		if c == col {
			return i
		}
	}
	return -1
}

// Need returns how many leading tokens must be present to read every col.
func (s RowSchema) Need(cols ...string) int {
	n := 0
	for _, c := range cols {
		if i := s.Index(c); i+1 > n {
			n = i + 1
		}
	}
	return n
}

// Pick reads col from a positional token row.
func (s RowSchema) Pick(tokens []decimal.Decimal, col string) (decimal.Decimal, bool) {
	i := s.Index(col)
	if i < 0 || i >= len(tokens) {
		return decimal.Zero, false
	}
	return tokens[i], true
}

// DefaultAmountWindow is how many lines after the label are scanned for amounts.
const DefaultAmountWindow = 5

var reWorkDoneLabel = regexp.MustCompile(`(?i)total[ \t]+work[ \t]+done[ \t]+amount`)

var reAmountToken = regexp.MustCompile(`\d[\d,]*\.\d+`)

// AmountTable is the tax and current-period amount of a bill.
type AmountTable struct {
	Tax     decimal.Decimal
	Current decimal.Decimal
}

// extractAmounts reads the first "Total Work Done Amount" row. Missing or
// short rows produce zeros.
func extractAmounts(t patterns.Text, window int) (AmountTable, bool) {
	zero := AmountTable{Tax: decimal.Zero, Current: decimal.Zero}
	if window <= 0 {
		window = DefaultAmountWindow
	}

	anchor := -1
	var label []int
	for i, line := range t.Lines {
		if label = reWorkDoneLabel.FindStringIndex(line); label != nil {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return zero, false
	}

	// Layout-preserving extractors put the row on the label line itself.
	tokens := amountTokens(t.Lines[anchor][label[1]:])
	for j := anchor + 1; j < len(t.Lines) && j <= anchor+window; j++ {
		tokens = append(tokens, amountTokens(t.Lines[j])...)
	}

	if len(tokens) < WorkDoneSchema.Need(ColCurrentPeriod, ColTax) {
		return zero, false
	}
	current, _ := WorkDoneSchema.Pick(tokens, ColCurrentPeriod)
	tax, _ := WorkDoneSchema.Pick(tokens, ColTax)
	return AmountTable{Tax: tax, Current: current}, true
}

func amountTokens(line string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, tok := range reAmountToken.FindAllString(line, -1) {
		if d, ok := parseAmount(tok); ok {
			out = append(out, d)
		}
	}
	return out
}
