package extract

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/bill-extract/internal/patterns"
)

// normalizeText folds compatibility characters (full-width digits, no-break
// spaces, ligatures) produced by PDF text layers into their plain forms.
func normalizeText(s string) string {
	return norm.NFKC.String(s)
}

func prepare(raw string) patterns.Text {
	return patterns.NewText(normalizeText(raw))
}

// nonEmptyLines splits s into trimmed lines and drops blanks.
func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// collapseSpace joins whitespace runs into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseAmount reads a ledger amount, ignoring thousands separators.
func parseAmount(tok string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
