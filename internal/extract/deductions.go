package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/bill-extract/internal/model"
)

var (
	reAnnexure     = regexp.MustCompile(`(?i)annexure\s*[-–]?\s*iii`)
	reDeductionsHd = regexp.MustCompile(`(?i)deductions`)
	reSectionEnd   = regexp.MustCompile(`(?i)total\s+deduction\s+amount`)

	reCodeLine   = regexp.MustCompile(`^\d{5,8}(?:\s|$)`)
	reAmountRun  = regexp.MustCompile(`^-?\d[\d,]*\.\d+(?:\s+-?\d[\d,]*\.\d+)*$`)
	reTrailerRun = regexp.MustCompile(`(?:\s+-?\d[\d,]*\.\d+){2,3}$`)
	reCOA        = regexp.MustCompile(`\bCOA\b`)
)

var ledgerHeaderLines = map[string]bool{
	"description": true,
	"particulars": true,
	"this bill":   true,
	"cumulative":  true,
	"amount":      true,
	"deductions":  true,
}

// deductionSection returns the text between the deductions marker and
// "Total Deduction Amount". Without a marker the section is empty; without
// the end marker it runs to the end of the text.
func deductionSection(text string) string {
	loc := reAnnexure.FindStringIndex(text)
	if loc == nil {
		loc = reDeductionsHd.FindStringIndex(text)
	}
	if loc == nil {
		return ""
	}
	section := text[loc[1]:]
	if end := reSectionEnd.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}
	return section
}

func isLedgerHeader(line string) bool {
	if reCOA.MatchString(line) {
		return true
	}
	l := collapseSpace(strings.ToLower(line))
	return strings.Contains(l, "upto prev") || ledgerHeaderLines[l]
}

func isAmountLine(line string) bool {
	return reAmountRun.MatchString(line)
}

// ledgerEntry is one coded row of the deduction ledger.
type ledgerEntry struct {
	Description string
	Amounts     []decimal.Decimal
}

// scanLedger walks the section's lines and groups them into entries: a code
// line, description continuation lines, then up to three amounts. A row that
// carries its amounts at the end of a description line is also accepted.
func scanLedger(section string) []ledgerEntry {
	lines := nonEmptyLines(section)
	maxAmounts := len(LedgerSchema)

	var entries []ledgerEntry
	i := 0
	for i < len(lines) {
		if isAmountLine(lines[i]) || !reCodeLine.MatchString(lines[i]) || isLedgerHeader(lines[i]) {
			i++
			continue
		}

		var desc []string
		var amounts []decimal.Decimal
		j := i
		for j < len(lines) {
			line := lines[j]
			if j > i && (reCodeLine.MatchString(line) || isAmountLine(line)) {
				break
			}
			j++
			if j-1 > i && isLedgerHeader(line) {
				continue
			}
			if loc := reTrailerRun.FindStringIndex(line); loc != nil {
				desc = append(desc, strings.TrimSpace(line[:loc[0]]))
				amounts = amountTokensSigned(line[loc[0]:])
				break
			}
			desc = append(desc, line)
		}

		if amounts == nil {
			for j < len(lines) && len(amounts) < maxAmounts && isAmountLine(lines[j]) {
				amounts = append(amounts, amountTokensSigned(lines[j])...)
				j++
			}
		}
		if len(amounts) > maxAmounts {
			amounts = amounts[:maxAmounts]
		}

		entries = append(entries, ledgerEntry{Description: strings.Join(desc, " "), Amounts: amounts})
		i = j
	}
	return entries
}

var reSignedToken = regexp.MustCompile(`-?\d[\d,]*\.\d+`)

func amountTokensSigned(s string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, tok := range reSignedToken.FindAllString(s, -1) {
		if d, ok := parseAmount(tok); ok {
			out = append(out, d)
		}
	}
	return out
}

// extractDeductions classifies each ledger entry and records its
// current-period amount. Keys with no entry stay zero.
func extractDeductions(text string, tax Taxonomy) model.Deductions {
	out := model.NewDeductions()
	for _, e := range scanLedger(deductionSection(text)) {
		current, ok := LedgerSchema.Pick(e.Amounts, ColCurrentPeriod)
		if !ok {
			continue
		}
		cat, ok := tax.Classify(e.Description)
		if !ok {
			continue
		}
		if cat.Policy == MaxAbsWins && current.Abs().LessThan(out[cat.Key].Abs()) {
			continue
		}
		out[cat.Key] = current
	}
	return out
}
