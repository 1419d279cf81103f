package extract

import (
	"github.com/sells-group/bill-extract/internal/model"
	"github.com/sells-group/bill-extract/internal/patterns"
)

// Resolution sources reported when no pattern strategy matched.
const (
	SourceFilename = "filename"
	SourceMissing  = "missing"
)

// Identifiers holds the resolved bill number and running bill number.
type Identifiers struct {
	DocumentNo         string
	DocumentNoFallback bool
	DocumentNoSource   string
	// DocumentNoLine is the line the bill number was found on, -1 for the filename fallback.
	DocumentNoLine int

	SequenceNo       string
	SequenceNoSource string
}

// resolveIdentifiers runs both fallback chains. The running bill number
// search may anchor on the line where the bill number was found.
func resolveIdentifiers(reg *patterns.Registry, t patterns.Text, sourceName string) Identifiers {
	var ids Identifiers

	if m, ok := reg.DocumentNo.Resolve(t, -1); ok {
		ids.DocumentNo = m.Value
		ids.DocumentNoSource = m.Strategy
		ids.DocumentNoLine = m.Line
	} else {
		ids.DocumentNo = model.StripExt(sourceName)
		ids.DocumentNoFallback = true
		ids.DocumentNoSource = SourceFilename
		ids.DocumentNoLine = -1
	}

	if m, ok := reg.SequenceNo.Resolve(t, ids.DocumentNoLine); ok {
		ids.SequenceNo = m.Value
		ids.SequenceNoSource = m.Strategy
	} else {
		ids.SequenceNo = model.MissingSequence
		ids.SequenceNoSource = SourceMissing
	}

	return ids
}

// apply copies the identifiers onto a record.
func (ids Identifiers) apply(r *model.Record) {
	r.DocumentNo = ids.DocumentNo
	r.DocumentNoFromFilename = ids.DocumentNoFallback
	r.SequenceNo = ids.SequenceNo
}
