package extract

import (
	"github.com/sells-group/bill-extract/internal/patterns"
)

// Header holds the flat key:value fields of the bill header.
type Header struct {
	WorkOrderRef string
	JobLabel     string
	PeriodLabel  string
}

// extractHeader resolves each header field independently; misses stay empty.
func extractHeader(reg *patterns.Registry, t patterns.Text) Header {
	return Header{
		WorkOrderRef: first(reg.WorkOrderRef, t),
		JobLabel:     first(reg.JobLabel, t),
		PeriodLabel:  first(reg.PeriodLabel, t),
	}
}

func first(s patterns.Set, t patterns.Text) string {
	if m, ok := s.Resolve(t, -1); ok {
		return m.Value
	}
	return ""
}
