package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord_Defaults(t *testing.T) {
	t.Parallel()

	r := NewRecord("AB123BIL1234567.pdf")

	assert.Equal(t, "AB123BIL1234567.pdf", r.SourceName)
	assert.Equal(t, "AB123BIL1234567", r.DocumentNo)
	assert.True(t, r.DocumentNoFromFilename)
	assert.Equal(t, MissingSequence, r.SequenceNo)
	assert.True(t, r.MissingSequenceNo())
	assert.Len(t, r.Deductions, len(DeductionKeys))
	for _, k := range DeductionKeys {
		assert.True(t, r.Deduction(k).IsZero(), "key %s", k)
	}
}

func TestRecord_TotalAmountIsDerived(t *testing.T) {
	t.Parallel()

	r := NewRecord("x.pdf")
	r.TaxAmount = decimal.RequireFromString("125.00")
	r.CurrentAmount = decimal.RequireFromString("2500.00")

	assert.Equal(t, "2625.00", FormatAmount(r.TotalAmount()))
	assert.True(t, r.TotalAmount().Equal(r.TaxAmount.Add(r.CurrentAmount)))
}

func TestRecord_RowMatchesColumns(t *testing.T) {
	t.Parallel()

	r := NewRecord("bill.pdf")
	r.DocumentNo = "AB123BIL1234567"
	r.DocumentNoFromFilename = false
	r.SequenceNo = "7"
	r.JobLabel = "Metro Line\nPhase 2"
	r.Deductions[DeductionTDS] = decimal.RequireFromString("50")

	cols := Columns()
	row := r.Row()
	require.Len(t, row, len(cols))

	byCol := make(map[string]string, len(cols))
	for i, c := range cols {
		byCol[c] = row[i]
	}
	assert.Equal(t, "bill.pdf", byCol["FILE"])
	assert.Equal(t, "AB123BIL1234567", byCol["BILL_NO"])
	assert.Equal(t, "7", byCol["RUNNING_BIL"])
	assert.Equal(t, "Metro Line Phase 2", byCol["JOB"])
	assert.Equal(t, "0.00", byCol["TAX_AMT"])
	assert.Equal(t, "0.00", byCol["TOTAL_AMT"])
	assert.Equal(t, "50.00", byCol["TDS"])
	assert.Equal(t, "0.00", byCol["ROUNDING_OFF"])
}

func TestRecord_DeductionMissingKeyIsZero(t *testing.T) {
	t.Parallel()

	r := Record{SourceName: "x.pdf"}
	assert.True(t, r.Deduction(DeductionRetention).IsZero())
	assert.Len(t, r.Row(), len(Columns()))
}

func TestRecord_View(t *testing.T) {
	t.Parallel()

	r := NewRecord("x.pdf")
	r.Deductions[DeductionRoundingOff] = decimal.RequireFromString("-0.4")

	v := r.View()
	assert.Equal(t, "0.00", v.TotalAmount)
	assert.Len(t, v.Deductions, len(DeductionKeys))
	assert.Equal(t, "-0.40", v.Deductions["ROUNDING_OFF"])
}

func TestIsDeductionKey(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDeductionKey(DeductionTDS))
	assert.False(t, IsDeductionKey("GST"))
}

func TestStripExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"AB123BIL1234567.pdf", "AB123BIL1234567"},
		{"/data/Bills/bill.v2.pdf", "bill.v2"},
		{"noext", "noext"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripExt(tt.in), tt.in)
	}
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	s := NewSource("/x", "/x/WO-1/Bills/a.pdf")
	assert.Equal(t, "WO-1/Bills/a.pdf", s.Name)
	assert.Equal(t, "/x/WO-1/Bills/a.pdf", s.Path)
	assert.Equal(t, "a", Document{SourceName: s.Name}.Stem())

	other := NewSource("/x", "/x/WO-2/Bills/a.pdf")
	assert.NotEqual(t, s.Name, other.Name)

	assert.Equal(t, "a.pdf", NewSource("", "/x/Bills/a.pdf").Name)
	assert.Equal(t, "a.pdf", NewSource("/y", "/x/Bills/a.pdf").Name)
}
