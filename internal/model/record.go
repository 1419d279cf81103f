package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MissingSequence is written when the running bill number was searched for and not found.
const MissingSequence = "MISSING"

// DeductionKey names one withholding category of the deductions annexure.
type DeductionKey string

// Deduction categories. The set is part of the output contract.
const (
	DeductionTDS               DeductionKey = "TDS"
	DeductionRetention         DeductionKey = "RETENTION"
	DeductionSubContractLabour DeductionKey = "SUB_CONTRACT_LABOUR"
	DeductionPFRecovered       DeductionKey = "PF_OR_EPS_RECOVERED"
	DeductionESIEmployer       DeductionKey = "ESI_EMPLOYERS_CONTRIBUTION"
	DeductionESIEmployee       DeductionKey = "ESI_EMPLOYEES_CONTN_SUB_WORKER"
	DeductionRoundingOff       DeductionKey = "ROUNDING_OFF"
)

// DeductionKeys lists every deduction category in output column order.
var DeductionKeys = []DeductionKey{
	DeductionTDS,
	DeductionRetention,
	DeductionSubContractLabour,
	DeductionPFRecovered,
	DeductionESIEmployer,
	DeductionESIEmployee,
	DeductionRoundingOff,
}

// IsDeductionKey reports whether k belongs to the closed deduction set.
func IsDeductionKey(k DeductionKey) bool {
	for _, known := range DeductionKeys {
		if k == known {
			return true
		}
	}
	return false
}

// headerColumns are the non-deduction output columns, in order.
var headerColumns = []string{
	"FILE",
	"BILL_NO",
	"RUNNING_BIL",
	"WO_NO",
	"JOB",
	"BILL_PERIOD",
	"TAX_AMT",
	"CURRENT_BILL_AMOUNT",
	"TOTAL_AMT",
}

// Columns returns the full, fixed output schema.
func Columns() []string {
	cols := make([]string, 0, len(headerColumns)+len(DeductionKeys))
	cols = append(cols, headerColumns...)
	for _, k := range DeductionKeys {
		cols = append(cols, string(k))
	}
	return cols
}

// Deductions maps every deduction category to its current-period amount.
type Deductions map[DeductionKey]decimal.Decimal

// NewDeductions returns a mapping with every key set to zero.
func NewDeductions() Deductions {
	d := make(Deductions, len(DeductionKeys))
	for _, k := range DeductionKeys {
		d[k] = decimal.Zero
	}
	return d
}

// Record is one structured output row.
type Record struct {
	SourceName string

	DocumentNo             string
	DocumentNoFromFilename bool
	SequenceNo             string

	WorkOrderRef string
	JobLabel     string
	PeriodLabel  string

	TaxAmount     decimal.Decimal
	CurrentAmount decimal.Decimal

	Deductions Deductions
}

// NewRecord returns the default-valued record for a source: document number
// derived from the file name, sequence MISSING, all amounts zero.
func NewRecord(sourceName string) Record {
	return Record{
		SourceName:             sourceName,
		DocumentNo:             StripExt(sourceName),
		DocumentNoFromFilename: true,
		SequenceNo:             MissingSequence,
		TaxAmount:              decimal.Zero,
		CurrentAmount:          decimal.Zero,
		Deductions:             NewDeductions(),
	}
}

// TotalAmount is always derived, never parsed.
func (r Record) TotalAmount() decimal.Decimal {
	return r.TaxAmount.Add(r.CurrentAmount)
}

// MissingDocumentNo reports whether the document number fell back to the file name.
func (r Record) MissingDocumentNo() bool {
	return r.DocumentNoFromFilename
}

// MissingSequenceNo reports whether the running bill number was not found.
func (r Record) MissingSequenceNo() bool {
	return r.SequenceNo == MissingSequence || r.SequenceNo == ""
}

// Deduction returns the amount for k, zero when absent.
func (r Record) Deduction(k DeductionKey) decimal.Decimal {
	if v, ok := r.Deductions[k]; ok {
		return v
	}
	return decimal.Zero
}

// FormatAmount renders an amount with exactly two fraction digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Row renders the record in Columns() order.
func (r Record) Row() []string {
	row := []string{
		r.SourceName,
		cell(r.DocumentNo),
		cell(r.SequenceNo),
		cell(r.WorkOrderRef),
		cell(r.JobLabel),
		cell(r.PeriodLabel),
		FormatAmount(r.TaxAmount),
		FormatAmount(r.CurrentAmount),
		FormatAmount(r.TotalAmount()),
	}
	for _, k := range DeductionKeys {
		row = append(row, FormatAmount(r.Deduction(k)))
	}
	return row
}

// cell keeps every output value on a single physical line.
func cell(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
