package model

// RecordView is the JSON/YAML rendering of a Record with amounts as fixed-point strings.
type RecordView struct {
	SourceName             string            `json:"source_name" yaml:"source_name"`
	DocumentNo             string            `json:"document_no" yaml:"document_no"`
	DocumentNoFromFilename bool              `json:"document_no_from_filename" yaml:"document_no_from_filename"`
	SequenceNo             string            `json:"sequence_no" yaml:"sequence_no"`
	WorkOrderRef           string            `json:"work_order_ref" yaml:"work_order_ref"`
	JobLabel               string            `json:"job_label" yaml:"job_label"`
	PeriodLabel            string            `json:"period_label" yaml:"period_label"`
	TaxAmount              string            `json:"tax_amount" yaml:"tax_amount"`
	CurrentAmount          string            `json:"current_amount" yaml:"current_amount"`
	TotalAmount            string            `json:"total_amount" yaml:"total_amount"`
	Deductions             map[string]string `json:"deductions" yaml:"deductions"`
}

// View converts the record for serialization. Every deduction key is present.
func (r Record) View() RecordView {
	v := RecordView{
		SourceName:             r.SourceName,
		DocumentNo:             r.DocumentNo,
		DocumentNoFromFilename: r.DocumentNoFromFilename,
		SequenceNo:             r.SequenceNo,
		WorkOrderRef:           r.WorkOrderRef,
		JobLabel:               r.JobLabel,
		PeriodLabel:            r.PeriodLabel,
		TaxAmount:              FormatAmount(r.TaxAmount),
		CurrentAmount:          FormatAmount(r.CurrentAmount),
		TotalAmount:            FormatAmount(r.TotalAmount()),
		Deductions:             make(map[string]string, len(DeductionKeys)),
	}
	for _, k := range DeductionKeys {
		v.Deductions[string(k)] = FormatAmount(r.Deduction(k))
	}
	return v
}
