package domain

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type FraudVerdict struct {
	Flagged  bool     `json:"flagged"`
	Severity Severity `json:"severity"`
	Reasons  []string `json:"reasons"`
}

// NewFraudVerdict derives flagged status and severity from the reasons that
// fired: none for zero reasons, medium for one, high for two or more.
func NewFraudVerdict(reasons []string) FraudVerdict {
	v := FraudVerdict{
		Reasons:  append([]string{}, reasons...),
		Severity: SeverityNone,
	}

	switch {
	case len(v.Reasons) >= 2:
		v.Flagged = true
		v.Severity = SeverityHigh
	case len(v.Reasons) == 1:
		v.Flagged = true
		v.Severity = SeverityMedium
	}
	return v
}

type NotarizationMode string

const (
	NotarizationSimulated NotarizationMode = "simulated"
	NotarizationLive      NotarizationMode = "live"
)

type NotarizationReceipt struct {
	Mode           NotarizationMode `json:"mode"`
	TransactionRef string           `json:"transaction_ref"`
	Confirmed      bool             `json:"confirmed"`
}
