package valueobjects

// InvoiceStatus is the canonical lifecycle state of an invoice. The string
// values are the stable wire vocabulary exposed to polling clients.
type InvoiceStatus string

const (
	InvoiceStatusPending      InvoiceStatus = "PENDING"
	InvoiceStatusSent         InvoiceStatus = "SENT"
	InvoiceStatusPaidDetected InvoiceStatus = "PAID_DETECTED"
	InvoiceStatusConverting   InvoiceStatus = "CONVERTING"
	InvoiceStatusSettling     InvoiceStatus = "SETTLING"
	InvoiceStatusCashedOut    InvoiceStatus = "CASHED_OUT"
	InvoiceStatusComplete     InvoiceStatus = "COMPLETE"
	InvoiceStatusCancelled    InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusSent, InvoiceStatusPaidDetected,
		InvoiceStatusConverting, InvoiceStatusSettling, InvoiceStatusCashedOut,
		InvoiceStatusComplete, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusComplete || s == InvoiceStatusCancelled
}

// IsPaid is the single classification of "has payment been observed".
// External consumers derive it from the status enum, never from side flags.
func (s InvoiceStatus) IsPaid() bool {
	switch s {
	case InvoiceStatusPaidDetected, InvoiceStatusConverting, InvoiceStatusSettling,
		InvoiceStatusCashedOut, InvoiceStatusComplete:
		return true
	default:
		return false
	}
}

func (s InvoiceStatus) String() string {
	return string(s)
}
