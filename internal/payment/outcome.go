package payment

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusDeclined Status = "declined"
	StatusError    Status = "error"
)

// Outcome is the reconciled state of one invoice. Declined is a normal result
// of a check, not a failure of the check itself; Error means the check could
// not reach a verdict.
type Outcome struct {
	Status    Status          `json:"status"`
	InvoiceID string          `json:"invoice_id"`
	OrderID   string          `json:"order_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

func NewSuccess(invoiceID, orderID string, amount decimal.Decimal) Outcome {
	return Outcome{
		Status:    StatusSuccess,
		InvoiceID: invoiceID,
		OrderID:   orderID,
		Amount:    amount,
	}
}

func NewDeclined(invoiceID, orderID, reason string, raw json.RawMessage) Outcome {
	return Outcome{
		Status:    StatusDeclined,
		InvoiceID: invoiceID,
		OrderID:   orderID,
		Reason:    reason,
		Raw:       raw,
	}
}

func NewError(invoiceID, code, message string, raw json.RawMessage) Outcome {
	return Outcome{
		Status:    StatusError,
		InvoiceID: invoiceID,
		Code:      code,
		Message:   message,
		Raw:       raw,
	}
}

func (o Outcome) Paid() bool { return o.Status == StatusSuccess }
