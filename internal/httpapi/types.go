package httpapi

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type PaymentIn struct {
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"` // "19.99" or 19.99
	Currency    string          `json:"currency"`
	ReturnURL   string          `json:"return_url"`
	Description string          `json:"description"`
	PayLabel    string          `json:"pay_label"`
}

type PaymentOut struct {
	OK          bool   `json:"ok"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	FormHTML    string `json:"form_html,omitempty"`
	Reused      bool   `json:"reused,omitempty"`
	Message     string `json:"message,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// StatusOut is the structured status result the billing platform records.
type StatusOut struct {
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        string          `json:"amount,omitempty"`
	DeclineReason string          `json:"decline_reason,omitempty"`
	Message       string          `json:"message,omitempty"`
	Code          string          `json:"code,omitempty"`
	RawData       json.RawMessage `json:"rawdata,omitempty"`
}

type errorOut struct {
	Error string `json:"error"`
}
