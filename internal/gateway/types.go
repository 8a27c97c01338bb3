package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/clictopay-gateway/internal/logger"
	apperr "github.com/example/clictopay-gateway/pkg/errors"
)

const (
	TestBaseURL = "https://test.clictopay.com/payment/rest"
	LiveBaseURL = "https://ipay.clictopay.com/payment/rest"
)

// Secret holds a credential that must never be printed.
type Secret string

func (s Secret) String() string               { return logger.MaskSecret(string(s)) }
func (s Secret) GoString() string             { return strconv.Quote(s.String()) }
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
func (s Secret) Reveal() string               { return string(s) }

// Credentials identify the merchant to the gateway. TestMode selects the sandbox host.
type Credentials struct {
	Username string
	Password Secret
	TestMode bool
}

func (c Credentials) BaseURL() string {
	if c.TestMode {
		return TestBaseURL
	}
	return LiveBaseURL
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password.Reveal()) == "" {
		return apperr.New(apperr.CodeInvalidInput, "merchant credentials are not configured")
	}
	return nil
}

// Invoice is the billing-platform invoice a payment is started for.
type Invoice struct {
	ID          string
	Amount      decimal.Decimal
	Currency    string
	ReturnURL   string
	Description string
}

// OrderSession is a registered hosted-payment order.
type OrderSession struct {
	OrderID   string
	FormURL   string
	InvoiceID string
}

type registerResponse struct {
	OrderID      string `json:"orderId"`
	FormURL      string `json:"formUrl"`
	ErrorCode    Code   `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// StatusPayload is the decoded getOrderStatus.do response. Raw keeps the body
// as received for diagnostics.
type StatusPayload struct {
	ErrorCode    Code   `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
	OrderStatus  *int   `json:"OrderStatus"`
	OrderNumber  string `json:"OrderNumber"`
	Amount       int64  `json:"Amount"`

	Raw json.RawMessage `json:"-"`
}

// Code is a gateway error code. The gateway sends it as a string on some
// endpoints and as a number on others.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}
