// clictopay-gateway/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Codes shared by the gateway client, the order store and the payment flow.
const (
	CodeUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	CodeRequestFailed       = "REQUEST_FAILED"
	CodeInvalidResponse     = "INVALID_RESPONSE"
	CodeNoAssociatedOrder   = "NO_ASSOCIATED_ORDER"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeAlreadyPaid         = "ALREADY_PAID"
	CodeOrderClosed         = "ORDER_CLOSED"
	CodeStorage             = "STORAGE"
)

type E struct {
	Code    string
	Message string
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

func New(code, msg string) error {
	return E{Code: code, Message: msg}
}

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost E in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether any E in err's chain carries code.
func Is(err error, code string) bool {
	for err != nil {
		var e E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}
