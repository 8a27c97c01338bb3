// Package currency maps ISO-4217 alpha codes to the numeric codes the gateway
// expects and converts between major and minor units.
//
// Every supported currency is assumed to have two decimal places. Zero- and
// three-decimal currencies are not representable here.
package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperr "github.com/example/clictopay-gateway/pkg/errors"
)

// Table maps an upper-case ISO-4217 alpha code to its numeric code.
type Table map[string]int

// Default lists the currencies a Clictopay merchant account can be enabled for.
var Default = Table{
	"TND": 788,
	"EUR": 978,
	"USD": 840,
}

// Resolve returns the numeric code for code. Unknown codes fail with
// UNSUPPORTED_CURRENCY; there is no fallback currency.
func (t Table) Resolve(code string) (int, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	if n, ok := t[norm]; ok {
		return n, nil
	}
	return 0, apperr.New(apperr.CodeUnsupportedCurrency, fmt.Sprintf("currency %q is not supported", code))
}

// ToMinor converts a positive major-unit amount to minor units.
func ToMinor(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, apperr.New(apperr.CodeInvalidInput, "amount must be greater than zero")
	}
	minor := amount.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, apperr.New(apperr.CodeInvalidInput, "amount has more than two decimal places")
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
