package payment_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/payment"
)

func TestRender_CarriesQueryAsHiddenFields(t *testing.T) {
	p := payment.Presentation{
		OK:          true,
		InvoiceID:   "1042",
		OrderID:     "ord-1",
		RedirectURL: "https://test.clictopay.com/payment/merchants/pay.html?mdOrder=ord-1&language=fr",
	}

	html, err := p.Render("Payer maintenant")
	require.NoError(t, err)
	require.Contains(t, html, `action="https://test.clictopay.com/payment/merchants/pay.html"`)
	require.Contains(t, html, `<input type="hidden" name="language" value="fr" />`)
	require.Contains(t, html, `<input type="hidden" name="mdOrder" value="ord-1" />`)
	require.Contains(t, html, `value="Payer maintenant"`)
	require.Less(t, strings.Index(html, `name="language"`), strings.Index(html, `name="mdOrder"`))
}

func TestRender_EscapesLabelAndDefaults(t *testing.T) {
	p := payment.Presentation{OK: true, RedirectURL: "https://pay/x"}

	html, err := p.Render(`"><script>alert(1)</script>`)
	require.NoError(t, err)
	require.NotContains(t, html, "<script>")

	html, err = p.Render("")
	require.NoError(t, err)
	require.Contains(t, html, `value="Pay Now"`)
}

func TestRender_FailureShowsMessageOnly(t *testing.T) {
	p := payment.Presentation{InvoiceID: "1042", Message: payment.FailureMessage, Reason: "unsupported_currency"}

	html, err := p.Render("Pay Now")
	require.NoError(t, err)
	require.Equal(t, "payment could not be initiated", html)
}

func TestClassify_DefaultTable(t *testing.T) {
	two, zero := 2, 0
	cases := []struct {
		name   string
		in     gateway.StatusPayload
		status payment.Status
	}{
		{"paid", gateway.StatusPayload{ErrorCode: "0", OrderStatus: &two}, payment.StatusSuccess},
		{"paid without error code", gateway.StatusPayload{OrderStatus: &two}, payment.StatusDeclined},
		{"registered", gateway.StatusPayload{ErrorCode: "0", OrderStatus: &zero}, payment.StatusDeclined},
		{"gateway error", gateway.StatusPayload{ErrorCode: "6", OrderStatus: &two}, payment.StatusDeclined},
		{"missing status", gateway.StatusPayload{ErrorCode: "0"}, payment.StatusDeclined},
	}
	for _, tc := range cases {
		status, reason := payment.DefaultStatusTable.Classify(tc.in)
		require.Equal(t, tc.status, status, tc.name)
		if status == payment.StatusSuccess {
			require.Empty(t, reason, tc.name)
		} else {
			require.NotEmpty(t, reason, tc.name)
		}
	}
}

func TestOutcome_JSON(t *testing.T) {
	b, err := json.Marshal(payment.NewDeclined("1042", "ord-1", "order status 0", json.RawMessage(`{"OrderStatus":0}`)))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"declined","invoice_id":"1042","order_id":"ord-1","amount":"0","reason":"order status 0","raw":{"OrderStatus":0}}`, string(b))
}

