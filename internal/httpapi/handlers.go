package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/payment"
	"github.com/example/clictopay-gateway/internal/store"
)

const maxRequestBytes = 64 << 10

type Starter interface {
	StartPayment(ctx context.Context, inv gateway.Invoice) payment.Presentation
}

type SessionFinder interface {
	Find(ctx context.Context, invoiceID string) (store.Session, error)
}

var (
	_ Starter       = (*payment.Initiator)(nil)
	_ SessionFinder = (store.Store)(nil)
)

func StartPaymentHandler(ini Starter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in PaymentIn
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, PaymentOut{Message: payment.FailureMessage, Reason: "bad_json"})
			return
		}

		p := ini.StartPayment(r.Context(), gateway.Invoice{
			ID:          in.InvoiceID,
			Amount:      in.Amount,
			Currency:    in.Currency,
			ReturnURL:   in.ReturnURL,
			Description: in.Description,
		})
		if !p.OK {
			writeJSON(w, failureStatus(p.Reason), PaymentOut{
				InvoiceID: p.InvoiceID,
				Message:   p.Message,
				Reason:    p.Reason,
			})
			return
		}

		form, err := p.Render(in.PayLabel)
		if err != nil {
			// the redirect still works without the form
			log.Warn("render pay form", zap.String("invoice_id", p.InvoiceID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, PaymentOut{
			OK:          true,
			InvoiceID:   p.InvoiceID,
			OrderID:     p.OrderID,
			RedirectURL: p.RedirectURL,
			FormHTML:    form,
			Reused:      p.Reused,
		})
	}
}

func failureStatus(reason string) int {
	switch reason {
	case "invalid_input", "unsupported_currency", "already_paid":
		return http.StatusBadRequest
	case "order_closed":
		return http.StatusConflict
	case "request_failed", "invalid_response":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func PaymentStatusHandler(rec payment.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := rec.CheckPayment(r.Context(), mux.Vars(r)["invoiceID"])

		res := StatusOut{
			Status:        string(out.Status),
			TransactionID: out.OrderID,
			DeclineReason: out.Reason,
			Message:       out.Message,
			Code:          out.Code,
			RawData:       out.Raw,
		}
		if out.Paid() {
			res.Amount = out.Amount.StringFixed(2)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PayRedirectHandler sends the payer to the hosted page of the invoice's
// pending order.
func PayRedirectHandler(sessions SessionFinder, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID := strings.TrimSpace(mux.Vars(r)["invoiceID"])

		sess, err := sessions.Find(r.Context(), invoiceID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorOut{Error: "no payment started for this invoice"})
			return
		case err != nil:
			log.Error("order lookup failed", zap.String("invoice_id", invoiceID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorOut{Error: payment.FailureMessage})
			return
		case sess.Status == store.StatusPaid:
			writeJSON(w, http.StatusConflict, errorOut{Error: "invoice is already paid"})
			return
		case sess.Status == store.StatusClosed:
			writeJSON(w, http.StatusGone, errorOut{Error: "payment order is closed"})
			return
		}

		http.Redirect(w, r, sess.FormURL, http.StatusSeeOther)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
