package payment

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/currency"
	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/store"
	apperr "github.com/example/clictopay-gateway/pkg/errors"
)

// Gateway is the part of *gateway.Client the payment flow depends on.
type Gateway interface {
	RegisterOrder(ctx context.Context, creds gateway.Credentials, inv gateway.Invoice) (gateway.OrderSession, error)
	QueryOrderStatus(ctx context.Context, creds gateway.Credentials, orderID string) (gateway.StatusPayload, error)
}

var _ Gateway = (*gateway.Client)(nil)

// FailureMessage is the only failure text a payer ever sees.
const FailureMessage = "payment could not be initiated"

type InitiatorConfig struct {
	Gateway     Gateway
	Credentials gateway.Credentials
	Store       store.Store
	Currencies  currency.Table
	Logger      *zap.Logger
}

// Initiator registers hosted payment orders and remembers which order belongs
// to which invoice.
type Initiator struct {
	gw         Gateway
	creds      gateway.Credentials
	store      store.Store
	currencies currency.Table
	log        *zap.Logger
}

func NewInitiator(cfg InitiatorConfig) *Initiator {
	if cfg.Currencies == nil {
		cfg.Currencies = currency.Default
	}
	return &Initiator{
		gw:         cfg.Gateway,
		creds:      cfg.Credentials,
		store:      cfg.Store,
		currencies: cfg.Currencies,
		log:        logger.OrNop(cfg.Logger).Named("payment.initiator"),
	}
}

// StartPayment returns where to send the payer for inv. A pending order for
// the same invoice is reused; an invoice that is already paid, or whose order
// was closed, is refused.
func (i *Initiator) StartPayment(ctx context.Context, inv gateway.Invoice) Presentation {
	inv.ID = strings.TrimSpace(inv.ID)
	log := i.log.With(zap.String("invoice_id", inv.ID))

	if err := i.validate(inv); err != nil {
		log.Info("payment rejected", zap.String("code", apperr.CodeOf(err)), zap.Error(err))
		return failed(inv.ID, err)
	}

	existing, err := i.store.Find(ctx, inv.ID)
	switch {
	case err == nil:
		switch existing.Status {
		case store.StatusPaid:
			log.Info("invoice already paid", zap.String("order_id", existing.OrderID))
			return failed(inv.ID, apperr.New(apperr.CodeAlreadyPaid, "invoice is already paid"))
		case store.StatusClosed:
			// the gateway refuses a second order with the same orderNumber
			log.Info("order closed", zap.String("order_id", existing.OrderID))
			return failed(inv.ID, apperr.New(apperr.CodeOrderClosed, "order can no longer be paid"))
		}
		log.Info("reusing pending order", zap.String("order_id", existing.OrderID))
		return reused(existing)
	case !errors.Is(err, store.ErrNotFound):
		log.Error("order store lookup failed", zap.Error(err))
		return failed(inv.ID, apperr.Wrap(apperr.CodeStorage, "order store lookup failed", err))
	}

	sess, err := i.gw.RegisterOrder(ctx, i.creds, inv)
	if err != nil {
		log.Warn("order registration failed", zap.String("code", apperr.CodeOf(err)), zap.Error(err))
		return failed(inv.ID, err)
	}

	inserted, err := i.store.Create(ctx, store.Session{
		InvoiceID: inv.ID,
		OrderID:   sess.OrderID,
		FormURL:   sess.FormURL,
		Amount:    inv.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(inv.Currency)),
		Status:    store.StatusPending,
	})
	if err != nil {
		// the gateway order exists but cannot be reconciled later
		log.Error("order registered but not stored", zap.String("order_id", sess.OrderID), zap.Error(err))
		return failed(inv.ID, apperr.Wrap(apperr.CodeStorage, "order could not be stored", err))
	}
	if !inserted {
		winner, err := i.store.Find(ctx, inv.ID)
		if err != nil {
			log.Error("concurrent order lookup failed", zap.Error(err))
			return failed(inv.ID, apperr.Wrap(apperr.CodeStorage, "order store lookup failed", err))
		}
		log.Info("concurrent registration lost",
			zap.String("order_id", sess.OrderID),
			zap.String("kept_order_id", winner.OrderID),
		)
		return reused(winner)
	}

	log.Info("order registered", zap.String("order_id", sess.OrderID))
	return Presentation{
		OK:          true,
		InvoiceID:   inv.ID,
		OrderID:     sess.OrderID,
		RedirectURL: sess.FormURL,
	}
}

func (i *Initiator) validate(inv gateway.Invoice) error {
	if inv.ID == "" {
		return apperr.New(apperr.CodeInvalidInput, "invoice id is required")
	}
	if _, err := currency.ToMinor(inv.Amount); err != nil {
		return err
	}
	if _, err := i.currencies.Resolve(inv.Currency); err != nil {
		return err
	}
	if strings.TrimSpace(inv.ReturnURL) == "" {
		return apperr.New(apperr.CodeInvalidInput, "return url is required")
	}
	return nil
}

func reused(s store.Session) Presentation {
	return Presentation{
		OK:          true,
		InvoiceID:   s.InvoiceID,
		OrderID:     s.OrderID,
		RedirectURL: s.FormURL,
		Reused:      true,
	}
}

func failed(invoiceID string, err error) Presentation {
	reason := strings.ToLower(apperr.CodeOf(err))
	if reason == "" {
		reason = "internal"
	}
	return Presentation{
		InvoiceID: invoiceID,
		Message:   FailureMessage,
		Reason:    reason,
	}
}
