package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/currency"
	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/store"
	apperr "github.com/example/clictopay-gateway/pkg/errors"
	m "github.com/example/clictopay-gateway/pkg/metrics"
)

const NoOrderMessage = "no order associated with invoice"

// Publisher receives every outcome the reconciler produces.
type Publisher interface {
	PublishOutcome(ctx context.Context, o Outcome) error
}

type ReconcilerConfig struct {
	Gateway     Gateway
	Credentials gateway.Credentials
	Store       store.Store
	Statuses    StatusTable

	// Closed lists the gateway order statuses that close a pending session.
	Closed    map[int]bool
	Publisher Publisher
	Logger    *zap.Logger
}

type Reconciler struct {
	gw       Gateway
	creds    gateway.Credentials
	store    store.Store
	statuses StatusTable
	closed   map[int]bool
	pub      Publisher
	log      *zap.Logger
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Statuses == nil {
		cfg.Statuses = DefaultStatusTable
	}
	if cfg.Closed == nil {
		cfg.Closed = DefaultClosedStatuses
	}
	return &Reconciler{
		gw:       cfg.Gateway,
		creds:    cfg.Credentials,
		store:    cfg.Store,
		statuses: cfg.Statuses,
		closed:   cfg.Closed,
		pub:      cfg.Publisher,
		log:      logger.OrNop(cfg.Logger).Named("payment.reconciler"),
	}
}

// CheckPayment asks the gateway whether invoiceID was paid. It always returns
// an outcome; failures to reach a verdict come back as StatusError.
func (r *Reconciler) CheckPayment(ctx context.Context, invoiceID string) Outcome {
	start := time.Now()
	invoiceID = strings.TrimSpace(invoiceID)

	out := r.check(ctx, invoiceID)

	m.IncOutcome(string(out.Status))
	m.ObserveDuration("reconciler", strings.ToUpper(string(out.Status)), time.Since(start).Seconds())

	if out.Paid() {
		if err := r.store.MarkPaid(ctx, invoiceID); err != nil {
			// the gateway verdict stands; the next check marks it again
			r.log.Error("mark paid failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		}
	}
	if r.pub != nil {
		if err := r.pub.PublishOutcome(ctx, out); err != nil {
			r.log.Warn("publish outcome failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		}
	}
	return out
}

func (r *Reconciler) check(ctx context.Context, invoiceID string) Outcome {
	if invoiceID == "" {
		return NewError(invoiceID, apperr.CodeInvalidInput, "invoice id is required", nil)
	}
	log := r.log.With(zap.String("invoice_id", invoiceID))

	sess, err := r.store.Find(ctx, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("status check without order")
		return NewError(invoiceID, apperr.CodeNoAssociatedOrder, NoOrderMessage, nil)
	}
	if err != nil {
		log.Error("order store lookup failed", zap.Error(err))
		return NewError(invoiceID, apperr.CodeStorage, "order store unavailable", nil)
	}
	log = log.With(zap.String("order_id", sess.OrderID))
	defer func() {
		if err := r.store.MarkChecked(ctx, invoiceID); err != nil {
			log.Warn("mark checked failed", zap.Error(err))
		}
	}()

	payload, err := r.gw.QueryOrderStatus(ctx, r.creds, sess.OrderID)
	if err != nil {
		log.Warn("order status query failed", zap.String("code", apperr.CodeOf(err)), zap.Error(err))
		return NewError(invoiceID, apperr.CodeOf(err), "order status could not be retrieved", nil)
	}

	status, reason := r.statuses.Classify(payload)
	switch status {
	case StatusSuccess:
		amount := currency.FromMinor(payload.Amount)
		if !amount.Equal(sess.Amount) {
			log.Warn("paid amount differs from registered amount",
				zap.String("paid", amount.StringFixed(2)),
				zap.String("registered", sess.Amount.StringFixed(2)),
			)
		}
		log.Info("payment confirmed", zap.String("amount", amount.StringFixed(2)))
		return NewSuccess(invoiceID, sess.OrderID, amount)
	case StatusError:
		log.Warn("order status maps to error", zap.String("reason", reason), logger.MaskRaw("raw", payload.Raw))
		return NewError(invoiceID, apperr.CodeInvalidResponse, reason, payload.Raw)
	default:
		log.Info("payment not completed", zap.String("reason", reason), logger.MaskRaw("raw", payload.Raw))
		if sess.Status == store.StatusPending && r.orderClosed(payload) {
			if err := r.store.MarkClosed(ctx, invoiceID); err != nil {
				log.Warn("mark closed failed", zap.Error(err))
			} else {
				log.Info("order closed by gateway", zap.Int("order_status", *payload.OrderStatus))
			}
		}
		return NewDeclined(invoiceID, sess.OrderID, reason, payload.Raw)
	}
}

// orderClosed reports whether the gateway says the order can never be paid.
func (r *Reconciler) orderClosed(p gateway.StatusPayload) bool {
	return p.ErrorCode == "0" && p.OrderStatus != nil && r.closed[*p.OrderStatus]
}
