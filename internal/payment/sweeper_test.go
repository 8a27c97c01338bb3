package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/payment"
	"github.com/example/clictopay-gateway/internal/store"
)

type fakeChecker struct {
	mu      sync.Mutex
	checked []string
	checkFn func(invoiceID string) payment.Outcome
}

func (f *fakeChecker) CheckPayment(_ context.Context, invoiceID string) payment.Outcome {
	f.mu.Lock()
	f.checked = append(f.checked, invoiceID)
	f.mu.Unlock()
	return f.checkFn(invoiceID)
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checked)
}

type failingLister struct{}

func (failingLister) ListPending(context.Context, int) ([]store.Session, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingLister) MarkClosed(context.Context, string) error {
	return errors.New("redis: connection refused")
}

func seed(t *testing.T, st store.Store, ids ...string) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range ids {
		_, err := st.Create(context.Background(), store.Session{
			InvoiceID: id,
			OrderID:   "ord-" + id,
			FormURL:   "https://pay/" + id,
			Amount:    decimal.RequireFromString("10.00"),
			Currency:  "TND",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestSweepOnce_ChecksPendingInBatches(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "a", "b", "c")
	require.NoError(t, st.MarkPaid(context.Background(), "b"))

	checker := &fakeChecker{checkFn: func(id string) payment.Outcome {
		if id == "a" {
			return payment.NewSuccess(id, "ord-a", decimal.RequireFromString("10.00"))
		}
		return payment.NewDeclined(id, "ord-"+id, "order status 0", nil)
	}}
	s := &payment.Sweeper{Store: st, Checker: checker, BatchSize: 10}

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, payment.SweepStats{Checked: 2, Paid: 1, Declined: 1}, stats)
	require.Equal(t, []string{"a", "c"}, checker.checked)
}

func TestSweepOnce_BatchSizeLimitsChecks(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "a", "b", "c", "d")

	checker := &fakeChecker{checkFn: func(id string) payment.Outcome {
		return payment.NewError(id, "REQUEST_FAILED", "order status could not be retrieved", nil)
	}}
	s := &payment.Sweeper{Store: st, Checker: checker, BatchSize: 2}

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Checked)
	require.Equal(t, 2, stats.Errors)
	require.Equal(t, []string{"a", "b"}, checker.checked)
}

func TestSweepOnce_StaleOrdersDoNotStarveNewOnes(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "s1", "s2", "s3", "s4", "s5")
	_, err := st.Create(context.Background(), store.Session{
		InvoiceID: "fresh",
		OrderID:   "ord-fresh",
		FormURL:   "https://pay/fresh",
		Amount:    decimal.RequireFromString("10.00"),
		Currency:  "TND",
	})
	require.NoError(t, err)

	gw := &fakeGateway{queryFn: func(orderID string) (gateway.StatusPayload, error) {
		status := 0
		if orderID == "ord-fresh" {
			status = 2
			return gateway.StatusPayload{ErrorCode: "0", OrderStatus: &status, Amount: 1000}, nil
		}
		return gateway.StatusPayload{ErrorCode: "0", OrderStatus: &status}, nil
	}}
	rec := payment.NewReconciler(payment.ReconcilerConfig{Gateway: gw, Credentials: creds, Store: st})
	s := &payment.Sweeper{Store: st, Checker: rec, BatchSize: 5}

	first, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, payment.SweepStats{Checked: 5, Declined: 5}, first)

	second, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, second.Paid)

	sess, err := st.Find(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, store.StatusPaid, sess.Status)
}

func TestSweepOnce_ClosesOrdersPastMaxAge(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "old")

	checker := &fakeChecker{checkFn: func(id string) payment.Outcome {
		return payment.NewDeclined(id, "ord-"+id, "order status 0", nil)
	}}
	s := &payment.Sweeper{Store: st, Checker: checker, MaxAge: 30 * time.Minute}

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, payment.SweepStats{Checked: 1, Declined: 1, Closed: 1}, stats)

	sess, err := st.Find(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, store.StatusClosed, sess.Status)

	stats, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Checked)
}

func TestSweepOnce_ListFailure(t *testing.T) {
	checker := &fakeChecker{}
	s := &payment.Sweeper{Store: failingLister{}, Checker: checker}

	_, err := s.SweepOnce(context.Background())
	require.Error(t, err)
	require.Zero(t, checker.count())
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "a")

	checker := &fakeChecker{checkFn: func(id string) payment.Outcome {
		return payment.NewDeclined(id, "ord-"+id, "order status 0", nil)
	}}
	var (
		mu     sync.Mutex
		sweeps []payment.SweepStats
	)
	s := &payment.Sweeper{
		Store:    st,
		Checker:  checker,
		Interval: 10 * time.Millisecond,
		OnSweep: func(stats payment.SweepStats, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.NoError(t, err)
			sweeps = append(sweeps, stats)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return checker.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sweeps)
	require.Equal(t, payment.SweepStats{Checked: 1, Declined: 1}, sweeps[0])
}
