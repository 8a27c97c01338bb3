package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/payment"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestPublishOutcome_KeyedByInvoice(t *testing.T) {
	results := &fakeWriter{}
	b := &Bus{checks: &fakeWriter{}, results: results}

	out := payment.NewSuccess("1042", "ord-1", decimal.RequireFromString("19.99"))
	require.NoError(t, b.PublishOutcome(context.Background(), out))

	require.Len(t, results.msgs, 1)
	require.Equal(t, "1042", string(results.msgs[0].Key))

	var evt OutcomeEvent
	require.NoError(t, json.Unmarshal(results.msgs[0].Value, &evt))
	require.NotEmpty(t, evt.EventID)
	require.Equal(t, payment.StatusSuccess, evt.Outcome.Status)
	require.True(t, evt.Outcome.Amount.Equal(decimal.RequireFromString("19.99")))
}

func TestRequestCheck(t *testing.T) {
	checks := &fakeWriter{}
	b := &Bus{checks: checks, results: &fakeWriter{}}

	require.NoError(t, b.RequestCheck(context.Background(), " 1042 "))
	require.Error(t, b.RequestCheck(context.Background(), ""))

	require.Len(t, checks.msgs, 1)
	var req CheckRequest
	require.NoError(t, json.Unmarshal(checks.msgs[0].Value, &req))
	require.Equal(t, "1042", req.InvoiceID)
}

func TestPublish_WriterErrorReturned(t *testing.T) {
	b := &Bus{checks: &fakeWriter{err: errors.New("leader not available")}, results: &fakeWriter{}}
	require.Error(t, b.RequestCheck(context.Background(), "1042"))
}

func TestClose_ClosesBothWriters(t *testing.T) {
	checks, results := &fakeWriter{}, &fakeWriter{}
	b := &Bus{checks: checks, results: results}

	require.NoError(t, b.Close())
	require.True(t, checks.closed)
	require.True(t, results.closed)
}

func TestConsumerRun_HandlesAndCommits(t *testing.T) {
	valid, _ := json.Marshal(CheckRequest{EventID: "e1", InvoiceID: "1042"})
	r := &fakeReader{pending: []kafka.Message{
		{Value: valid, Offset: 1},
		{Value: []byte("not json"), Offset: 2},
		{Value: []byte(`{"invoice_id":""}`), Offset: 3},
	}}
	c := &Consumer{r: r, log: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	var handled []string
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(_ context.Context, invoiceID string) {
			handled = append(handled, invoiceID)
		})
	}()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.committed) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	require.Equal(t, []string{"1042"}, handled)
}
