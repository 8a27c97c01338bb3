// clictopay-gateway/internal/queue/kafka.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/payment"
	m "github.com/example/clictopay-gateway/pkg/metrics"
)

const (
	DefaultCheckTopic  = "payments.check"
	DefaultResultTopic = "payments.result"
	DefaultGroupID     = "clictopay-reconciler"

	serviceName = "queue"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutcomeEvent is published on the result topic for every reconciled invoice.
type OutcomeEvent struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Outcome    payment.Outcome `json:"outcome"`
}

// CheckRequest asks a worker to reconcile one invoice.
type CheckRequest struct {
	EventID   string    `json:"event_id"`
	InvoiceID string    `json:"invoice_id"`
	Requested time.Time `json:"requested_at"`
}

type Bus struct {
	checks  messageWriter
	results messageWriter
}

func New(brokers []string, checkTopic, resultTopic string) *Bus {
	return &Bus{
		checks:  newWriter(brokers, checkTopic),
		results: newWriter(brokers, resultTopic),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// PublishOutcome implements payment.Publisher. Messages are keyed by invoice
// so every outcome of one invoice lands on the same partition.
func (b *Bus) PublishOutcome(ctx context.Context, o payment.Outcome) error {
	payload, err := json.Marshal(OutcomeEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Outcome:    o,
	})
	if err != nil {
		return err
	}
	return b.write(ctx, b.results, "PUBLISH_OUTCOME", o.InvoiceID, payload)
}

func (b *Bus) RequestCheck(ctx context.Context, invoiceID string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return errors.New("invoice id is required")
	}
	payload, err := json.Marshal(CheckRequest{
		EventID:   uuid.NewString(),
		InvoiceID: invoiceID,
		Requested: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return b.write(ctx, b.checks, "REQUEST_CHECK", invoiceID, payload)
}

func (b *Bus) write(ctx context.Context, w messageWriter, method, key string, payload []byte) error {
	err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
	status := "SUCCESS"
	if err != nil {
		status = "FAILED"
	}
	m.IncRequest(serviceName, status, method)
	return err
}

func (b *Bus) Close() error {
	return errors.Join(b.checks.Close(), b.results.Close())
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads check requests in a consumer group.
type Consumer struct {
	r   messageReader
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{r: r, log: logger.OrNop(log).Named("queue.consumer")}
}

// Run hands every check request to handle until ctx is done. A message is
// committed once handle returns, whatever the outcome; malformed messages are
// committed and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, invoiceID string)) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var req CheckRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil || strings.TrimSpace(req.InvoiceID) == "" {
			c.log.Warn("skipping malformed check request",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			m.IncRequest(serviceName, "FAILED", "CONSUME_CHECK")
		} else {
			handle(ctx, req.InvoiceID)
			m.IncRequest(serviceName, "SUCCESS", "CONSUME_CHECK")
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

var _ payment.Publisher = (*Bus)(nil)
