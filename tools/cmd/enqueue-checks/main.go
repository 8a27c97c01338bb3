// clictopay-gateway/tools/cmd/enqueue-checks/main.go
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/example/clictopay-gateway/internal/queue"
)

func main() {
	in := flag.String("in", "invoices.csv", "CSV with an invoice_id column")
	brokers := flag.String("brokers", getenv("CLICTOPAY_KAFKA__BROKERS", "kafka:9092"), "comma-separated Kafka brokers")
	topic := flag.String("topic", getenv("CLICTOPAY_KAFKA__CHECK_TOPIC", queue.DefaultCheckTopic), "check request topic")
	dryRun := flag.Bool("dry-run", false, "print invoice ids without publishing")
	flag.Parse()

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ids, err := readInvoiceIDs(f)
	if err != nil {
		log.Fatalf("read %s: %v", *in, err)
	}
	if *dryRun {
		for _, id := range ids {
			fmt.Println(id)
		}
		return
	}

	bus := queue.New(strings.Split(*brokers, ","), *topic, queue.DefaultResultTopic)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := 0
	for _, id := range ids {
		if err := bus.RequestCheck(ctx, id); err != nil {
			log.Fatalf("enqueue %s: %v (%d sent)", id, err, sent)
		}
		sent++
	}
	log.Printf("enqueued %d check requests on %s", sent, *topic)
}

// readInvoiceIDs returns the distinct non-empty values of the invoice_id
// column, in file order.
func readInvoiceIDs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "invoice_id") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, errors.New("no invoice_id column")
	}

	seen := map[string]bool{}
	var ids []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if col >= len(rec) {
			continue
		}
		id := strings.TrimSpace(rec[col])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
