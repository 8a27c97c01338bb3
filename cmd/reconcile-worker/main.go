// cmd/reconcile-worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/bootstrap"
	"github.com/example/clictopay-gateway/internal/config"
	"github.com/example/clictopay-gateway/internal/grpcserver"
	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/payment"
	"github.com/example/clictopay-gateway/internal/queue"
)

const serviceName = "reconcile-worker"

func main() {
	configDir := flag.String("config", getenv("CLICTOPAY_CONFIG_DIR", "configs"), "directory holding base.yaml")
	envName := flag.String("env", getenv("CLICTOPAY_ENV", ""), "environment overlay (<env>.yaml)")
	flag.Parse()

	if err := run(*configDir, *envName); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configDir, envName string) error {
	cfg, err := config.Load(configDir, envName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", serviceName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	client, err := bootstrap.NewGatewayClient(cfg, log)
	if err != nil {
		return fmt.Errorf("init gateway client: %w", err)
	}

	bus := bootstrap.NewBus(cfg)
	if bus != nil {
		defer func() { _ = bus.Close() }()
	}

	rec := payment.NewReconciler(payment.ReconcilerConfig{
		Gateway:     client,
		Credentials: cfg.Credentials(),
		Store:       st,
		Publisher:   bootstrap.Publisher(bus),
		Logger:      log,
	})

	// gRPC health
	health := grpcserver.NewHealthServer()
	lis, err := net.Listen("tcp", cfg.Worker.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Worker.GRPCAddr, err)
	}
	go func() {
		log.Info("serving gRPC health", zap.String("addr", cfg.Worker.GRPCAddr))
		if err := health.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics serve", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup

	sweeper := &payment.Sweeper{
		Store:     st,
		Checker:   rec,
		Interval:  cfg.Worker.SweepInterval,
		BatchSize: cfg.Worker.BatchSize,
		MaxAge:    cfg.Worker.MaxPendingAge,
		Log:       log.Named("sweeper"),
		OnSweep: func(_ payment.SweepStats, err error) {
			health.SetServing(err == nil)
		},
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	if cfg.KafkaEnabled() {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.CheckTopic, cfg.Kafka.GroupID, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = consumer.Close() }()
			err := consumer.Run(ctx, func(ctx context.Context, invoiceID string) {
				out := rec.CheckPayment(ctx, invoiceID)
				log.Info("check request handled", zap.String("invoice_id", invoiceID), zap.String("status", string(out.Status)))
			})
			if err != nil {
				log.Error("check consumer stopped", zap.Error(err))
			}
		}()
	}

	log.Info("started",
		zap.Duration("sweep_interval", cfg.Worker.SweepInterval),
		zap.Int("batch_size", cfg.Worker.BatchSize),
		zap.Duration("max_pending_age", cfg.Worker.MaxPendingAge),
		zap.Bool("kafka", cfg.KafkaEnabled()),
	)
	<-ctx.Done()

	log.Info("shutting down")
	wg.Wait()
	health.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("bye")
	return nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
