// cmd/clictopay-api/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/bootstrap"
	"github.com/example/clictopay-gateway/internal/config"
	"github.com/example/clictopay-gateway/internal/httpapi"
	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/payment"
)

const serviceName = "clictopay-api"

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

	creds := cfg.Credentials()
	ini := payment.NewInitiator(payment.InitiatorConfig{
		Gateway:     client,
		Credentials: creds,
		Store:       st,
		Currencies:  client.Currencies(),
		Logger:      log,
	})
	rec := payment.NewReconciler(payment.ReconcilerConfig{
		Gateway:     client,
		Credentials: creds,
		Store:       st,
		Publisher:   bootstrap.Publisher(bus),
		Logger:      log,
	})

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Service:        serviceName,
			Initiator:      ini,
			Reconciler:     rec,
			Sessions:       st,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Log:            log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.Bool("test_mode", creds.TestMode),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("kafka", bus != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
