package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/logger"
	"github.com/example/clictopay-gateway/internal/payment"
)

type Deps struct {
	Service        string
	Initiator      Starter
	Reconciler     payment.Checker
	Sessions       SessionFinder
	AllowedOrigins []string
	Log            *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Service == "" {
		d.Service = "clictopay-api"
	}
	log := logger.OrNop(d.Log).Named("http")

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware(d.Service, log))

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": d.Service,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	// billing platform, server to server
	r.HandleFunc("/api/payments", StartPaymentHandler(d.Initiator, log)).Methods(http.MethodPost)
	r.HandleFunc("/api/payments/{invoiceID}/status", PaymentStatusHandler(d.Reconciler)).Methods(http.MethodGet)

	// payer-facing
	r.HandleFunc("/pay/{invoiceID}", PayRedirectHandler(d.Sessions, log)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorOut{Error: "not found"})
	})

	// server-to-server by default; browsers get CORS only for listed origins
	if len(d.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	}).Handler(r)
}
