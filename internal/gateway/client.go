package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/currency"
	"github.com/example/clictopay-gateway/internal/logger"
	apperr "github.com/example/clictopay-gateway/pkg/errors"
	m "github.com/example/clictopay-gateway/pkg/metrics"
)

const (
	DefaultLanguage = "fr"
	DefaultTimeout  = 30 * time.Second

	serviceName  = "clictopay"
	maxBodyBytes = 1 << 20
)

// Client talks to the Clictopay REST API. Calls are never retried; a failed
// call is returned to the caller as a typed error.
type Client struct {
	http       *http.Client
	currencies currency.Table
	language   string
	timeout    time.Duration
	log        *zap.Logger
}

type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client. Transports that skip TLS
// certificate verification are rejected.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return apperr.New(apperr.CodeInvalidInput, "http client is nil")
		}
		if tr, ok := hc.Transport.(*http.Transport); ok && tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify {
			return apperr.New(apperr.CodeInvalidInput, "TLS certificate verification cannot be disabled")
		}
		c.http = hc
		return nil
	}
}

// WithTimeout bounds each gateway call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return apperr.New(apperr.CodeInvalidInput, "timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

func WithLanguage(lang string) Option {
	return func(c *Client) error {
		if lang = strings.TrimSpace(lang); lang != "" {
			c.language = lang
		}
		return nil
	}
}

func WithCurrencies(t currency.Table) Option {
	return func(c *Client) error {
		c.currencies = t
		return nil
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) error {
		c.log = logger.OrNop(log).Named("gateway")
		return nil
	}
}

func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:       defaultHTTPClient(),
		currencies: currency.Default,
		language:   DefaultLanguage,
		timeout:    DefaultTimeout,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func defaultHTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: tr}
}

// Currencies exposes the table used to resolve invoice currencies.
func (c *Client) Currencies() currency.Table { return c.currencies }

// RegisterOrder creates a hosted payment order for inv. The currency and the
// amount are checked before any network I/O.
func (c *Client) RegisterOrder(ctx context.Context, creds Credentials, inv Invoice) (OrderSession, error) {
	if strings.TrimSpace(inv.ID) == "" {
		return OrderSession{}, apperr.New(apperr.CodeInvalidInput, "invoice id is required")
	}
	numeric, err := c.currencies.Resolve(inv.Currency)
	if err != nil {
		return OrderSession{}, err
	}
	minor, err := currency.ToMinor(inv.Amount)
	if err != nil {
		return OrderSession{}, err
	}
	if err := creds.Validate(); err != nil {
		return OrderSession{}, err
	}

	form := url.Values{}
	form.Set("userName", creds.Username)
	form.Set("password", creds.Password.Reveal())
	form.Set("orderNumber", inv.ID)
	form.Set("amount", strconv.FormatInt(minor, 10))
	form.Set("currency", strconv.Itoa(numeric))
	form.Set("returnUrl", inv.ReturnURL)
	form.Set("language", c.language)
	if inv.Description != "" {
		form.Set("description", inv.Description)
	}

	body, err := c.do(ctx, "register", http.MethodPost, creds.BaseURL()+"/register.do", form)
	if err != nil {
		return OrderSession{}, err
	}

	var res registerResponse
	if err := json.Unmarshal(body, &res); err != nil {
		c.log.Warn("malformed register response", zap.String("invoice_id", inv.ID), logger.MaskRaw("raw", body))
		return OrderSession{}, apperr.Wrap(apperr.CodeInvalidResponse, "malformed register response", err)
	}
	if res.FormURL == "" || res.OrderID == "" {
		c.log.Warn("register response without order",
			zap.String("invoice_id", inv.ID),
			zap.String("error_code", string(res.ErrorCode)),
			logger.MaskRaw("raw", body),
		)
		msg := "register response missing formUrl or orderId"
		if res.ErrorCode != "" && res.ErrorCode != "0" {
			msg = fmt.Sprintf("gateway rejected registration (errorCode %s: %s)", res.ErrorCode, res.ErrorMessage)
		}
		return OrderSession{}, apperr.New(apperr.CodeInvalidResponse, msg)
	}

	return OrderSession{OrderID: res.OrderID, FormURL: res.FormURL, InvoiceID: inv.ID}, nil
}

// QueryOrderStatus fetches the gateway's view of orderID.
func (c *Client) QueryOrderStatus(ctx context.Context, creds Credentials, orderID string) (StatusPayload, error) {
	if strings.TrimSpace(orderID) == "" {
		return StatusPayload{}, apperr.New(apperr.CodeInvalidInput, "order id is required")
	}
	if err := creds.Validate(); err != nil {
		return StatusPayload{}, err
	}

	q := url.Values{}
	q.Set("userName", creds.Username)
	q.Set("password", creds.Password.Reveal())
	q.Set("orderId", orderID)
	q.Set("language", c.language)

	body, err := c.do(ctx, "getOrderStatus", http.MethodGet, creds.BaseURL()+"/getOrderStatus.do", q)
	if err != nil {
		return StatusPayload{}, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return StatusPayload{}, apperr.New(apperr.CodeInvalidResponse, "order status response is not a JSON object")
	}
	var p StatusPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return StatusPayload{}, apperr.Wrap(apperr.CodeInvalidResponse, "malformed order status response", err)
	}
	p.Raw = json.RawMessage(trimmed)
	return p, nil
}

func (c *Client) do(ctx context.Context, method, httpMethod, endpoint string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	status := "FAILED"
	defer func() {
		m.IncRequest(serviceName, status, method)
		m.ObserveDuration(serviceName, status, time.Since(start).Seconds())
	}()

	var (
		req *http.Request
		err error
	)
	if httpMethod == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRequestFailed, "build "+method+" request", redact(err))
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("gateway request", zap.String("method", method), zap.String("host", req.URL.Host), zap.Any("params", logger.MaskForm(params)))

	resp, err := c.http.Do(req)
	if err != nil {
		err = redact(err)
		c.log.Warn("gateway request failed", zap.String("method", method), zap.Error(err))
		return nil, apperr.Wrap(apperr.CodeRequestFailed, method+" request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeRequestFailed, "read "+method+" response", redact(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("gateway returned non-2xx", zap.String("method", method), zap.Int("http_status", resp.StatusCode))
		return nil, apperr.New(apperr.CodeRequestFailed, fmt.Sprintf("%s returned HTTP %d", method, resp.StatusCode))
	}

	status = "SUCCESS"
	return body, nil
}

// redact drops the request URL from transport errors; the status query
// string carries the merchant password.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
