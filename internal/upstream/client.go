// Package upstream implements the HTTP client for the upstream product
// service.
package upstream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/similar-products/internal/domain/product"
)

const (
	opSimilarIDs = "similar ids"
	opProduct    = "product"

	// maxBody caps how much of a successful response is read.
	maxBody = 4 << 20
	// maxErrorBody caps how much of an error response is kept on Error.
	maxErrorBody = 64 << 10
)

var _ product.Catalog = (*Client)(nil)

// Config holds the immutable connection settings of a Client.
type Config struct {
	// BaseURL is the absolute URL of the upstream product service.
	BaseURL string
	// Timeout bounds a single upstream call. Zero means no timeout.
	Timeout time.Duration
}

// Option configures optional Client dependencies.
type Option func(*options)

type options struct {
	transport      http.RoundTripper
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTransport sets the base round tripper. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithTracerProvider sets the tracer provider used for outbound spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for outbound metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// Client talks to the upstream product service. It is safe for concurrent
// use and holds no mutable state.
type Client struct {
	baseURL  string
	http     *http.Client
	requests metric.Int64Counter
}

// New builds a Client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, errors.Errorf("base url %q: missing host", cfg.BaseURL)
	}

	o := options{
		transport:      http.DefaultTransport,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	requests, err := o.meterProvider.
		Meter("github.com/xenking/similar-products/internal/upstream").
		Int64Counter("upstream.requests",
			metric.WithDescription("Upstream product service calls by operation and outcome"),
		)
	if err != nil {
		return nil, errors.Wrap(err, "create requests counter")
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(o.transport,
				otelhttp.WithTracerProvider(o.tracerProvider),
				otelhttp.WithMeterProvider(o.meterProvider),
			),
		},
		requests: requests,
	}, nil
}

// SimilarIDs fetches GET /product/{productID}/similarids.
func (c *Client) SimilarIDs(ctx context.Context, productID string) ([]string, error) {
	body, err := c.get(ctx, opSimilarIDs, productID, "/product/"+url.PathEscape(productID)+"/similarids")
	if err != nil {
		return nil, err
	}

	ids, err := decodeIDs(body)
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindMalformed, Op: opSimilarIDs, ID: productID, Err: err})
	}
	c.record(ctx, opSimilarIDs, "ok")
	return ids, nil
}

// Product fetches GET /product/{id}. A null body is reported as a nil
// product without error.
func (c *Client) Product(ctx context.Context, id string) (*product.Product, error) {
	body, err := c.get(ctx, opProduct, id, "/product/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	p, err := decodeProduct(body)
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindMalformed, Op: opProduct, ID: id, Err: err})
	}
	c.record(ctx, opProduct, "ok")
	return p, nil
}

// Ping checks that the upstream answers HTTP at all. Any status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping upstream")
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return nil
}

// get performs the request and returns the body of a 2xx response. Every
// other outcome is converted into an *Error.
func (c *Client) get(ctx context.Context, op, id, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindTransport, Op: op, ID: id, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	zctx.From(ctx).Debug("Upstream request",
		zap.String("op", op),
		zap.String("url", req.URL.String()),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(ctx, &Error{Kind: KindTransport, Op: op, ID: id, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, c.fail(ctx, &Error{Kind: KindTransport, Op: op, ID: id, Status: resp.StatusCode, Err: err})
		}
		return body, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, c.fail(ctx, &Error{
		Kind:   kindForStatus(resp.StatusCode),
		Op:     op,
		ID:     id,
		Status: resp.StatusCode,
		Body:   string(body),
	})
}

func (c *Client) fail(ctx context.Context, err *Error) error {
	c.record(ctx, err.Op, err.Kind.String())
	return err
}

func (c *Client) record(ctx context.Context, op, outcome string) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusServiceUnavailable:
		return KindUnavailable
	default:
		return KindUnexpected
	}
}
