package similar

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/similar-products/internal/domain/product"
	"github.com/xenking/similar-products/internal/upstream"
)

// DefaultConcurrency is the number of detail lookups run in parallel when
// Config.Concurrency is not set.
const DefaultConcurrency = 4

// ProductDetail is the public representation of a similar product.
type ProductDetail struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Availability bool
}

// Config tunes the aggregation.
type Config struct {
	// Concurrency bounds the number of in-flight detail lookups. 1 fetches
	// details strictly one after another.
	Concurrency int
	// SkipMissing drops ids whose detail lookup answers not found instead of
	// failing the whole request.
	SkipMissing bool
}

// Service aggregates similar product details from the catalog.
type Service struct {
	catalog     product.Catalog
	concurrency int
	skipMissing bool
	tracer      trace.Tracer
}

// NewService creates a Service reading from catalog. A nil tp falls back to
// the global tracer provider.
func NewService(cfg Config, catalog product.Catalog, tp trace.TracerProvider) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Service{
		catalog:     catalog,
		concurrency: cfg.Concurrency,
		skipMissing: cfg.SkipMissing,
		tracer:      tp.Tracer("github.com/xenking/similar-products/internal/domain/similar"),
	}
}

// Similar returns the details of every product similar to productID, in the
// order the catalog lists them. Ids without a detail record are omitted. Any
// lookup failure aborts the call and is returned as is.
func (s *Service) Similar(ctx context.Context, productID string) (_ []ProductDetail, rerr error) {
	ctx, span := s.tracer.Start(ctx, "similar.Similar",
		trace.WithAttributes(attribute.String("product.id", productID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	ids, err := s.catalog.SimilarIDs(ctx, productID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("similar.ids", len(ids)))
	if len(ids) == 0 {
		return []ProductDetail{}, nil
	}

	slots, err := s.fetchDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ProductDetail, 0, len(slots))
	for _, p := range slots {
		if p == nil {
			continue
		}
		out = append(out, toDetail(*p))
	}
	span.SetAttributes(attribute.Int("similar.results", len(out)))
	return out, nil
}

// fetchDetails looks up every id on a bounded pool. Worker i writes only
// slots[i] and errs[i], so order follows ids. When several lookups fail the
// one earliest in ids wins, as if they had run one after another: a failure
// at i cancels lookups after i but never those before it.
func (s *Service) fetchDetails(ctx context.Context, ids []string) ([]*product.Product, error) {
	slots := make([]*product.Product, len(ids))
	errs := make([]error, len(ids))

	ctxs := make([]context.Context, len(ids))
	cancels := make([]context.CancelFunc, len(ids))
	for i := range ids {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var firstFailed atomic.Int64
	firstFailed.Store(int64(len(ids)))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if firstFailed.Load() < int64(i) {
				return nil
			}
			p, err := s.catalog.Product(ctxs[i], id)
			if err != nil {
				if s.skipMissing && upstream.IsNotFound(err) {
					zctx.From(ctx).Debug("Skipping missing similar product", zap.String("id", id))
					return nil
				}
				errs[i] = err
				lowerFirstFailed(&firstFailed, int64(i))
				for _, cancel := range cancels[i+1:] {
					cancel()
				}
				return nil
			}
			slots[i] = p
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return slots, nil
}

func lowerFirstFailed(v *atomic.Int64, i int64) {
	for {
		cur := v.Load()
		if i >= cur || v.CompareAndSwap(cur, i) {
			return
		}
	}
}

func toDetail(p product.Product) ProductDetail {
	return ProductDetail{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Availability: p.Availability,
	}
}
