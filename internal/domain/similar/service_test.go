package similar

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/similar-products/internal/domain/product"
	"github.com/xenking/similar-products/internal/upstream"
)

// --- Mock implementations ---

type mockCatalog struct {
	similar    map[string][]string
	similarErr error
	products   map[string]*product.Product
	productErr map[string]error
	delay      map[string]time.Duration

	mu        sync.Mutex
	requested []string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (m *mockCatalog) SimilarIDs(_ context.Context, productID string) ([]string, error) {
	if m.similarErr != nil {
		return nil, m.similarErr
	}
	return m.similar[productID], nil
}

func (m *mockCatalog) Product(ctx context.Context, id string) (*product.Product, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.requested = append(m.requested, id)
	m.mu.Unlock()

	if d := m.delay[id]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.productErr[id]; err != nil {
		return nil, err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return p, nil
}

// --- Helpers ---

func newTestProduct(id, name, price string, available bool) *product.Product {
	return &product.Product{
		ID:           id,
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Availability: available,
	}
}

func catalogOf(ids []string, products ...*product.Product) *mockCatalog {
	byID := make(map[string]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockCatalog{
		similar:    map[string][]string{"1": ids},
		products:   byID,
		productErr: map[string]error{},
		delay:      map[string]time.Duration{},
	}
}

func newTestService(cfg Config, c product.Catalog) *Service {
	return NewService(cfg, c, tracenoop.NewTracerProvider())
}

func notFound(id string) error {
	return &upstream.Error{Kind: upstream.KindNotFound, Op: "product", ID: id, Status: 404}
}

// --- Tests ---

func TestSimilar_EmptyList(t *testing.T) {
	svc := newTestService(Config{}, catalogOf(nil))

	got, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimilar_PreservesOrder(t *testing.T) {
	c := catalogOf([]string{"4", "2", "3"},
		newTestProduct("2", "Dress", "19.99", true),
		newTestProduct("3", "Blazer", "29.99", false),
		newTestProduct("4", "Boots", "39.99", true),
	)
	// Make the first id the slowest so completion order differs from list order.
	c.delay["4"] = 30 * time.Millisecond
	svc := newTestService(Config{Concurrency: 3}, c)

	got, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "3", got[2].ID)
	assert.Equal(t, "Boots", got[0].Name)
	assert.True(t, decimal.RequireFromString("39.99").Equal(got[0].Price))
	assert.False(t, got[2].Availability)
}

func TestSimilar_AbsentDetailSkipped(t *testing.T) {
	c := catalogOf([]string{"2", "ghost", "3"},
		newTestProduct("2", "Dress", "19.99", true),
		newTestProduct("3", "Blazer", "29.99", false),
	)
	svc := newTestService(Config{}, c)

	got, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestSimilar_ListErrorPropagates(t *testing.T) {
	listErr := &upstream.Error{Kind: upstream.KindNotFound, Op: "similar ids", ID: "1", Status: 404}
	c := catalogOf(nil)
	c.similarErr = listErr
	svc := newTestService(Config{}, c)

	_, err := svc.Similar(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, listErr))
	assert.Empty(t, c.requested)
}

func TestSimilar_DetailNotFoundAborts(t *testing.T) {
	c := catalogOf([]string{"A", "B"},
		newTestProduct("A", "Widget", "9.99", true),
	)
	c.productErr["B"] = notFound("B")
	svc := newTestService(Config{}, c)

	got, err := svc.Similar(context.Background(), "1")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, upstream.IsNotFound(err))
}

func TestSimilar_DetailNotFoundSkipped(t *testing.T) {
	c := catalogOf([]string{"A", "B"},
		newTestProduct("A", "Widget", "9.99", true),
	)
	c.productErr["B"] = notFound("B")
	svc := newTestService(Config{SkipMissing: true}, c)

	got, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestSimilar_SkipMissingStillAbortsOnOtherErrors(t *testing.T) {
	c := catalogOf([]string{"A", "B"},
		newTestProduct("A", "Widget", "9.99", true),
	)
	c.productErr["B"] = &upstream.Error{Kind: upstream.KindUnavailable, Status: 503}
	svc := newTestService(Config{SkipMissing: true}, c)

	_, err := svc.Similar(context.Background(), "1")
	kind, ok := upstream.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, upstream.KindUnavailable, kind)
}

func TestSimilar_FailureCancelsLaterLookups(t *testing.T) {
	c := catalogOf([]string{"A", "B"},
		newTestProduct("B", "Gadget", "19.99", true),
	)
	c.productErr["A"] = &upstream.Error{Kind: upstream.KindTransport, Err: errors.New("connection refused")}
	c.delay["B"] = 5 * time.Second
	svc := newTestService(Config{Concurrency: 2}, c)

	start := time.Now()
	_, err := svc.Similar(context.Background(), "1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	kind, ok := upstream.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, upstream.KindTransport, kind)
}

func TestSimilar_EarliestFailureWins(t *testing.T) {
	c := catalogOf([]string{"A", "B", "C"},
		newTestProduct("C", "Gizmo", "5.00", true),
	)
	// A fails last but comes first in the list.
	c.delay["A"] = 20 * time.Millisecond
	c.productErr["A"] = &upstream.Error{Kind: upstream.KindUnavailable, Status: 503}
	c.productErr["B"] = notFound("B")
	svc := newTestService(Config{}, c)

	for range 5 {
		_, err := svc.Similar(context.Background(), "1")
		kind, ok := upstream.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, upstream.KindUnavailable, kind)
	}
}

func TestSimilar_ParentCancelReported(t *testing.T) {
	c := catalogOf([]string{"A", "B"})
	c.delay["A"] = 5 * time.Second
	c.delay["B"] = 5 * time.Second
	svc := newTestService(Config{}, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := svc.Similar(ctx, "1")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSimilar_ConcurrencyBound(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	products := make([]*product.Product, len(ids))
	for i, id := range ids {
		products[i] = newTestProduct(id, id, "1", true)
	}
	c := catalogOf(ids, products...)
	for _, id := range ids {
		c.delay[id] = 10 * time.Millisecond
	}
	svc := newTestService(Config{Concurrency: 2}, c)

	got, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
	assert.LessOrEqual(t, c.maxFlight.Load(), int32(2))
}

func TestSimilar_Sequential(t *testing.T) {
	ids := []string{"a", "b", "c"}
	c := catalogOf(ids,
		newTestProduct("a", "a", "1", true),
		newTestProduct("b", "b", "2", true),
		newTestProduct("c", "c", "3", true),
	)
	svc := newTestService(Config{Concurrency: 1}, c)

	_, err := svc.Similar(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, ids, c.requested)
	assert.Equal(t, int32(1), c.maxFlight.Load())
}

func TestNewService_DefaultConcurrency(t *testing.T) {
	svc := NewService(Config{}, catalogOf(nil), nil)
	assert.Equal(t, DefaultConcurrency, svc.concurrency)
}
