// Package handler exposes the similar products HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xenking/similar-products/internal/domain/similar"
)

// SimilarService is the aggregation the handler delegates to.
type SimilarService interface {
	Similar(ctx context.Context, productID string) ([]similar.ProductDetail, error)
}

// Handler serves the public product API.
type Handler struct {
	similar SimilarService
	now     func() time.Time
}

// NewHandler constructs a Handler backed by the given service.
func NewHandler(svc SimilarService) *Handler {
	return &Handler{
		similar: svc,
		now:     time.Now,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /product/{productId}/similar", h.GetSimilarProducts)
}
