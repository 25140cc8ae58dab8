package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/similar-products/internal/domain/similar"
)

// GetSimilarProducts answers GET /product/{productId}/similar. An empty
// result is reported as a bodyless 404.
func (h *Handler) GetSimilarProducts(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	list, err := h.similar.Similar(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(list) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var e jx.Encoder
	encodeProductDetails(&e, list)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func encodeProductDetails(e *jx.Encoder, list []similar.ProductDetail) {
	e.ArrStart()
	for _, p := range list {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		e.Num(jx.Num(p.Price.String()))
		e.FieldStart("availability")
		e.Bool(p.Availability)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already committed; a failed write means the client left.
	_, _ = w.Write(body)
}
