package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xenking/similar-products/internal/upstream"
)

// Messages returned in APIError bodies.
const (
	MsgNotFound    = "Product not found"
	MsgUnavailable = "Upstream service is unavailable, please try again later"
	MsgBadGateway  = "Error communicating with product service"
	MsgInternal    = "An unexpected error occurred"
)

// APIError is the JSON error envelope returned on every failure path.
type APIError struct {
	Status    int
	Error     string
	Message   string
	Path      string
	Timestamp int64
}

// NewAPIError builds an APIError for status with the reason phrase filled in.
func NewAPIError(status int, message, path string, at time.Time) APIError {
	return APIError{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      path,
		Timestamp: at.UnixMilli(),
	}
}

// Encode writes the error as {status, error, message, path, timestamp}.
func (a APIError) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Int(a.Status)
	e.FieldStart("error")
	e.Str(a.Error)
	e.FieldStart("message")
	e.Str(a.Message)
	e.FieldStart("path")
	e.Str(a.Path)
	e.FieldStart("timestamp")
	e.Int64(a.Timestamp)
	e.ObjEnd()
}

// WriteAPIError writes a as the response with its status code.
func WriteAPIError(w http.ResponseWriter, a APIError) {
	var e jx.Encoder
	a.Encode(&e)
	writeJSON(w, a.Status, e.Bytes())
}

// WriteInternalError answers with a 500 APIError. It is used for failures
// that never reach a handler, such as recovered panics.
func WriteInternalError(w http.ResponseWriter, r *http.Request) {
	WriteAPIError(w, NewAPIError(http.StatusInternalServerError, MsgInternal, r.URL.Path, time.Now()))
}

// mapError picks the status, message and log level for err.
func mapError(err error) (status int, message string, level zapcore.Level) {
	var uErr *upstream.Error
	if !errors.As(err, &uErr) {
		return http.StatusInternalServerError, MsgInternal, zapcore.ErrorLevel
	}

	switch uErr.Kind {
	case upstream.KindNotFound:
		return http.StatusNotFound, MsgNotFound, zapcore.WarnLevel
	case upstream.KindBadRequest:
		return http.StatusBadRequest, uErr.Body, zapcore.WarnLevel
	case upstream.KindUnavailable:
		return http.StatusServiceUnavailable, MsgUnavailable, zapcore.ErrorLevel
	case upstream.KindTransport, upstream.KindMalformed:
		return http.StatusBadGateway, MsgBadGateway, zapcore.ErrorLevel
	default:
		return http.StatusInternalServerError, MsgInternal, zapcore.ErrorLevel
	}
}

// writeError logs err and answers with the matching APIError.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	lg := zctx.From(r.Context())

	// Nobody is left to read the answer.
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		lg.Debug("Request canceled by client", zap.Error(err))
		return
	}

	status, message, level := mapError(err)
	if ce := lg.Check(level, logMessage(status)); ce != nil {
		ce.Write(
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	WriteAPIError(w, NewAPIError(status, message, r.URL.Path, h.now()))
}

func logMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Upstream resource not found"
	case http.StatusBadRequest:
		return "Bad request to upstream"
	case http.StatusServiceUnavailable:
		return "Upstream service unavailable"
	case http.StatusBadGateway:
		return "Error communicating with upstream"
	default:
		return "Unhandled error"
	}
}
