package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery returns a middleware that recovers from panics, logs them with a
// stack trace, and hands the response over to onPanic. A nil onPanic answers
// with a plain 500 Internal Server Error. If the handler already started the
// response, it cannot be replaced, so the connection is aborted instead.
func Recovery(onPanic http.HandlerFunc) Middleware {
	if onPanic == nil {
		onPanic = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				if tw.started {
					panic(http.ErrAbortHandler)
				}
				w.Header().Set("Connection", "close")
				onPanic(w, r)
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// headerTracker notes whether the response status has been committed.
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (w *headerTracker) WriteHeader(code int) {
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerTracker) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *headerTracker) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
