package upstream

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failed upstream call.
type Kind int

const (
	// KindUnexpected is any non-2xx status without a dedicated kind.
	KindUnexpected Kind = iota
	// KindNotFound means the upstream answered 404.
	KindNotFound
	// KindBadRequest means the upstream answered 400.
	KindBadRequest
	// KindUnavailable means the upstream answered 503.
	KindUnavailable
	// KindTransport means no HTTP response was received.
	KindTransport
	// KindMalformed means the response body could not be decoded.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindUnavailable:
		return "unavailable"
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed"
	default:
		return "unexpected"
	}
}

// Error is returned by Client for every failed upstream call.
type Error struct {
	Kind Kind
	// Op names the upstream operation, e.g. "similar ids" or "product".
	Op string
	// ID is the product identifier the call was made for.
	ID string
	// Status is the upstream HTTP status, zero for transport failures.
	Status int
	// Body is the raw upstream response body, truncated to maxErrorBody.
	Body string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("upstream %s %q: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("upstream %s %q: %s: status %d", e.Op, e.ID, e.Kind, e.Status)
	default:
		return fmt.Sprintf("upstream %s %q: %s", e.Op, e.ID, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var uErr *Error
	if errors.As(err, &uErr) {
		return uErr.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}
