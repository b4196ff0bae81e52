package federation

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a federation failure so callers can branch on the case
// rather than parse message text. Every error that crosses a component
// boundary is tagged with exactly one kind.
type Kind string

const (
	// KindValidation means the request was rejected before any mutation,
	// typically a missing required field on a create.
	KindValidation Kind = "validation"

	// KindNotFound means an id, tenant, alias, or category did not resolve.
	KindNotFound Kind = "not_found"

	// KindConflict means the requested state is already owned elsewhere,
	// e.g. an alias bound to a different tenant.
	KindConflict Kind = "conflict"

	// KindTimeoutBusy means the store serialization lock could not be
	// acquired within its bounded wait. The request was not applied.
	KindTimeoutBusy Kind = "timeout_busy"

	// KindUpstream means a federation target was unreachable, returned a
	// non-success status, or produced an unparseable payload.
	KindUpstream Kind = "upstream"

	// KindInternal covers unexpected faults.
	KindInternal Kind = "internal"
)

// Fault is the tagged error carried across the federation layers.
type Fault struct {
	Kind    Kind
	Message string
}

func (f *Fault) Error() string { return f.Message }

func Errf(kind Kind, format string, args ...any) error {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain. Untagged errors are
// classified as internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a failure kind to the status code the boundary returns
// alongside the error envelope.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTimeoutBusy:
		return http.StatusServiceUnavailable
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
