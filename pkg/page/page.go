// Package page defines the capability surface the bridge needs from a
// browser page. Components never reach for the driver directly; they receive
// a Page and speak evaluation, function exposure, and navigation callbacks
// through it.
package page

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEvaluateTimeout marks a single evaluation round-trip that timed
	// out at the transport layer. Callers may retry; everything else is
	// non-retryable.
	ErrEvaluateTimeout = errors.New("page evaluation timed out")

	// ErrPageClosed is returned for operations on a closed page.
	ErrPageClosed = errors.New("page closed")

	// ErrFunctionMissing is returned when a wait for a page expression
	// never resolved within its timeout.
	ErrFunctionMissing = errors.New("page expression never became truthy")
)

// ExposedFunc is a host-side handler invocable from inside the page. Args
// arrive as decoded plain data (the structured-clone subset); the return
// value is transported back into the page the same way.
type ExposedFunc func(args []any) (any, error)

// NavigationFunc is called after every top-frame navigation completes.
type NavigationFunc func(url string)

// ResponseFunc observes the body of a successful document response,
// used to capture the remote application payload for version pinning.
type ResponseFunc func(url, body string)

// Page is the browser capability consumed by the bridge and its components.
// Implementations must serialize evaluations: there is never more than one
// in-flight evaluation against the same page.
type Page interface {
	// Evaluate runs a JavaScript expression in the page and returns its
	// settled value as plain data. Promise results are awaited.
	Evaluate(ctx context.Context, source string) (any, error)

	// Expose registers a page-global callable backed by fn. Registering a
	// name twice is an error at this layer; idempotence lives in the
	// bridge, which probes for the global first.
	Expose(ctx context.Context, name string, fn ExposedFunc) error

	// WaitForFunction polls expr until it is truthy and returns its value,
	// or fails with ErrFunctionMissing after timeout.
	WaitForFunction(ctx context.Context, expr string, timeout time.Duration) (any, error)

	// Navigate loads url with the given referer and waits for the load event.
	Navigate(ctx context.Context, url, referer string) error

	// OnNavigation registers a callback for completed navigations.
	OnNavigation(fn NavigationFunc)

	// ServeSnapshot answers future requests for url with the given HTML
	// body instead of hitting the network.
	ServeSnapshot(url, html string)

	// OnResponse observes document responses so a newly seen payload can
	// be captured for the version cache.
	OnResponse(fn ResponseFunc)

	// Close tears the page down, cancelling any in-flight evaluation.
	Close() error
}

// EvalError is a page-side failure surfaced through Evaluate, carrying the
// message the page threw.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("page threw: %s", e.Message)
}
