package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mgiordano/wabridge/pkg/page"
)

var (
	// ErrTransportTimeout is a single evaluation round-trip that timed out
	// twice in a row. The first timeout is retried transparently.
	ErrTransportTimeout = errors.New("evaluation transport timed out")

	// ErrContractMissing means the expected injected surface was absent
	// from the page.
	ErrContractMissing = errors.New("injected contract missing from page")
)

// serverRejectionMarker is the error-name marker the remote application's
// RPC layer uses for structured rejections.
const serverRejectionMarker = "ServerStatusCodeError"

// EvalFailure wraps a page evaluation error together with a truncated
// snippet of the executed source, so failures can be debugged without page
// devtools access.
type EvalFailure struct {
	Snippet string
	Err     error
}

func (e *EvalFailure) Error() string {
	return fmt.Sprintf("%v\n\nfailed to evaluate: %s...", e.Err, e.Snippet)
}

func (e *EvalFailure) Unwrap() error {
	return e.Err
}

// IsServerRejection reports whether err is a structured rejection from the
// remote application's own RPC layer. Domain operations whose contract
// documents a soft-failure outcome catch these locally instead of
// propagating them.
func IsServerRejection(err error) bool {
	if err == nil {
		return false
	}
	var evalErr *page.EvalError
	if errors.As(err, &evalErr) {
		return strings.Contains(evalErr.Message, serverRejectionMarker)
	}
	return strings.Contains(err.Error(), serverRejectionMarker)
}
