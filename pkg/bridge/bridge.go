// Package bridge is the evaluation and function-exposure channel between the
// host and the page. It serializes function sources with JSON-encoded
// arguments, retries transport timeouts exactly once, and guarantees
// idempotent host-function registration across reinjection cycles.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mgiordano/wabridge/pkg/logging"
	"github.com/mgiordano/wabridge/pkg/metrics"
	"github.com/mgiordano/wabridge/pkg/page"
)

// snippetLen bounds how much of the executed source rides along on errors.
const snippetLen = 500

// Bridge executes code in the page and exposes host functions to it.
// All methods are safe for use from multiple goroutines because the
// underlying page serializes evaluations.
type Bridge struct {
	page page.Page
	log  *logging.Logger
}

func New(p page.Page, log *logging.Logger) *Bridge {
	return &Bridge{page: p, log: log}
}

// Page returns the underlying page capability.
func (b *Bridge) Page() page.Page {
	return b.page
}

// Serialize renders fn with its arguments as a single self-invoking
// expression. fn must be a JavaScript function literal (or a bare source
// expression already shaped that way).
func Serialize(fn string, args ...any) (string, error) {
	encoded := make([]string, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("serialize argument %d: %w", i, err)
		}
		encoded = append(encoded, string(data))
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(fn), strings.Join(encoded, ", ")), nil
}

// Evaluate runs fn(args...) in the page. A transport timeout is retried
// once; a second consecutive timeout surfaces as ErrTransportTimeout. All
// other failures propagate wrapped with a source snippet.
func (b *Bridge) Evaluate(ctx context.Context, fn string, args ...any) (any, error) {
	source, err := Serialize(fn, args...)
	if err != nil {
		return nil, err
	}
	return b.EvaluateSource(ctx, source)
}

// EvaluateSource runs an already-serialized expression.
func (b *Bridge) EvaluateSource(ctx context.Context, source string) (any, error) {
	metrics.Evaluations.Inc()

	result, err := b.page.Evaluate(ctx, source)
	if err != nil && errors.Is(err, page.ErrEvaluateTimeout) {
		metrics.EvaluationRetries.Inc()
		b.log.Warn(logging.CategoryBridge, "evaluate_retry", "transport timeout, retrying once", map[string]any{
			"snippet": snippet(source),
		})
		result, err = b.page.Evaluate(ctx, source)
		if err != nil && errors.Is(err, page.ErrEvaluateTimeout) {
			err = fmt.Errorf("%w: %v", ErrTransportTimeout, err)
		}
	}
	if err != nil {
		metrics.EvaluationFailures.Inc()
		b.log.Error(logging.CategoryBridge, "evaluate_failed", err.Error(), map[string]any{
			"snippet": snippet(source),
		})
		return nil, &EvalFailure{Snippet: snippet(source), Err: err}
	}
	return result, nil
}

// EvaluateInto runs fn(args...) and decodes the structured-clone result into
// out through a JSON round-trip. out must be a non-nil pointer.
func (b *Bridge) EvaluateInto(ctx context.Context, out any, fn string, args ...any) error {
	result, err := b.Evaluate(ctx, fn, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode page result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode page result: %w", err)
	}
	return nil
}

// Expose registers a page-global callable backed by fn. If a global of that
// name already exists the call is a no-op, which keeps repeated reinjection
// cycles from tripping duplicate-registration failures.
func (b *Bridge) Expose(ctx context.Context, name string, fn page.ExposedFunc) error {
	exists, err := b.Evaluate(ctx, "(name) => !!window[name]", name)
	if err != nil {
		return fmt.Errorf("probe global %s: %w", name, err)
	}
	if exists == true {
		b.log.Debug(logging.CategoryBridge, "expose_skipped", "global already present", map[string]any{
			"name": name,
		})
		return nil
	}
	if err := b.page.Expose(ctx, name, fn); err != nil {
		return err
	}
	metrics.Exposures.Inc()
	b.log.Debug(logging.CategoryBridge, "exposed", "", map[string]any{"name": name})
	return nil
}

// WaitForFunction delegates to the page's bounded truthiness wait.
func (b *Bridge) WaitForFunction(ctx context.Context, expr string, timeout time.Duration) (any, error) {
	return b.page.WaitForFunction(ctx, expr, timeout)
}

func snippet(source string) string {
	if len(source) <= snippetLen {
		return source
	}
	return source[:snippetLen]
}
