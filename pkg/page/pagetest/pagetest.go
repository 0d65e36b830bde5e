// Package pagetest provides a scriptable in-memory Page for component tests.
// Tests register evaluation rules keyed on source substrings and drive the
// page side of the conversation by invoking exposed handlers directly.
package pagetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mgiordano/wabridge/pkg/page"
)

// EvalRule answers evaluations whose serialized source contains Match.
type EvalRule struct {
	Match string
	Fn    func(source string) (any, error)
}

// Fake is an in-memory page.Page. The zero value is not usable; call New.
type Fake struct {
	mu       sync.Mutex
	rules    []EvalRule
	exposed  map[string]page.ExposedFunc
	navFns   []page.NavigationFunc
	respFns  []page.ResponseFunc
	snapshot map[string]string
	closed   bool

	// Evaluations records every source string passed to Evaluate, in order.
	Evaluations []string
}

func New() *Fake {
	return &Fake{
		exposed:  make(map[string]page.ExposedFunc),
		snapshot: make(map[string]string),
	}
}

// Stub registers an evaluation rule. Later rules win over earlier ones so a
// test can override a default set up by a helper.
func (f *Fake) Stub(match string, fn func(source string) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, EvalRule{Match: match, Fn: fn})
}

// StubValue registers a rule that always resolves to v.
func (f *Fake) StubValue(match string, v any) {
	f.Stub(match, func(string) (any, error) { return v, nil })
}

func (f *Fake) Evaluate(_ context.Context, source string) (any, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, page.ErrPageClosed
	}
	f.Evaluations = append(f.Evaluations, source)
	rules := make([]EvalRule, len(f.rules))
	copy(rules, f.rules)
	f.mu.Unlock()

	for i := len(rules) - 1; i >= 0; i-- {
		if strings.Contains(source, rules[i].Match) {
			return rules[i].Fn(source)
		}
	}
	return nil, nil
}

func (f *Fake) Expose(_ context.Context, name string, fn page.ExposedFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return page.ErrPageClosed
	}
	f.exposed[name] = fn
	return nil
}

// Exposed reports whether a handler is registered under name.
func (f *Fake) Exposed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.exposed[name]
	return ok
}

// ExposedCount returns the number of registered handlers.
func (f *Fake) ExposedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exposed)
}

// Invoke calls an exposed handler as the page would.
func (f *Fake) Invoke(name string, args ...any) (any, error) {
	f.mu.Lock()
	fn, ok := f.exposed[name]
	f.mu.Unlock()
	if !ok {
		return nil, page.ErrFunctionMissing
	}
	return fn(args)
}

func (f *Fake) WaitForFunction(ctx context.Context, expr string, timeout time.Duration) (any, error) {
	v, err := f.Evaluate(ctx, expr)
	if err != nil {
		return nil, err
	}
	if v == nil || v == false || v == "" {
		return nil, page.ErrFunctionMissing
	}
	return v, nil
}

func (f *Fake) Navigate(_ context.Context, url, _ string) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return page.ErrPageClosed
	}
	return nil
}

func (f *Fake) OnNavigation(fn page.NavigationFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navFns = append(f.navFns, fn)
}

// TriggerNavigation simulates a completed top-frame navigation.
func (f *Fake) TriggerNavigation(url string) {
	f.mu.Lock()
	fns := make([]page.NavigationFunc, len(f.navFns))
	copy(fns, f.navFns)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(url)
	}
}

func (f *Fake) ServeSnapshot(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot[url] = html
}

// Snapshot returns the HTML pinned for url, if any.
func (f *Fake) Snapshot(url string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	html, ok := f.snapshot[url]
	return html, ok
}

func (f *Fake) OnResponse(fn page.ResponseFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respFns = append(f.respFns, fn)
}

// FeedResponse simulates a successful document response.
func (f *Fake) FeedResponse(url, body string) {
	f.mu.Lock()
	fns := make([]page.ResponseFunc, len(f.respFns))
	copy(fns, f.respFns)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(url, body)
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ page.Page = (*Fake)(nil)
