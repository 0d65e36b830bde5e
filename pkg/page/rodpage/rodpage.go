// Package rodpage implements page.Page on top of go-rod, driving a real
// Chromium instance over CDP. It is the only package that knows about the
// driver; everything above it speaks the page capability interface.
package rodpage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/mgiordano/wabridge/pkg/page"
)

// Config controls how the underlying browser is obtained.
type Config struct {
	// ControlURL connects to an already-running browser when set;
	// otherwise a browser is launched.
	ControlURL string

	Headless    bool
	UserAgent   string
	UserDataDir string
	// ExtraArgs are appended to the launcher invocation.
	ExtraArgs map[string]string
}

// Page adapts a rod page to the page.Page capability.
type Page struct {
	browser *rod.Browser
	pg      *rod.Page
	lnchr   *launcher.Launcher
	router  *rod.HijackRouter

	mu        sync.Mutex
	navFns    []page.NavigationFunc
	respFns   []page.ResponseFunc
	snapshots map[string]string
	stops     []func() error
	closed    bool
}

// New launches (or connects to) a browser and opens a blank page.
func New(ctx context.Context, cfg Config) (*Page, error) {
	var (
		browser *rod.Browser
		lnchr   *launcher.Launcher
	)
	controlURL := cfg.ControlURL
	if controlURL == "" {
		lnchr = launcher.New().Headless(cfg.Headless)
		// navigator.webdriver fix, same flag the upstream client sets.
		lnchr = lnchr.Set("disable-blink-features", "AutomationControlled")
		if cfg.UserAgent != "" {
			lnchr = lnchr.Set("user-agent", cfg.UserAgent)
		}
		if cfg.UserDataDir != "" {
			lnchr = lnchr.UserDataDir(cfg.UserDataDir)
		}
		for k, v := range cfg.ExtraArgs {
			lnchr = lnchr.Set(flags.Flag(k), v)
		}
		u, err := lnchr.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if lnchr != nil {
			lnchr.Cleanup()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	pg, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if cfg.UserAgent != "" {
		if err := pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			_ = browser.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	p := &Page{
		browser:   browser,
		pg:        pg,
		lnchr:     lnchr,
		snapshots: make(map[string]string),
	}
	p.watchNavigation()
	return p, nil
}

func (p *Page) watchNavigation() {
	go p.pg.EachEvent(func(e *proto.PageFrameNavigated) {
		if e.Frame.ParentID != "" {
			return // sub-frame
		}
		p.mu.Lock()
		fns := make([]page.NavigationFunc, len(p.navFns))
		copy(fns, p.navFns)
		p.mu.Unlock()
		for _, fn := range fns {
			fn(e.Frame.URL)
		}
	})()
}

// Evaluate runs source as an expression in the page, awaiting promises and
// returning the settled value as plain data.
func (p *Page) Evaluate(ctx context.Context, source string) (any, error) {
	pg := p.pg.Context(ctx)
	obj, err := pg.Evaluate(rod.Eval(source).ByPromise())
	if err != nil {
		return nil, mapEvalError(err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.Value.Val(), nil
}

func mapEvalError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", page.ErrEvaluateTimeout, err)
	}
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) {
		return &page.EvalError{Message: evalErr.Error()}
	}
	return err
}

// Expose registers a page-global function backed by fn.
func (p *Page) Expose(_ context.Context, name string, fn page.ExposedFunc) error {
	stop, err := p.pg.Expose(name, func(j gson.JSON) (interface{}, error) {
		var args []any
		for _, item := range j.Arr() {
			args = append(args, item.Val())
		}
		return fn(args)
	})
	if err != nil {
		return fmt.Errorf("expose %s: %w", name, err)
	}
	p.mu.Lock()
	p.stops = append(p.stops, stop)
	p.mu.Unlock()
	return nil
}

// WaitForFunction polls expr until it becomes truthy, then returns its value.
func (p *Page) WaitForFunction(ctx context.Context, expr string, timeout time.Duration) (any, error) {
	pg := p.pg.Context(ctx).Timeout(timeout)
	err := pg.Wait(rod.Eval(fmt.Sprintf("() => !!(%s)", expr)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", page.ErrFunctionMissing, expr)
		}
		return nil, mapEvalError(err)
	}
	return p.Evaluate(ctx, fmt.Sprintf("(() => (%s))()", expr))
}

// Navigate loads url and blocks until the load event fires.
func (p *Page) Navigate(ctx context.Context, url, referer string) error {
	pg := p.pg.Context(ctx)
	if _, err := (proto.PageNavigate{URL: url, Referrer: referer}).Call(pg); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *Page) OnNavigation(fn page.NavigationFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navFns = append(p.navFns, fn)
}

// ServeSnapshot installs a hijack that answers requests for url with html.
func (p *Page) ServeSnapshot(url, html string) {
	p.mu.Lock()
	p.snapshots[url] = html
	p.mu.Unlock()
	p.ensureRouter()
}

func (p *Page) OnResponse(fn page.ResponseFunc) {
	p.mu.Lock()
	p.respFns = append(p.respFns, fn)
	p.mu.Unlock()
	p.ensureRouter()
}

// ensureRouter lazily starts a single hijack router that serves pinned
// snapshots and captures document bodies for the version cache.
func (p *Page) ensureRouter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.router != nil {
		return
	}
	router := p.pg.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if h.Request.Type() != proto.NetworkResourceTypeDocument {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		reqURL := h.Request.URL().String()

		p.mu.Lock()
		html, pinned := p.snapshots[reqURL]
		respFns := make([]page.ResponseFunc, len(p.respFns))
		copy(respFns, p.respFns)
		p.mu.Unlock()

		if pinned {
			h.Response.Payload().ResponseCode = 200
			h.Response.SetHeader("Content-Type", "text/html")
			h.Response.SetBody(html)
			return
		}

		if err := h.LoadResponse(http.DefaultClient, true); err != nil {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		body := h.Response.Body()
		for _, fn := range respFns {
			fn(reqURL, body)
		}
	})
	go router.Run()
	p.router = router
}

// Close tears down the page and, when this adapter launched the browser,
// the browser process itself.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stops := p.stops
	router := p.router
	p.mu.Unlock()

	for _, stop := range stops {
		_ = stop()
	}
	if router != nil {
		_ = router.Stop()
	}
	var lastErr error
	if err := p.pg.Close(); err != nil {
		lastErr = err
	}
	if err := p.browser.Close(); err != nil {
		lastErr = err
	}
	if p.lnchr != nil {
		p.lnchr.Cleanup()
	}
	return lastErr
}

var _ page.Page = (*Page)(nil)
