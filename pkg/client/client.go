// Package client assembles the bridge, the injection loader, the auth
// machine, and the event relay into the session object callers hold. One
// Client owns one page and one linked account session.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mgiordano/wabridge/pkg/authn"
	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/config"
	"github.com/mgiordano/wabridge/pkg/events"
	"github.com/mgiordano/wabridge/pkg/inject"
	"github.com/mgiordano/wabridge/pkg/logging"
	"github.com/mgiordano/wabridge/pkg/metrics"
	"github.com/mgiordano/wabridge/pkg/model"
	"github.com/mgiordano/wabridge/pkg/page"
	"github.com/mgiordano/wabridge/pkg/relay"
	"github.com/mgiordano/wabridge/pkg/webcache"
)

// PageFactory opens the page a client will drive. userDataDir is the
// browser profile the active auth strategy picked, empty for ephemeral.
type PageFactory func(ctx context.Context, userDataDir string) (page.Page, error)

const logoutSource = `() => {
    if (window.Store && window.Store.AppState && typeof window.Store.AppState.logout === 'function') {
        return window.Store.AppState.logout();
    }
}`

const clientInfoSource = `() => ({ ...window.Store.Conn.serialize(), wid: window.Store.User.getMeUser() })`

const appStateSource = `() => window.Store.AppState.state`

const sendSeenSource = `(chatId) => {
    if (!window.WWebJS || !window.WWebJS.sendSeen) {
        throw new Error('window.WWebJS.sendSeen is not defined');
    }
    return window.WWebJS.sendSeen(chatId);
}`

// Client drives one authenticated session of the remote web application.
type Client struct {
	opts     config.Options
	strategy authn.Strategy
	factory  PageFactory

	log     *logging.Logger
	emitter *events.Emitter
	cache   webcache.Cache

	mu          sync.Mutex
	pg          page.Page
	bridge      *bridge.Bridge
	loader      *inject.Loader
	machine     *authn.Machine
	relay       *relay.Relay
	userDataDir string
	version     string
	tier        inject.Tier
	// indexHTML is the document body captured off the wire, persisted into
	// the version cache once the session proves it works.
	indexHTML  string
	info       *model.ClientInfo
	navWaiters []chan struct{}
	destroyed  bool
}

// New builds a client. strategy may be nil, which selects NoAuth.
func New(opts config.Options, strategy authn.Strategy, factory PageFactory) (*Client, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if strategy == nil {
		strategy = authn.NewNoAuth()
	}

	var log *logging.Logger
	if opts.LogPath != "" {
		var err error
		log, err = logging.NewLogger(opts.LogPath, opts.ClientID)
		if err != nil {
			return nil, fmt.Errorf("open logs: %w", err)
		}
	}

	c := &Client{
		opts:     opts,
		strategy: strategy,
		factory:  factory,
		log:      log,
		emitter:  events.NewEmitter(),
		cache:    webcache.FromType(opts.CacheType, opts.CachePath),
	}
	strategy.Setup(c)
	return c, nil
}

// authn.Env implementation.

func (c *Client) ClientID() string { return c.opts.ClientID }
func (c *Client) DataPath() string { return c.opts.DataPath }

func (c *Client) Bridge() *bridge.Bridge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bridge
}

func (c *Client) SetUserDataDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userDataDir = dir
}

// On subscribes to an outward event name ("*" for everything).
func (c *Client) On(name string, fn events.Handler) *events.Subscription {
	return c.emitter.On(name, fn)
}

// Once subscribes for a single delivery.
func (c *Client) Once(name string, fn events.Handler) *events.Subscription {
	return c.emitter.Once(name, fn)
}

// Info returns the session identity, available once ready fired.
func (c *Client) Info() *model.ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Initialize opens the page, navigates to the remote application, and runs
// the injection and authentication flow. It returns once the flow is
// installed; readiness is reported through the ready event.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.strategy.BeforeBrowserInitialized(ctx); err != nil {
		return fmt.Errorf("strategy before-browser: %w", err)
	}

	c.mu.Lock()
	dir := c.userDataDir
	c.mu.Unlock()
	pg, err := c.factory(ctx, dir)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	b := bridge.New(pg, c.log)
	loader := inject.NewLoader(b, c.log)
	machine := authn.NewMachine(b, c.emitter, c.strategy, c.log, authn.Config{
		QRMaxRetries:       c.opts.QRMaxRetries,
		TakeoverOnConflict: c.opts.TakeoverOnConflict,
		TakeoverTimeout:    c.opts.TakeoverTimeout.Std(),
	})
	machine.SetHooks(authn.Hooks{
		OnSynced:          c.onSynced,
		Teardown:          func() { _ = c.Destroy(context.Background()) },
		Restart:           func() { _ = c.Initialize(context.Background()) },
		WaitForNavigation: c.waitForNavigation,
	})
	rl := relay.New(b, c.emitter, c.log, machine.HandleAppState)

	c.mu.Lock()
	c.pg = pg
	c.bridge = b
	c.loader = loader
	c.machine = machine
	c.relay = rl
	c.destroyed = false
	c.mu.Unlock()

	if err := c.strategy.AfterBrowserInitialized(ctx); err != nil {
		return fmt.Errorf("strategy after-browser: %w", err)
	}

	if err := c.initWebVersionCache(); err != nil {
		return err
	}

	if err := pg.Navigate(ctx, config.RemoteURL, config.Referer); err != nil {
		return fmt.Errorf("navigate to remote: %w", err)
	}

	if err := c.inject(ctx); err != nil {
		return err
	}

	// the supervisor watches every later navigation; registered after the
	// first injection so the initial load is not handled twice
	pg.OnNavigation(c.onNavigated)
	return nil
}

// initWebVersionCache either pins the document to a cached payload or
// starts capturing the live payload for later persistence.
func (c *Client) initWebVersionCache() error {
	content, err := c.cache.Resolve(c.opts.WebVersion)
	if err != nil {
		return fmt.Errorf("resolve web version %s: %w", c.opts.WebVersion, err)
	}
	if content != "" {
		c.pg.ServeSnapshot(config.RemoteURL, content)
		c.log.Info(logging.CategoryCache, "version_pinned", c.opts.WebVersion, nil)
		return nil
	}
	c.pg.OnResponse(func(url, body string) {
		if url == config.RemoteURL {
			c.mu.Lock()
			c.indexHTML = body
			c.mu.Unlock()
		}
	})
	return nil
}

// inject runs one injection cycle: probe the version, pick the tier,
// install the auth layer, and hand control to the machine.
func (c *Client) inject(ctx context.Context) error {
	version, err := c.loader.ProbeVersion(ctx, c.opts.AuthTimeout.Std())
	if err != nil {
		return err
	}
	tier := inject.TierFor(version)
	c.mu.Lock()
	c.version = version
	c.tier = tier
	c.mu.Unlock()

	if err := c.loader.InjectAuthLayer(ctx, tier); err != nil {
		return err
	}
	return c.machine.Install(ctx)
}

// onSynced is the machine's authenticated hook: install the full contract
// if this page load does not have it yet, read the session identity, and
// attach the event relay.
func (c *Client) onSynced(ctx context.Context) error {
	present, err := c.loader.ContractPresent(ctx)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	c.mu.Lock()
	html, version, tier := c.indexHTML, c.version, c.tier
	c.mu.Unlock()
	if html != "" && version != "" {
		// the payload authenticated successfully, now worth caching
		if err := c.cache.Persist(html, version); err != nil {
			c.log.Warn(logging.CategoryCache, "persist_failed", err.Error(), nil)
		}
	}

	if err := c.loader.InjectStoreLayer(ctx, tier); err != nil {
		return err
	}

	info := &model.ClientInfo{}
	if err := c.bridge.EvaluateInto(ctx, info, clientInfoSource); err != nil {
		return fmt.Errorf("read session identity: %w", err)
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	return c.relay.Attach(ctx)
}

// onNavigated is the reconnect supervisor: a navigation that follows a
// logout closes the old identity and rebuilds strategy state, every
// navigation triggers a reinjection.
func (c *Client) onNavigated(url string) {
	ctx := context.Background()
	c.signalNavigation()

	// consume the machine's flag unconditionally: a post_logout URL match
	// must not leave it set, or the follow-up redirect to the landing page
	// would synthesize a second logout
	loggedOut := c.machine.TakeLoggedOut()
	if loggedOut || strings.Contains(url, "post_logout=1") {
		c.emitter.Emit(events.Disconnected, authn.DisconnectReasonLogout)
		if err := c.strategy.Logout(ctx); err != nil {
			c.log.Warn(logging.CategorySupervisor, "strategy_logout_failed", err.Error(), nil)
		}
		if err := c.strategy.BeforeBrowserInitialized(ctx); err != nil {
			c.log.Warn(logging.CategorySupervisor, "strategy_before_failed", err.Error(), nil)
		}
		if err := c.strategy.AfterBrowserInitialized(ctx); err != nil {
			c.log.Warn(logging.CategorySupervisor, "strategy_after_failed", err.Error(), nil)
		}
	}

	metrics.Reinjections.Inc()
	c.log.Info(logging.CategorySupervisor, "reinjecting", url, nil)
	if err := c.inject(ctx); err != nil {
		c.log.Error(logging.CategorySupervisor, "reinject_failed", err.Error(), nil)
	}
}

func (c *Client) signalNavigation() {
	c.mu.Lock()
	waiters := c.navWaiters
	c.navWaiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

// waitForNavigation blocks until the next completed navigation or timeout.
func (c *Client) waitForNavigation(timeout time.Duration) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.navWaiters = append(c.navWaiters, ch)
	c.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

// RequestPairingCode links via phone number entry instead of QR scanning.
func (c *Client) RequestPairingCode(ctx context.Context, phoneNumber string, showNotification bool) (string, error) {
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	if m == nil {
		return "", fmt.Errorf("client not initialized")
	}
	return m.RequestPairingCode(ctx, phoneNumber, showNotification)
}

// RemoteVersion reports the page's self-declared version, waiting up to
// timeout for it to appear.
func (c *Client) RemoteVersion(ctx context.Context, timeout time.Duration) (string, error) {
	c.mu.Lock()
	v, loader := c.version, c.loader
	c.mu.Unlock()
	if v != "" {
		return v, nil
	}
	if loader == nil {
		return "", fmt.Errorf("client not initialized")
	}
	return loader.ProbeVersion(ctx, timeout)
}

// State reads the remote connection state straight off the page.
func (c *Client) State(ctx context.Context) (authn.ConnectionState, error) {
	b := c.Bridge()
	if b == nil {
		return "", fmt.Errorf("client not initialized")
	}
	v, err := b.Evaluate(ctx, appStateSource)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return authn.ConnectionState(s), nil
}

// Evaluate runs a JS function source with the given arguments in the page
// and returns the decoded result.
func (c *Client) Evaluate(ctx context.Context, source string, args ...any) (any, error) {
	b := c.Bridge()
	if b == nil {
		return nil, fmt.Errorf("client not initialized")
	}
	return b.Evaluate(ctx, source, args...)
}

// SendSeen marks a chat read.
func (c *Client) SendSeen(ctx context.Context, chatID string) (bool, error) {
	b := c.Bridge()
	if b == nil {
		return false, fmt.Errorf("client not initialized")
	}
	v, err := b.Evaluate(ctx, sendSeenSource, chatID)
	if err != nil {
		// structured rejections from the remote RPC layer are a soft
		// failure for this operation, not an error
		if bridge.IsServerRejection(err) {
			c.log.Warn(logging.CategorySupervisor, "send_seen_rejected", err.Error(), nil)
			return false, nil
		}
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

// Logout ends the linked session remotely, closes the page, and lets the
// strategy discard its stored material.
func (c *Client) Logout(ctx context.Context) error {
	if b := c.Bridge(); b != nil {
		if _, err := b.Evaluate(ctx, logoutSource); err != nil {
			c.log.Warn(logging.CategorySupervisor, "remote_logout_failed", err.Error(), nil)
		}
	}
	if err := c.closePage(); err != nil {
		c.log.Warn(logging.CategorySupervisor, "page_close_failed", err.Error(), nil)
	}
	return c.strategy.Logout(ctx)
}

// Destroy tears the client down: page, browser, strategy state.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	m := c.machine
	c.mu.Unlock()

	if m != nil {
		m.CancelTakeover()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(c.closePage)
	g.Go(func() error { return c.strategy.Destroy(ctx) })
	return g.Wait()
}

// Close releases host-side resources after the client is done for good.
func (c *Client) Close() error {
	c.emitter.Close()
	return c.log.Close()
}

func (c *Client) closePage() error {
	c.mu.Lock()
	pg := c.pg
	c.mu.Unlock()
	if pg == nil {
		return nil
	}
	return pg.Close()
}

var _ authn.Env = (*Client)(nil)
