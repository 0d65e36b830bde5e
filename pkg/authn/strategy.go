package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/session"
)

// Env is the slice of the client a strategy may touch.
type Env interface {
	ClientID() string
	DataPath() string
	// Bridge is nil until the browser is initialized.
	Bridge() *bridge.Bridge
	// SetUserDataDir points the launched browser at a profile directory.
	// Only honored before the browser is initialized.
	SetUserDataDir(dir string)
}

// Result is the outcome of a session-restore attempt.
type Result struct {
	Failed bool
	// Restart asks the client to re-run initialization from scratch with
	// no stored session after a failed restore.
	Restart        bool
	FailurePayload any
}

// Strategy decides how session material is saved and restored across runs.
type Strategy interface {
	Setup(env Env)
	BeforeBrowserInitialized(ctx context.Context) error
	AfterBrowserInitialized(ctx context.Context) error
	// OnAuthenticationNeeded is invoked when the page reports it is
	// unpaired, meaning any restored session was not accepted.
	OnAuthenticationNeeded(ctx context.Context) (Result, error)
	// AuthEventPayload is attached to the authenticated event.
	AuthEventPayload(ctx context.Context) (any, error)
	AfterAuthReady(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Logout(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Base is a no-op Strategy to embed.
type Base struct {
	env Env
}

func (b *Base) Setup(env Env) { b.env = env }

func (b *Base) Env() Env { return b.env }

func (*Base) BeforeBrowserInitialized(context.Context) error { return nil }
func (*Base) AfterBrowserInitialized(context.Context) error  { return nil }

func (*Base) OnAuthenticationNeeded(context.Context) (Result, error) {
	return Result{}, nil
}

func (*Base) AuthEventPayload(context.Context) (any, error) { return nil, nil }
func (*Base) AfterAuthReady(context.Context) error          { return nil }
func (*Base) Disconnect(context.Context) error              { return nil }
func (*Base) Logout(context.Context) error                  { return nil }
func (*Base) Destroy(context.Context) error                 { return nil }

// NoAuth never persists anything; every run pairs from scratch.
type NoAuth struct {
	Base
}

func NewNoAuth() *NoAuth { return &NoAuth{} }

// LocalAuth keeps the whole browser profile in a per-client directory, so
// the remote application finds its own persisted registration on the next
// launch. Logout removes the directory.
type LocalAuth struct {
	Base
	dataPath    string
	userDataDir string
}

// NewLocalAuth stores profiles under dataPath ("" uses the client's
// configured data path).
func NewLocalAuth(dataPath string) *LocalAuth {
	return &LocalAuth{dataPath: dataPath}
}

func (a *LocalAuth) BeforeBrowserInitialized(context.Context) error {
	env := a.Env()
	if err := session.ValidateClientID(env.ClientID()); err != nil {
		return err
	}
	base := a.dataPath
	if base == "" {
		base = env.DataPath()
	}
	name := "session"
	if id := env.ClientID(); id != "" {
		name = "session-" + id
	}
	dir, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return fmt.Errorf("resolve profile dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	a.userDataDir = dir
	env.SetUserDataDir(dir)
	return nil
}

func (a *LocalAuth) Logout(context.Context) error {
	if a.userDataDir == "" {
		return nil
	}
	if err := os.RemoveAll(a.userDataDir); err != nil {
		return fmt.Errorf("remove profile dir: %w", err)
	}
	return nil
}

// UserDataDir reports the resolved profile directory, for tests.
func (a *LocalAuth) UserDataDir() string { return a.userDataDir }

// StoreAuth persists the page-issued key material as an opaque blob in an
// external session store and plants it back into the page's local storage
// before the remote application boots.
type StoreAuth struct {
	Base
	store    session.Store
	restored []byte
}

func NewStoreAuth(store session.Store) *StoreAuth {
	return &StoreAuth{store: store}
}

func (a *StoreAuth) BeforeBrowserInitialized(ctx context.Context) error {
	blob, err := a.store.Restore(ctx, a.Env().ClientID())
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			a.restored = nil
			return nil
		}
		return err
	}
	a.restored = blob
	return nil
}

func (a *StoreAuth) AfterBrowserInitialized(ctx context.Context) error {
	if len(a.restored) == 0 {
		return nil
	}
	// The blob is the remote application's own localStorage dump; plant
	// it verbatim and let the page decide whether it is still valid.
	_, err := a.Env().Bridge().Evaluate(ctx, `(entries) => {
        for (const [key, value] of Object.entries(entries)) {
            window.localStorage.setItem(key, value);
        }
    }`, decodeEntries(a.restored))
	return err
}

func (a *StoreAuth) OnAuthenticationNeeded(context.Context) (Result, error) {
	if len(a.restored) == 0 {
		// nothing was restored, a fresh pairing is expected
		return Result{}, nil
	}
	return Result{
		Failed:         true,
		Restart:        true,
		FailurePayload: "stored session was rejected by the remote application",
	}, nil
}

func (a *StoreAuth) AfterAuthReady(ctx context.Context) error {
	blob, err := a.Env().Bridge().Evaluate(ctx, `() => {
        const entries = {};
        for (let i = 0; i < window.localStorage.length; i++) {
            const key = window.localStorage.key(i);
            entries[key] = window.localStorage.getItem(key);
        }
        return JSON.stringify(entries);
    }`)
	if err != nil {
		return err
	}
	dump, ok := blob.(string)
	if !ok {
		return fmt.Errorf("unexpected storage dump type %T", blob)
	}
	return a.store.Save(ctx, a.Env().ClientID(), []byte(dump))
}

func (a *StoreAuth) Logout(ctx context.Context) error {
	a.restored = nil
	return a.store.Clear(ctx, a.Env().ClientID())
}

// HasRestoredSession reports whether a blob was loaded for this run.
func (a *StoreAuth) HasRestoredSession() bool { return len(a.restored) > 0 }

func decodeEntries(blob []byte) map[string]string {
	entries := map[string]string{}
	// blob is the JSON dump AfterAuthReady captured; a malformed blob
	// degrades to an empty plant, which the unpaired path then handles.
	_ = json.Unmarshal(blob, &entries)
	return entries
}
