// Package inject probes the remote application version, selects the adapter
// tier, and installs the normalized page-side contract in two phases.
package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/logging"
	"github.com/mgiordano/wabridge/pkg/page"
)

// versionExpr is the page expression holding the self-reported version.
const versionExpr = "window.Debug?.VERSION"

// legacySettleDelay gives legacy builds time to finish asynchronous module
// registration before the Phase 2 scan runs.
const legacySettleDelay = 2 * time.Second

// Loader owns version probing and payload injection for one page load.
type Loader struct {
	bridge *bridge.Bridge
	log    *logging.Logger

	// SettleDelay overrides the legacy Phase 2 settle wait; tests shrink it.
	SettleDelay time.Duration
}

func NewLoader(b *bridge.Bridge, log *logging.Logger) *Loader {
	return &Loader{bridge: b, log: log, SettleDelay: legacySettleDelay}
}

// ProbeVersion waits (bounded) for the remote version identifier and
// returns it. Its absence is a fatal initialization error, not retried.
func (l *Loader) ProbeVersion(ctx context.Context, timeout time.Duration) (string, error) {
	v, err := l.bridge.WaitForFunction(ctx, versionExpr, timeout)
	if err != nil {
		return "", fmt.Errorf("remote version never appeared: %w", err)
	}
	version, ok := v.(string)
	if !ok || version == "" {
		return "", fmt.Errorf("%w: version expression resolved to %T", page.ErrFunctionMissing, v)
	}
	l.log.Info(logging.CategoryInject, "version_probed", version, nil)
	return version, nil
}

// InjectAuthLayer runs Phase 1: just enough page-side surface to observe
// the authentication flow.
func (l *Loader) InjectAuthLayer(ctx context.Context, tier Tier) error {
	var err error
	switch tier {
	case TierModern:
		_, err = l.bridge.Evaluate(ctx, ExposeAuthStore)
	case TierLegacy:
		if _, err = l.bridge.Evaluate(ctx, HideModuleScan); err != nil {
			return fmt.Errorf("inject error-stack patch: %w", err)
		}
		_, err = l.bridge.Evaluate(ctx, ExposeLegacyAuthStore, ModuleScanSource)
	default:
		return fmt.Errorf("unknown adapter tier %q", tier)
	}
	if err != nil {
		return fmt.Errorf("inject %s auth layer: %w", tier, err)
	}
	l.log.Info(logging.CategoryInject, "auth_layer_injected", "", map[string]any{"tier": string(tier)})
	return nil
}

// ContractPresent reports whether the Phase 2 surface is already installed,
// which it is after a reinjection that did not navigate.
func (l *Loader) ContractPresent(ctx context.Context) (bool, error) {
	v, err := l.bridge.Evaluate(ctx, "() => typeof window.Store !== 'undefined' && typeof window.WWebJS !== 'undefined'")
	if err != nil {
		return false, err
	}
	return v == true, nil
}

// InjectStoreLayer runs Phase 2: the full domain surface plus the helper
// serializers. Only called after authentication succeeded.
func (l *Loader) InjectStoreLayer(ctx context.Context, tier Tier) error {
	switch tier {
	case TierModern:
		if _, err := l.bridge.Evaluate(ctx, ExposeStore); err != nil {
			return fmt.Errorf("inject store: %w", err)
		}
	case TierLegacy:
		// let asynchronous module registration finish before scanning
		select {
		case <-time.After(l.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := l.bridge.Evaluate(ctx, ExposeLegacyStore); err != nil {
			return fmt.Errorf("inject legacy store: %w", err)
		}
	default:
		return fmt.Errorf("unknown adapter tier %q", tier)
	}

	if _, err := l.bridge.WaitForFunction(ctx, "window.Store != undefined", 10*time.Second); err != nil {
		return fmt.Errorf("store surface absent after injection: %w (%v)", bridge.ErrContractMissing, err)
	}
	if _, err := l.bridge.Evaluate(ctx, LoadUtils); err != nil {
		return fmt.Errorf("inject util helpers: %w", err)
	}
	l.log.Info(logging.CategoryInject, "store_layer_injected", "", map[string]any{"tier": string(tier)})
	return nil
}
