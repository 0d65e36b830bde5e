package authn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/events"
	"github.com/mgiordano/wabridge/pkg/logging"
	"github.com/mgiordano/wabridge/pkg/metrics"
)

// waitUnpairedSource parks inside the page until the socket leaves its
// transient boot states, then reports where it landed. One-shot: the
// listener removes itself.
const waitUnpairedSource = `async () => {
    let state = window.AuthStore.AppState.state;
    if (state === 'OPENING' || state === 'UNLAUNCHED' || state === 'PAIRING') {
        await new Promise((resolve) => {
            window.AuthStore.AppState.on('change:state', function waitTillInit(_AppState, state) {
                if (state !== 'OPENING' && state !== 'UNLAUNCHED' && state !== 'PAIRING') {
                    window.AuthStore.AppState.off('change:state', waitTillInit);
                    resolve();
                }
            });
        });
    }
    return window.AuthStore.AppState.state;
}`

// qrBundleSource derives the linking payload from the page's own key
// material and pushes the initial value plus every future ref rotation
// through the exposed handler.
const qrBundleSource = `async () => {
    const { AuthStore } = window;
    const registrationInfo = await AuthStore.RegistrationUtils.waSignalStore.getRegistrationInfo();
    const noiseKeyPair = await AuthStore.RegistrationUtils.waNoiseInfo.get();
    const staticKeyB64 = AuthStore.Base64Tools.encodeB64(noiseKeyPair.staticKeyPair.pubKey);
    const identityKeyB64 = AuthStore.Base64Tools.encodeB64(registrationInfo.identityKeyPair.pubKey);
    const advSecretKey = await AuthStore.RegistrationUtils.getADVSecretKey();
    const platform = AuthStore.RegistrationUtils.DEVICE_PLATFORM;
    const getQR = (ref) => ref + ',' + staticKeyB64 + ',' + identityKeyB64 + ',' + advSecretKey + ',' + platform;

    window.onQRChangedEvent(getQR(AuthStore.Conn.ref));
    window.AuthStore.Conn.on('change:ref', (_, ref) => { window.onQRChangedEvent(getQR(ref)); });
}`

// authBindingsSource subscribes the exposed handlers to the page-side
// authentication signals.
const authBindingsSource = `() => {
    window.AuthStore.AppState.on('change:state', (_AppState, state) => { window.onAuthAppStateChangedEvent(state); });
    window.AuthStore.AppState.on('change:hasSynced', () => { window.onAppStateHasSyncedEvent(); });
    window.AuthStore.Cmd.on('offline_progress_update', () => {
        window.onOfflineProgressUpdateEvent(window.AuthStore.OfflineMessageHandler.getOfflineDeliveryProgress());
    });
    window.AuthStore.Cmd.on('logout', async () => {
        await window.onLogoutEvent();
    });
}`

const refreshQRSource = `() => window.AuthStore.Cmd.refreshQR()`

const takeoverSource = `() => window.Store.AppState.takeover()`

// pairingCodeSource switches the page into alternate device linking and
// starts the phone-number flow, resolving to the 8-character code.
const pairingCodeSource = `async (phoneNumber, showNotification) => {
    window.AuthStore.PairingCodeLinkUtils.setPairingType('ALT_DEVICE_LINKING');
    await window.AuthStore.PairingCodeLinkUtils.initializeAltDeviceLinking();
    return window.AuthStore.PairingCodeLinkUtils.startAltLinkingFlow(phoneNumber, showNotification);
}`

// logoutNavTimeout bounds how long a remote-initiated logout waits for the
// page to navigate before the supervisor takes over anyway.
const logoutNavTimeout = 5 * time.Second

// Hooks are the client-owned continuations the machine fires at phase
// boundaries. All are optional.
type Hooks struct {
	// OnSynced installs the full page contract. Runs between the
	// authenticated and ready events; its failure suppresses ready.
	OnSynced func(ctx context.Context) error
	// Teardown closes the page and browser.
	Teardown func()
	// Restart re-runs initialization from scratch after a failed session
	// restore that asked for a retry.
	Restart func()
	// WaitForNavigation blocks until the page navigates or the timeout
	// elapses, whichever is first.
	WaitForNavigation func(timeout time.Duration)
}

// Machine drives authentication for one client: it observes the page's
// socket state, runs the QR or pairing-code flow, and walks the host phase
// from INIT to READY. One Machine lives as long as its client; Install runs
// once per injection cycle.
type Machine struct {
	bridge   *bridge.Bridge
	emitter  *events.Emitter
	strategy Strategy
	log      *logging.Logger
	hooks    Hooks

	qrMaxRetries       int
	takeoverOnConflict bool
	takeoverTimeout    time.Duration

	mu            sync.Mutex
	phase         Phase
	lastLoggedOut bool
	takeoverTimer *time.Timer

	// base context for work initiated by page callbacks
	ctx context.Context
}

// Config carries the policy knobs the machine enforces.
type Config struct {
	QRMaxRetries       int
	TakeoverOnConflict bool
	TakeoverTimeout    time.Duration
}

func NewMachine(b *bridge.Bridge, em *events.Emitter, strategy Strategy, log *logging.Logger, cfg Config) *Machine {
	return &Machine{
		bridge:             b,
		emitter:            em,
		strategy:           strategy,
		log:                log,
		qrMaxRetries:       cfg.QRMaxRetries,
		takeoverOnConflict: cfg.TakeoverOnConflict,
		takeoverTimeout:    cfg.TakeoverTimeout,
		phase:              PhaseInit,
		ctx:                context.Background(),
	}
}

// SetHooks must be called before Install.
func (m *Machine) SetHooks(h Hooks) { m.hooks = h }

// Phase reports the current host-side position.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
	m.log.Debug(logging.CategoryAuth, "phase", string(p), nil)
}

// TakeLoggedOut reports whether a remote logout was observed since the last
// call, clearing the flag.
func (m *Machine) TakeLoggedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.lastLoggedOut
	m.lastLoggedOut = false
	return v
}

// Install runs the authentication flow for the current page load: waits for
// the socket to settle, hands a failed session restore to the strategy,
// starts the QR flow when unpaired, and binds the sync/progress/logout
// observers. Safe to call again on reinjection; exposures are idempotent.
func (m *Machine) Install(ctx context.Context) error {
	m.ctx = ctx
	m.setPhase(PhaseUnpairedWait)

	stateVal, err := m.bridge.EvaluateSource(ctx, "("+waitUnpairedSource+")()")
	if err != nil {
		return fmt.Errorf("wait for socket state: %w", err)
	}
	state, _ := stateVal.(string)
	m.log.Info(logging.CategoryAuth, "socket_state", state, nil)

	if cs := ConnectionState(state); cs == StateUnpaired || cs == StateUnpairedIdle {
		result, err := m.strategy.OnAuthenticationNeeded(ctx)
		if err != nil {
			return fmt.Errorf("session restore: %w", err)
		}
		if result.Failed {
			m.setPhase(PhaseAuthFailed)
			m.emitter.Emit(events.AuthFailure, result.FailurePayload)
			m.teardown()
			if result.Restart && m.hooks.Restart != nil {
				m.hooks.Restart()
			}
			return nil
		}
		if err := m.startQRFlow(ctx); err != nil {
			return err
		}
	} else {
		m.setPhase(PhaseSyncing)
	}

	if err := m.installAuthObservers(ctx); err != nil {
		return err
	}
	if _, err := m.bridge.EvaluateSource(ctx, "("+authBindingsSource+")()"); err != nil {
		return fmt.Errorf("bind auth observers: %w", err)
	}
	return nil
}

// startQRFlow exposes the rotation handler and evaluates the bundle
// derivation. The retry counter lives in the handler closure: the driver
// re-installs exposed bindings on every new document, so the exposure probe
// keeps the original closure (and its count) across reinjections and
// navigations alike. A fresh count requires a fresh machine.
func (m *Machine) startQRFlow(ctx context.Context) error {
	m.setPhase(PhaseQRFlow)

	qrRetries := 0
	err := m.bridge.Expose(ctx, "onQRChangedEvent", func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		qr, _ := args[0].(string)
		metrics.QRRotations.Inc()
		m.emitter.Emit(events.QR, qr)
		if m.qrMaxRetries > 0 {
			qrRetries++
			if qrRetries > m.qrMaxRetries {
				m.log.Warn(logging.CategoryAuth, "qr_exhausted", "", map[string]any{"retries": qrRetries})
				m.emitter.Emit(events.Disconnected, DisconnectReasonMaxQR)
				m.teardown()
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose qr handler: %w", err)
	}

	if _, err := m.bridge.EvaluateSource(ctx, "("+qrBundleSource+")()"); err != nil {
		return fmt.Errorf("derive qr bundle: %w", err)
	}
	return nil
}

func (m *Machine) installAuthObservers(ctx context.Context) error {
	err := m.bridge.Expose(ctx, "onAuthAppStateChangedEvent", func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		state, _ := args[0].(string)
		if ConnectionState(state) == StateUnpairedIdle {
			// the page stopped rotating on its own; ask for a fresh ref
			if _, err := m.bridge.Evaluate(m.ctx, refreshQRSource); err != nil {
				m.log.Warn(logging.CategoryAuth, "refresh_qr_failed", err.Error(), nil)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose auth state handler: %w", err)
	}

	err = m.bridge.Expose(ctx, "onAppStateHasSyncedEvent", func([]any) (any, error) {
		m.onSynced()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose sync handler: %w", err)
	}

	lastPercent := -1.0
	err = m.bridge.Expose(ctx, "onOfflineProgressUpdateEvent", func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		percent, _ := args[0].(float64)
		if percent != lastPercent {
			lastPercent = percent
			m.emitter.Emit(events.LoadingScreen, percent)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose progress handler: %w", err)
	}

	err = m.bridge.Expose(ctx, "onLogoutEvent", func([]any) (any, error) {
		m.mu.Lock()
		m.lastLoggedOut = true
		m.cancelTakeoverLocked()
		m.phase = PhaseLoggedOut
		m.mu.Unlock()
		m.log.Info(logging.CategoryAuth, "remote_logout", "", nil)
		if m.hooks.WaitForNavigation != nil {
			m.hooks.WaitForNavigation(logoutNavTimeout)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose logout handler: %w", err)
	}
	return nil
}

// onSynced is the authenticated -> ready leg: strategy payload, the
// authenticated event, the full contract install, then ready.
func (m *Machine) onSynced() {
	payload, err := m.strategy.AuthEventPayload(m.ctx)
	if err != nil {
		m.log.Warn(logging.CategoryAuth, "auth_payload_failed", err.Error(), nil)
	}
	m.setPhase(PhaseSyncing)
	m.emitter.Emit(events.Authenticated, payload)

	if m.hooks.OnSynced != nil {
		if err := m.hooks.OnSynced(m.ctx); err != nil {
			m.log.Error(logging.CategoryAuth, "contract_install_failed", err.Error(), nil)
			return
		}
	}

	m.setPhase(PhaseReady)
	m.emitter.Emit(events.Ready)
	if err := m.strategy.AfterAuthReady(m.ctx); err != nil {
		m.log.Warn(logging.CategoryAuth, "after_auth_ready_failed", err.Error(), nil)
	}
}

// HandleAppState applies the connection-state policy to a post-auth state
// change: schedule a takeover on CONFLICT when configured, disconnect on
// anything outside the accepted set.
func (m *Machine) HandleAppState(state ConnectionState) {
	metrics.SetConnectionState(string(state))

	if m.takeoverOnConflict && state == StateConflict {
		m.scheduleTakeover()
	}
	if state == StateConnected {
		m.mu.Lock()
		if m.phase == PhaseConflict || m.phase == PhaseConflictTakeover {
			m.cancelTakeoverLocked()
			m.phase = PhaseReady
		}
		m.mu.Unlock()
	}

	if !acceptedStates(m.takeoverOnConflict)[state] {
		m.log.Warn(logging.CategoryAuth, "state_rejected", string(state), nil)
		if err := m.strategy.Disconnect(m.ctx); err != nil {
			m.log.Warn(logging.CategoryAuth, "strategy_disconnect_failed", err.Error(), nil)
		}
		m.emitter.Emit(events.Disconnected, string(state))
		m.teardown()
	}
}

// scheduleTakeover arms (or re-arms) the takeover timer. A logout observed
// while armed cancels it; a fired timer claims the session for this browser.
func (m *Machine) scheduleTakeover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takeoverTimer != nil {
		m.takeoverTimer.Stop()
	}
	m.phase = PhaseConflictTakeover
	m.takeoverTimer = time.AfterFunc(m.takeoverTimeout, func() {
		m.mu.Lock()
		armed := m.phase == PhaseConflictTakeover
		if armed {
			m.phase = PhaseConflict
		}
		m.mu.Unlock()
		if !armed {
			return
		}
		if _, err := m.bridge.Evaluate(m.ctx, takeoverSource); err != nil {
			m.log.Warn(logging.CategoryAuth, "takeover_failed", err.Error(), nil)
		}
	})
}

func (m *Machine) cancelTakeoverLocked() {
	if m.takeoverTimer != nil {
		m.takeoverTimer.Stop()
		m.takeoverTimer = nil
	}
}

// CancelTakeover drops any pending takeover timer.
func (m *Machine) CancelTakeover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelTakeoverLocked()
}

func (m *Machine) teardown() {
	m.CancelTakeover()
	if m.hooks.Teardown != nil {
		m.hooks.Teardown()
	}
}

// RequestPairingCode starts phone-number linking instead of QR scanning and
// returns the code to type on the phone. phoneNumber is international,
// symbol-free (e.g. 12025550108). Only valid while the page is unpaired.
func (m *Machine) RequestPairingCode(ctx context.Context, phoneNumber string, showNotification bool) (string, error) {
	m.setPhase(PhasePairingFlow)
	v, err := m.bridge.Evaluate(ctx, pairingCodeSource, phoneNumber, showNotification)
	if err != nil {
		return "", fmt.Errorf("start pairing flow: %w", err)
	}
	code, ok := v.(string)
	if !ok || code == "" {
		return "", fmt.Errorf("pairing flow returned %T, want code string", v)
	}
	return code, nil
}
