// Package authn drives the page from "unauthenticated" through QR or
// pairing-code linking and multi-device sync to ready, using only observed
// state transitions of in-page objects. No handshake is performed host-side;
// every credential is read out of values the page already computed.
package authn

// ConnectionState mirrors the remote application's own reported state.
// Transitions are driven exclusively by observed remote mutations; the one
// host-synthesized value is StateLoggedOut on the terminal destroy path.
type ConnectionState string

const (
	StateOpening      ConnectionState = "OPENING"
	StateUnlaunched   ConnectionState = "UNLAUNCHED"
	StatePairing      ConnectionState = "PAIRING"
	StateUnpaired     ConnectionState = "UNPAIRED"
	StateUnpairedIdle ConnectionState = "UNPAIRED_IDLE"
	StateConnected    ConnectionState = "CONNECTED"
	StateTimeout      ConnectionState = "TIMEOUT"
	StateConflict     ConnectionState = "CONFLICT"
	StateDeprecated   ConnectionState = "DEPRECATED_VERSION"
	StateProxyBlock   ConnectionState = "PROXYBLOCK"
	StateTOSBlock     ConnectionState = "TOS_BLOCK"
	StateSMBTOSBlock  ConnectionState = "SMB_TOS_BLOCK"

	// StateLoggedOut is host-only, synthesized when a logout is observed.
	StateLoggedOut ConnectionState = "LOGGED_OUT"
)

// Phase is the host-side authentication state machine position.
type Phase string

const (
	PhaseInit         Phase = "INIT"
	PhaseUnpairedWait Phase = "UNPAIRED_WAIT"
	PhaseQRFlow       Phase = "QR_FLOW"
	PhasePairingFlow  Phase = "PAIRING_FLOW"
	PhaseSyncing      Phase = "SYNCING"
	PhaseReady        Phase = "READY"
	PhaseConflict     Phase = "CONFLICT"
	// PhaseConflictTakeover is CONFLICT with a takeover scheduled and not
	// yet fired. A logout observed here cancels the takeover.
	PhaseConflictTakeover Phase = "CONFLICT_TAKEOVER"
	PhaseLoggedOut        Phase = "LOGGED_OUT"
	PhaseAuthFailed       Phase = "AUTH_FAILED"
)

// DisconnectReasonMaxQR is the fixed reason string for giving up after too
// many QR rotations.
const DisconnectReasonMaxQR = "Max qrcode retries reached"

// DisconnectReasonLogout is the reason synthesized for post-logout
// navigations.
const DisconnectReasonLogout = "LOGOUT"

// acceptedStates are remote states the client tolerates without
// disconnecting. CONFLICT joins the set only under the takeover policy.
func acceptedStates(takeover bool) map[ConnectionState]bool {
	states := map[ConnectionState]bool{
		StateConnected: true,
		StateOpening:   true,
		StatePairing:   true,
		StateTimeout:   true,
	}
	if takeover {
		states[StateConflict] = true
	}
	return states
}
