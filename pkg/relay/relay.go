// Package relay forwards page-side domain events to the host emitter. Each
// exposed handler normalizes one raw payload family into the typed records
// of pkg/model; the page-side bindings subscribe those handlers to the
// store's observable collections.
package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/mgiordano/wabridge/pkg/authn"
	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/events"
	"github.com/mgiordano/wabridge/pkg/logging"
	"github.com/mgiordano/wabridge/pkg/metrics"
	"github.com/mgiordano/wabridge/pkg/model"
)

// Relay owns the outward event pipeline for one client. Attach is run once
// per injection cycle; exposures are idempotent so reinjection on the same
// page is harmless.
type Relay struct {
	bridge  *bridge.Bridge
	emitter *events.Emitter
	log     *logging.Logger

	// onState receives every post-auth connection state change, after the
	// change_state event went out. The machine applies policy there.
	onState func(authn.ConnectionState)

	mu sync.Mutex
	// lastMessage remembers the most recent non-revoked change payload so a
	// revocation can be paired with the message's pre-revoke content.
	lastMessage *model.Message
}

func New(b *bridge.Bridge, em *events.Emitter, log *logging.Logger, onState func(authn.ConnectionState)) *Relay {
	return &Relay{bridge: b, emitter: em, log: log, onState: onState}
}

func (r *Relay) emit(name string, args ...any) {
	metrics.RelayedEvents.WithLabelValues(name).Inc()
	r.emitter.Emit(name, args...)
}

// Attach exposes every handler and binds them to the page's collections.
func (r *Relay) Attach(ctx context.Context) error {
	handlers := map[string]func(args []any){
		"onAddMessageEvent":           r.onAddMessage,
		"onChangeMessageEvent":        r.onChangeMessage,
		"onChangeMessageTypeEvent":    r.onChangeMessageType,
		"onRemoveMessageEvent":        r.onRemoveMessage,
		"onMessageAckEvent":           r.onMessageAck,
		"onMessageMediaUploadedEvent": r.onMediaUploaded,
		"onEditMessageEvent":          r.onEditMessage,
		"onAddMessageCiphertextEvent": r.onCiphertext,
		"onAppStateChangedEvent":      r.onAppStateChanged,
		"onBatteryStateChangedEvent":  r.onBatteryChanged,
		"onIncomingCall":              r.onIncomingCall,
		"onReaction":                  r.onReaction,
		"onRemoveChatEvent":           r.onRemoveChat,
		"onArchiveChatEvent":          r.onArchiveChat,
		"onChatUnreadCountEvent":      r.onUnreadCount,
		"onPollVoteEvent":             r.onPollVote,
	}
	for name, fn := range handlers {
		fn := fn
		err := r.bridge.Expose(ctx, name, func(args []any) (any, error) {
			fn(args)
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
	}
	if _, err := r.bridge.EvaluateSource(ctx, "("+domainBindingsSource+")()"); err != nil {
		return fmt.Errorf("bind domain observers: %w", err)
	}
	r.log.Info(logging.CategoryRelay, "attached", "", nil)
	return nil
}

// onAddMessage routes group system payloads to the group events and real
// messages to message_create / message.
func (r *Relay) onAddMessage(args []any) {
	if len(args) == 0 {
		return
	}
	raw := args[0]
	if typeOf(raw) == "gp2" {
		n, err := model.GroupNotificationFrom(raw)
		if err != nil {
			r.drop("group notification", err)
			return
		}
		switch n.Type {
		case model.GroupNotifJoin:
			r.emit(events.GroupJoin, n)
		case model.GroupNotifLeave:
			r.emit(events.GroupLeave, n)
		case model.GroupNotifAdminChanged:
			r.emit(events.GroupAdminChange, n)
		case model.GroupNotifMembershipRequest:
			r.emit(events.GroupMembership, n)
		default:
			r.emit(events.GroupUpdate, n)
		}
		return
	}

	msg, err := model.MessageFrom(raw)
	if err != nil {
		r.drop("message", err)
		return
	}
	r.emit(events.MessageCreate, msg)
	if msg.ID.FromMe {
		return
	}
	r.emit(events.Message, msg)
}

// onChangeMessage records revoke-pairing state and detects identifier
// changes, which surface as contact_changed for both group participants
// (gp2/modify) and direct contacts (notification_template/change_number).
func (r *Relay) onChangeMessage(args []any) {
	if len(args) == 0 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("changed message", err)
		return
	}
	if msg.Type != "revoked" {
		r.mu.Lock()
		r.lastMessage = msg
		r.mu.Unlock()
	}

	isParticipant := msg.Type == "gp2" && msg.Subtype == "modify"
	isContact := msg.Type == "notification_template" && msg.Subtype == "change_number"
	if !isParticipant && !isContact {
		return
	}

	var oldID, newID string
	if isParticipant {
		if len(msg.Recipients) > 0 {
			newID = msg.Recipients[0]
		}
		oldID = msg.Author.Serialized
	} else {
		newID = msg.To.Serialized
		for _, id := range msg.TemplateParams {
			if id != newID {
				oldID = id
				break
			}
		}
	}
	r.emit(events.ContactChanged, msg, oldID, newID, isContact)
}

// onChangeMessageType pairs a revocation with the last observed content of
// the same message, when there was one.
func (r *Relay) onChangeMessageType(args []any) {
	if len(args) == 0 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("retyped message", err)
		return
	}
	if msg.Type != "revoked" {
		return
	}
	var revoked *model.Message
	r.mu.Lock()
	if r.lastMessage != nil && msg.ID.ID == r.lastMessage.ID.ID {
		revoked = r.lastMessage
	}
	r.mu.Unlock()
	r.emit(events.MessageRevokeAll, msg, revoked)
}

func (r *Relay) onRemoveMessage(args []any) {
	if len(args) == 0 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("removed message", err)
		return
	}
	if !msg.IsNew {
		return
	}
	r.emit(events.MessageRevokeMe, msg)
}

func (r *Relay) onMessageAck(args []any) {
	if len(args) < 2 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("acked message", err)
		return
	}
	ack, _ := args[1].(float64)
	r.emit(events.MessageAck, msg, model.Ack(int(ack)))
}

func (r *Relay) onMediaUploaded(args []any) {
	if len(args) == 0 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("uploaded message", err)
		return
	}
	r.emit(events.MediaUploaded, msg)
}

func (r *Relay) onEditMessage(args []any) {
	if len(args) < 3 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("edited message", err)
		return
	}
	if msg.Type == "revoked" {
		return
	}
	newBody, _ := args[1].(string)
	prevBody, _ := args[2].(string)
	r.emit(events.MessageEdit, msg, newBody, prevBody)
}

// onCiphertext surfaces a still-encrypted message; the page defers the real
// message event until the type flips.
func (r *Relay) onCiphertext(args []any) {
	if len(args) == 0 {
		return
	}
	msg, err := model.MessageFrom(args[0])
	if err != nil {
		r.drop("ciphertext message", err)
		return
	}
	r.emit(events.MessageCipher, msg)
}

func (r *Relay) onAppStateChanged(args []any) {
	if len(args) == 0 {
		return
	}
	state, _ := args[0].(string)
	r.emit(events.StateChanged, state)
	if r.onState != nil {
		r.onState(authn.ConnectionState(state))
	}
}

func (r *Relay) onBatteryChanged(args []any) {
	if len(args) == 0 {
		return
	}
	raw, ok := args[0].(map[string]any)
	if !ok {
		return
	}
	battery, ok := raw["battery"].(float64)
	if !ok {
		// multi-device sessions stop reporting battery
		return
	}
	plugged, _ := raw["plugged"].(bool)
	r.emit(events.BatteryChanged, model.BatteryInfo{Battery: int(battery), Plugged: plugged})
}

func (r *Relay) onIncomingCall(args []any) {
	if len(args) == 0 {
		return
	}
	call, err := model.CallFrom(args[0])
	if err != nil {
		r.drop("call", err)
		return
	}
	r.emit(events.Call, call)
}

// onReaction receives the batched upserts captured by the page-side table
// wrapper and fans them out one reaction at a time.
func (r *Relay) onReaction(args []any) {
	if len(args) == 0 {
		return
	}
	batch, ok := args[0].([]any)
	if !ok {
		return
	}
	for _, entry := range batch {
		reaction, err := model.ReactionFrom(entry)
		if err != nil {
			r.drop("reaction", err)
			continue
		}
		r.emit(events.MessageReaction, reaction)
	}
}

func (r *Relay) onRemoveChat(args []any) {
	if len(args) == 0 {
		return
	}
	chat, err := model.ChatFrom(args[0])
	if err != nil {
		r.drop("removed chat", err)
		return
	}
	r.emit(events.ChatRemoved, chat)
}

func (r *Relay) onArchiveChat(args []any) {
	if len(args) < 3 {
		return
	}
	chat, err := model.ChatFrom(args[0])
	if err != nil {
		r.drop("archived chat", err)
		return
	}
	curr, _ := args[1].(bool)
	prev, _ := args[2].(bool)
	r.emit(events.ChatArchived, chat, curr, prev)
}

func (r *Relay) onUnreadCount(args []any) {
	if len(args) == 0 {
		return
	}
	chat, err := model.ChatFrom(args[0])
	if err != nil {
		r.drop("unread chat", err)
		return
	}
	r.emit(events.UnreadCount, chat)
}

func (r *Relay) onPollVote(args []any) {
	if len(args) == 0 {
		return
	}
	vote, err := model.PollVoteFrom(args[0])
	if err != nil {
		r.drop("poll vote", err)
		return
	}
	r.emit(events.VoteUpdate, vote)
}

func (r *Relay) drop(what string, err error) {
	r.log.Warn(logging.CategoryRelay, "payload_dropped", err.Error(), map[string]any{"payload": what})
}

func typeOf(raw any) string {
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	t, _ := m["type"].(string)
	return t
}
