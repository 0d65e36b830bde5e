// Package events is the in-process event surface of the client: the outward
// event names the bridge emits, and a small synchronous emitter that
// preserves emission order. Handlers run on the emitting goroutine, so they
// must not block; anything long-running belongs on the subscriber's side of
// a channel.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Outward event names. One per inbound exposed function, after
// normalization; names are part of the public contract.
const (
	QR               = "qr"
	Authenticated    = "authenticated"
	AuthFailure      = "auth_failure"
	Ready            = "ready"
	Disconnected     = "disconnected"
	StateChanged     = "change_state"
	LoadingScreen    = "loading_screen"
	Message          = "message"
	MessageCreate    = "message_create"
	MessageAck       = "message_ack"
	MessageEdit      = "message_edit"
	MessageRevokeMe  = "message_revoke_me"
	MessageRevokeAll = "message_revoke_everyone"
	MessageCipher    = "message_ciphertext"
	MediaUploaded    = "media_uploaded"
	UnreadCount      = "unread_count"
	ChatRemoved      = "chat_removed"
	ChatArchived     = "chat_archived"
	GroupJoin        = "group_join"
	GroupLeave       = "group_leave"
	GroupAdminChange = "group_admin_changed"
	GroupUpdate      = "group_update"
	GroupMembership  = "group_membership_request"
	ContactChanged   = "contact_changed"
	MessageReaction  = "message_reaction"
	VoteUpdate       = "vote_update"
	Call             = "call"
	BatteryChanged   = "change_battery"
	RemoteSaved      = "remote_session_saved"
)

// ErrClosed is returned when operating on a closed emitter.
var ErrClosed = errors.New("emitter closed")

// Event is one emitted occurrence. Args carries the normalized payloads in
// the order the underlying page event supplied them.
type Event struct {
	ID   string
	Name string
	Time time.Time
	Args []any
}

// Handler receives events synchronously, in emission order.
type Handler func(ev Event)

// Subscription is a cancellable registration.
type Subscription struct {
	emitter *Emitter
	name    string
	id      uint64
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.emitter == nil {
		return
	}
	s.emitter.remove(s.name, s.id)
}

// Emitter dispatches events to subscribers. "*" subscribes to everything.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   uint64
	closed   bool
}

type registration struct {
	id uint64
	fn Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]registration)}
}

// On registers a handler for an event name or the "*" wildcard.
func (e *Emitter) On(name string, fn Handler) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return &Subscription{}
	}
	e.nextID++
	reg := registration{id: e.nextID, fn: fn}
	e.handlers[name] = append(e.handlers[name], reg)
	return &Subscription{emitter: e, name: name, id: reg.id}
}

// Once registers a handler that fires for the first matching event only.
func (e *Emitter) Once(name string, fn Handler) *Subscription {
	var once sync.Once
	var sub *Subscription
	sub = e.On(name, func(ev Event) {
		once.Do(func() {
			sub.Unsubscribe()
			fn(ev)
		})
	})
	return sub
}

// Emit delivers the event synchronously to exact-name subscribers first,
// then wildcard subscribers, preserving registration order within each.
func (e *Emitter) Emit(name string, args ...any) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	regs := make([]registration, 0, len(e.handlers[name])+len(e.handlers["*"]))
	regs = append(regs, e.handlers[name]...)
	regs = append(regs, e.handlers["*"]...)
	e.mu.RUnlock()

	ev := Event{
		ID:   ulid.Make().String(),
		Name: name,
		Time: time.Now(),
		Args: args,
	}
	for _, reg := range regs {
		reg.fn(ev)
	}
}

func (e *Emitter) remove(name string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.handlers[name]
	for i, reg := range regs {
		if reg.id == id {
			e.handlers[name] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Close drops all handlers; subsequent Emit calls are no-ops.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[string][]registration)
}
