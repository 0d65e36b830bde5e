package model

import (
	"encoding/json"
	"fmt"
)

// Ack is the delivery acknowledgement level of a message.
type Ack int

const (
	AckError   Ack = -1
	AckPending Ack = 0
	AckServer  Ack = 1
	AckDevice  Ack = 2
	AckRead    Ack = 3
	AckPlayed  Ack = 4
)

// MessageID identifies a message within a chat.
type MessageID struct {
	FromMe     bool   `json:"fromMe"`
	Remote     string `json:"remote"`
	ID         string `json:"id"`
	Serialized string `json:"_serialized"`
}

// Message is a normalized message record from the page's event model.
type Message struct {
	ID             MessageID      `json:"id"`
	Ack            Ack            `json:"ack"`
	HasMedia       bool           `json:"hasMedia"`
	Body           string         `json:"body"`
	Type           string         `json:"type"`
	Subtype        string         `json:"subtype"`
	Timestamp      int64          `json:"t"`
	From           ContactID      `json:"from"`
	To             ContactID      `json:"to"`
	Author         ContactID      `json:"author"`
	DeviceType     string         `json:"deviceType"`
	IsForwarded    bool           `json:"isForwarded"`
	IsStatus       bool           `json:"isStatus"`
	IsStarred      bool           `json:"star"`
	Broadcast      bool           `json:"broadcast"`
	FromMe         bool           `json:"fromMe"`
	IsNew          bool           `json:"isNewMsg"`
	HasQuotedMsg   bool           `json:"hasQuotedMsg"`
	Location       *Location      `json:"location,omitempty"`
	VCards         []string       `json:"vCards,omitempty"`
	MentionedIDs   []ContactID    `json:"mentionedJidList,omitempty"`
	GroupMentions  []any          `json:"groupMentions,omitempty"`
	Recipients     []string       `json:"recipients,omitempty"`
	TemplateParams []string       `json:"templateParams,omitempty"`
	Links          []MessageLink  `json:"links,omitempty"`
	Raw            map[string]any `json:"-"`
}

// MessageLink is a hyperlink the page detected in a message body.
type MessageLink struct {
	Link         string `json:"link"`
	IsSuspicious bool   `json:"isSuspicious"`
}

// Location is an embedded location payload.
type Location struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	Name        string  `json:"name,omitempty"`
	Address     string  `json:"address,omitempty"`
	Description string  `json:"description,omitempty"`
}

// MessageFrom decodes a raw page payload into a Message, retaining the raw
// map for fields the typed record does not lift.
func MessageFrom(raw any) (*Message, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode message payload: %w", err)
	}
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m, ok := raw.(map[string]any); ok {
		msg.Raw = m
	}
	return msg, nil
}

// GroupNotificationType classifies group system notifications.
type GroupNotificationType string

const (
	GroupNotifJoin              GroupNotificationType = "join"
	GroupNotifLeave             GroupNotificationType = "leave"
	GroupNotifAdminChanged      GroupNotificationType = "admin_changed"
	GroupNotifMembershipRequest GroupNotificationType = "membership_request"
	GroupNotifUpdate            GroupNotificationType = "update"
)

// GroupNotification describes a group system event (join, leave, subject
// change, ...) derived from a "gp2" message payload.
type GroupNotification struct {
	ID         MessageID             `json:"id"`
	Type       GroupNotificationType `json:"-"`
	Subtype    string                `json:"subtype"`
	ChatID     string                `json:"chatId"`
	Author     ContactID             `json:"author"`
	Recipients []string              `json:"recipients"`
	Timestamp  int64                 `json:"t"`
	Body       string                `json:"body"`
}

// GroupNotificationFrom decodes a gp2 payload and classifies its subtype.
func GroupNotificationFrom(raw any) (*GroupNotification, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	n := &GroupNotification{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.ChatID == "" {
		n.ChatID = n.ID.Remote
	}
	n.Type = classifyGroupSubtype(n.Subtype)
	return n, nil
}

func classifyGroupSubtype(subtype string) GroupNotificationType {
	switch subtype {
	case "add", "invite", "linked_group_join":
		return GroupNotifJoin
	case "remove", "leave":
		return GroupNotifLeave
	case "promote", "demote":
		return GroupNotifAdminChanged
	case "membership_approval_request":
		return GroupNotifMembershipRequest
	default:
		return GroupNotifUpdate
	}
}

// Reaction is a denormalized reaction record produced by the page-side
// aggregation wrapper.
type Reaction struct {
	ID           MessageID `json:"msgKey"`
	ParentID     MessageID `json:"parentMsgKey"`
	Text         string    `json:"reactionText"`
	Timestamp    float64   `json:"timestamp"`
	SenderID     string    `json:"senderUserJid"`
	Orphan       int       `json:"orphan"`
	OrphanReason string    `json:"orphanReason,omitempty"`
	Read         bool      `json:"read"`
	Ack          *int      `json:"ack,omitempty"`
}

// ReactionFrom decodes one entry of a reaction bulk upsert.
func ReactionFrom(raw any) (*Reaction, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode reaction payload: %w", err)
	}
	r := &Reaction{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode reaction: %w", err)
	}
	return r, nil
}

// PollVote is a voter's current selection on a poll message.
type PollVote struct {
	Voter           string    `json:"sender"`
	SelectedOptions []any     `json:"selectedOptions"`
	InteractedAt    int64     `json:"senderTimestampMs"`
	ParentMessageID MessageID `json:"parentMsgKey"`
}

// PollVoteFrom decodes a poll vote payload.
func PollVoteFrom(raw any) (*PollVote, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode vote payload: %w", err)
	}
	v := &PollVote{}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode vote: %w", err)
	}
	return v, nil
}

// Call is an incoming call notification.
type Call struct {
	ID                    string `json:"id"`
	From                  string `json:"peerJid"`
	Timestamp             int64  `json:"offerTime"`
	IsVideo               bool   `json:"isVideo"`
	IsGroup               bool   `json:"isGroup"`
	CanHandle             bool   `json:"canHandleLocally"`
	WebClientShouldHandle bool   `json:"webClientShouldHandle"`
	Participants          []any  `json:"participants,omitempty"`
}

// CallFrom decodes a call payload.
func CallFrom(raw any) (*Call, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode call payload: %w", err)
	}
	c := &Call{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode call: %w", err)
	}
	return c, nil
}

// BatteryInfo is the legacy battery state of the paired device.
type BatteryInfo struct {
	Battery int  `json:"battery"`
	Plugged bool `json:"plugged"`
}

// Label is an organizer tag the account attaches to chats and messages.
type Label struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HexColor string `json:"hexColor"`
}

// ClientInfo is the authenticated session's public identity, read from the
// page once sync completes.
type ClientInfo struct {
	Pushname string    `json:"pushname"`
	WID      ContactID `json:"wid"`
	Me       ContactID `json:"me"`
	Platform string    `json:"platform"`
}
