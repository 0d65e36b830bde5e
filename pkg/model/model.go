// Package model holds the typed records the relay builds out of raw page
// payloads. Chat and contact variants are closed unions constructed by a
// single factory keyed on a discriminant field of the raw data.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ContactID is the serialized form of a user/chat identifier
// (e.g. "12025550108@c.us", "xxx@g.us", "xxx@newsletter").
type ContactID struct {
	Server     string `json:"server"`
	User       string `json:"user"`
	Serialized string `json:"_serialized"`
}

func (id ContactID) String() string {
	return id.Serialized
}

// UnmarshalJSON accepts both shapes the page produces: the full object and
// the bare serialized string.
func (id *ContactID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		id.Serialized = s
		if at := strings.LastIndexByte(s, '@'); at >= 0 {
			id.User, id.Server = s[:at], s[at+1:]
		}
		return nil
	}
	type plain ContactID
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*id = ContactID(p)
	return nil
}

// ChatKind discriminates the chat union.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

// ChatInfo carries the fields shared by every chat variant.
type ChatInfo struct {
	ID             ContactID `json:"id"`
	Name           string    `json:"name"`
	IsGroup        bool      `json:"isGroup"`
	IsChannel      bool      `json:"isChannel"`
	IsReadOnly     bool      `json:"isReadOnly"`
	UnreadCount    int       `json:"unreadCount"`
	Timestamp      int64     `json:"timestamp"`
	Archived       bool      `json:"archive"`
	Pinned         bool      `json:"pinned"`
	IsMuted        bool      `json:"isMuted"`
	MuteExpiration int64     `json:"muteExpiration"`
}

// Chat is the closed chat union: PrivateChat, GroupChat or Channel.
type Chat interface {
	Info() *ChatInfo
	Kind() ChatKind
}

// PrivateChat is a one-to-one conversation.
type PrivateChat struct {
	ChatInfo
}

func (c *PrivateChat) Info() *ChatInfo { return &c.ChatInfo }
func (c *PrivateChat) Kind() ChatKind  { return ChatPrivate }

// GroupParticipant is one member of a group chat.
type GroupParticipant struct {
	ID           ContactID `json:"id"`
	IsAdmin      bool      `json:"isAdmin"`
	IsSuperAdmin bool      `json:"isSuperAdmin"`
}

// GroupChat is a multi-participant conversation.
type GroupChat struct {
	ChatInfo
	Owner        ContactID          `json:"owner"`
	CreatedAt    int64              `json:"creation"`
	Description  string             `json:"desc"`
	Participants []GroupParticipant `json:"participants"`
}

func (c *GroupChat) Info() *ChatInfo { return &c.ChatInfo }
func (c *GroupChat) Kind() ChatKind  { return ChatGroup }

// Channel is a broadcast newsletter the account follows or owns.
type Channel struct {
	ChatInfo
	Description     string `json:"description"`
	SubscriberCount int    `json:"subscribersCount"`
	IsVerified      bool   `json:"verified"`
	Role            string `json:"membershipType"`
}

func (c *Channel) Info() *ChatInfo { return &c.ChatInfo }
func (c *Channel) Kind() ChatKind  { return ChatChannel }

// ChatFrom builds the right chat variant from a raw page payload, keyed on
// the isGroup/isChannel discriminants.
func ChatFrom(raw any) (Chat, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode chat payload: %w", err)
	}
	var disc struct {
		IsGroup   bool `json:"isGroup"`
		IsChannel bool `json:"isChannel"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("decode chat discriminant: %w", err)
	}
	var chat Chat
	switch {
	case disc.IsChannel:
		chat = &Channel{}
	case disc.IsGroup:
		chat = &GroupChat{}
	default:
		chat = &PrivateChat{}
	}
	if err := json.Unmarshal(data, chat); err != nil {
		return nil, fmt.Errorf("decode %s chat: %w", chat.Kind(), err)
	}
	return chat, nil
}

// ContactKind discriminates the contact union.
type ContactKind string

const (
	ContactPrivate  ContactKind = "private"
	ContactBusiness ContactKind = "business"
)

// ContactInfo carries fields shared by both contact variants.
type ContactInfo struct {
	ID           ContactID `json:"id"`
	Number       string    `json:"number"`
	Name         string    `json:"name"`
	Pushname     string    `json:"pushname"`
	ShortName    string    `json:"shortName"`
	IsBusiness   bool      `json:"isBusiness"`
	IsEnterprise bool      `json:"isEnterprise"`
	IsMe         bool      `json:"isMe"`
	IsUser       bool      `json:"isUser"`
	IsGroup      bool      `json:"isGroup"`
	IsMyContact  bool      `json:"isMyContact"`
	IsBlocked    bool      `json:"isBlocked"`
}

// Contact is the closed contact union.
type Contact interface {
	Info() *ContactInfo
	Kind() ContactKind
}

// PrivateContact is a regular account.
type PrivateContact struct {
	ContactInfo
}

func (c *PrivateContact) Info() *ContactInfo { return &c.ContactInfo }
func (c *PrivateContact) Kind() ContactKind  { return ContactPrivate }

// BusinessContact is an account with a business profile attached.
type BusinessContact struct {
	ContactInfo
	BusinessProfile map[string]any `json:"businessProfile"`
}

func (c *BusinessContact) Info() *ContactInfo { return &c.ContactInfo }
func (c *BusinessContact) Kind() ContactKind  { return ContactBusiness }

// ContactFrom builds the right contact variant, keyed on isBusiness.
func ContactFrom(raw any) (Contact, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode contact payload: %w", err)
	}
	var disc struct {
		IsBusiness bool `json:"isBusiness"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return nil, fmt.Errorf("decode contact discriminant: %w", err)
	}
	var contact Contact
	if disc.IsBusiness {
		contact = &BusinessContact{}
	} else {
		contact = &PrivateContact{}
	}
	if err := json.Unmarshal(data, contact); err != nil {
		return nil, fmt.Errorf("decode %s contact: %w", contact.Kind(), err)
	}
	return contact, nil
}
