package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContactIDUnmarshalObject(t *testing.T) {
	var id ContactID
	require.NoError(t, json.Unmarshal([]byte(`{"server":"c.us","user":"12025550108","_serialized":"12025550108@c.us"}`), &id))
	require.Equal(t, "c.us", id.Server)
	require.Equal(t, "12025550108", id.User)
	require.Equal(t, "12025550108@c.us", id.Serialized)
}

func TestContactIDUnmarshalString(t *testing.T) {
	var id ContactID
	require.NoError(t, json.Unmarshal([]byte(`"12025550108@c.us"`), &id))
	require.Equal(t, "12025550108@c.us", id.Serialized)
	require.Equal(t, "12025550108", id.User)
	require.Equal(t, "c.us", id.Server)
}

func TestChatFromPrivate(t *testing.T) {
	chat, err := ChatFrom(map[string]any{
		"id":          map[string]any{"_serialized": "12025550108@c.us"},
		"name":        "Sam",
		"unreadCount": 3,
	})
	require.NoError(t, err)
	require.Equal(t, ChatPrivate, chat.Kind())
	require.Equal(t, "Sam", chat.Info().Name)
	require.Equal(t, 3, chat.Info().UnreadCount)
}

func TestChatFromGroup(t *testing.T) {
	chat, err := ChatFrom(map[string]any{
		"id":      map[string]any{"_serialized": "123@g.us"},
		"isGroup": true,
		"participants": []any{
			map[string]any{"id": map[string]any{"_serialized": "1@c.us"}, "isAdmin": true},
			map[string]any{"id": map[string]any{"_serialized": "2@c.us"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, ChatGroup, chat.Kind())

	group, ok := chat.(*GroupChat)
	require.True(t, ok)
	require.Len(t, group.Participants, 2)
	require.True(t, group.Participants[0].IsAdmin)
}

func TestChatFromChannel(t *testing.T) {
	chat, err := ChatFrom(map[string]any{
		"id":               map[string]any{"_serialized": "123@newsletter"},
		"isChannel":        true,
		"subscribersCount": 41,
	})
	require.NoError(t, err)
	require.Equal(t, ChatChannel, chat.Kind())
	require.Equal(t, 41, chat.(*Channel).SubscriberCount)
}

func TestChannelWinsOverGroup(t *testing.T) {
	chat, err := ChatFrom(map[string]any{"isGroup": true, "isChannel": true})
	require.NoError(t, err)
	require.Equal(t, ChatChannel, chat.Kind())
}

func TestContactFrom(t *testing.T) {
	contact, err := ContactFrom(map[string]any{
		"id":       map[string]any{"_serialized": "1@c.us"},
		"pushname": "Sam",
	})
	require.NoError(t, err)
	require.Equal(t, ContactPrivate, contact.Kind())

	business, err := ContactFrom(map[string]any{
		"id":              map[string]any{"_serialized": "2@c.us"},
		"isBusiness":      true,
		"businessProfile": map[string]any{"website": "example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, ContactBusiness, business.Kind())
	require.Equal(t, "example.com", business.(*BusinessContact).BusinessProfile["website"])
}
