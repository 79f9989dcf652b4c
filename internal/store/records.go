// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"time"

	"github.com/driftline/driftline/internal/wire"
)

// Key prefixes. Natural keys embed directly into Badger keys, which makes
// per-key uniqueness structural: there is exactly one slot per key.
const (
	prefixUser    = "user:"
	prefixChannel = "channel:"
	prefixMessage = "message:"
	prefixRead    = "read:"
	prefixMsgIdx  = "msgidx:" // msgidx:<cid>:<message id> -> message id
)

func userKey(id string) []byte {
	return []byte(prefixUser + id)
}

func channelKey(cid wire.ChannelID) []byte {
	return []byte(prefixChannel + cid.String())
}

func messageKey(id string) []byte {
	return []byte(prefixMessage + id)
}

func readKey(cid wire.ChannelID, userID string) []byte {
	return []byte(prefixRead + cid.String() + ":" + userID)
}

func messageIndexKey(cid wire.ChannelID, messageID string) []byte {
	return []byte(prefixMsgIdx + cid.String() + ":" + messageID)
}

func messageIndexPrefix(cid wire.ChannelID) []byte {
	return []byte(prefixMsgIdx + cid.String() + ":")
}

// UserRecord is the persisted form of a user.
type UserRecord struct {
	ID           string         `json:"id"`
	Role         string         `json:"role,omitempty"`
	Name         string         `json:"name,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	IsOnline     bool           `json:"online,omitempty"`
	IsBanned     bool           `json:"banned,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastActiveAt *time.Time     `json:"last_active,omitempty"`
	Extra        wire.ExtraData `json:"extra,omitempty"`
}

// ChannelRecord is the persisted form of a channel. Relationships are held
// as natural keys (CreatedByID, MemberIDs), never pointers.
type ChannelRecord struct {
	CID           string             `json:"cid"`
	Name          string             `json:"name,omitempty"`
	ImageURL      string             `json:"image_url,omitempty"`
	CreatedByID   string             `json:"created_by_id,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	DeletedAt     *time.Time         `json:"deleted_at,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	IsFrozen      bool               `json:"frozen,omitempty"`
	Config        wire.ChannelConfig `json:"config"`
	MemberIDs     []string           `json:"member_ids,omitempty"`
	MemberRoles   map[string]string  `json:"member_roles,omitempty"`

	// Client-side state, not part of any wire payload. IsHidden is set by
	// channel.hidden events; TruncatedAt is the earliest-visible-message
	// pointer, advanced when history is cleared. Neither is overwritten by
	// a payload upsert.
	IsHidden    bool       `json:"hidden,omitempty"`
	TruncatedAt *time.Time `json:"truncated_at,omitempty"`

	Extra wire.ExtraData `json:"extra,omitempty"`
}

// MessageRecord is the persisted form of a message.
type MessageRecord struct {
	ID                 string                    `json:"id"`
	CID                string                    `json:"cid"`
	UserID             string                    `json:"user_id"`
	Type               wire.MessageType          `json:"type"`
	Text               string                    `json:"text"`
	Command            string                    `json:"command,omitempty"`
	Args               string                    `json:"args,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	DeletedAt          *time.Time                `json:"deleted_at,omitempty"`
	ParentID           string                    `json:"parent_id,omitempty"`
	ShowReplyInChannel bool                      `json:"show_in_channel,omitempty"`
	ReplyCount         int                       `json:"reply_count"`
	MentionedUserIDs   []string                  `json:"mentioned_user_ids,omitempty"`
	ReactionScores     map[wire.ReactionType]int `json:"reaction_scores,omitempty"`
	Attachments        []wire.AttachmentPayload  `json:"attachments,omitempty"`
	IsSilent           bool                      `json:"silent,omitempty"`
	Extra              wire.ExtraData            `json:"extra,omitempty"`
}

// ReadRecord is the persisted form of one (channel, user) read cursor.
// Exactly one exists per pair: the pair is the Badger key.
type ReadRecord struct {
	CID                string    `json:"cid"`
	UserID             string    `json:"user_id"`
	LastReadAt         time.Time `json:"last_read"`
	UnreadMessageCount int       `json:"unread_messages"`
}
