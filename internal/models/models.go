// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package models defines the immutable snapshot types handed to consumers.
//
// A snapshot is a detached value projection of an entity's persisted state
// at a point in time. Snapshots hold no reference back to the entity store:
// slices and maps are deep-copied at projection time, so a snapshot never
// changes after it is returned, even while the store keeps mutating. They
// are safe to pass across goroutine boundaries freely.
package models

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/driftline/driftline/internal/wire"
)

// User is the snapshot of one chat user.
type User struct {
	ID           string         `json:"id"`
	Role         string         `json:"role,omitempty"`
	Name         string         `json:"name,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	IsOnline     bool           `json:"online"`
	IsBanned     bool           `json:"banned"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastActiveAt *time.Time     `json:"last_active,omitempty"`
	Extra        wire.ExtraData `json:"extra,omitempty"`
}

// Member is one channel membership within a channel snapshot.
type Member struct {
	User User   `json:"user"`
	Role string `json:"role,omitempty"`
}

// Channel is the snapshot of one channel.
type Channel struct {
	CID           wire.ChannelID `json:"cid"`
	Name          string         `json:"name,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	CreatedBy     *User          `json:"created_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	IsHidden      bool           `json:"hidden"`
	IsFrozen      bool           `json:"frozen"`
	// TruncatedAt is the earliest-visible-message pointer: messages created
	// before it are excluded from listings.
	TruncatedAt *time.Time         `json:"truncated_at,omitempty"`
	Config      wire.ChannelConfig `json:"config"`
	Members     []Member           `json:"members,omitempty"`
	Reads       []ChannelRead      `json:"reads,omitempty"`
	Extra       wire.ExtraData     `json:"extra,omitempty"`
}

// Message is the snapshot of one message.
type Message struct {
	ID                 string                    `json:"id"`
	CID                wire.ChannelID            `json:"cid"`
	Type               wire.MessageType          `json:"type"`
	Author             User                      `json:"user"`
	Text               string                    `json:"text"`
	Command            string                    `json:"command,omitempty"`
	Args               string                    `json:"args,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
	DeletedAt          *time.Time                `json:"deleted_at,omitempty"`
	ParentID           string                    `json:"parent_id,omitempty"`
	ShowReplyInChannel bool                      `json:"show_in_channel"`
	ReplyCount         int                       `json:"reply_count"`
	MentionedUsers     []User                    `json:"mentioned_users,omitempty"`
	ReactionScores     map[wire.ReactionType]int `json:"reaction_scores,omitempty"`
	Attachments        []wire.AttachmentPayload  `json:"attachments,omitempty"`
	IsSilent           bool                      `json:"silent"`
	Extra              wire.ExtraData            `json:"extra,omitempty"`
}

// IsDeleted reports whether the message was soft-deleted.
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// ChannelRead is the snapshot of one (channel, user) read cursor.
type ChannelRead struct {
	CID                 wire.ChannelID `json:"cid"`
	User                User           `json:"user"`
	LastReadAt          time.Time      `json:"last_read"`
	UnreadMessagesCount int            `json:"unread_messages"`
}

// CopyExtra deep-copies an extra-data map so a snapshot cannot alias the
// store's buffers.
func CopyExtra(extra wire.ExtraData) wire.ExtraData {
	if len(extra) == 0 {
		return nil
	}
	out := make(wire.ExtraData, len(extra))
	for key, raw := range extra {
		buf := make(json.RawMessage, len(raw))
		copy(buf, raw)
		out[key] = buf
	}
	return out
}
