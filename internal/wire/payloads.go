// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package wire

import (
	"time"

	"github.com/goccy/go-json"
)

// ExtraData holds deployment-specific custom attributes captured by the
// extension decode pass, keyed by their top-level wire key.
type ExtraData map[string]json.RawMessage

// UserPayload is one remote user as received in an API response or event.
type UserPayload struct {
	ID           string
	Role         string
	Name         string
	ImageURL     string
	IsOnline     bool
	IsBanned     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActiveAt *time.Time
	Extra        ExtraData
}

// ReactionPayload is one reaction attached to a message.
type ReactionPayload struct {
	Type      ReactionType
	Score     int
	User      *UserPayload
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttachmentPayload is one attachment on a message. Attachment shapes vary
// wildly by type; everything beyond the common envelope stays in Extra.
type AttachmentPayload struct {
	Type        string    `json:"type,omitempty"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	AssetURL    string    `json:"asset_url,omitempty"`
	ThumbURL    string    `json:"thumb_url,omitempty"`
	OGScrapeURL string    `json:"og_scrape_url,omitempty"`
	Extra       ExtraData `json:"-"`
}

// Command is a channel command available in a channel's config, e.g. /giphy.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Set         string `json:"set"`
	Args        string `json:"args"`
}

// ChannelConfig is the server-provided configuration blob for a channel type.
type ChannelConfig struct {
	TypingEvents     bool      `json:"typing_events"`
	ReadEvents       bool      `json:"read_events"`
	ConnectEvents    bool      `json:"connect_events"`
	Reactions        bool      `json:"reactions"`
	Replies          bool      `json:"replies"`
	Mutes            bool      `json:"mutes"`
	URLEnrichment    bool      `json:"url_enrichment"`
	MessageRetention string    `json:"message_retention"`
	MaxMessageLength int       `json:"max_message_length"`
	Commands         []Command `json:"commands"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MemberPayload is one channel membership record.
type MemberPayload struct {
	User      *UserPayload
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChannelReadPayload is one user's read cursor within a channel.
type ChannelReadPayload struct {
	User                *UserPayload
	LastReadAt          time.Time
	UnreadMessagesCount int
}

// ChannelPayload is one remote channel.
type ChannelPayload struct {
	CID           ChannelID
	Name          string
	ImageURL      string
	CreatedBy     *UserPayload
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	LastMessageAt *time.Time
	MemberCount   int
	Frozen        bool
	Config        ChannelConfig
	Members       []*MemberPayload
	Extra         ExtraData
}

// MessagePayload is one remote message.
type MessagePayload struct {
	ID                 string
	Type               MessageType
	User               *UserPayload
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
	Text               string
	Command            string
	Args               string
	ParentID           string
	ShowReplyInChannel bool
	MentionedUsers     []*UserPayload
	ThreadParticipants []*UserPayload
	ReplyCount         int
	LatestReactions    []*ReactionPayload
	OwnReactions       []*ReactionPayload
	ReactionScores     map[ReactionType]int
	Attachments        []*AttachmentPayload
	IsSilent           bool
	Extra              ExtraData
}

// ChannelStatePayload is the bulk response of a channel query: the channel
// itself plus its recent messages, memberships, and read cursors.
type ChannelStatePayload struct {
	Channel    *ChannelPayload
	Messages   []*MessagePayload
	Members    []*MemberPayload
	Reads      []*ChannelReadPayload
	Membership *MemberPayload
}
