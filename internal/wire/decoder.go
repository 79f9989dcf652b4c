// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MalformedPayloadError reports a required field that was missing or
// wrong-shaped during payload decode. It fails the enclosing ingestion
// unit and is never retried.
type MalformedPayloadError struct {
	// Field is the wire key of the offending field.
	Field string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload: missing or invalid field %q", e.Field)
}

// EntityKind names a payload kind for the extension decode pass.
type EntityKind string

// Entity kinds that can carry deployment-specific extra data.
const (
	KindUser       EntityKind = "user"
	KindChannel    EntityKind = "channel"
	KindMessage    EntityKind = "message"
	KindAttachment EntityKind = "attachment"
)

// ExtraDecoder is the pluggable secondary decode pass. It receives the same
// raw document as the core decode and returns the deployment-specific
// attributes to attach to the payload. Returning an error fails the whole
// payload decode; extension data is never silently dropped.
type ExtraDecoder interface {
	DecodeExtra(kind EntityKind, raw []byte) (ExtraData, error)
}

// ExtraDecoderFunc adapts a function to the ExtraDecoder interface.
type ExtraDecoderFunc func(kind EntityKind, raw []byte) (ExtraData, error)

// DecodeExtra implements ExtraDecoder.
func (f ExtraDecoderFunc) DecodeExtra(kind EntityKind, raw []byte) (ExtraData, error) {
	return f(kind, raw)
}

// NopExtraDecoder decodes no extra data. It is the default.
var NopExtraDecoder ExtraDecoder = ExtraDecoderFunc(func(EntityKind, []byte) (ExtraData, error) {
	return nil, nil
})

// Decoder converts raw JSON documents into typed payload records. It is
// stateless per call and safe for concurrent use; the only configuration is
// the extension decoder supplied at construction time.
type Decoder struct {
	extra ExtraDecoder
}

// NewDecoder creates a payload decoder. A nil extra decoder disables the
// extension pass.
func NewDecoder(extra ExtraDecoder) *Decoder {
	if extra == nil {
		extra = NopExtraDecoder
	}
	return &Decoder{extra: extra}
}

// decodeExtra runs the extension pass for one document, failing closed.
func (d *Decoder) decodeExtra(kind EntityKind, raw []byte) (ExtraData, error) {
	extra, err := d.extra.DecodeExtra(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s extra data: %w", kind, err)
	}
	return extra, nil
}

type userJSON struct {
	ID         *string    `json:"id"`
	Role       string     `json:"role"`
	Name       string     `json:"name"`
	Image      string     `json:"image"`
	Online     bool       `json:"online"`
	Banned     bool       `json:"banned"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastActive *time.Time `json:"last_active"`
}

// DecodeUser decodes one user payload. Required: id.
func (d *Decoder) DecodeUser(raw []byte) (*UserPayload, error) {
	var aux userJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse user payload: %w", err)
	}
	if aux.ID == nil || *aux.ID == "" {
		return nil, &MalformedPayloadError{Field: "id"}
	}

	extra, err := d.decodeExtra(KindUser, raw)
	if err != nil {
		return nil, err
	}

	return &UserPayload{
		ID:           *aux.ID,
		Role:         aux.Role,
		Name:         aux.Name,
		ImageURL:     aux.Image,
		IsOnline:     aux.Online,
		IsBanned:     aux.Banned,
		CreatedAt:    aux.CreatedAt,
		UpdatedAt:    aux.UpdatedAt,
		LastActiveAt: aux.LastActive,
		Extra:        extra,
	}, nil
}

type reactionJSON struct {
	Type      *string         `json:"type"`
	Score     int             `json:"score"`
	User      json.RawMessage `json:"user"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DecodeReaction decodes one reaction payload. Required: type.
func (d *Decoder) DecodeReaction(raw []byte) (*ReactionPayload, error) {
	var aux reactionJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse reaction payload: %w", err)
	}
	if aux.Type == nil || *aux.Type == "" {
		return nil, &MalformedPayloadError{Field: "type"}
	}

	p := &ReactionPayload{
		Type:      ReactionType(*aux.Type),
		Score:     aux.Score,
		CreatedAt: aux.CreatedAt,
		UpdatedAt: aux.UpdatedAt,
	}
	if len(aux.User) > 0 {
		user, err := d.DecodeUser(aux.User)
		if err != nil {
			return nil, err
		}
		p.User = user
	}
	return p, nil
}

// knownAttachmentKeys is the fixed attachment envelope; every other
// top-level key is preserved in Extra.
var knownAttachmentKeys = map[string]struct{}{
	"type": {}, "title": {}, "text": {}, "image_url": {},
	"asset_url": {}, "thumb_url": {}, "og_scrape_url": {},
}

// DecodeAttachment decodes one attachment payload. No required fields.
// The extension pass runs first; when it yields data, that becomes Extra.
// Otherwise every top-level key outside the fixed envelope is kept opaquely.
func (d *Decoder) DecodeAttachment(raw []byte) (*AttachmentPayload, error) {
	var p AttachmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse attachment payload: %w", err)
	}

	extra, err := d.decodeExtra(KindAttachment, raw)
	if err != nil {
		return nil, err
	}
	if extra != nil {
		p.Extra = extra
		return &p, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse attachment payload: %w", err)
	}
	for key := range fields {
		if _, known := knownAttachmentKeys[key]; known {
			delete(fields, key)
		}
	}
	if len(fields) > 0 {
		p.Extra = fields
	}
	return &p, nil
}

type messageJSON struct {
	ID                 *string           `json:"id"`
	Type               *string           `json:"type"`
	User               json.RawMessage   `json:"user"`
	CreatedAt          *time.Time        `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at"`
	DeletedAt          *time.Time        `json:"deleted_at"`
	Text               *string           `json:"text"`
	Command            string            `json:"command"`
	Args               string            `json:"args"`
	ParentID           string            `json:"parent_id"`
	ShowInChannel      bool              `json:"show_in_channel"`
	MentionedUsers     []json.RawMessage `json:"mentioned_users"`
	ThreadParticipants []json.RawMessage `json:"thread_participants"`
	ReplyCount         *int              `json:"reply_count"`
	LatestReactions    []json.RawMessage `json:"latest_reactions"`
	OwnReactions       []json.RawMessage `json:"own_reactions"`
	ReactionScores     map[string]int    `json:"reaction_scores"`
	Attachments        []json.RawMessage `json:"attachments"`
	Silent             bool              `json:"silent"`
}

// DecodeMessage decodes one message payload.
//
// Required: id, type, user, created_at, updated_at, text, mentioned_users,
// reply_count, latest_reactions, own_reactions, attachments. The backend
// sends thread_participants only for thread messages, so it defaults to
// empty; silent and show_in_channel default to false; reaction_scores
// defaults to an empty map and its keys pass through ReactionType untouched,
// unrecognized values included. Message text is trimmed of surrounding
// whitespace.
func (d *Decoder) DecodeMessage(raw []byte) (*MessagePayload, error) {
	var aux messageJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse message payload: %w", err)
	}

	switch {
	case aux.ID == nil || *aux.ID == "":
		return nil, &MalformedPayloadError{Field: "id"}
	case aux.Type == nil:
		return nil, &MalformedPayloadError{Field: "type"}
	case len(aux.User) == 0:
		return nil, &MalformedPayloadError{Field: "user"}
	case aux.CreatedAt == nil:
		return nil, &MalformedPayloadError{Field: "created_at"}
	case aux.UpdatedAt == nil:
		return nil, &MalformedPayloadError{Field: "updated_at"}
	case aux.Text == nil:
		return nil, &MalformedPayloadError{Field: "text"}
	case aux.MentionedUsers == nil:
		return nil, &MalformedPayloadError{Field: "mentioned_users"}
	case aux.ReplyCount == nil:
		return nil, &MalformedPayloadError{Field: "reply_count"}
	case aux.LatestReactions == nil:
		return nil, &MalformedPayloadError{Field: "latest_reactions"}
	case aux.OwnReactions == nil:
		return nil, &MalformedPayloadError{Field: "own_reactions"}
	case aux.Attachments == nil:
		return nil, &MalformedPayloadError{Field: "attachments"}
	}

	user, err := d.DecodeUser(aux.User)
	if err != nil {
		return nil, err
	}

	mentioned, err := d.decodeUsers(aux.MentionedUsers)
	if err != nil {
		return nil, err
	}
	participants, err := d.decodeUsers(aux.ThreadParticipants)
	if err != nil {
		return nil, err
	}
	latest, err := d.decodeReactions(aux.LatestReactions)
	if err != nil {
		return nil, err
	}
	own, err := d.decodeReactions(aux.OwnReactions)
	if err != nil {
		return nil, err
	}

	attachments := make([]*AttachmentPayload, 0, len(aux.Attachments))
	for _, rawAtt := range aux.Attachments {
		att, err := d.DecodeAttachment(rawAtt)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}

	scores := make(map[ReactionType]int, len(aux.ReactionScores))
	for key, score := range aux.ReactionScores {
		scores[ReactionType(key)] = score
	}

	extra, err := d.decodeExtra(KindMessage, raw)
	if err != nil {
		return nil, err
	}

	return &MessagePayload{
		ID:                 *aux.ID,
		Type:               MessageType(*aux.Type),
		User:               user,
		CreatedAt:          *aux.CreatedAt,
		UpdatedAt:          *aux.UpdatedAt,
		DeletedAt:          aux.DeletedAt,
		Text:               strings.TrimSpace(*aux.Text),
		Command:            aux.Command,
		Args:               aux.Args,
		ParentID:           aux.ParentID,
		ShowReplyInChannel: aux.ShowInChannel,
		MentionedUsers:     mentioned,
		ThreadParticipants: participants,
		ReplyCount:         *aux.ReplyCount,
		LatestReactions:    latest,
		OwnReactions:       own,
		ReactionScores:     scores,
		Attachments:        attachments,
		IsSilent:           aux.Silent,
		Extra:              extra,
	}, nil
}

func (d *Decoder) decodeUsers(raws []json.RawMessage) ([]*UserPayload, error) {
	users := make([]*UserPayload, 0, len(raws))
	for _, raw := range raws {
		user, err := d.DecodeUser(raw)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (d *Decoder) decodeReactions(raws []json.RawMessage) ([]*ReactionPayload, error) {
	reactions := make([]*ReactionPayload, 0, len(raws))
	for _, raw := range raws {
		reaction, err := d.DecodeReaction(raw)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	return reactions, nil
}

type memberJSON struct {
	User      json.RawMessage `json:"user"`
	Role      string          `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DecodeMember decodes one channel member payload. Required: user.
func (d *Decoder) DecodeMember(raw []byte) (*MemberPayload, error) {
	var aux memberJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse member payload: %w", err)
	}
	if len(aux.User) == 0 {
		return nil, &MalformedPayloadError{Field: "user"}
	}
	user, err := d.DecodeUser(aux.User)
	if err != nil {
		return nil, err
	}
	return &MemberPayload{
		User:      user,
		Role:      aux.Role,
		CreatedAt: aux.CreatedAt,
		UpdatedAt: aux.UpdatedAt,
	}, nil
}

type channelReadJSON struct {
	User           json.RawMessage `json:"user"`
	LastRead       *time.Time      `json:"last_read"`
	UnreadMessages int             `json:"unread_messages"`
}

// DecodeChannelRead decodes one read-cursor payload. Required: user,
// last_read. unread_messages defaults to 0.
func (d *Decoder) DecodeChannelRead(raw []byte) (*ChannelReadPayload, error) {
	var aux channelReadJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse channel read payload: %w", err)
	}
	if len(aux.User) == 0 {
		return nil, &MalformedPayloadError{Field: "user"}
	}
	if aux.LastRead == nil {
		return nil, &MalformedPayloadError{Field: "last_read"}
	}
	user, err := d.DecodeUser(aux.User)
	if err != nil {
		return nil, err
	}
	return &ChannelReadPayload{
		User:                user,
		LastReadAt:          *aux.LastRead,
		UnreadMessagesCount: aux.UnreadMessages,
	}, nil
}

type channelJSON struct {
	CID           *ChannelID        `json:"cid"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	CreatedBy     json.RawMessage   `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     *time.Time        `json:"deleted_at"`
	LastMessageAt *time.Time        `json:"last_message_at"`
	MemberCount   int               `json:"member_count"`
	Frozen        bool              `json:"frozen"`
	Config        ChannelConfig     `json:"config"`
	Members       []json.RawMessage `json:"members"`
}

// DecodeChannel decodes one channel payload. Required: cid.
func (d *Decoder) DecodeChannel(raw []byte) (*ChannelPayload, error) {
	var aux channelJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse channel payload: %w", err)
	}
	if aux.CID == nil || aux.CID.IsZero() {
		return nil, &MalformedPayloadError{Field: "cid"}
	}

	p := &ChannelPayload{
		CID:           *aux.CID,
		Name:          aux.Name,
		ImageURL:      aux.Image,
		CreatedAt:     aux.CreatedAt,
		UpdatedAt:     aux.UpdatedAt,
		DeletedAt:     aux.DeletedAt,
		LastMessageAt: aux.LastMessageAt,
		MemberCount:   aux.MemberCount,
		Frozen:        aux.Frozen,
		Config:        aux.Config,
	}

	if len(aux.CreatedBy) > 0 {
		creator, err := d.DecodeUser(aux.CreatedBy)
		if err != nil {
			return nil, err
		}
		p.CreatedBy = creator
	}

	for _, rawMember := range aux.Members {
		member, err := d.DecodeMember(rawMember)
		if err != nil {
			return nil, err
		}
		p.Members = append(p.Members, member)
	}

	extra, err := d.decodeExtra(KindChannel, raw)
	if err != nil {
		return nil, err
	}
	p.Extra = extra

	return p, nil
}

type channelStateJSON struct {
	Channel    json.RawMessage   `json:"channel"`
	Messages   []json.RawMessage `json:"messages"`
	Members    []json.RawMessage `json:"members"`
	Reads      []json.RawMessage `json:"read"`
	Membership json.RawMessage   `json:"membership"`
}

// DecodeChannelState decodes a bulk channel query response. Required:
// channel. Messages, members, and reads default to empty.
func (d *Decoder) DecodeChannelState(raw []byte) (*ChannelStatePayload, error) {
	var aux channelStateJSON
	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, fmt.Errorf("parse channel state payload: %w", err)
	}
	if len(aux.Channel) == 0 {
		return nil, &MalformedPayloadError{Field: "channel"}
	}

	channel, err := d.DecodeChannel(aux.Channel)
	if err != nil {
		return nil, err
	}
	state := &ChannelStatePayload{Channel: channel}

	for _, rawMsg := range aux.Messages {
		msg, err := d.DecodeMessage(rawMsg)
		if err != nil {
			return nil, err
		}
		state.Messages = append(state.Messages, msg)
	}
	for _, rawMember := range aux.Members {
		member, err := d.DecodeMember(rawMember)
		if err != nil {
			return nil, err
		}
		state.Members = append(state.Members, member)
	}
	for _, rawRead := range aux.Reads {
		read, err := d.DecodeChannelRead(rawRead)
		if err != nil {
			return nil, err
		}
		state.Reads = append(state.Reads, read)
	}
	if len(aux.Membership) > 0 {
		membership, err := d.DecodeMember(aux.Membership)
		if err != nil {
			return nil, err
		}
		state.Membership = membership
	}

	return state, nil
}
