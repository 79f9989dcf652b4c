// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/driftline/driftline/internal/wire"
)

// Txn is one unit of access to the entity store. Mutating operations are
// only legal inside Store.Update; read operations work in both Update and
// View transactions. A Txn sees its own writes, so load-or-create followed
// by a lookup within the same unit always resolves to one entity.
type Txn struct {
	tx       *badger.Txn
	readonly bool
}

func (t *Txn) get(key []byte, out interface{}) error {
	item, err := t.tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

func (t *Txn) put(key []byte, record interface{}) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.tx.Set(key, raw); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// User finds a user by id. Never creates.
func (t *Txn) User(id string) (*UserRecord, error) {
	var rec UserRecord
	if err := t.get(userKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadOrCreateUser returns the user for id, allocating an empty record on
// first reference.
func (t *Txn) LoadOrCreateUser(id string) (*UserRecord, error) {
	rec, err := t.User(id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := &UserRecord{ID: id}
	if err := t.put(userKey(id), fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// SaveUser upserts a user from its payload. Payload scalar fields always
// win (last-write-wins).
func (t *Txn) SaveUser(p *wire.UserPayload) (*UserRecord, error) {
	if p == nil || p.ID == "" {
		return nil, &IntegrityViolationError{Entity: "user", Reference: "id"}
	}
	rec, err := t.LoadOrCreateUser(p.ID)
	if err != nil {
		return nil, err
	}

	rec.Role = p.Role
	rec.Name = p.Name
	rec.ImageURL = p.ImageURL
	rec.IsOnline = p.IsOnline
	rec.IsBanned = p.IsBanned
	rec.CreatedAt = p.CreatedAt
	rec.UpdatedAt = p.UpdatedAt
	rec.LastActiveAt = p.LastActiveAt
	if p.Extra != nil {
		rec.Extra = p.Extra
	}

	if err := t.put(userKey(rec.ID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Channel finds a channel by cid. Never creates.
func (t *Txn) Channel(cid wire.ChannelID) (*ChannelRecord, error) {
	var rec ChannelRecord
	if err := t.get(channelKey(cid), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadOrCreateChannel returns the channel for cid, allocating an empty
// record on first reference (e.g. a message event arriving before the
// channel was ever fetched).
func (t *Txn) LoadOrCreateChannel(cid wire.ChannelID) (*ChannelRecord, error) {
	rec, err := t.Channel(cid)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := &ChannelRecord{CID: cid.String()}
	if err := t.put(channelKey(cid), fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// SaveChannel upserts a channel from its payload, recursively saving the
// creator and member users. Client-side state (hidden flag, truncation
// pointer) is preserved across upserts; deleted_at, once set, is never
// cleared by a payload that lacks it.
func (t *Txn) SaveChannel(p *wire.ChannelPayload) (*ChannelRecord, error) {
	if p == nil || p.CID.IsZero() {
		return nil, &IntegrityViolationError{Entity: "channel", Reference: "cid"}
	}
	rec, err := t.LoadOrCreateChannel(p.CID)
	if err != nil {
		return nil, err
	}

	rec.Name = p.Name
	rec.ImageURL = p.ImageURL
	rec.CreatedAt = p.CreatedAt
	rec.UpdatedAt = p.UpdatedAt
	rec.LastMessageAt = p.LastMessageAt
	rec.IsFrozen = p.Frozen
	rec.Config = p.Config
	if p.DeletedAt != nil {
		rec.DeletedAt = p.DeletedAt
	}
	if p.Extra != nil {
		rec.Extra = p.Extra
	}

	if p.CreatedBy != nil {
		creator, err := t.SaveUser(p.CreatedBy)
		if err != nil {
			return nil, err
		}
		rec.CreatedByID = creator.ID
	}

	if len(p.Members) > 0 {
		// The payload's member set replaces the stored one wholesale, roles
		// included, so departed members leave no residue.
		rec.MemberIDs = rec.MemberIDs[:0]
		rec.MemberRoles = make(map[string]string, len(p.Members))
		for _, member := range p.Members {
			saved, err := t.SaveMember(member)
			if err != nil {
				return nil, err
			}
			rec.MemberIDs = append(rec.MemberIDs, saved.ID)
			rec.MemberRoles[saved.ID] = member.Role
		}
	}

	if err := t.put(channelKey(p.CID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SaveMember saves a membership's user. Membership metadata lives on the
// channel record.
func (t *Txn) SaveMember(p *wire.MemberPayload) (*UserRecord, error) {
	if p == nil || p.User == nil {
		return nil, &IntegrityViolationError{Entity: "member", Reference: "user"}
	}
	return t.SaveUser(p.User)
}

// Message finds a message by id. Never creates.
func (t *Txn) Message(id string) (*MessageRecord, error) {
	var rec MessageRecord
	if err := t.get(messageKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveMessage upserts a message from its payload into the given channel,
// recursively saving the author and mentioned users and load-or-creating
// the channel so the message never dangles. A message whose payload has no
// author is an integrity violation: the unit fails and nothing is written.
func (t *Txn) SaveMessage(cid wire.ChannelID, p *wire.MessagePayload) (*MessageRecord, error) {
	if p == nil || p.ID == "" {
		return nil, &IntegrityViolationError{Entity: "message", Reference: "id"}
	}
	if p.User == nil {
		return nil, &IntegrityViolationError{Entity: "message", Reference: "user"}
	}
	if cid.IsZero() {
		return nil, &IntegrityViolationError{Entity: "message", Reference: "channel"}
	}

	if _, err := t.LoadOrCreateChannel(cid); err != nil {
		return nil, err
	}
	author, err := t.SaveUser(p.User)
	if err != nil {
		return nil, err
	}

	var existing *MessageRecord
	if prev, err := t.Message(p.ID); err == nil {
		existing = prev
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	mentioned := make([]string, 0, len(p.MentionedUsers))
	for _, user := range p.MentionedUsers {
		saved, err := t.SaveUser(user)
		if err != nil {
			return nil, err
		}
		mentioned = append(mentioned, saved.ID)
	}
	for _, user := range p.ThreadParticipants {
		if _, err := t.SaveUser(user); err != nil {
			return nil, err
		}
	}

	scores := make(map[wire.ReactionType]int, len(p.ReactionScores))
	for reaction, score := range p.ReactionScores {
		scores[reaction] = score
	}
	attachments := make([]wire.AttachmentPayload, 0, len(p.Attachments))
	for _, att := range p.Attachments {
		attachments = append(attachments, *att)
	}

	rec := &MessageRecord{
		ID:                 p.ID,
		CID:                cid.String(),
		UserID:             author.ID,
		Type:               p.Type,
		Text:               p.Text,
		Command:            p.Command,
		Args:               p.Args,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		DeletedAt:          p.DeletedAt,
		ParentID:           p.ParentID,
		ShowReplyInChannel: p.ShowReplyInChannel,
		ReplyCount:         p.ReplyCount,
		MentionedUserIDs:   mentioned,
		ReactionScores:     scores,
		Attachments:        attachments,
		IsSilent:           p.IsSilent,
		Extra:              p.Extra,
	}

	// deleted_at, once set, is never cleared.
	if rec.DeletedAt == nil && existing != nil && existing.DeletedAt != nil {
		rec.DeletedAt = existing.DeletedAt
	}

	if err := t.put(messageKey(rec.ID), rec); err != nil {
		return nil, err
	}
	if err := t.put(messageIndexKey(cid, rec.ID), rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// Read finds the read cursor for the (channel, user) pair. Never creates.
func (t *Txn) Read(cid wire.ChannelID, userID string) (*ReadRecord, error) {
	var rec ReadRecord
	if err := t.get(readKey(cid, userID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadOrCreateRead returns the read cursor for the (channel, user) pair,
// allocating it — and the channel and user it references — on first use.
// Exactly one cursor ever exists per pair; a later call returns the same
// record with fields unchanged until an explicit update.
func (t *Txn) LoadOrCreateRead(cid wire.ChannelID, userID string) (*ReadRecord, error) {
	if userID == "" {
		return nil, &IntegrityViolationError{Entity: "read cursor", Reference: "user"}
	}
	rec, err := t.Read(cid, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := t.LoadOrCreateChannel(cid); err != nil {
		return nil, err
	}
	if _, err := t.LoadOrCreateUser(userID); err != nil {
		return nil, err
	}

	fresh := &ReadRecord{CID: cid.String(), UserID: userID}
	if err := t.put(readKey(cid, userID), fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// SaveRead upserts a read cursor from its payload, updating the cursor's
// user along the way. The cursor is updated in place, never recreated.
func (t *Txn) SaveRead(cid wire.ChannelID, p *wire.ChannelReadPayload) (*ReadRecord, error) {
	if p == nil || p.User == nil {
		return nil, &IntegrityViolationError{Entity: "read cursor", Reference: "user"}
	}
	if _, err := t.SaveUser(p.User); err != nil {
		return nil, err
	}

	rec, err := t.LoadOrCreateRead(cid, p.User.ID)
	if err != nil {
		return nil, err
	}
	rec.LastReadAt = p.LastReadAt
	rec.UnreadMessageCount = p.UnreadMessagesCount

	if err := t.put(readKey(cid, p.User.ID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// BumpChannelLastMessageAt advances the channel's last-message timestamp.
// An older timestamp never rewinds it.
func (t *Txn) BumpChannelLastMessageAt(cid wire.ChannelID, at time.Time) error {
	rec, err := t.LoadOrCreateChannel(cid)
	if err != nil {
		return err
	}
	if rec.LastMessageAt != nil && !rec.LastMessageAt.Before(at) {
		return nil
	}
	rec.LastMessageAt = &at
	return t.put(channelKey(cid), rec)
}

// MarkChannelDeleted stamps the channel's deletion timestamp. Messages are
// kept but drop out of active listings; physical purge is an external
// policy, not performed here.
func (t *Txn) MarkChannelDeleted(cid wire.ChannelID, deletedAt time.Time) (*ChannelRecord, error) {
	rec, err := t.LoadOrCreateChannel(cid)
	if err != nil {
		return nil, err
	}
	rec.DeletedAt = &deletedAt
	if err := t.put(channelKey(cid), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkChannelHidden sets the channel's hidden flag. When clearHistory is
// set the truncation pointer advances to hiddenAt, so listings only show
// messages created after the hide point.
func (t *Txn) MarkChannelHidden(cid wire.ChannelID, hiddenAt time.Time, clearHistory bool) (*ChannelRecord, error) {
	rec, err := t.LoadOrCreateChannel(cid)
	if err != nil {
		return nil, err
	}
	rec.IsHidden = true
	if clearHistory {
		rec.TruncatedAt = &hiddenAt
	}
	if err := t.put(channelKey(cid), rec); err != nil {
		return nil, err
	}
	return rec, nil
}
