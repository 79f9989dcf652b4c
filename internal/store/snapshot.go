// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/driftline/driftline/internal/models"
	"github.com/driftline/driftline/internal/wire"
)

// SnapshotUser projects the current persisted state of a user into a
// detached value. The snapshot never changes after it is returned.
func (t *Txn) SnapshotUser(id string) (models.User, error) {
	rec, err := t.User(id)
	if err != nil {
		return models.User{}, err
	}
	return userModel(rec), nil
}

func userModel(rec *UserRecord) models.User {
	m := models.User{
		ID:        rec.ID,
		Role:      rec.Role,
		Name:      rec.Name,
		ImageURL:  rec.ImageURL,
		IsOnline:  rec.IsOnline,
		IsBanned:  rec.IsBanned,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Extra:     models.CopyExtra(rec.Extra),
	}
	if rec.LastActiveAt != nil {
		lastActive := *rec.LastActiveAt
		m.LastActiveAt = &lastActive
	}
	return m
}

// SnapshotChannel projects a channel with its members and read cursors
// resolved.
func (t *Txn) SnapshotChannel(cid wire.ChannelID) (models.Channel, error) {
	rec, err := t.Channel(cid)
	if err != nil {
		return models.Channel{}, err
	}

	m := models.Channel{
		CID:       cid,
		Name:      rec.Name,
		ImageURL:  rec.ImageURL,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		IsHidden:  rec.IsHidden,
		IsFrozen:  rec.IsFrozen,
		Config:    channelConfigCopy(rec.Config),
		Extra:     models.CopyExtra(rec.Extra),
	}
	m.DeletedAt = timeCopy(rec.DeletedAt)
	m.LastMessageAt = timeCopy(rec.LastMessageAt)
	m.TruncatedAt = timeCopy(rec.TruncatedAt)

	if rec.CreatedByID != "" {
		creator, err := t.User(rec.CreatedByID)
		if err == nil {
			user := userModel(creator)
			m.CreatedBy = &user
		} else if !errors.Is(err, ErrNotFound) {
			return models.Channel{}, err
		}
	}

	for _, memberID := range rec.MemberIDs {
		user, err := t.User(memberID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return models.Channel{}, err
		}
		m.Members = append(m.Members, models.Member{
			User: userModel(user),
			Role: rec.MemberRoles[memberID],
		})
	}

	reads, err := t.ChannelReads(cid)
	if err != nil {
		return models.Channel{}, err
	}
	m.Reads = reads

	return m, nil
}

// SnapshotMessage projects a message with its author and mentions resolved.
func (t *Txn) SnapshotMessage(id string) (models.Message, error) {
	rec, err := t.Message(id)
	if err != nil {
		return models.Message{}, err
	}
	return t.messageModel(rec)
}

func (t *Txn) messageModel(rec *MessageRecord) (models.Message, error) {
	cid, err := wire.ParseChannelID(rec.CID)
	if err != nil {
		return models.Message{}, fmt.Errorf("message %s: %w", rec.ID, err)
	}
	author, err := t.User(rec.UserID)
	if err != nil {
		return models.Message{}, fmt.Errorf("message %s author: %w", rec.ID, err)
	}

	m := models.Message{
		ID:                 rec.ID,
		CID:                cid,
		Type:               rec.Type,
		Author:             userModel(author),
		Text:               rec.Text,
		Command:            rec.Command,
		Args:               rec.Args,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		DeletedAt:          timeCopy(rec.DeletedAt),
		ParentID:           rec.ParentID,
		ShowReplyInChannel: rec.ShowReplyInChannel,
		ReplyCount:         rec.ReplyCount,
		IsSilent:           rec.IsSilent,
		Extra:              models.CopyExtra(rec.Extra),
	}

	for _, userID := range rec.MentionedUserIDs {
		user, err := t.User(userID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return models.Message{}, err
		}
		m.MentionedUsers = append(m.MentionedUsers, userModel(user))
	}

	if len(rec.ReactionScores) > 0 {
		m.ReactionScores = make(map[wire.ReactionType]int, len(rec.ReactionScores))
		for reaction, score := range rec.ReactionScores {
			m.ReactionScores[reaction] = score
		}
	}
	if len(rec.Attachments) > 0 {
		m.Attachments = append(m.Attachments, rec.Attachments...)
	}

	return m, nil
}

// SnapshotRead projects one (channel, user) read cursor.
func (t *Txn) SnapshotRead(cid wire.ChannelID, userID string) (models.ChannelRead, error) {
	rec, err := t.Read(cid, userID)
	if err != nil {
		return models.ChannelRead{}, err
	}
	return t.readModel(rec)
}

func (t *Txn) readModel(rec *ReadRecord) (models.ChannelRead, error) {
	cid, err := wire.ParseChannelID(rec.CID)
	if err != nil {
		return models.ChannelRead{}, fmt.Errorf("read cursor: %w", err)
	}
	user, err := t.User(rec.UserID)
	if err != nil {
		return models.ChannelRead{}, fmt.Errorf("read cursor user: %w", err)
	}
	return models.ChannelRead{
		CID:                 cid,
		User:                userModel(user),
		LastReadAt:          rec.LastReadAt,
		UnreadMessagesCount: rec.UnreadMessageCount,
	}, nil
}

// ChannelReads lists all read cursors for a channel.
func (t *Txn) ChannelReads(cid wire.ChannelID) ([]models.ChannelRead, error) {
	prefix := []byte(prefixRead + cid.String() + ":")
	var reads []models.ChannelRead

	it := t.tx.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var rec ReadRecord
		err := it.Item().Value(func(val []byte) error {
			return jsonUnmarshal(val, &rec)
		})
		if err != nil {
			return nil, err
		}
		read, err := t.readModel(&rec)
		if err != nil {
			return nil, err
		}
		reads = append(reads, read)
	}
	return reads, nil
}

// ChannelMessages lists a channel's visible messages in creation order.
// A deleted channel lists nothing (its messages remain persisted but are
// unreachable from active listings); messages created before the channel's
// truncation pointer are excluded.
func (t *Txn) ChannelMessages(cid wire.ChannelID) ([]models.Message, error) {
	channel, err := t.Channel(cid)
	if err != nil {
		return nil, err
	}
	if channel.DeletedAt != nil {
		return nil, nil
	}

	var messages []models.Message
	it := t.tx.NewIterator(badger.IteratorOptions{Prefix: messageIndexPrefix(cid)})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var messageID string
		err := it.Item().Value(func(val []byte) error {
			return jsonUnmarshal(val, &messageID)
		})
		if err != nil {
			return nil, err
		}

		rec, err := t.Message(messageID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if channel.TruncatedAt != nil && rec.CreatedAt.Before(*channel.TruncatedAt) {
			continue
		}

		msg, err := t.messageModel(rec)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}
