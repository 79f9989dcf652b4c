// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package pipeline translates decoded events and payloads into entity
// store mutations and pushes the resulting snapshots to listeners.
//
// Each ingested unit is applied atomically through the store's serialized
// write path, in arrival order (server delivery order is authoritative; the
// pipeline never reorders by timestamp). After a unit commits, the pipeline
// publishes one snapshot per mutated root entity, consistent as of the
// mutation's completion. A malformed or failing event is skipped — counted
// and logged, never allowed to stall the stream or corrupt prior state.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/driftline/driftline/internal/event"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/metrics"
	"github.com/driftline/driftline/internal/models"
	"github.com/driftline/driftline/internal/store"
	"github.com/driftline/driftline/internal/wire"
)

// Notification topics. One topic per root entity kind; payloads are the
// JSON-encoded snapshot models.
const (
	TopicUsers    = "snapshots.users"
	TopicChannels = "snapshots.channels"
	TopicMessages = "snapshots.messages"
	TopicReads    = "snapshots.reads"
)

// snapshot is one pending notification collected inside a mutation unit.
type snapshot struct {
	topic string
	key   string
	model interface{}
}

// Processor is the apply pipeline.
type Processor struct {
	store     *store.Store
	events    *event.Decoder
	publisher message.Publisher
	logger    zerolog.Logger
}

// New creates a processor. The publisher receives snapshot notifications;
// pass nil to disable notifications (tests, batch imports).
func New(s *store.Store, events *event.Decoder, publisher message.Publisher) *Processor {
	return &Processor{
		store:     s,
		events:    events,
		publisher: publisher,
		logger:    logging.With().Str("component", "pipeline").Logger(),
	}
}

// Run consumes raw envelopes until the context is canceled or the source
// closes. Decode and apply failures for single events are skipped; only a
// torn-down store stops the loop.
func (p *Processor) Run(ctx context.Context, envelopes <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-envelopes:
			if !ok {
				return nil
			}
			if err := p.ApplyRaw(ctx, raw); err != nil {
				if errors.Is(err, store.ErrClosed) {
					return err
				}
				p.logger.Warn().Err(err).Msg("event skipped")
			}
		}
	}
}

// ApplyRaw decodes one envelope and applies it.
func (p *Processor) ApplyRaw(ctx context.Context, raw []byte) error {
	ev, err := p.events.Decode(raw)
	if err != nil {
		metrics.EventsSkipped.WithLabelValues("malformed").Inc()
		return err
	}
	return p.Apply(ctx, ev)
}

// Apply maps one decoded event onto its minimal store mutation and
// publishes the affected snapshots.
func (p *Processor) Apply(ctx context.Context, ev event.Event) error {
	var snapshots []snapshot
	var err error

	switch e := ev.(type) {
	case event.UserUpdatedEvent:
		snapshots, err = p.applyUserUpdated(ctx, e)
	case event.ChannelUpdatedEvent:
		snapshots, err = p.applyChannelUpdated(ctx, e)
	case event.ChannelDeletedEvent:
		snapshots, err = p.applyChannelDeleted(ctx, e)
	case event.ChannelHiddenEvent:
		snapshots, err = p.applyChannelHidden(ctx, e)
	case event.MessageNewEvent:
		snapshots, err = p.applyMessage(ctx, e.CID, e.Message, true)
	case event.MessageUpdatedEvent:
		snapshots, err = p.applyMessage(ctx, e.CID, e.Message, false)
	case event.MessageDeletedEvent:
		snapshots, err = p.applyMessage(ctx, e.CID, e.Message, false)
	case event.MessageReadEvent:
		snapshots, err = p.applyReadCursor(ctx, e.CID, e.User, e.CreatedAt, e.UnreadMessages)
	case event.NotificationMarkReadEvent:
		snapshots, err = p.applyReadCursor(ctx, e.CID, e.User, e.CreatedAt, e.UnreadMessages)
	case event.HealthCheckEvent:
		// Connection bookkeeping belongs to the transport layer.
		return nil
	case event.UnknownEvent:
		metrics.UnknownEvents.Inc()
		p.logger.Debug().Str("type", string(e.Type)).Msg("unknown event type passed through")
		return nil
	default:
		p.logger.Debug().Str("type", string(ev.EventType())).Msg("event has no mutation mapping")
		return nil
	}

	if err != nil {
		metrics.EventsSkipped.WithLabelValues("store").Inc()
		return err
	}

	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
	p.publish(snapshots)
	return nil
}

func (p *Processor) applyUserUpdated(ctx context.Context, e event.UserUpdatedEvent) ([]snapshot, error) {
	var user models.User
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		rec, err := tx.SaveUser(e.User)
		if err != nil {
			return err
		}
		user, err = tx.SnapshotUser(rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicUsers, key: user.ID, model: user}}, nil
}

func (p *Processor) applyChannelUpdated(ctx context.Context, e event.ChannelUpdatedEvent) ([]snapshot, error) {
	var channel models.Channel
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		if _, err := tx.SaveChannel(e.Channel); err != nil {
			return err
		}
		var err error
		channel, err = tx.SnapshotChannel(e.CID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicChannels, key: channel.CID.String(), model: channel}}, nil
}

func (p *Processor) applyChannelDeleted(ctx context.Context, e event.ChannelDeletedEvent) ([]snapshot, error) {
	var channel models.Channel
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		if _, err := tx.MarkChannelDeleted(e.CID, e.DeletedAt); err != nil {
			return err
		}
		var err error
		channel, err = tx.SnapshotChannel(e.CID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicChannels, key: channel.CID.String(), model: channel}}, nil
}

func (p *Processor) applyChannelHidden(ctx context.Context, e event.ChannelHiddenEvent) ([]snapshot, error) {
	var channel models.Channel
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		if _, err := tx.MarkChannelHidden(e.CID, e.HiddenAt, e.HistoryCleared); err != nil {
			return err
		}
		var err error
		channel, err = tx.SnapshotChannel(e.CID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicChannels, key: channel.CID.String(), model: channel}}, nil
}

func (p *Processor) applyMessage(ctx context.Context, cid wire.ChannelID, payload *wire.MessagePayload, isNew bool) ([]snapshot, error) {
	var msg models.Message
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		rec, err := tx.SaveMessage(cid, payload)
		if err != nil {
			return err
		}
		if isNew {
			if err := tx.BumpChannelLastMessageAt(cid, rec.CreatedAt); err != nil {
				return err
			}
		}
		msg, err = tx.SnapshotMessage(rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicMessages, key: msg.ID, model: msg}}, nil
}

func (p *Processor) applyReadCursor(ctx context.Context, cid wire.ChannelID, user *wire.UserPayload, lastReadAt time.Time, unread int) ([]snapshot, error) {
	var read models.ChannelRead
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		rec, err := tx.SaveRead(cid, &wire.ChannelReadPayload{
			User:                user,
			LastReadAt:          lastReadAt,
			UnreadMessagesCount: unread,
		})
		if err != nil {
			return err
		}
		read, err = tx.SnapshotRead(cid, rec.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return []snapshot{{topic: TopicReads, key: cid.String() + ":" + read.User.ID, model: read}}, nil
}

// IngestChannelState applies a bulk channel query response: the channel,
// its messages, and its read cursors, in one atomic unit. Applying the same
// payload twice converges to the same persisted state. Every mutated root
// gets a notification: one per message, one per read cursor, one for the
// channel, all consistent as of the unit's completion.
func (p *Processor) IngestChannelState(ctx context.Context, state *wire.ChannelStatePayload) error {
	if state == nil || state.Channel == nil {
		return &wire.MalformedPayloadError{Field: "channel"}
	}
	cid := state.Channel.CID

	var snapshots []snapshot
	err := p.store.Update(ctx, func(tx *store.Txn) error {
		snapshots = snapshots[:0]
		if _, err := tx.SaveChannel(state.Channel); err != nil {
			return err
		}
		for _, member := range state.Members {
			if _, err := tx.SaveMember(member); err != nil {
				return err
			}
		}
		for _, payload := range state.Messages {
			rec, err := tx.SaveMessage(cid, payload)
			if err != nil {
				return err
			}
			msg, err := tx.SnapshotMessage(rec.ID)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot{topic: TopicMessages, key: msg.ID, model: msg})
		}
		for _, payload := range state.Reads {
			rec, err := tx.SaveRead(cid, payload)
			if err != nil {
				return err
			}
			read, err := tx.SnapshotRead(cid, rec.UserID)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, snapshot{topic: TopicReads, key: cid.String() + ":" + rec.UserID, model: read})
		}

		channel, err := tx.SnapshotChannel(cid)
		if err != nil {
			return err
		}
		snapshots = append(snapshots, snapshot{topic: TopicChannels, key: cid.String(), model: channel})
		return nil
	})
	if err != nil {
		return err
	}

	metrics.PayloadsIngested.Inc()
	p.publish(snapshots)
	return nil
}

// publish pushes collected snapshots to listeners. Notification delivery is
// best-effort: a listener failure never unwinds an applied mutation.
func (p *Processor) publish(snapshots []snapshot) {
	if p.publisher == nil {
		return
	}
	for _, snap := range snapshots {
		payload, err := json.Marshal(snap.model)
		if err != nil {
			p.logger.Error().Err(err).Str("topic", snap.topic).Msg("encode snapshot")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("key", snap.key)
		if err := p.publisher.Publish(snap.topic, msg); err != nil {
			p.logger.Error().Err(err).Str("topic", snap.topic).Msg("publish snapshot")
			continue
		}
		metrics.SnapshotsPublished.WithLabelValues(snap.topic).Inc()
	}
}
