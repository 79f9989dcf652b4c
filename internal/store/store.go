// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/metrics"
)

// Config holds entity store configuration.
type Config struct {
	// Path is the Badger data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests and by hosts that
	// opt out of cold-start persistence.
	InMemory bool

	// SyncWrites forces an fsync on every commit. Slower, fully durable.
	SyncWrites bool

	// QueueSize bounds the number of mutation units waiting for the writer.
	// 0 uses the default.
	QueueSize int
}

const defaultQueueSize = 256

type writeReq struct {
	ctx  context.Context
	fn   func(*Txn) error
	done chan error
}

// Store is the entity store. All mutations are serialized through one
// writer goroutine; reads may run concurrently.
type Store struct {
	db      *badger.DB
	writeCh chan writeReq
	quit    chan struct{}
	stopped chan struct{}
	logger  zerolog.Logger
}

// Open opens or creates the store at the configured path and starts the
// writer goroutine.
func Open(cfg Config) (*Store, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open entity store: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	s := &Store{
		db:      db,
		writeCh: make(chan writeReq, queueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logging.With().Str("component", "store").Logger(),
	}
	go s.runWriter()

	s.logger.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("entity store opened")
	return s, nil
}

// runWriter is the single mutation path. Units are applied strictly in
// arrival order, one Badger transaction each.
func (s *Store) runWriter() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.writeCh:
			req.done <- s.applyUnit(req)
		case <-s.quit:
			// Queued-but-unapplied units are dropped, never half-applied.
			for {
				select {
				case req := <-s.writeCh:
					req.done <- ErrClosed
				default:
					return
				}
			}
		}
	}
}

func (s *Store) applyUnit(req writeReq) error {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(btx *badger.Txn) error {
		return req.fn(&Txn{tx: btx})
	})
	metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	return err
}

// Update queues one mutation unit onto the serialized write path and waits
// for it to be applied. The unit runs inside a single Badger transaction:
// if fn returns an error the transaction is discarded and the store is left
// exactly as it was. Callers on latency-sensitive goroutines should treat
// this as blocking I/O.
func (s *Store) Update(ctx context.Context, fn func(*Txn) error) error {
	req := writeReq{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case s.writeCh <- req:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-s.stopped:
		// The writer is gone; it may have answered just before exiting.
		select {
		case err := <-req.done:
			return err
		default:
			return ErrClosed
		}
	}
}

// View runs fn against a read-only transaction. Views run concurrently
// with the writer and observe a consistent committed state.
func (s *Store) View(fn func(*Txn) error) error {
	return s.db.View(func(btx *badger.Txn) error {
		return fn(&Txn{tx: btx, readonly: true})
	})
}

// Close tears the store down: the writer drains, queued units fail with
// ErrClosed, and the database is closed.
func (s *Store) Close() error {
	select {
	case <-s.quit:
		// Already closed.
		return nil
	default:
	}
	close(s.quit)
	<-s.stopped

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close entity store: %w", err)
	}
	s.logger.Info().Msg("entity store closed")
	return nil
}
