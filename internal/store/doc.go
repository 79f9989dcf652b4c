// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package store implements the persistent entity store: a relational object
// graph of users, channels, messages, and read cursors, keyed by natural
// key and persisted in BadgerDB.
//
// # Write serialization
//
// The store is a single-writer, multiple-reader resource. Every mutation
// goes through Update, which queues the unit onto one writer goroutine and
// applies it inside one Badger transaction. Units are applied in arrival
// order and are atomic: a failing unit leaves the store exactly as it was
// before the unit started. Because writes are serialized architecturally,
// load-or-create is race-free by construction; no per-call-site locking
// exists anywhere in the package.
//
// Reads (View and the snapshot accessors) run concurrently with writes and
// observe either the pre- or post-state of an in-flight unit, never a
// partial one. Snapshots returned to callers are detached value copies.
//
// # Relationships
//
// Records reference each other by natural key only: a message record holds
// its channel cid and author id, never a pointer. The store owns all
// persisted data; everything else holds keys and asks the store to resolve
// them at snapshot time.
package store
