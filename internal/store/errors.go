// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups when no entity exists for the key.
var ErrNotFound = errors.New("entity not found")

// ErrClosed is returned when a mutation is submitted to a store that has
// been torn down. Queued-but-unapplied units receive the same error.
var ErrClosed = errors.New("store is closed")

// IntegrityViolationError reports a save that cannot establish a required
// relationship. It fails the enclosing ingestion unit; the transaction is
// discarded so no partial writes survive.
type IntegrityViolationError struct {
	// Entity is the kind being saved, e.g. "message".
	Entity string
	// Reference is the missing required relationship, e.g. "user".
	Reference string
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("integrity violation: %s requires a resolvable %s", e.Entity, e.Reference)
}
