// Package repository holds the MySQL persistence of the seat engine.  Every
// write that depends on a previously read value is expressed as a single
// conditional statement; the number of affected rows tells the caller
// whether the guard held.  The sentinel values below let higher layers
// tell the guard failures apart.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a guarded reservation state change
// did not apply: either the edge is not part of the state machine or the
// persisted state no longer equals the expected one.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrConflict is returned when a conditional counter update did not apply
// (a release without a matching hold, an admin correction that would break
// the ledger bounds) or when an insert hits a duplicate key.
var ErrConflict = errors.New("conflict")
