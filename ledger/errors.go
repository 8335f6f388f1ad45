// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.
	ErrDatabase ErrorCode = iota

	// ErrNoRecord indicates that a user has no conversion record to
	// update.
	ErrNoRecord

	// ErrNotLastRecord indicates that a status update targeted a record
	// that is not the user's most recent one.
	ErrNotLastRecord

	// ErrRecordFinalized indicates that the status of a record was already
	// moved out of pending.
	ErrRecordFinalized

	// ErrInvalidStatus indicates a status transition that isn't allowed.
	ErrInvalidStatus

	// ErrInvalidRecord indicates a record that failed validation before
	// being appended.
	ErrInvalidRecord

	// ErrNoAddress indicates that no native address is registered for a
	// user.
	ErrNoAddress
)

// errorCodeStrings maps error codes to their human readable names.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:        "ErrDatabase",
	ErrNoRecord:        "ErrNoRecord",
	ErrNotLastRecord:   "ErrNotLastRecord",
	ErrRecordFinalized: "ErrRecordFinalized",
	ErrInvalidStatus:   "ErrInvalidStatus",
	ErrInvalidRecord:   "ErrInvalidRecord",
	ErrNoAddress:       "ErrNoAddress",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}

	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a ledger error. It has an error code, a descriptive
// message and an optional underlying error.
type Error struct {
	Code ErrorCode
	Desc string
	Err  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}

	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error given a set of arguments.
func NewError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// IsError returns whether the error is a ledger Error with a matching error
// code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code == code
}
