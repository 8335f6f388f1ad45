// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wait provides polling helpers for tests of background loops.
package wait

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a predicate doesn't hold within the
	// timeout.
	ErrTimeout = errors.New("predicate did not hold within the timeout")
)

// PollInterval is the polling interval used by NoError and Predicate.
const PollInterval = 20 * time.Millisecond

// NoError polls f until it returns nil or the timeout is reached. If the
// timeout is reached, the last error returned by f is returned.
//
// NOTE: f is expected to be cheap and non-blocking. NoError does not
// interrupt f.
func NoError(f func() error, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	// Call f() immediately to avoid the initial ticker delay.
	lastErr := f()
	if lastErr == nil {
		return nil
	}

	for {
		select {
		case <-deadline.C:
			return lastErr

		case <-ticker.C:
			lastErr = f()
			if lastErr == nil {
				return nil
			}
		}
	}
}

// Predicate polls pred until it returns true or the timeout is reached.
func Predicate(pred func() bool, timeout time.Duration) error {
	return NoError(func() error {
		if pred() {
			return nil
		}

		return ErrTimeout
	}, timeout)
}
