// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrStateForbidden is returned when a background service is started
	// twice or stopped while not running.
	ErrStateForbidden = errors.New("operation forbidden in current state")
)

// lifecycle represents the lifecycle state of a background service.
type lifecycle uint32

const (
	// lifecycleStopped indicates the service is stopped.
	lifecycleStopped lifecycle = iota

	// lifecycleStarting indicates the service is starting up.
	lifecycleStarting

	// lifecycleStarted indicates the service is started.
	lifecycleStarted

	// lifecycleStopping indicates the service is currently stopping.
	lifecycleStopping
)

// String returns the string representation of a lifecycle.
func (l lifecycle) String() string {
	switch l {
	case lifecycleStopped:
		return "stopped"

	case lifecycleStarting:
		return "starting"

	case lifecycleStarted:
		return "started"

	case lifecycleStopping:
		return "stopping"

	default:
		return "unknown lifecycle state"
	}
}

// serviceState is a thread-safe lifecycle tracker.
type serviceState struct {
	lifecycle atomic.Uint32
}

// String returns the current lifecycle.
func (s *serviceState) String() string {
	return lifecycle(s.lifecycle.Load()).String()
}

// toStarting transitions from Stopped to Starting.
func (s *serviceState) toStarting() error {
	if !s.lifecycle.CompareAndSwap(
		uint32(lifecycleStopped), uint32(lifecycleStarting)) {

		return fmt.Errorf("%w: current state is %v", ErrStateForbidden,
			lifecycle(s.lifecycle.Load()))
	}

	return nil
}

// toStarted marks the service as fully started.
func (s *serviceState) toStarted() {
	s.lifecycle.Store(uint32(lifecycleStarted))
}

// toStopping transitions from Started to Stopping.
func (s *serviceState) toStopping() error {
	if !s.lifecycle.CompareAndSwap(
		uint32(lifecycleStarted), uint32(lifecycleStopping)) {

		return fmt.Errorf("%w: current state is %v", ErrStateForbidden,
			lifecycle(s.lifecycle.Load()))
	}

	return nil
}

// toStopped marks the service as fully stopped.
func (s *serviceState) toStopped() {
	s.lifecycle.Store(uint32(lifecycleStopped))
}
