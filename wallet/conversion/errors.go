// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import "errors"

var (
	// ErrAddressNotFound is returned when no native address is registered
	// for a user.
	ErrAddressNotFound = errors.New("native address not found")

	// ErrNoBalance is returned when the balance to convert is zero.
	ErrNoBalance = errors.New("no balance to convert")

	// ErrMinter is returned when the minter service fails.
	ErrMinter = errors.New("minter error")

	// ErrConversionInFlight is returned when a conversion for the same
	// user is already running.
	ErrConversionInFlight = errors.New("conversion already in flight")

	// ErrForeignAddress is returned when a user's registered native
	// address isn't the wallet's address for that user, so its coins
	// can't be spent.
	ErrForeignAddress = errors.New("address not controlled by wallet")

	// ErrInvalidTransition is returned when a conversion attempt is moved
	// out of order.
	ErrInvalidTransition = errors.New("invalid conversion transition")

	// ErrMissingConfig is returned when an orchestrator is created
	// without one of its collaborators.
	ErrMissingConfig = errors.New("missing orchestrator config")
)
