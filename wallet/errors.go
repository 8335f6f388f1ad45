// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

var (
	// ErrInsufficientFunds is returned when the available coins can't
	// cover the amount to send plus its fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAddress is returned when an address can't be decoded or
	// belongs to a different network than the wallet's.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSigningService is returned when the threshold signing service
	// fails or returns malformed signature bytes.
	ErrSigningService = errors.New("signing service error")

	// ErrInvalidPublicKey is returned when a public key returned by the
	// signing service can't be parsed.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrGateway is returned when the bitcoin gateway fails.
	ErrGateway = errors.New("gateway error")

	// ErrDuplicatedUtxo is returned when a transaction would spend the
	// same outpoint twice.
	ErrDuplicatedUtxo = errors.New("duplicated utxo")

	// ErrNoTxOutputs is returned when a transaction would have no
	// outputs.
	ErrNoTxOutputs = errors.New("tx has no outputs")

	// ErrForeignInput is returned when an input to sign isn't locked to
	// the key of the spend policy.
	ErrForeignInput = errors.New("input not controlled by policy key")

	// ErrUnknownPolicy is returned when a spend policy name isn't known.
	ErrUnknownPolicy = errors.New("unknown spend policy")
)

var (
	// ErrFeeRateTooLarge is returned when the working fee rate exceeds
	// the configured maximum.
	ErrFeeRateTooLarge = errors.New("fee rate too large")
)
