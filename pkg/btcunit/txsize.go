// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// VByte defines a unit to express the transaction size. One virtual byte is
// 1/4th of a weight unit. For legacy transactions without witness data a
// virtual byte equals a serialized byte.
type VByte uint64

// NewVByteFromWeight converts a weight expressed in weight units into virtual
// bytes, rounding up to the next whole virtual byte.
func NewVByteFromWeight(wu uint64) VByte {
	return VByte((wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor)
}

// ToWU returns the size expressed in weight units.
func (v VByte) ToWU() uint64 {
	return uint64(v) * blockchain.WitnessScaleFactor
}

// String returns the string representation of the virtual byte size.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(v))
}
