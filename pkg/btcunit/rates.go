// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides a set of types for dealing with bitcoin units.
package btcunit

import (
	"fmt"
	"math"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// milli is the number of millisatoshis in one satoshi.
	milli = 1000
)

// MilliSatPerByte is a fee rate expressed in millisatoshis per virtual byte.
// This is the unit fee percentiles are reported in by the bitcoin gateway.
//
// NOTE: numerically a rate in msat/vb is identical to the same rate in
// sat/kvb, which is the unit btcwallet's txrules package works with.
type MilliSatPerByte uint64

// NewMilliSatPerByteFromSatPerVByte converts a fractional sat/vb rate, as
// returned by esplora style fee estimate endpoints, into msat/vb. The result
// is rounded to the nearest millisatoshi.
func NewMilliSatPerByteFromSatPerVByte(satPerVByte float64) MilliSatPerByte {
	if satPerVByte <= 0 || math.IsNaN(satPerVByte) {
		return 0
	}

	return MilliSatPerByte(math.Round(satPerVByte * milli))
}

// FeeForVByte calculates the fee resulting from this fee rate and the given
// size in vbytes. The result is truncated toward zero.
func (m MilliSatPerByte) FeeForVByte(vb VByte) btcutil.Amount {
	return btcutil.Amount(uint64(vb) * uint64(m) / milli)
}

// ToSatPerKVByte converts the fee rate to sat/kvb as used by txrules.
func (m MilliSatPerByte) ToSatPerKVByte() btcutil.Amount {
	return btcutil.Amount(m)
}

// String returns a human-readable string of the fee rate.
func (m MilliSatPerByte) String() string {
	return fmt.Sprintf("%d msat/vb", uint64(m))
}

// Median returns the median entry of the given fee rate sample. For an even
// number of samples the upper of the two middle entries is returned. If the
// sample is empty the fallback rate is returned instead.
//
// The passed slice is not modified.
func Median(samples []MilliSatPerByte,
	fallback MilliSatPerByte) MilliSatPerByte {

	if len(samples) == 0 {
		return fallback
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	return sorted[len(sorted)/2]
}
