// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Coin represents a spendable UTXO which is available for coin selection.
type Coin struct {
	wire.TxOut
	wire.OutPoint
}

// Amount returns the value of the coin.
func (c *Coin) Amount() btcutil.Amount {
	return btcutil.Amount(c.Value)
}

// CoinSelector chooses the coins that fund a transaction.
type CoinSelector interface {
	// SelectCoins returns a subset of coins whose total value is at
	// least target. It fails with ErrInsufficientFunds if no such subset
	// exists.
	SelectCoins(coins []Coin, target btcutil.Amount) ([]Coin, error)
}

// LargestFirstCoinSelector is an implementation of the CoinSelector that
// always selects the largest coins first.
type LargestFirstCoinSelector struct{}

// A compile-time assertion to ensure LargestFirstCoinSelector implements
// the CoinSelector interface.
var _ CoinSelector = (*LargestFirstCoinSelector)(nil)

// SelectCoins sorts the coins by value, largest first, and accumulates them
// until the target is reached. Coins of equal value keep their relative
// order. The passed slice is not modified.
func (*LargestFirstCoinSelector) SelectCoins(coins []Coin,
	target btcutil.Amount) ([]Coin, error) {

	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: no coins to select from",
			ErrInsufficientFunds)
	}

	sorted := dedupCoins(coins)
	slices.SortStableFunc(sorted, func(a, b Coin) int {
		return cmp.Compare(b.Value, a.Value)
	})

	var total btcutil.Amount
	for i := range sorted {
		total += sorted[i].Amount()
		if total >= target {
			return sorted[:i+1], nil
		}
	}

	return nil, fmt.Errorf("%w: have %v, need %v", ErrInsufficientFunds,
		total, target)
}

// dedupCoins returns a copy of coins with repeated outpoints removed. The
// gateway may report the same outpoint twice across pages.
func dedupCoins(coins []Coin) []Coin {
	seen := fn.NewSet[wire.OutPoint]()
	unique := make([]Coin, 0, len(coins))
	for _, coin := range coins {
		if seen.Contains(coin.OutPoint) {
			log.Debugf("Skipping duplicate coin %v", coin.OutPoint)
			continue
		}

		seen.Add(coin.OutPoint)
		unique = append(unique, coin)
	}

	return unique
}

// totalValue sums the value of the coins.
func totalValue(coins []Coin) btcutil.Amount {
	var total btcutil.Amount
	for i := range coins {
		total += coins[i].Amount()
	}

	return total
}
