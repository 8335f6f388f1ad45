// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// TxVersion is the version of every transaction the wallet builds.
	TxVersion = 2

	// noChange is the change index of transactions without change.
	noChange = -1
)

// BuildParams describes an unsigned spend.
type BuildParams struct {
	// Coins are the selected coins, spent in order.
	Coins []Coin

	// Destination is the address paid by output 0.
	Destination string

	// ChangeAddress receives the remainder in output 1.
	ChangeAddress string

	// Amount is the value paid to the destination.
	Amount btcutil.Amount

	// Fee is the fee the transaction must pay at least.
	Fee btcutil.Amount
}

// TxBuilder assembles unsigned transactions.
type TxBuilder struct {
	chainParams *chaincfg.Params

	// relayFee is the relay fee in sat/kvb used for dust checks.
	relayFee btcutil.Amount
}

// NewTxBuilder creates a builder for the given network. The relay fee, in
// sat/kvb, is used to decide which outputs are dust.
func NewTxBuilder(params *chaincfg.Params,
	relayFeePerKb btcutil.Amount) *TxBuilder {

	if relayFeePerKb == 0 {
		relayFeePerKb = txrules.DefaultRelayFeePerKb
	}

	return &TxBuilder{chainParams: params, relayFee: relayFeePerKb}
}

// DecodeAddress decodes an address and checks that it belongs to the
// builder's network.
func (b *TxBuilder) DecodeAddress(addr string) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(addr, b.chainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}

	if !decoded.IsForNet(b.chainParams) {
		return nil, fmt.Errorf("%w: %q is not a %s address",
			ErrInvalidAddress, addr, b.chainParams.Name)
	}

	return decoded, nil
}

// BuildTransaction builds the unsigned transaction described by params. It
// has one input per coin with an empty unlocking script and a final
// sequence, output 0 paying the destination and, unless the remainder is
// dust, output 1 paying the remainder to the change address. A dust
// remainder is left to the fee, so sum(inputs) == sum(outputs) + fee holds
// with fee >= params.Fee.
func (b *TxBuilder) BuildTransaction(
	params *BuildParams) (*txauthor.AuthoredTx, error) {

	destination, err := b.DecodeAddress(params.Destination)
	if err != nil {
		return nil, err
	}

	change, err := b.DecodeAddress(params.ChangeAddress)
	if err != nil {
		return nil, err
	}

	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount %v", ErrNoTxOutputs,
			params.Amount)
	}

	if len(params.Coins) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInsufficientFunds)
	}

	total := totalValue(params.Coins)
	if total < params.Amount+params.Fee {
		return nil, fmt.Errorf("%w: inputs %v < amount %v + fee %v",
			ErrInsufficientFunds, total, params.Amount, params.Fee)
	}

	destScript, err := txscript.PayToAddrScript(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	recipient := wire.NewTxOut(int64(params.Amount), destScript)
	err = txrules.CheckOutput(recipient, b.relayFee)
	if err != nil {
		return nil, fmt.Errorf("recipient output: %w", err)
	}

	tx := wire.NewMsgTx(TxVersion)
	prevScripts := make([][]byte, 0, len(params.Coins))
	prevValues := make([]btcutil.Amount, 0, len(params.Coins))
	seen := fn.NewSet[wire.OutPoint]()
	for _, coin := range params.Coins {
		if seen.Contains(coin.OutPoint) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatedUtxo,
				coin.OutPoint)
		}
		seen.Add(coin.OutPoint)

		txIn := wire.NewTxIn(&coin.OutPoint, nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum

		tx.AddTxIn(txIn)
		prevScripts = append(prevScripts, coin.PkScript)
		prevValues = append(prevValues, coin.Amount())
	}

	tx.AddTxOut(recipient)

	changeIndex := noChange
	remainder := total - params.Amount - params.Fee
	changeScript, err := txscript.PayToAddrScript(change)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	changeOut := wire.NewTxOut(int64(remainder), changeScript)
	switch {
	case remainder <= 0:
		log.Tracef("Inputs match amount and fee, no change")

	case txrules.IsDustOutput(changeOut, b.relayFee):
		log.Debugf("Dropping dust change of %v to the fee", remainder)

	default:
		tx.AddTxOut(changeOut)
		changeIndex = 1
	}

	return &txauthor.AuthoredTx{
		Tx:              tx,
		PrevScripts:     prevScripts,
		PrevInputValues: prevValues,
		TotalInput:      total,
		ChangeIndex:     changeIndex,
	}, nil
}

// txFee returns the fee paid by an authored transaction.
func txFee(tx *txauthor.AuthoredTx) btcutil.Amount {
	var out btcutil.Amount
	for _, txOut := range tx.Tx.TxOut {
		out += btcutil.Amount(txOut.Value)
	}

	return tx.TotalInput - out
}
