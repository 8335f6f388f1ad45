// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/davecgh/go-spew/spew"
)

var (
	// ErrInvalidTx is returned when a signed transaction fails script
	// validation.
	ErrInvalidTx = errors.New("invalid transaction")
)

// publish validates the signed transaction, relays it through the gateway
// and records it in the spend journal.
func (w *Wallet) publish(ctx context.Context, authored *txauthor.AuthoredTx,
	source btcutil.Address, amount btcutil.Amount) (*SendResult, error) {

	tx := authored.Tx

	err := validateMsgTx(
		tx, authored.PrevScripts, authored.PrevInputValues,
	)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	err = tx.Serialize(&buf)
	if err != nil {
		return nil, err
	}

	log.Tracef("Broadcasting transaction: %v", newLogClosure(func() string {
		return spew.Sdump(tx)
	}))

	txid, err := w.cfg.Gateway.Broadcast(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	txHash := tx.TxHash()
	if *txid != txHash {
		return nil, fmt.Errorf("%w: broadcast of %v reported txid %v",
			ErrGateway, txHash, txid)
	}

	// The transaction is out, so a journal failure only risks a later
	// send picking the same coins and being rejected.
	if w.cfg.Journal != nil {
		err := w.cfg.Journal.Record(tx, source)
		if err != nil {
			log.Errorf("Unable to journal transaction %v: %v",
				txHash, err)
		}
	}

	fee := txFee(authored)
	log.Infof("Sent %v from %v in %v (fee %v)", amount, source, txHash,
		fee)

	return &SendResult{
		TxID:        txHash,
		Tx:          tx,
		Amount:      amount,
		Fee:         fee,
		ChangeIndex: authored.ChangeIndex,
	}, nil
}

// validateMsgTx verifies that the transaction is valid for broadcast by
// executing every input script against its previous output.
func validateMsgTx(tx *wire.MsgTx, prevScripts [][]byte,
	inputValues []btcutil.Amount) error {

	inputFetcher, err := txauthor.TXPrevOutFetcher(
		tx, prevScripts, inputValues,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTx, err)
	}

	hashCache := txscript.NewTxSigHashes(tx, inputFetcher)
	for i, prevScript := range prevScripts {
		vm, err := txscript.NewEngine(
			prevScript, tx, i, txscript.StandardVerifyFlags, nil,
			hashCache, int64(inputValues[i]), inputFetcher,
		)
		if err != nil {
			return fmt.Errorf("%w: cannot create script engine: %w",
				ErrInvalidTx, err)
		}

		err = vm.Execute()
		if err != nil {
			return fmt.Errorf("%w: input %d: %w", ErrInvalidTx, i,
				err)
		}
	}

	return nil
}
