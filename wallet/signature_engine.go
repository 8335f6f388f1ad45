// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/ckbtcwallet/signer"
)

// SignatureEngine signs the inputs of authored transactions through the
// threshold signing service.
type SignatureEngine struct {
	signer  signer.ThresholdSigner
	deriver *AddressDeriver
}

// NewSignatureEngine creates a signature engine using the deriver's signer.
func NewSignatureEngine(deriver *AddressDeriver) *SignatureEngine {
	return &SignatureEngine{signer: deriver.signer, deriver: deriver}
}

// SignTransaction signs every input of tx, in ascending index order, with
// the key of the policy at the base path. The unlocking script or witness of
// each input is written in place. Any failure aborts signing, leaving the
// transaction partially signed.
func (e *SignatureEngine) SignTransaction(ctx context.Context,
	policy SpendPolicy, path signer.DerivationPath,
	authoredTx *txauthor.AuthoredTx) error {

	key, err := e.deriver.spendKey(ctx, policy, path)
	if err != nil {
		return err
	}

	tx := authoredTx.Tx
	if len(authoredTx.PrevScripts) != len(tx.TxIn) ||
		len(authoredTx.PrevInputValues) != len(tx.TxIn) {

		return fmt.Errorf("have %d prev scripts and %d prev values "+
			"for %d inputs", len(authoredTx.PrevScripts),
			len(authoredTx.PrevInputValues), len(tx.TxIn))
	}

	fetcher, err := txauthor.TXPrevOutFetcher(
		tx, authoredTx.PrevScripts, authoredTx.PrevInputValues,
	)
	if err != nil {
		return err
	}

	sc := &sigContext{
		tx:          tx,
		prevScripts: authoredTx.PrevScripts,
		fetcher:     fetcher,
		sigHashes:   txscript.NewTxSigHashes(tx, fetcher),
		key:         key,
	}

	keyPath := policyPath(policy, path)
	for idx := range tx.TxIn {
		if !bytes.Equal(sc.prevScripts[idx], key.pkScript) {
			return fmt.Errorf("%w: input %d (%v) isn't locked to %v",
				ErrForeignInput, idx,
				tx.TxIn[idx].PreviousOutPoint, key.address)
		}

		digest, err := policy.sigHash(sc, idx)
		if err != nil {
			return fmt.Errorf("sighash of input %d: %w", idx, err)
		}

		start := time.Now()
		rawSig, err := e.signer.Sign(ctx, signer.SignRequest{
			Path:   keyPath,
			Digest: digest,
			Scheme: policy.Scheme(),
			Tweak:  policy.tweak(key),
		})
		observeSigning(policy, time.Since(start))
		if err != nil {
			return fmt.Errorf("%w: sign input %d: %w",
				ErrSigningService, idx, err)
		}

		err = policy.unlock(sc, idx, digest, rawSig)
		if err != nil {
			return err
		}
	}

	log.Debugf("Signed %d inputs of %v with %v", len(tx.TxIn),
		tx.TxHash(), policy)

	return nil
}
