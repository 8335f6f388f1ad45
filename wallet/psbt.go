// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// FundPsbt selects coins and builds the unsigned send described by req, as
// Send would, and returns it as a PSBT instead of signing it. Nothing is
// broadcast or journaled.
func (w *Wallet) FundPsbt(ctx context.Context,
	req *SendRequest) (*psbt.Packet, error) {

	_, err := w.DecodeAddress(req.Destination)
	if err != nil {
		return nil, err
	}

	authored, key, err := w.authorSend(ctx, req)
	if err != nil {
		return nil, err
	}

	packet, err := psbt.NewFromUnsignedTx(authored.Tx)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}

	var changeInfo psbt.POutput
	if authored.ChangeIndex >= 0 {
		changeInfo, err = createOutputInfo(key)
		if err != nil {
			return nil, err
		}
	}

	for idx := range packet.Inputs {
		utxo := wire.NewTxOut(
			int64(authored.PrevInputValues[idx]),
			authored.PrevScripts[idx],
		)

		switch req.Policy.(type) {
		case LegacyKeyHash:
			addInputInfoLegacy(&packet.Inputs[idx])

		default:
			addInputInfoSegWitV1(&packet.Inputs[idx], utxo, key)
		}
	}

	if authored.ChangeIndex >= 0 {
		packet.Outputs[authored.ChangeIndex] = changeInfo
	}

	return packet, nil
}

// addInputInfoLegacy adds the sighash type of a p2pkh PSBT input. The full
// previous transaction isn't known to the wallet, so the signer has to
// look it up itself.
func addInputInfoLegacy(in *psbt.PInput) {
	in.SighashType = txscript.SigHashAll
}

// addInputInfoSegWitV1 adds the UTXO and taproot info of a p2tr PSBT input.
// An internal key without a merkle root denotes a BIP-86 output key, so the
// internal key is only set for tweaked outputs. An untweaked key path output
// key is the signing key itself.
func addInputInfoSegWitV1(in *psbt.PInput, utxo *wire.TxOut, key *spendKey) {
	// For SegWit v1 we only need the witness UTXO information.
	in.WitnessUtxo = utxo
	in.SighashType = txscript.SigHashDefault

	if key.merkleRoot == nil {
		return
	}

	in.TaprootInternalKey = schnorr.SerializePubKey(key.pubKey)

	if len(key.merkleRoot) > 0 {
		in.TaprootMerkleRoot = key.merkleRoot
	}

	if key.controlBlock != nil {
		in.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
			ControlBlock: key.controlBlock,
			Script:       key.tapLeaf.Script,
			LeafVersion:  key.tapLeaf.LeafVersion,
		}}
	}
}

// createOutputInfo creates the PSBT info of a change output paying back to
// the policy key. Like inputs, untweaked outputs carry no internal key.
func createOutputInfo(key *spendKey) (psbt.POutput, error) {
	if key.outputKey == nil || key.merkleRoot == nil {
		return psbt.POutput{}, nil
	}

	out := psbt.POutput{
		TaprootInternalKey: schnorr.SerializePubKey(key.pubKey),
	}

	if key.controlBlock != nil {
		tree, err := serializeTapTree(key.tapLeaf)
		if err != nil {
			return psbt.POutput{}, err
		}
		out.TaprootTapTree = tree
	}

	return out, nil
}

// serializeTapTree encodes a single leaf script tree in the PSBT output
// format: depth, leaf version and script of every leaf.
func serializeTapTree(leaf txscript.TapLeaf) ([]byte, error) {
	var buf bytes.Buffer

	// A lone leaf is the root, at depth 0.
	buf.WriteByte(0)
	buf.WriteByte(byte(leaf.LeafVersion))

	err := wire.WriteVarBytes(&buf, 0, leaf.Script)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// PsbtPrevOutputFetcher returns a txscript.PrevOutFetcher built from the UTXO
// information in a PSBT packet.
func PsbtPrevOutputFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range packet.UnsignedTx.TxIn {
		in := packet.Inputs[idx]

		// Skip any input that has no UTXO.
		if in.WitnessUtxo == nil {
			continue
		}

		fetcher.AddPrevOut(txIn.PreviousOutPoint, in.WitnessUtxo)
	}

	return fetcher
}
