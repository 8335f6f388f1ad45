// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// compactSigSize is the size of a compact r||s ECDSA signature.
	compactSigSize = 64

	// scalarSize is the size of a serialized secp256k1 scalar.
	scalarSize = 32
)

// SpendPolicy is the combination of locking script and signature scheme
// used to receive and later spend coins. The set of policies is closed:
// LegacyKeyHash, TaprootScriptPath and TaprootKeyPath.
type SpendPolicy interface {
	fmt.Stringer

	// PathSuffix is the segment appended to a base derivation path to
	// obtain the policy's key.
	PathSuffix() string

	// Scheme is the signature scheme of the policy's key.
	Scheme() signer.Scheme

	// SizeModel estimates the size of transactions spending the
	// policy's outputs.
	SizeModel() TxSizeModel

	// spendKey parses the key returned by the signing service and
	// derives the locking script information from it.
	spendKey(rawKey []byte, params *chaincfg.Params) (*spendKey, error)

	// sigHash computes the digest to sign for the input at idx.
	sigHash(sc *sigContext, idx int) ([]byte, error)

	// tweak is the taproot tweak to request from the signing service,
	// if any.
	tweak(key *spendKey) *signer.TaprootTweak

	// unlock checks the signature returned by the signing service and
	// writes the unlocking script or witness of the input at idx.
	unlock(sc *sigContext, idx int, digest, rawSig []byte) error
}

// spendKey holds a policy key and everything derived from it.
type spendKey struct {
	// pubKey is the key returned by the signing service.
	pubKey *btcec.PublicKey

	// outputKey is the key the taproot output commits to. It's nil for
	// legacy spends.
	outputKey *btcec.PublicKey

	// address is the address of the policy's output.
	address btcutil.Address

	// pkScript is the locking script of the policy's output.
	pkScript []byte

	// tapLeaf is the single leaf of the script path tree.
	tapLeaf txscript.TapLeaf

	// controlBlock is the serialized control block of tapLeaf.
	controlBlock []byte

	// merkleRoot is the taproot tweak: the root of the script tree, or
	// empty for a BIP-86 tweak. It's nil when the output key is the
	// untweaked key itself.
	merkleRoot []byte
}

// sigContext carries the data shared by the inputs of a transaction being
// signed.
type sigContext struct {
	tx          *wire.MsgTx
	prevScripts [][]byte
	fetcher     txscript.PrevOutputFetcher
	sigHashes   *txscript.TxSigHashes
	key         *spendKey
}

// LegacyKeyHash spends pay-to-pubkey-hash outputs with ECDSA signatures.
type LegacyKeyHash struct{}

// TaprootScriptPath spends taproot outputs through a single leaf script
// `<key> OP_CHECKSIG` committed to under the same key.
type TaprootScriptPath struct{}

// TaprootKeyPath spends taproot outputs through the key path.
type TaprootKeyPath struct {
	// Tweaked selects a BIP-86 tweaked output key. When unset the
	// output key is the signing service's key itself, which is unfit
	// for any setup where several parties must cooperate on the key
	// path.
	Tweaked bool
}

// A compile-time assertion to ensure all policies implement SpendPolicy.
var (
	_ SpendPolicy = LegacyKeyHash{}
	_ SpendPolicy = TaprootScriptPath{}
	_ SpendPolicy = TaprootKeyPath{}
)

// ParseSpendPolicy parses a policy name as returned by String.
func ParseSpendPolicy(name string) (SpendPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "p2pkh", "legacy":
		return LegacyKeyHash{}, nil

	case "p2tr_script", "taproot_script":
		return TaprootScriptPath{}, nil

	case "p2tr_key", "taproot_key":
		return TaprootKeyPath{}, nil

	case "p2tr_key_tweaked", "taproot_key_tweaked":
		return TaprootKeyPath{Tweaked: true}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// String returns the policy name.
func (LegacyKeyHash) String() string { return "p2pkh" }

// PathSuffix returns the derivation path segment of the policy.
func (LegacyKeyHash) PathSuffix() string { return "p2pkh" }

// Scheme returns the signature scheme of the policy.
func (LegacyKeyHash) Scheme() signer.Scheme { return signer.SchemeECDSA }

// SizeModel returns the size model of the policy.
func (LegacyKeyHash) SizeModel() TxSizeModel { return LegacyKeyHashSizeModel }

func (LegacyKeyHash) spendKey(rawKey []byte,
	params *chaincfg.Params) (*spendKey, error) {

	pubKey, err := btcec.ParsePubKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), params,
	)
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &spendKey{
		pubKey:   pubKey,
		address:  addr,
		pkScript: pkScript,
	}, nil
}

func (LegacyKeyHash) sigHash(sc *sigContext, idx int) ([]byte, error) {
	return txscript.CalcSignatureHash(
		sc.prevScripts[idx], txscript.SigHashAll, sc.tx, idx,
	)
}

func (LegacyKeyHash) tweak(*spendKey) *signer.TaprootTweak { return nil }

func (LegacyKeyHash) unlock(sc *sigContext, idx int, digest,
	rawSig []byte) error {

	sig, err := parseECDSASignature(rawSig)
	if err != nil {
		return err
	}

	if !sig.Verify(digest, sc.key.pubKey) {
		return fmt.Errorf("%w: ecdsa signature for input %d doesn't "+
			"verify", ErrSigningService, idx)
	}

	sigScript, err := txscript.NewScriptBuilder().
		AddData(append(sig.Serialize(), byte(txscript.SigHashAll))).
		AddData(sc.key.pubKey.SerializeCompressed()).
		Script()
	if err != nil {
		return err
	}

	sc.tx.TxIn[idx].SignatureScript = sigScript

	return nil
}

// String returns the policy name.
func (TaprootScriptPath) String() string { return "p2tr_script" }

// PathSuffix returns the derivation path segment of the policy.
func (TaprootScriptPath) PathSuffix() string { return "p2tr_script" }

// Scheme returns the signature scheme of the policy.
func (TaprootScriptPath) Scheme() signer.Scheme { return signer.SchemeSchnorr }

// SizeModel returns the size model of the policy.
func (TaprootScriptPath) SizeModel() TxSizeModel {
	return TaprootScriptPathSizeModel
}

func (TaprootScriptPath) spendKey(rawKey []byte,
	params *chaincfg.Params) (*spendKey, error) {

	internalKey, err := parseTaprootKey(rawKey)
	if err != nil {
		return nil, err
	}

	leafScript, err := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(internalKey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	leaf := txscript.NewBaseTapLeaf(leafScript)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	rootHash := tree.RootNode.TapHash()

	controlBlock := tree.LeafMerkleProofs[0].ToControlBlock(internalKey)
	ctrlBytes, err := controlBlock.ToBytes()
	if err != nil {
		return nil, err
	}

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])

	key, err := taprootSpendKey(internalKey, outputKey, params)
	if err != nil {
		return nil, err
	}
	key.tapLeaf = leaf
	key.controlBlock = ctrlBytes
	key.merkleRoot = rootHash[:]

	return key, nil
}

func (TaprootScriptPath) sigHash(sc *sigContext, idx int) ([]byte, error) {
	return txscript.CalcTapscriptSignaturehash(
		sc.sigHashes, txscript.SigHashDefault, sc.tx, idx, sc.fetcher,
		sc.key.tapLeaf,
	)
}

// tweak returns nil: the leaf script checks a signature of the untweaked
// key.
func (TaprootScriptPath) tweak(*spendKey) *signer.TaprootTweak { return nil }

func (TaprootScriptPath) unlock(sc *sigContext, idx int, digest,
	rawSig []byte) error {

	sig, err := parseSchnorrSignature(rawSig, digest, sc.key.pubKey, idx)
	if err != nil {
		return err
	}

	sc.tx.TxIn[idx].Witness = wire.TxWitness{
		sig.Serialize(), sc.key.tapLeaf.Script, sc.key.controlBlock,
	}

	return nil
}

// String returns the policy name.
func (p TaprootKeyPath) String() string {
	if p.Tweaked {
		return "p2tr_key_tweaked"
	}

	return "p2tr_key"
}

// PathSuffix returns the derivation path segment of the policy. The tweaked
// and untweaked variants share the key.
func (TaprootKeyPath) PathSuffix() string { return "p2tr_key" }

// Scheme returns the signature scheme of the policy.
func (TaprootKeyPath) Scheme() signer.Scheme { return signer.SchemeSchnorr }

// SizeModel returns the size model of the policy.
func (TaprootKeyPath) SizeModel() TxSizeModel { return TaprootKeyPathSizeModel }

func (p TaprootKeyPath) spendKey(rawKey []byte,
	params *chaincfg.Params) (*spendKey, error) {

	internalKey, err := parseTaprootKey(rawKey)
	if err != nil {
		return nil, err
	}

	if !p.Tweaked {
		return taprootSpendKey(internalKey, internalKey, params)
	}

	key, err := taprootSpendKey(
		internalKey, txscript.ComputeTaprootKeyNoScript(internalKey),
		params,
	)
	if err != nil {
		return nil, err
	}
	key.merkleRoot = []byte{}

	return key, nil
}

func (TaprootKeyPath) sigHash(sc *sigContext, idx int) ([]byte, error) {
	return txscript.CalcTaprootSignatureHash(
		sc.sigHashes, txscript.SigHashDefault, sc.tx, idx, sc.fetcher,
	)
}

func (p TaprootKeyPath) tweak(key *spendKey) *signer.TaprootTweak {
	if !p.Tweaked {
		return nil
	}

	return &signer.TaprootTweak{MerkleRoot: key.merkleRoot}
}

func (TaprootKeyPath) unlock(sc *sigContext, idx int, digest,
	rawSig []byte) error {

	sig, err := parseSchnorrSignature(
		rawSig, digest, sc.key.outputKey, idx,
	)
	if err != nil {
		return err
	}

	// With SigHashDefault no sighash byte is appended.
	sc.tx.TxIn[idx].Witness = wire.TxWitness{sig.Serialize()}

	return nil
}

// taprootSpendKey builds the spend key of a taproot output committing to
// outputKey.
func taprootSpendKey(internalKey, outputKey *btcec.PublicKey,
	params *chaincfg.Params) (*spendKey, error) {

	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), params,
	)
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &spendKey{
		pubKey:    internalKey,
		outputKey: outputKey,
		address:   addr,
		pkScript:  pkScript,
	}, nil
}

// parseTaprootKey parses a key returned for a Schnorr path. Both x-only and
// SEC1 encodings are accepted.
func parseTaprootKey(rawKey []byte) (*btcec.PublicKey, error) {
	var (
		key *btcec.PublicKey
		err error
	)
	if len(rawKey) == schnorr.PubKeyBytesLen {
		key, err = schnorr.ParsePubKey(rawKey)
	} else {
		key, err = btcec.ParsePubKey(rawKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	// Normalize to the even-y key the x-only encoding commits to.
	return schnorr.ParsePubKey(schnorr.SerializePubKey(key))
}

// parseECDSASignature parses an ECDSA signature returned either DER encoded
// or as compact r||s.
func parseECDSASignature(rawSig []byte) (*ecdsa.Signature, error) {
	if len(rawSig) != compactSigSize {
		sig, err := ecdsa.ParseDERSignature(rawSig)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed ecdsa signature: %v",
				ErrSigningService, err)
		}

		return sig, nil
	}

	var r, s secp256k1.ModNScalar
	overflowR := r.SetByteSlice(rawSig[:scalarSize])
	overflowS := s.SetByteSlice(rawSig[scalarSize:])
	if overflowR || overflowS || r.IsZero() || s.IsZero() {
		return nil, fmt.Errorf("%w: compact ecdsa signature out of "+
			"range", ErrSigningService)
	}

	return ecdsa.NewSignature(&r, &s), nil
}

// parseSchnorrSignature parses a Schnorr signature and checks it against
// the digest and key.
func parseSchnorrSignature(rawSig, digest []byte, key *btcec.PublicKey,
	idx int) (*schnorr.Signature, error) {

	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed schnorr signature: %v",
			ErrSigningService, err)
	}

	if !sig.Verify(digest, key) {
		return nil, fmt.Errorf("%w: schnorr signature for input %d "+
			"doesn't verify", ErrSigningService, idx)
	}

	return sig, nil
}
