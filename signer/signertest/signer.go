// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signertest provides a deterministic in-process ThresholdSigner for
// tests and regtest setups. Keys are derived by hashing a seed with the
// derivation path, so the same seed and path always yield the same key.
package signertest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/ckbtcwallet/signer"
)

// Signer is a deterministic signer.ThresholdSigner.
type Signer struct {
	seed []byte

	mu sync.Mutex

	// publicKeyErr, if set, is returned by every PublicKey call.
	publicKeyErr error

	// signErr, if set, is returned by every Sign call.
	signErr error

	// corrupt makes Sign return malformed signature bytes.
	corrupt bool

	// signCalls counts the Sign calls made.
	signCalls int
}

// A compile-time assertion to ensure Signer implements
// signer.ThresholdSigner.
var _ signer.ThresholdSigner = (*Signer)(nil)

// New creates a deterministic signer for the given seed.
func New(seed []byte) *Signer {
	return &Signer{seed: append([]byte(nil), seed...)}
}

// FailPublicKey makes subsequent PublicKey calls fail with err. A nil err
// restores normal operation.
func (s *Signer) FailPublicKey(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publicKeyErr = err
}

// FailSign makes subsequent Sign calls fail with err. A nil err restores
// normal operation.
func (s *Signer) FailSign(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signErr = err
}

// CorruptSignatures makes subsequent Sign calls return bytes that are not a
// valid signature.
func (s *Signer) CorruptSignatures(corrupt bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corrupt = corrupt
}

// SignCalls returns the number of Sign calls made so far.
func (s *Signer) SignCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.signCalls
}

// PrivKey returns the private key derived at the given path.
func (s *Signer) PrivKey(path signer.DerivationPath) *btcec.PrivateKey {
	h := sha256.New()
	h.Write(s.seed)

	var lenBuf [4]byte
	for _, segment := range path {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(segment)))
		h.Write(lenBuf[:])
		h.Write(segment)
	}

	privKey, _ := btcec.PrivKeyFromBytes(h.Sum(nil))

	return privKey
}

// PublicKey returns the compressed public key derived at the given path.
func (s *Signer) PublicKey(_ context.Context, path signer.DerivationPath,
	_ signer.Scheme) ([]byte, error) {

	s.mu.Lock()
	err := s.publicKeyErr
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return s.PrivKey(path).PubKey().SerializeCompressed(), nil
}

// Sign signs the request digest with the key derived at the request path.
// ECDSA signatures are DER encoded.
func (s *Signer) Sign(_ context.Context,
	req signer.SignRequest) ([]byte, error) {

	s.mu.Lock()
	s.signCalls++
	err, corrupt := s.signErr, s.corrupt
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	err = req.Validate()
	if err != nil {
		return nil, err
	}

	if corrupt {
		return []byte{0x30, 0x01, 0x02}, nil
	}

	privKey := s.PrivKey(req.Path)

	switch req.Scheme {
	case signer.SchemeECDSA:
		return ecdsa.Sign(privKey, req.Digest).Serialize(), nil

	default:
		if req.Tweak != nil {
			privKey = txscript.TweakTaprootPrivKey(
				*privKey, req.Tweak.MerkleRoot,
			)
		}

		sig, err := schnorr.Sign(privKey, req.Digest)
		if err != nil {
			return nil, err
		}

		return sig.Serialize(), nil
	}
}
