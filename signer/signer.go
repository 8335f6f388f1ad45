// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signer defines the capability the wallet uses to obtain public keys
// and signatures from a threshold signing service. The wallet never holds
// private key material itself.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnknownScheme is returned when a signature scheme is not
	// supported.
	ErrUnknownScheme = errors.New("unknown signature scheme")

	// ErrEmptyDigest is returned when a sign request carries no digest.
	ErrEmptyDigest = errors.New("empty digest")

	// ErrInvalidPath is returned when a derivation path can't be parsed.
	ErrInvalidPath = errors.New("invalid derivation path")
)

// Scheme is the signature scheme a key is used with.
type Scheme uint8

const (
	// SchemeECDSA selects secp256k1 ECDSA signatures.
	SchemeECDSA Scheme = iota

	// SchemeSchnorr selects BIP-340 Schnorr signatures.
	SchemeSchnorr
)

// String returns the wire name of the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeECDSA:
		return "ecdsa"

	case SchemeSchnorr:
		return "schnorr"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// DerivationPath is a sequence of opaque path segments used by the signing
// service to derive a distinct key from its master key.
type DerivationPath [][]byte

// Append returns a copy of the path with the given segment appended. The
// receiver is never modified.
func (p DerivationPath) Append(segment []byte) DerivationPath {
	path := make(DerivationPath, 0, len(p)+1)
	for _, s := range p {
		path = append(path, slices.Clone(s))
	}

	return append(path, slices.Clone(segment))
}

// Hex returns the hex encoding of every path segment.
func (p DerivationPath) Hex() []string {
	segments := make([]string, 0, len(p))
	for _, s := range p {
		segments = append(segments, hex.EncodeToString(s))
	}

	return segments
}

// String returns the path as "/" separated hex segments.
func (p DerivationPath) String() string {
	return "m/" + strings.Join(p.Hex(), "/")
}

// ParseDerivationPath parses a "/" separated path. A leading "m" is ignored.
// Segments prefixed with "0x" are hex decoded, all other segments are used
// as raw bytes.
func ParseDerivationPath(s string) (DerivationPath, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "m")
	s = strings.Trim(s, "/")
	if s == "" {
		return DerivationPath{}, nil
	}

	var path DerivationPath
	for _, segment := range strings.Split(s, "/") {
		if segment == "" {
			return nil, fmt.Errorf("%w: empty segment in %q",
				ErrInvalidPath, s)
		}

		hexSegment, ok := strings.CutPrefix(segment, "0x")
		if !ok {
			path = append(path, []byte(segment))
			continue
		}

		raw, err := hex.DecodeString(hexSegment)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}

		path = append(path, raw)
	}

	return path, nil
}

// TaprootTweak asks the signing service to sign with the BIP-341 tweaked
// version of the derived key.
type TaprootTweak struct {
	// MerkleRoot is the script tree root committed to by the output key.
	// An empty root selects the BIP-86 key-only tweak.
	MerkleRoot []byte
}

// SignRequest describes a single signature request.
type SignRequest struct {
	// Path is the full derivation path of the signing key.
	Path DerivationPath

	// Digest is the 32-byte message hash to sign.
	Digest []byte

	// Scheme selects the signature scheme.
	Scheme Scheme

	// Tweak, if set, requests a signature under the taproot tweaked key.
	// Only valid with SchemeSchnorr.
	Tweak *TaprootTweak
}

// Validate performs basic sanity checks on the request.
func (r *SignRequest) Validate() error {
	if len(r.Digest) == 0 {
		return ErrEmptyDigest
	}

	switch r.Scheme {
	case SchemeECDSA:
		if r.Tweak != nil {
			return fmt.Errorf("%w: taproot tweak with ecdsa",
				ErrUnknownScheme)
		}

	case SchemeSchnorr:

	default:
		return fmt.Errorf("%w: %v", ErrUnknownScheme, r.Scheme)
	}

	return nil
}

// ThresholdSigner is the capability offered by the threshold signing
// service. Implementations must be safe for concurrent use.
type ThresholdSigner interface {
	// PublicKey returns the serialized public key derived at the given
	// path for the given scheme. ECDSA keys are returned in SEC1
	// compressed form, Schnorr keys either compressed or x-only.
	PublicKey(ctx context.Context, path DerivationPath,
		scheme Scheme) ([]byte, error)

	// Sign returns a signature over the request's digest. ECDSA
	// signatures are returned either DER encoded or as 64-byte compact
	// r||s, Schnorr signatures as 64 bytes.
	Sign(ctx context.Context, req SignRequest) ([]byte, error)
}
