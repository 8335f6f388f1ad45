// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/ckbtcwallet/signer"
)

// AddressDeriver maps signing service keys to the addresses of each spend
// policy.
type AddressDeriver struct {
	signer      signer.ThresholdSigner
	chainParams *chaincfg.Params
}

// NewAddressDeriver creates an address deriver for the given network.
func NewAddressDeriver(s signer.ThresholdSigner,
	params *chaincfg.Params) *AddressDeriver {

	return &AddressDeriver{signer: s, chainParams: params}
}

// Derive returns the address of the policy for the key at the base path.
// The result only depends on the policy, the path and the signing service's
// key.
func (d *AddressDeriver) Derive(ctx context.Context, policy SpendPolicy,
	path signer.DerivationPath) (btcutil.Address, error) {

	key, err := d.spendKey(ctx, policy, path)
	if err != nil {
		return nil, err
	}

	log.Debugf("Derived %v address %v at %v", policy, key.address, path)

	return key.address, nil
}

// spendKey fetches the policy key for the base path and derives its
// locking script information.
func (d *AddressDeriver) spendKey(ctx context.Context, policy SpendPolicy,
	path signer.DerivationPath) (*spendKey, error) {

	keyPath := policyPath(policy, path)

	rawKey, err := d.signer.PublicKey(ctx, keyPath, policy.Scheme())
	if err != nil {
		return nil, fmt.Errorf("%w: public key at %v: %w",
			ErrSigningService, keyPath, err)
	}

	return policy.spendKey(rawKey, d.chainParams)
}

// policyPath appends the policy's suffix to the base path.
func policyPath(policy SpendPolicy,
	path signer.DerivationPath) signer.DerivationPath {

	return path.Append([]byte(policy.PathSuffix()))
}
