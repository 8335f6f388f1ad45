// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package conversion moves a user's value between native bitcoin and the
// wrapped asset. Every conversion attempt appends one record to the user's
// history and finalizes it exactly once.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/minter"
	"github.com/btcsuite/ckbtcwallet/signer"
	"github.com/btcsuite/ckbtcwallet/wallet"
	"golang.org/x/sync/errgroup"
)

// outcomeRejected labels conversions that failed their pre-checks.
const outcomeRejected = "rejected"

// Wallet is the part of the payment engine used by the orchestrator.
type Wallet interface {
	// Address returns the policy's address at the base path.
	Address(ctx context.Context, policy wallet.SpendPolicy,
		path signer.DerivationPath) (btcutil.Address, error)

	// DecodeAddress decodes an address of the wallet's network.
	DecodeAddress(addr string) (btcutil.Address, error)

	// Balance returns the balance of an address.
	Balance(ctx context.Context, addr string) (btcutil.Amount, error)

	// Sweep sends every coin of a key to a destination.
	Sweep(ctx context.Context,
		req *wallet.SweepRequest) (*wallet.SendResult, error)
}

// A compile-time assertion to ensure the payment engine implements Wallet.
var _ Wallet = (*wallet.Wallet)(nil)

// Config holds the collaborators of an Orchestrator.
type Config struct {
	// Wallet is the payment engine holding the users' native coins.
	Wallet Wallet

	// Minter issues and redeems the wrapped asset.
	Minter minter.Minter

	// Store is the ledger of histories, preferences and addresses.
	Store ledger.Store

	// Policy is the spend policy of the users' native addresses.
	Policy wallet.SpendPolicy

	// BasePath is the derivation path the users' paths are appended to.
	BasePath signer.DerivationPath

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Balances are the holdings of a user in both assets.
type Balances struct {
	// Native is the balance of the user's native address, zero if none
	// is registered.
	Native btcutil.Amount

	// Wrapped is the user's wrapped balance.
	Wrapped btcutil.Amount
}

// Orchestrator runs conversions between the two assets.
type Orchestrator struct {
	cfg      Config
	inflight *inflightGuard
}

// NewOrchestrator creates an orchestrator from the given config.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Wallet == nil:
		return nil, fmt.Errorf("%w: wallet", ErrMissingConfig)

	case cfg.Minter == nil:
		return nil, fmt.Errorf("%w: minter", ErrMissingConfig)

	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingConfig)

	case cfg.Policy == nil:
		return nil, fmt.Errorf("%w: spend policy", ErrMissingConfig)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		cfg:      cfg,
		inflight: newInflightGuard(),
	}, nil
}

// UserPath returns the base derivation path of the user's keys.
func (o *Orchestrator) UserPath(user string) signer.DerivationPath {
	return o.cfg.BasePath.Append([]byte(user))
}

// GetBalances returns the user's native and wrapped balances, read
// concurrently.
func (o *Orchestrator) GetBalances(ctx context.Context,
	user string) (*Balances, error) {

	var balances Balances

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr, err := o.nativeAddress(gctx, user)
		switch {
		case err == nil:

		case errors.Is(err, ErrAddressNotFound):
			return nil

		default:
			return err
		}

		balances.Native, err = o.cfg.Wallet.Balance(gctx, addr)

		return err
	})
	g.Go(func() error {
		var err error
		balances.Wrapped, err = o.wrappedBalance(gctx, user)

		return err
	})

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return &balances, nil
}

// GetPreferredAsset returns the asset the user wants to hold.
func (o *Orchestrator) GetPreferredAsset(ctx context.Context,
	user string) (ledger.Asset, error) {

	prefs, err := o.cfg.Store.Preferences(ctx, user)
	if err != nil {
		return 0, err
	}

	return prefs.PreferredAsset, nil
}

// SetPreferredAsset stores the asset the user wants to hold, keeping the
// other preferences.
func (o *Orchestrator) SetPreferredAsset(ctx context.Context, user string,
	asset ledger.Asset) error {

	prefs, err := o.cfg.Store.Preferences(ctx, user)
	if err != nil {
		return err
	}
	prefs.PreferredAsset = asset

	return o.SetPreferences(ctx, user, prefs)
}

// Preferences returns the user's preferences.
func (o *Orchestrator) Preferences(ctx context.Context,
	user string) (ledger.Preferences, error) {

	return o.cfg.Store.Preferences(ctx, user)
}

// SetPreferences stores the user's preferences.
func (o *Orchestrator) SetPreferences(ctx context.Context, user string,
	prefs ledger.Preferences) error {

	switch prefs.PreferredAsset {
	case ledger.AssetBitcoin, ledger.AssetCkBTC:

	default:
		return ledger.NewError(ledger.ErrInvalidRecord,
			fmt.Sprintf("unknown asset %v", prefs.PreferredAsset), nil)
	}

	if prefs.MinAmount < 0 {
		return ledger.NewError(ledger.ErrInvalidRecord,
			fmt.Sprintf("negative min amount %v", prefs.MinAmount),
			nil)
	}

	err := o.cfg.Store.SetPreferences(ctx, user, prefs)
	if err != nil {
		return err
	}

	log.Debugf("Preferences of %s: asset=%v auto=%v min=%v", user,
		prefs.PreferredAsset, prefs.AutoConvert, prefs.MinAmount)

	return nil
}

// RegisterAddress records the user's native address after checking it
// belongs to the wallet's network.
func (o *Orchestrator) RegisterAddress(ctx context.Context, user,
	addr string) error {

	decoded, err := o.cfg.Wallet.DecodeAddress(addr)
	if err != nil {
		return err
	}

	return o.cfg.Store.SetNativeAddress(ctx, user, decoded.EncodeAddress())
}

// RegisterDerivedAddress derives the wallet's address for the user and
// records it as the user's native address.
func (o *Orchestrator) RegisterDerivedAddress(ctx context.Context,
	user string) (btcutil.Address, error) {

	addr, err := o.cfg.Wallet.Address(ctx, o.cfg.Policy, o.UserPath(user))
	if err != nil {
		return nil, err
	}

	err = o.cfg.Store.SetNativeAddress(ctx, user, addr.EncodeAddress())
	if err != nil {
		return nil, err
	}

	log.Infof("Registered %v address %v for %s", o.cfg.Policy, addr, user)

	return addr, nil
}

// GetConversionHistory returns the user's records, oldest first.
func (o *Orchestrator) GetConversionHistory(ctx context.Context,
	user string) ([]ledger.Record, error) {

	return o.cfg.Store.History(ctx, user)
}

// ConvertToNative redeems the user's full wrapped balance to the user's
// native address. The record is only appended once the balance and address
// checks passed. A failed redemption returns the failed record along with
// the error.
func (o *Orchestrator) ConvertToNative(ctx context.Context,
	user string) (*ledger.Record, error) {

	release, err := o.acquire(user)
	if err != nil {
		return nil, err
	}
	defer release()

	balance, err := o.wrappedBalance(ctx, user)
	if err != nil {
		return nil, o.reject(ledger.AssetBitcoin, err)
	}

	if balance == 0 {
		return nil, o.reject(ledger.AssetBitcoin, fmt.Errorf(
			"%w: no wrapped balance for %s", ErrNoBalance, user,
		))
	}

	addr, err := o.nativeAddress(ctx, user)
	if err != nil {
		return nil, o.reject(ledger.AssetBitcoin, err)
	}

	// Once the record is appended it must reach a final status even if
	// the caller goes away. Timeouts are left to the service clients.
	ctx = context.WithoutCancel(ctx)

	a := newAttempt(
		o.cfg.Store, user, ledger.AssetCkBTC, balance, o.cfg.Now(),
	)
	err = a.start(ctx)
	if err != nil {
		return nil, o.reject(ledger.AssetBitcoin, err)
	}

	var reference string
	result, err := o.cfg.Minter.Redeem(ctx, user, addr, balance)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMinter, err)
	} else {
		reference = blockIndexReference(result.BlockIndex)
	}

	return o.finish(ctx, a, reference, err)
}

// ConvertToWrapped sends the user's full native balance to the minter's
// deposit address for the user. The registered address must be the
// wallet's address for the user. The record is only appended once the
// address and balance checks passed. A failed transfer returns the failed
// record along with the error.
func (o *Orchestrator) ConvertToWrapped(ctx context.Context,
	user string) (*ledger.Record, error) {

	release, err := o.acquire(user)
	if err != nil {
		return nil, err
	}
	defer release()

	addr, err := o.nativeAddress(ctx, user)
	if err != nil {
		return nil, o.reject(ledger.AssetCkBTC, err)
	}

	err = o.checkOwnAddress(ctx, user, addr)
	if err != nil {
		return nil, o.reject(ledger.AssetCkBTC, err)
	}

	balance, err := o.cfg.Wallet.Balance(ctx, addr)
	if err != nil {
		return nil, o.reject(ledger.AssetCkBTC, err)
	}

	if balance == 0 {
		return nil, o.reject(ledger.AssetCkBTC, fmt.Errorf(
			"%w: no native balance at %s", ErrNoBalance, addr,
		))
	}

	deposit, err := o.cfg.Minter.DepositAddress(ctx, user)
	if err != nil {
		return nil, o.reject(ledger.AssetCkBTC,
			fmt.Errorf("%w: %w", ErrMinter, err))
	}

	ctx = context.WithoutCancel(ctx)

	a := newAttempt(
		o.cfg.Store, user, ledger.AssetBitcoin, balance, o.cfg.Now(),
	)
	err = a.start(ctx)
	if err != nil {
		return nil, o.reject(ledger.AssetCkBTC, err)
	}

	var reference string
	result, err := o.cfg.Wallet.Sweep(ctx, &wallet.SweepRequest{
		Policy:      o.cfg.Policy,
		Path:        o.UserPath(user),
		Destination: deposit,
	})
	if err == nil {
		reference = result.TxID.String()
	}

	return o.finish(ctx, a, reference, err)
}

// CheckAndConvert converts the user's balance of the other asset toward the
// preferred one if auto conversion is enabled and the balance reaches the
// minimum amount. It returns a nil record when there's nothing to do.
func (o *Orchestrator) CheckAndConvert(ctx context.Context,
	user string) (*ledger.Record, error) {

	prefs, err := o.cfg.Store.Preferences(ctx, user)
	if err != nil {
		return nil, err
	}

	if !prefs.AutoConvert || o.inflight.busy(user) {
		return nil, nil
	}

	balances, err := o.GetBalances(ctx, user)
	if err != nil {
		return nil, err
	}

	switch prefs.PreferredAsset {
	case ledger.AssetBitcoin:
		if !worthConverting(balances.Wrapped, prefs.MinAmount) {
			return nil, nil
		}

		return o.ConvertToNative(ctx, user)

	default:
		if !worthConverting(balances.Native, prefs.MinAmount) {
			return nil, nil
		}

		return o.ConvertToWrapped(ctx, user)
	}
}

// worthConverting reports whether balance is positive and reaches
// minAmount.
func worthConverting(balance, minAmount btcutil.Amount) bool {
	return balance > 0 && balance >= minAmount
}

// acquire takes the user's in-flight token.
func (o *Orchestrator) acquire(user string) (func(), error) {
	release, err := o.inflight.acquire(user)
	if err != nil {
		return nil, err
	}
	trackInFlight(1)

	return func() {
		trackInFlight(-1)
		release()
	}, nil
}

// finish finalizes the attempt's record with the transfer outcome.
func (o *Orchestrator) finish(ctx context.Context, a *attempt,
	reference string, transferErr error) (*ledger.Record, error) {

	rec, err := a.finish(ctx, reference, transferErr)
	if rec == nil {
		log.Errorf("Unable to finalize conversion %v of %s: %v",
			a.record.ID, a.record.User, err)

		return nil, err
	}

	observeConversion(rec.To, rec.Status.String(), rec.Amount)

	if err != nil {
		log.Warnf("Conversion %v of %v %v for %s failed: %v", rec.ID,
			rec.Amount, rec.From, rec.User, err)

		return rec, err
	}

	log.Infof("Converted %v %v to %v for %s (ref %s)", rec.Amount,
		rec.From, rec.To, rec.User, rec.Reference)

	return rec, nil
}

// reject counts a conversion that failed before its record was appended.
func (o *Orchestrator) reject(to ledger.Asset, err error) error {
	observeConversion(to, outcomeRejected, 0)

	return err
}

// nativeAddress returns the user's registered native address.
func (o *Orchestrator) nativeAddress(ctx context.Context,
	user string) (string, error) {

	addr, err := o.cfg.Store.NativeAddress(ctx, user)
	if ledger.IsError(err, ledger.ErrNoAddress) {
		return "", fmt.Errorf("%w: user %s", ErrAddressNotFound, user)
	}

	return addr, err
}

// wrappedBalance returns the user's wrapped balance from the minter.
func (o *Orchestrator) wrappedBalance(ctx context.Context,
	user string) (btcutil.Amount, error) {

	balance, err := o.cfg.Minter.WrappedBalance(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMinter, err)
	}

	return balance, nil
}

// checkOwnAddress checks that addr is the wallet's address for the user.
func (o *Orchestrator) checkOwnAddress(ctx context.Context, user,
	addr string) error {

	derived, err := o.cfg.Wallet.Address(ctx, o.cfg.Policy, o.UserPath(user))
	if err != nil {
		return err
	}

	if derived.EncodeAddress() != addr {
		return fmt.Errorf("%w: %s isn't the %v address of %s",
			ErrForeignAddress, addr, o.cfg.Policy, user)
	}

	return nil
}
