// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger defines the durable per-user state of the wallet: the
// append-only conversion history, the user preferences and the registered
// native deposit addresses. Concrete stores live in the kvdb and sqldb
// subpackages.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
)

// Asset identifies one of the two representations of value the wallet
// handles.
type Asset uint8

const (
	// AssetBitcoin is native bitcoin held in UTXOs.
	AssetBitcoin Asset = iota

	// AssetCkBTC is the wrapped token redeemable through the minter.
	AssetCkBTC
)

// String returns the canonical name of the asset.
func (a Asset) String() string {
	switch a {
	case AssetBitcoin:
		return "bitcoin"

	case AssetCkBTC:
		return "ckbtc"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Other returns the opposite asset.
func (a Asset) Other() Asset {
	if a == AssetBitcoin {
		return AssetCkBTC
	}

	return AssetBitcoin
}

// ParseAsset parses an asset name. Matching is case insensitive and accepts
// "btc" as an alias for bitcoin.
func ParseAsset(s string) (Asset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bitcoin", "btc":
		return AssetBitcoin, nil

	case "ckbtc":
		return AssetCkBTC, nil

	default:
		return 0, NewError(ErrInvalidRecord,
			fmt.Sprintf("unknown asset %q", s), nil)
	}
}

// Status is the state of a conversion record.
type Status uint8

const (
	// StatusPending is the state of a freshly appended record whose
	// transfer hasn't finished yet.
	StatusPending Status = iota

	// StatusComplete marks a successful transfer.
	StatusComplete

	// StatusFailed marks a failed transfer. The record's FailReason holds
	// the cause.
	StatusFailed
)

// String returns the canonical name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"

	case StatusComplete:
		return "complete"

	case StatusFailed:
		return "failed"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil

	case "complete":
		return StatusComplete, nil

	case "failed":
		return StatusFailed, nil

	default:
		return 0, NewError(ErrInvalidStatus,
			fmt.Sprintf("unknown status %q", s), nil)
	}
}

// Record is a single entry of a user's conversion history. Once appended,
// only Status, FailReason and Reference of the user's most recent record may
// change, and only once.
type Record struct {
	// ID uniquely identifies the record.
	ID uuid.UUID

	// User is the identity the record belongs to.
	User string

	// Timestamp is the time the conversion was started.
	Timestamp time.Time

	// From is the asset converted from.
	From Asset

	// To is the asset converted to.
	To Asset

	// Amount is the full balance observed when the conversion started.
	Amount btcutil.Amount

	// Status is the current state of the conversion.
	Status Status

	// FailReason describes the error of a failed conversion.
	FailReason string

	// Reference identifies the transfer: a txid for native transfers, a
	// minter block index for redemptions.
	Reference string
}

// NewPendingRecord creates a pending record for a conversion that starts
// now.
func NewPendingRecord(user string, from, to Asset,
	amount btcutil.Amount, now time.Time) Record {

	return Record{
		ID:        uuid.New(),
		User:      user,
		Timestamp: now.UTC().Truncate(time.Microsecond),
		From:      from,
		To:        to,
		Amount:    amount,
		Status:    StatusPending,
	}
}

// Validate checks a record about to be appended.
func (r *Record) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return NewError(ErrInvalidRecord, "missing record id", nil)

	case r.User == "":
		return NewError(ErrInvalidRecord, "missing user", nil)

	case r.From == r.To:
		return NewError(ErrInvalidRecord,
			fmt.Sprintf("conversion from %v to itself", r.From), nil)

	case r.Status != StatusPending:
		return NewError(ErrInvalidRecord,
			fmt.Sprintf("new record with status %v", r.Status), nil)
	}

	return nil
}

// StatusUpdate finalizes the most recent record of a user.
type StatusUpdate struct {
	// ID is the id of the record the caller appended. The update is
	// refused if this isn't the user's most recent record.
	ID uuid.UUID

	// Status is the final status, complete or failed.
	Status Status

	// FailReason is stored for failed conversions.
	FailReason string

	// Reference identifies the transfer, if any.
	Reference string
}

// Validate checks the update's target status.
func (u *StatusUpdate) Validate() error {
	switch u.Status {
	case StatusComplete, StatusFailed:
		return nil

	default:
		return NewError(ErrInvalidStatus,
			fmt.Sprintf("can't move record to %v", u.Status), nil)
	}
}

// Apply checks that the update may be applied to rec, the user's most recent
// record, and applies it. Stores call this inside their write transaction.
func (u *StatusUpdate) Apply(rec *Record) error {
	err := u.Validate()
	if err != nil {
		return err
	}

	if rec.ID != u.ID {
		return NewError(ErrNotLastRecord, fmt.Sprintf("record %v is "+
			"not the last record of %s (last is %v)", u.ID,
			rec.User, rec.ID), nil)
	}

	if rec.Status != StatusPending {
		return NewError(ErrRecordFinalized, fmt.Sprintf("record %v "+
			"already %v", rec.ID, rec.Status), nil)
	}

	rec.Status = u.Status
	rec.FailReason = u.FailReason
	rec.Reference = u.Reference

	return nil
}

// Preferences are the per-user settings of the wallet.
type Preferences struct {
	// PreferredAsset is the asset the user wants to hold.
	PreferredAsset Asset

	// AutoConvert enables automatic conversion toward the preferred
	// asset.
	AutoConvert bool

	// MinAmount is the smallest balance worth auto converting.
	MinAmount btcutil.Amount
}

// DefaultPreferences returns the preferences of a user that never stored
// any.
func DefaultPreferences() Preferences {
	return Preferences{
		PreferredAsset: AssetBitcoin,
		AutoConvert:    false,
		MinAmount:      0,
	}
}

// HistoryStore is the append-only conversion history.
type HistoryStore interface {
	// AppendRecord appends a pending record to the user's history.
	AppendRecord(ctx context.Context, rec Record) error

	// UpdateLastStatus applies the update to the user's most recent
	// record and returns the updated record. It fails with ErrNoRecord,
	// ErrNotLastRecord or ErrRecordFinalized.
	UpdateLastStatus(ctx context.Context, user string,
		update StatusUpdate) (*Record, error)

	// History returns the user's records, oldest first.
	History(ctx context.Context, user string) ([]Record, error)
}

// PreferenceStore persists user preferences.
type PreferenceStore interface {
	// Preferences returns the user's preferences, or the defaults if
	// none were stored.
	Preferences(ctx context.Context, user string) (Preferences, error)

	// SetPreferences stores the user's preferences.
	SetPreferences(ctx context.Context, user string,
		prefs Preferences) error

	// AutoConvertUsers returns every user with auto conversion enabled.
	AutoConvertUsers(ctx context.Context) ([]string, error)
}

// AddressStore persists the native deposit address of each user.
type AddressStore interface {
	// NativeAddress returns the user's registered address. It fails with
	// ErrNoAddress if none is registered.
	NativeAddress(ctx context.Context, user string) (string, error)

	// SetNativeAddress registers the user's address, replacing any
	// previous one.
	SetNativeAddress(ctx context.Context, user, address string) error
}

// Store is the full ledger.
type Store interface {
	HistoryStore
	PreferenceStore
	AddressStore

	// Close releases the resources of the store.
	Close() error
}
