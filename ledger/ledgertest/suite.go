// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledgertest contains a behavioral test suite shared by every
// ledger.Store implementation.
package ledgertest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh, empty store for a single test.
type StoreFactory func(t *testing.T) ledger.Store

// RunStoreTests runs the shared store behavior tests against the stores
// produced by newStore.
func RunStoreTests(t *testing.T, newStore StoreFactory) {
	t.Helper()

	tests := []struct {
		name string
		test func(t *testing.T, store ledger.Store)
	}{
		{"append and history", testAppendAndHistory},
		{"update last status", testUpdateLastStatus},
		{"update only last record", testUpdateOnlyLastRecord},
		{"update without records", testUpdateWithoutRecords},
		{"invalid record", testInvalidRecord},
		{"interleaved users", testInterleavedUsers},
		{"preferences", testPreferences},
		{"native address", testNativeAddress},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			tc.test(t, store)
		})
	}
}

// recordAt returns a pending record for the user starting at the given
// offset from a fixed base time.
func recordAt(user string, from ledger.Asset, amount int64,
	offset time.Duration) ledger.Record {

	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	return ledger.NewPendingRecord(
		user, from, from.Other(), btcAmount(amount), base.Add(offset),
	)
}

func testAppendAndHistory(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	// Arrange: Two records for the same user.
	first := recordAt("alice", ledger.AssetCkBTC, 1000, 0)
	second := recordAt("alice", ledger.AssetBitcoin, 2000, time.Minute)

	// Act: Append them in order.
	require.NoError(t, store.AppendRecord(ctx, first))
	require.NoError(t, store.AppendRecord(ctx, second))

	// Assert: History returns them oldest first with all fields intact.
	history, err := store.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	requireRecordEqual(t, first, history[0])
	requireRecordEqual(t, second, history[1])

	// A user without records has an empty history.
	history, err = store.History(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, history)
}

func testUpdateLastStatus(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	rec := recordAt("alice", ledger.AssetCkBTC, 1000, 0)
	require.NoError(t, store.AppendRecord(ctx, rec))

	// Complete the record.
	updated, err := store.UpdateLastStatus(ctx, "alice",
		ledger.StatusUpdate{
			ID:        rec.ID,
			Status:    ledger.StatusComplete,
			Reference: "block:42",
		},
	)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusComplete, updated.Status)
	require.Equal(t, "block:42", updated.Reference)

	// A second mutation is refused.
	_, err = store.UpdateLastStatus(ctx, "alice", ledger.StatusUpdate{
		ID:         rec.ID,
		Status:     ledger.StatusFailed,
		FailReason: "late failure",
	})
	require.True(t, ledger.IsError(err, ledger.ErrRecordFinalized), err)

	// The stored record kept its amount, direction and timestamp.
	history, err := store.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)

	want := rec
	want.Status = ledger.StatusComplete
	want.Reference = "block:42"
	requireRecordEqual(t, want, history[0])
}

func testUpdateOnlyLastRecord(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	older := recordAt("alice", ledger.AssetCkBTC, 1000, 0)
	newer := recordAt("alice", ledger.AssetCkBTC, 500, time.Second)
	require.NoError(t, store.AppendRecord(ctx, older))
	require.NoError(t, store.AppendRecord(ctx, newer))

	// Arrange: An update naming the older record.
	update := ledger.StatusUpdate{
		ID:         older.ID,
		Status:     ledger.StatusFailed,
		FailReason: "stale",
	}

	// Act: Try to apply it.
	_, err := store.UpdateLastStatus(ctx, "alice", update)

	// Assert: It's refused and neither record changed.
	require.True(t, ledger.IsError(err, ledger.ErrNotLastRecord), err)

	history, err := store.History(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, history[0].Status)
	require.Equal(t, ledger.StatusPending, history[1].Status)

	// Failing the newest record works and stores the reason.
	updated, err := store.UpdateLastStatus(ctx, "alice",
		ledger.StatusUpdate{
			ID:         newer.ID,
			Status:     ledger.StatusFailed,
			FailReason: "minter down",
		},
	)
	require.NoError(t, err)
	require.Equal(t, "minter down", updated.FailReason)
	require.Equal(t, newer.Amount, updated.Amount)
}

func testUpdateWithoutRecords(t *testing.T, store ledger.Store) {
	rec := recordAt("alice", ledger.AssetCkBTC, 1000, 0)

	_, err := store.UpdateLastStatus(t.Context(), "alice",
		ledger.StatusUpdate{ID: rec.ID, Status: ledger.StatusComplete},
	)
	require.True(t, ledger.IsError(err, ledger.ErrNoRecord), err)
}

func testInvalidRecord(t *testing.T, store ledger.Store) {
	rec := recordAt("alice", ledger.AssetCkBTC, 1000, 0)
	rec.Status = ledger.StatusComplete

	err := store.AppendRecord(t.Context(), rec)
	require.True(t, ledger.IsError(err, ledger.ErrInvalidRecord), err)

	history, err := store.History(t.Context(), "alice")
	require.NoError(t, err)
	require.Empty(t, history)
}

func testInterleavedUsers(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	const (
		numUsers   = 4
		numRecords = 5
	)

	// Append records for several users concurrently and finalize each
	// one right after appending it.
	var wg sync.WaitGroup
	errs := make(chan error, numUsers*numRecords)
	for u := 0; u < numUsers; u++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()

			for i := 0; i < numRecords; i++ {
				rec := recordAt(
					user, ledger.AssetBitcoin, int64(i+1),
					time.Duration(i)*time.Second,
				)
				err := store.AppendRecord(ctx, rec)
				if err != nil {
					errs <- err
					return
				}

				_, err = store.UpdateLastStatus(ctx, user,
					ledger.StatusUpdate{
						ID:     rec.ID,
						Status: ledger.StatusComplete,
					},
				)
				if err != nil {
					errs <- err
					return
				}
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	// Every user sees exactly their own records, in order, all
	// complete.
	for u := 0; u < numUsers; u++ {
		user := fmt.Sprintf("user-%d", u)
		history, err := store.History(ctx, user)
		require.NoError(t, err)
		require.Len(t, history, numRecords)

		for i, rec := range history {
			require.Equal(t, user, rec.User)
			require.Equal(t, btcAmount(int64(i+1)), rec.Amount)
			require.Equal(t, ledger.StatusComplete, rec.Status)
		}
	}
}

func testPreferences(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	// Unknown users get the defaults.
	prefs, err := store.Preferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, ledger.DefaultPreferences(), prefs)

	// Stored preferences are returned and can be replaced.
	want := ledger.Preferences{
		PreferredAsset: ledger.AssetCkBTC,
		AutoConvert:    true,
		MinAmount:      btcAmount(10_000),
	}
	require.NoError(t, store.SetPreferences(ctx, "alice", want))
	require.NoError(t, store.SetPreferences(ctx, "bob",
		ledger.DefaultPreferences()))

	prefs, err = store.Preferences(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, want, prefs)

	users, err := store.AutoConvertUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, users)

	want.AutoConvert = false
	require.NoError(t, store.SetPreferences(ctx, "alice", want))

	users, err = store.AutoConvertUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
}

func testNativeAddress(t *testing.T, store ledger.Store) {
	ctx := t.Context()

	_, err := store.NativeAddress(ctx, "alice")
	require.True(t, ledger.IsError(err, ledger.ErrNoAddress), err)

	require.NoError(t, store.SetNativeAddress(ctx, "alice", "bcrt1qone"))
	require.NoError(t, store.SetNativeAddress(ctx, "alice", "bcrt1qtwo"))

	addr, err := store.NativeAddress(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "bcrt1qtwo", addr)
}

// requireRecordEqual compares two records, comparing timestamps by instant.
func requireRecordEqual(t *testing.T, want, got ledger.Record) {
	t.Helper()

	require.True(t, want.Timestamp.Equal(got.Timestamp),
		"timestamp: want %v, got %v", want.Timestamp, got.Timestamp)

	want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
	require.Equal(t, want, got)
}

// btcAmount converts a satoshi count into an amount.
func btcAmount(sats int64) btcutil.Amount {
	return btcutil.Amount(sats)
}
