// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package kvdb provides a walletdb (kvdb) backed implementation of the
// ledger.Store interface.
package kvdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/ckbtcwallet/ledger"
)

var (
	// ledgerNamespaceKey is the top-level bucket of the ledger.
	ledgerNamespaceKey = []byte("ledger")

	// bucketHistory holds one nested bucket per user. Each nested bucket
	// maps a big endian sequence number to an encoded record, so a cursor
	// walks the history in append order.
	bucketHistory = []byte("history")

	// bucketPrefs maps a user to their encoded preferences.
	bucketPrefs = []byte("prefs")

	// bucketAddrs maps a user to their native deposit address.
	bucketAddrs = []byte("addrs")
)

// Store is the kvdb (walletdb) implementation of the ledger.Store
// interface.
type Store struct {
	db walletdb.DB

	// ownsDB is set when Close should also close db.
	ownsDB bool
}

// A compile-time assertion to ensure that Store implements the ledger.Store
// interface.
var _ ledger.Store = (*Store)(nil)

// NewStore creates the ledger buckets inside dbConn if needed and returns a
// store using them. The caller keeps ownership of dbConn.
func NewStore(dbConn walletdb.DB) (*Store, error) {
	err := walletdb.Update(dbConn, func(tx walletdb.ReadWriteTx) error {
		ns, err := tx.CreateTopLevelBucket(ledgerNamespaceKey)
		if err != nil {
			return err
		}

		for _, key := range [][]byte{
			bucketHistory, bucketPrefs, bucketAddrs,
		} {
			_, err := ns.CreateBucketIfNotExists(key)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"create ledger buckets", err)
	}

	return &Store{db: dbConn}, nil
}

// OpenStore opens (or creates) the bdb database at dbPath and returns a
// store that owns it.
func OpenStore(dbPath string, noFreelistSync bool,
	timeout time.Duration) (*Store, error) {

	dbConn, err := walletdb.Create(
		"bdb", dbPath, noFreelistSync, timeout, false,
	)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"open "+dbPath, err)
	}

	store, err := NewStore(dbConn)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	store.ownsDB = true

	return store, nil
}

// Close closes the underlying database if the store owns it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}

	return s.db.Close()
}

// AppendRecord appends a pending record to the user's history.
func (s *Store) AppendRecord(ctx context.Context, rec ledger.Record) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	err = rec.Validate()
	if err != nil {
		return err
	}

	value, err := encodeRecord(&rec)
	if err != nil {
		return ledger.NewError(ledger.ErrDatabase, "encode record", err)
	}

	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		history := tx.ReadWriteBucket(ledgerNamespaceKey).
			NestedReadWriteBucket(bucketHistory)

		userBucket, err := history.CreateBucketIfNotExists(
			[]byte(rec.User),
		)
		if err != nil {
			return err
		}

		seq, err := userBucket.NextSequence()
		if err != nil {
			return err
		}

		return userBucket.Put(sequenceKey(seq), value)
	})
	if err != nil {
		return ledger.NewError(ledger.ErrDatabase,
			fmt.Sprintf("append record %v", rec.ID), err)
	}

	log.Debugf("Appended %v record %v for %s (%v -> %v, %v)", rec.Status,
		rec.ID, rec.User, rec.From, rec.To, rec.Amount)

	return nil
}

// UpdateLastStatus applies the update to the user's most recent record.
func (s *Store) UpdateLastStatus(ctx context.Context, user string,
	update ledger.StatusUpdate) (*ledger.Record, error) {

	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var updated *ledger.Record
	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		history := tx.ReadWriteBucket(ledgerNamespaceKey).
			NestedReadWriteBucket(bucketHistory)

		userBucket := history.NestedReadWriteBucket([]byte(user))
		if userBucket == nil {
			return ledger.NewError(ledger.ErrNoRecord,
				"no records for "+user, nil)
		}

		key, value := userBucket.ReadWriteCursor().Last()
		if key == nil {
			return ledger.NewError(ledger.ErrNoRecord,
				"no records for "+user, nil)
		}

		// The cursor's key is only valid for the life of the
		// transaction and must not be modified, so copy it before
		// writing.
		key = slices.Clone(key)

		rec, err := decodeRecord(value)
		if err != nil {
			return err
		}

		err = update.Apply(rec)
		if err != nil {
			return err
		}

		encoded, err := encodeRecord(rec)
		if err != nil {
			return err
		}

		err = userBucket.Put(key, encoded)
		if err != nil {
			return err
		}

		updated = rec

		return nil
	})
	if err != nil {
		return nil, wrapDBError(err, "update last record of "+user)
	}

	log.Debugf("Record %v of %s moved to %v", updated.ID, user,
		updated.Status)

	return updated, nil
}

// History returns the user's records, oldest first.
func (s *Store) History(ctx context.Context,
	user string) ([]ledger.Record, error) {

	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var records []ledger.Record
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		history := tx.ReadBucket(ledgerNamespaceKey).
			NestedReadBucket(bucketHistory)

		userBucket := history.NestedReadBucket([]byte(user))
		if userBucket == nil {
			return nil
		}

		// Sequence keys are big endian, so ForEach iterates in append
		// order.
		return userBucket.ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}

			records = append(records, *rec)

			return nil
		})
	})
	if err != nil {
		return nil, wrapDBError(err, "history of "+user)
	}

	return records, nil
}

// Preferences returns the stored preferences of the user or the defaults.
func (s *Store) Preferences(ctx context.Context,
	user string) (ledger.Preferences, error) {

	err := ctx.Err()
	if err != nil {
		return ledger.Preferences{}, err
	}

	prefs := ledger.DefaultPreferences()
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		value := tx.ReadBucket(ledgerNamespaceKey).
			NestedReadBucket(bucketPrefs).Get([]byte(user))
		if value == nil {
			return nil
		}

		decoded, err := decodePreferences(value)
		if err != nil {
			return err
		}
		prefs = *decoded

		return nil
	})
	if err != nil {
		return ledger.Preferences{}, wrapDBError(
			err, "preferences of "+user,
		)
	}

	return prefs, nil
}

// SetPreferences stores the user's preferences.
func (s *Store) SetPreferences(ctx context.Context, user string,
	prefs ledger.Preferences) error {

	err := ctx.Err()
	if err != nil {
		return err
	}

	value, err := encodePreferences(&prefs)
	if err != nil {
		return ledger.NewError(ledger.ErrDatabase,
			"encode preferences", err)
	}

	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		return tx.ReadWriteBucket(ledgerNamespaceKey).
			NestedReadWriteBucket(bucketPrefs).
			Put([]byte(user), value)
	})
	if err != nil {
		return wrapDBError(err, "set preferences of "+user)
	}

	return nil
}

// AutoConvertUsers returns every user with auto conversion enabled, sorted
// by identity.
func (s *Store) AutoConvertUsers(ctx context.Context) ([]string, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	var users []string
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		prefsBucket := tx.ReadBucket(ledgerNamespaceKey).
			NestedReadBucket(bucketPrefs)

		return prefsBucket.ForEach(func(k, v []byte) error {
			prefs, err := decodePreferences(v)
			if err != nil {
				return err
			}

			if prefs.AutoConvert {
				users = append(users, string(k))
			}

			return nil
		})
	})
	if err != nil {
		return nil, wrapDBError(err, "auto convert users")
	}

	return users, nil
}

// NativeAddress returns the user's registered native address.
func (s *Store) NativeAddress(ctx context.Context,
	user string) (string, error) {

	err := ctx.Err()
	if err != nil {
		return "", err
	}

	var addr string
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		value := tx.ReadBucket(ledgerNamespaceKey).
			NestedReadBucket(bucketAddrs).Get([]byte(user))
		if value == nil {
			return ledger.NewError(ledger.ErrNoAddress,
				"no address registered for "+user, nil)
		}

		addr = string(value)

		return nil
	})
	if err != nil {
		return "", wrapDBError(err, "address of "+user)
	}

	return addr, nil
}

// SetNativeAddress registers the user's native address.
func (s *Store) SetNativeAddress(ctx context.Context, user,
	address string) error {

	err := ctx.Err()
	if err != nil {
		return err
	}

	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		return tx.ReadWriteBucket(ledgerNamespaceKey).
			NestedReadWriteBucket(bucketAddrs).
			Put([]byte(user), []byte(address))
	})
	if err != nil {
		return wrapDBError(err, "set address of "+user)
	}

	return nil
}

// sequenceKey encodes a history sequence number as a big endian key.
func sequenceKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)

	return key[:]
}

// wrapDBError passes ledger errors through unchanged and wraps everything
// else as an ErrDatabase.
func wrapDBError(err error, desc string) error {
	var ledgerErr ledger.Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr
	}

	return ledger.NewError(ledger.ErrDatabase, desc, err)
}
