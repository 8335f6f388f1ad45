// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// wtxmgrNamespaceKey is the top-level bucket of the spend journal.
	wtxmgrNamespaceKey = []byte("wtxmgr")
)

// SpendJournal remembers the transactions the wallet broadcast until the
// gateway reflects them. Their inputs are kept out of coin selection so a
// second send can't pick coins the gateway still reports as unspent.
//
// Each transaction is labeled with the address it spends from, and only the
// entries of that address are pruned against its gateway UTXO listing.
type SpendJournal struct {
	db    walletdb.DB
	store *wtxmgr.Store
}

// NewSpendJournal opens the journal stored in db, creating it if needed.
func NewSpendJournal(db walletdb.DB,
	params *chaincfg.Params) (*SpendJournal, error) {

	var store *wtxmgr.Store
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(wtxmgrNamespaceKey)
		if ns == nil {
			var err error
			ns, err = tx.CreateTopLevelBucket(wtxmgrNamespaceKey)
			if err != nil {
				return err
			}

			err = wtxmgr.Create(ns)
			if err != nil {
				return err
			}
		}

		var err error
		store, err = wtxmgr.Open(ns, params)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open spend journal: %w", err)
	}

	return &SpendJournal{db: db, store: store}, nil
}

// Record adds a broadcast transaction spending coins of source.
func (j *SpendJournal) Record(tx *wire.MsgTx, source btcutil.Address) error {
	rec, err := wtxmgr.NewTxRecordFromMsgTx(tx, time.Now())
	if err != nil {
		return err
	}

	return walletdb.Update(j.db, func(dbtx walletdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(wtxmgrNamespaceKey)

		err := j.store.InsertTx(ns, rec, nil)
		if err != nil {
			return err
		}

		return j.store.PutTxLabel(
			ns, rec.Hash, source.EncodeAddress(),
		)
	})
}

// Reconcile prunes the entries spending from source that the gateway
// caught up with, and returns the outpoints still spent by the remaining
// entries of source. An entry is caught up once none of its inputs is in
// the gateway's unspent set.
func (j *SpendJournal) Reconcile(source btcutil.Address,
	unspent fn.Set[wire.OutPoint]) (fn.Set[wire.OutPoint], error) {

	label := source.EncodeAddress()
	pending := fn.NewSet[wire.OutPoint]()

	err := walletdb.Update(j.db, func(dbtx walletdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(wtxmgrNamespaceKey)

		txns, err := j.store.UnminedTxs(ns)
		if err != nil {
			return err
		}

		for _, tx := range txns {
			txHash := tx.TxHash()
			txLabel, err := j.store.TxLabel(ns, txHash)
			switch {
			case err != nil:
				return err

			// Unlabeled entries belong to no source.
			case txLabel != label:
				continue
			}

			if spendsAny(tx, unspent) {
				for _, txIn := range tx.TxIn {
					pending.Add(txIn.PreviousOutPoint)
				}

				continue
			}

			rec, err := wtxmgr.NewTxRecordFromMsgTx(tx, time.Now())
			if err != nil {
				return err
			}

			err = j.store.RemoveUnminedTx(ns, rec)
			if err != nil {
				return err
			}

			log.Debugf("Pruned journal entry %v of %v", txHash,
				label)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile spend journal: %w", err)
	}

	return pending, nil
}

// Pending returns the journal's transactions.
func (j *SpendJournal) Pending() ([]*wire.MsgTx, error) {
	var txns []*wire.MsgTx
	err := walletdb.View(j.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		txns, err = j.store.UnminedTxs(ns)

		return err
	})

	return txns, err
}

// spendsAny reports whether any input of tx spends an outpoint of set.
func spendsAny(tx *wire.MsgTx, set fn.Set[wire.OutPoint]) bool {
	for _, txIn := range tx.TxIn {
		if set.Contains(txIn.PreviousOutPoint) {
			return true
		}
	}

	return false
}
