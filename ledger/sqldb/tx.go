// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execInTx runs fn inside a database transaction. The transaction is
// committed if fn succeeds and rolled back otherwise.
func execInTx(ctx context.Context, db *sql.DB,
	fn func(tx *sql.Tx) error) error {

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil &&
			!errors.Is(rollbackErr, sql.ErrTxDone) {

			log.Errorf("Unable to roll back ledger tx: %v",
				rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
