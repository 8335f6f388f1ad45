// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqldb provides SQLite and PostgreSQL implementations of the
// ledger.Store interface.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	// ErrNilDB is returned when a store is created without a database.
	ErrNilDB = errors.New("nil database")
)

// Dialect selects the SQL flavor of a database.
type Dialect uint8

const (
	// DialectSQLite is the SQLite dialect.
	DialectSQLite Dialect = iota

	// DialectPostgres is the PostgreSQL dialect.
	DialectPostgres
)

// String returns the name of the dialect.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"

	case DialectPostgres:
		return "postgres"

	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Store is the SQL implementation of the ledger.Store interface.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// A compile-time assertion to ensure that Store implements the ledger.Store
// interface.
var _ ledger.Store = (*Store)(nil)

// NewStore returns a store using db. The ledger migrations must already be
// applied.
func NewStore(db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	return &Store{db: db, dialect: dialect}, nil
}

// SQLiteDSN returns the connection string used for the SQLite ledger at
// dbPath.
func SQLiteDSN(dbPath string) string {
	// Enable foreign keys (required for proper constraint enforcement).
	dsn := dbPath + "?_pragma=foreign_keys=on"

	// WAL allows multiple readers and reduces lock contention for
	// concurrent writers.
	dsn += "&_pragma=journal_mode=WAL"

	// Take the write lock when the transaction begins.
	dsn += "&_txlock=immediate"

	// Retry acquiring locks for up to 5 seconds instead of failing with
	// SQLITE_BUSY.
	dsn += "&_pragma=busy_timeout=5000"

	return dsn
}

// OpenSQLite opens the SQLite ledger at dbPath, applying migrations.
func OpenSQLite(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(dbPath))
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"open sqlite ledger", err)
	}

	err = ApplyMigrations(db, DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, ledger.NewError(ledger.ErrDatabase,
			"migrate sqlite ledger", err)
	}

	return NewStore(db, DialectSQLite)
}

// OpenPostgres connects to the PostgreSQL ledger at dsn, applying
// migrations.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"open postgres ledger", err)
	}

	err = ApplyMigrations(db, DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, ledger.NewError(ledger.ErrDatabase,
			"migrate postgres ledger", err)
	}

	return NewStore(db, DialectPostgres)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites the ? placeholders of query into the dialect's form.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}

		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

const recordColumns = `id, user_id, created_at, from_asset, to_asset, ` +
	`amount, status, fail_reason, reference`

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads a record selected with recordColumns.
func scanRecord(row rowScanner) (*ledger.Record, error) {
	var (
		id, user, failReason, reference string
		createdAt, amount               int64
		from, to, status                int16
	)

	err := row.Scan(
		&id, &user, &createdAt, &from, &to, &amount, &status,
		&failReason, &reference,
	)
	if err != nil {
		return nil, err
	}

	recID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse record id %q: %w", id, err)
	}

	return &ledger.Record{
		ID:         recID,
		User:       user,
		Timestamp:  time.UnixMicro(createdAt).UTC(),
		From:       ledger.Asset(from),
		To:         ledger.Asset(to),
		Amount:     btcutil.Amount(amount),
		Status:     ledger.Status(status),
		FailReason: failReason,
		Reference:  reference,
	}, nil
}

// AppendRecord appends a pending record to the user's history.
func (s *Store) AppendRecord(ctx context.Context, rec ledger.Record) error {
	err := rec.Validate()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO conversion_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID.String(), rec.User, rec.Timestamp.UnixMicro(),
		int16(rec.From), int16(rec.To), int64(rec.Amount),
		int16(rec.Status), rec.FailReason, rec.Reference,
	)
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

	selectLast := `
		SELECT seq, ` + recordColumns + `
		FROM conversion_records
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT 1`
	if s.dialect == DialectPostgres {
		selectLast += ` FOR UPDATE`
	}

	var updated *ledger.Record
	err := execInTx(ctx, s.db, func(tx *sql.Tx) error {
		var seq int64
		row := tx.QueryRowContext(ctx, s.rebind(selectLast), user)
		rec, err := scanRecord(seqScanner{row: row, seq: &seq})
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.NewError(ledger.ErrNoRecord,
				"no records for "+user, nil)
		}
		if err != nil {
			return err
		}

		err = update.Apply(rec)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE conversion_records
			SET status = ?, fail_reason = ?, reference = ?
			WHERE seq = ?`),
			int16(rec.Status), rec.FailReason, rec.Reference, seq,
		)
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

// seqScanner prepends the seq column to a record scan.
type seqScanner struct {
	row rowScanner
	seq *int64
}

// Scan implements rowScanner.
func (s seqScanner) Scan(dest ...any) error {
	return s.row.Scan(append([]any{s.seq}, dest...)...)
}

// History returns the user's records, oldest first.
func (s *Store) History(ctx context.Context,
	user string) ([]ledger.Record, error) {

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+recordColumns+`
		FROM conversion_records
		WHERE user_id = ?
		ORDER BY seq ASC`), user,
	)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"history of "+user, err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, ledger.NewError(ledger.ErrDatabase,
				"scan record of "+user, err)
		}

		records = append(records, *rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"history of "+user, err)
	}

	return records, nil
}

// Preferences returns the stored preferences of the user or the defaults.
func (s *Store) Preferences(ctx context.Context,
	user string) (ledger.Preferences, error) {

	var (
		asset     int16
		auto      bool
		minAmount int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT preferred_asset, auto_convert, min_amount
		FROM user_preferences
		WHERE user_id = ?`), user,
	).Scan(&asset, &auto, &minAmount)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ledger.DefaultPreferences(), nil

	case err != nil:
		return ledger.Preferences{}, ledger.NewError(
			ledger.ErrDatabase, "preferences of "+user, err,
		)
	}

	return ledger.Preferences{
		PreferredAsset: ledger.Asset(asset),
		AutoConvert:    auto,
		MinAmount:      btcutil.Amount(minAmount),
	}, nil
}

// SetPreferences stores the user's preferences.
func (s *Store) SetPreferences(ctx context.Context, user string,
	prefs ledger.Preferences) error {

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_preferences (
			user_id, preferred_asset, auto_convert, min_amount
		) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_asset = excluded.preferred_asset,
			auto_convert = excluded.auto_convert,
			min_amount = excluded.min_amount`),
		user, int16(prefs.PreferredAsset), prefs.AutoConvert,
		int64(prefs.MinAmount),
	)
	if err != nil {
		return ledger.NewError(ledger.ErrDatabase,
			"set preferences of "+user, err)
	}

	return nil
}

// AutoConvertUsers returns every user with auto conversion enabled, sorted
// by identity.
func (s *Store) AutoConvertUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id
		FROM user_preferences
		WHERE auto_convert
		ORDER BY user_id`,
	)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"auto convert users", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var user string
		err := rows.Scan(&user)
		if err != nil {
			return nil, ledger.NewError(ledger.ErrDatabase,
				"scan auto convert user", err)
		}

		users = append(users, user)
	}

	err = rows.Err()
	if err != nil {
		return nil, ledger.NewError(ledger.ErrDatabase,
			"auto convert users", err)
	}

	return users, nil
}

// NativeAddress returns the user's registered native address.
func (s *Store) NativeAddress(ctx context.Context,
	user string) (string, error) {

	var addr string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT address FROM native_addresses WHERE user_id = ?`), user,
	).Scan(&addr)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ledger.NewError(ledger.ErrNoAddress,
			"no address registered for "+user, nil)

	case err != nil:
		return "", ledger.NewError(ledger.ErrDatabase,
			"address of "+user, err)
	}

	return addr, nil
}

// SetNativeAddress registers the user's native address.
func (s *Store) SetNativeAddress(ctx context.Context, user,
	address string) error {

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO native_addresses (user_id, address)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			address = excluded.address`),
		user, address,
	)
	if err != nil {
		return ledger.NewError(ledger.ErrDatabase,
			"set address of "+user, err)
	}

	return nil
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
