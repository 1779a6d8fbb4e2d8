// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package replacedb persists the links between replaced transactions and
// their replacements in a small sqlite database. The links survive restarts
// so a transaction that was bumped in an earlier session still refuses a
// second bump.
package replacedb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	_ "modernc.org/sqlite"
)

// ErrAlreadyMarked is returned when an original transaction already has an
// active replacement link.
var ErrAlreadyMarked = errors.New("transaction already has a replacement")

// schema creates the replacement table. The original's txid is the primary
// key, enforcing the single active link per original.
const schema = `
CREATE TABLE IF NOT EXISTS replacements (
	orig        TEXT PRIMARY KEY,
	replacement TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);`

// Store is a sqlite-backed replacement link store.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens or creates the store at the given path. Pass ":memory:" for an
// ephemeral store.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening replacement db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating replacement schema: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarkReplaced records that orig was replaced by repl. It fails with
// ErrAlreadyMarked when orig already has a link.
func (s *Store) MarkReplaced(orig, repl chainhash.Hash) error {
	res, err := s.db.Exec(
		`INSERT INTO replacements (orig, replacement, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (orig) DO NOTHING`,
		orig.String(), repl.String(), s.clock.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording replacement: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %v", ErrAlreadyMarked, orig)
	}

	return nil
}

// Replacement returns the recorded replacement for orig, if any.
func (s *Store) Replacement(orig chainhash.Hash) (chainhash.Hash, bool,
	error) {

	var replStr string
	err := s.db.QueryRow(
		`SELECT replacement FROM replacements WHERE orig = ?`,
		orig.String(),
	).Scan(&replStr)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return chainhash.Hash{}, false, nil

	case err != nil:
		return chainhash.Hash{}, false, fmt.Errorf(
			"querying replacement: %w", err)
	}

	repl, err := chainhash.NewHashFromStr(replStr)
	if err != nil {
		return chainhash.Hash{}, false, fmt.Errorf(
			"corrupt replacement record for %v: %w", orig, err)
	}

	return *repl, true, nil
}
