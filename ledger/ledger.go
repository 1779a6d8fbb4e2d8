// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger implements the wallet's coin and transaction view on top of
// a walletdb-backed wtxmgr store. Coin locks are held in memory only, so
// every lock is cleared when the process restarts.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lbtcsuite/lbtcwallet/wallet"
)

// bucketTxStore is the top-level walletdb bucket holding the transaction
// store.
var bucketTxStore = []byte("wtxmgr")

// KeyOwner reports whether the wallet holds the private key for an address.
// The ledger uses it to mark coins as spendable.
type KeyOwner interface {
	// HaveKey returns true if the wallet can sign for the address.
	HaveKey(addr btcutil.Address) bool
}

// Config holds everything needed to open a TxLedger.
type Config struct {
	// DB is the opened wallet database.
	DB walletdb.DB

	// ChainParams identifies the chain the ledger tracks.
	ChainParams *chaincfg.Params

	// Clock provides timestamps for newly recorded transactions.
	Clock clock.Clock

	// KeyOwner classifies addresses as spendable or watch-only.
	KeyOwner KeyOwner
}

// TxLedger is a wallet.Ledger backed by a persistent wtxmgr store. The
// chain height is pushed in by the chain syncer through SyncHeight;
// confirmation counts are computed against it.
type TxLedger struct {
	db     walletdb.DB
	store  *wtxmgr.Store
	params *chaincfg.Params
	clock  clock.Clock
	owner  KeyOwner

	mu         sync.Mutex
	bestHeight int32
	locks      map[wire.OutPoint]struct{}
}

// A compile-time assertion that TxLedger satisfies the wallet's ledger
// interface.
var _ wallet.Ledger = (*TxLedger)(nil)

// Open opens the ledger, creating the underlying transaction store on first
// use.
func Open(cfg *Config) (*TxLedger, error) {
	err := walletdb.Update(cfg.DB, func(dbtx walletdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(bucketTxStore)
		if ns != nil {
			return nil
		}

		ns, err := dbtx.CreateTopLevelBucket(bucketTxStore)
		if err != nil {
			return err
		}

		return wtxmgr.Create(ns)
	})
	if err != nil {
		return nil, fmt.Errorf("creating tx store: %w", err)
	}

	var store *wtxmgr.Store
	err = walletdb.View(cfg.DB, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		var err error
		store, err = wtxmgr.Open(ns, cfg.ChainParams)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("opening tx store: %w", err)
	}

	return &TxLedger{
		db:     cfg.DB,
		store:  store,
		params: cfg.ChainParams,
		clock:  cfg.Clock,
		owner:  cfg.KeyOwner,
		locks:  make(map[wire.OutPoint]struct{}),
	}, nil
}

// SyncHeight updates the chain height confirmations are computed against.
func (l *TxLedger) SyncHeight(height int32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bestHeight = height
}

// confirmations converts a recorded block height into a confirmation count
// at the current sync height. Unmined transactions record height -1.
func (l *TxLedger) confirmations(txHeight int32) int32 {
	if txHeight < 0 || txHeight > l.bestHeight {
		return 0
	}

	return l.bestHeight - txHeight + 1
}

// RecordTx records a transaction in the store, marking the listed output
// indexes as wallet credits. The change map value marks a credit as change.
// A nil block records the transaction as unmined.
func (l *TxLedger) RecordTx(tx *wire.MsgTx, block *wtxmgr.BlockMeta,
	credits map[uint32]bool) error {

	rec, err := wtxmgr.NewTxRecordFromMsgTx(tx, l.clock.Now())
	if err != nil {
		return err
	}

	return walletdb.Update(l.db, func(dbtx walletdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(bucketTxStore)

		if err := l.store.InsertTx(ns, rec, block); err != nil {
			return err
		}

		for index, change := range credits {
			err := l.store.AddCredit(ns, rec, block, index, change)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// ListSpendableCoins returns the unspent, unlocked coins the store tracks
// along with the eligibility metadata the coin selector needs.
func (l *TxLedger) ListSpendableCoins() ([]wallet.Coin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var coins []wallet.Coin
	err := walletdb.View(l.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		unspent, err := l.store.UnspentOutputs(ns)
		if err != nil {
			return err
		}

		coins = make([]wallet.Coin, 0, len(unspent))
		for _, credit := range unspent {
			if _, locked := l.locks[credit.OutPoint]; locked {
				continue
			}

			coin, err := l.creditToCoin(ns, &credit)
			if err != nil {
				return err
			}

			coins = append(coins, *coin)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return coins, nil
}

// creditToCoin builds the selector's view of a single unspent credit.
func (l *TxLedger) creditToCoin(ns walletdb.ReadBucket,
	credit *wtxmgr.Credit) (*wallet.Coin, error) {

	coin := &wallet.Coin{
		OutPoint: credit.OutPoint,
		TxOut: wire.TxOut{
			Value:    int64(credit.Amount),
			PkScript: credit.PkScript,
		},
		Confirmations: l.confirmations(credit.Height),
		FromCoinBase:  credit.FromCoinBase,
	}

	// Outputs paying anything but a single extractable address are
	// reported as watch-only and never selected.
	_, addrs, required, err := txscript.ExtractPkScriptAddrs(
		credit.PkScript, l.params,
	)
	if err == nil && len(addrs) == 1 && required == 1 {
		coin.Address = addrs[0]
		coin.Spendable = l.owner.HaveKey(addrs[0])
	}

	fromWallet, err := l.txIsOurs(ns, &credit.OutPoint.Hash)
	if err != nil {
		return nil, err
	}
	coin.FromWallet = fromWallet

	return coin, nil
}

// txIsOurs reports whether the wallet authored the transaction, judged by
// whether it spends any of the wallet's own coins.
func (l *TxLedger) txIsOurs(ns walletdb.ReadBucket,
	txid *chainhash.Hash) (bool, error) {

	details, err := l.store.TxDetails(ns, txid)
	if err != nil {
		return false, err
	}
	if details == nil {
		return false, nil
	}

	return len(details.Debits) > 0, nil
}

// AddressBalance returns the total value of unlocked coins paying addr with
// at least minDepth confirmations.
func (l *TxLedger) AddressBalance(addr btcutil.Address,
	minDepth int32) (btcutil.Amount, error) {

	coins, err := l.ListSpendableCoins()
	if err != nil {
		return 0, err
	}

	var balance btcutil.Amount
	for _, coin := range coins {
		if coin.Address == nil ||
			coin.Address.String() != addr.String() {

			continue
		}
		if coin.Confirmations < minDepth {
			continue
		}

		balance += coin.Amount()
	}

	return balance, nil
}

// LockCoin marks an output as unavailable for selection. The lock lives in
// memory only and disappears on restart.
func (l *TxLedger) LockCoin(op wire.OutPoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locks[op] = struct{}{}

	return nil
}

// UnlockCoin clears a coin lock. Unlocking an unlocked output is a no-op.
func (l *TxLedger) UnlockCoin(op wire.OutPoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, op)

	return nil
}

// LockedCoins returns the currently locked outpoints.
func (l *TxLedger) LockedCoins() []wire.OutPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := make([]wire.OutPoint, 0, len(l.locks))
	for op := range l.locks {
		ops = append(ops, op)
	}

	return ops
}

// WalletTx returns the wallet's record of a transaction. The store evicts
// transactions that conflict with mined ones, so a known unmined record is
// never conflicted.
func (l *TxLedger) WalletTx(txid chainhash.Hash) (*wallet.WalletTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var walletTx *wallet.WalletTx
	err := walletdb.View(l.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		details, err := l.store.TxDetails(ns, &txid)
		if err != nil {
			return err
		}
		if details == nil {
			return fmt.Errorf("%w: %v", wallet.ErrUnknownTx, txid)
		}

		tx := details.MsgTx
		walletTx = &wallet.WalletTx{
			Tx:            &tx,
			Confirmations: l.confirmations(details.Block.Height),
		}
		for _, credit := range details.Credits {
			if credit.Change {
				walletTx.ChangeIndexes = append(
					walletTx.ChangeIndexes, credit.Index,
				)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return walletTx, nil
}

// HasWalletSpend reports whether any wallet transaction, mined or unmined,
// spends an output of the given transaction.
func (l *TxLedger) HasWalletSpend(txid chainhash.Hash) (bool, error) {
	var spent bool
	err := walletdb.View(l.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		details, err := l.store.TxDetails(ns, &txid)
		if err != nil {
			return err
		}
		if details == nil {
			return fmt.Errorf("%w: %v", wallet.ErrUnknownTx, txid)
		}

		for _, credit := range details.Credits {
			if credit.Spent {
				spent = true
				return nil
			}
		}

		// Unmined spenders are not reflected in the credit records,
		// so scan the unmined set as well.
		unmined, err := l.store.UnminedTxs(ns)
		if err != nil {
			return err
		}
		for _, unminedTx := range unmined {
			for _, txIn := range unminedTx.TxIn {
				if txIn.PreviousOutPoint.Hash == txid {
					spent = true
					return nil
				}
			}
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return spent, nil
}

// PrevOutput returns the output an outpoint refers to and whether the wallet
// owns it.
func (l *TxLedger) PrevOutput(op wire.OutPoint) (*wire.TxOut, bool, error) {
	var (
		txOut *wire.TxOut
		mine  bool
	)
	err := walletdb.View(l.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		details, err := l.store.TxDetails(ns, &op.Hash)
		if err != nil {
			return err
		}
		if details == nil {
			return nil
		}
		if op.Index >= uint32(len(details.MsgTx.TxOut)) {
			return nil
		}

		txOut = details.MsgTx.TxOut[op.Index]
		for _, credit := range details.Credits {
			if credit.Index == op.Index {
				mine = true
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return txOut, mine, nil
}

// Rollback undoes transaction confirmations above the given height, moving
// affected transactions back to the unmined pool.
func (l *TxLedger) Rollback(height int32) error {
	log.Infof("Rolling back ledger above height %d", height)

	return walletdb.Update(l.db, func(dbtx walletdb.ReadWriteTx) error {
		ns := dbtx.ReadWriteBucket(bucketTxStore)

		return l.store.Rollback(ns, height)
	})
}

// Received returns the time the ledger first saw the transaction.
func (l *TxLedger) Received(txid chainhash.Hash) (time.Time, error) {
	var received time.Time
	err := walletdb.View(l.db, func(dbtx walletdb.ReadTx) error {
		ns := dbtx.ReadBucket(bucketTxStore)

		details, err := l.store.TxDetails(ns, &txid)
		if err != nil {
			return err
		}
		if details == nil {
			return fmt.Errorf("%w: %v", wallet.ErrUnknownTx, txid)
		}

		received = details.Received

		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return received, nil
}
