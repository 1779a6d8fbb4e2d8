// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

// Coin represents a spendable UTXO which is available for coin selection,
// along with the metadata the selector needs to judge its eligibility.
type Coin struct {
	wire.OutPoint
	wire.TxOut

	// Address is the single address the output pays to. Outputs paying
	// non-standard or multi-address scripts are not offered for selection.
	Address btcutil.Address

	// Confirmations is the output's depth in the chain. Zero means
	// unconfirmed.
	Confirmations int32

	// FromCoinBase is true if the output was produced by a coinbase
	// transaction and is therefore subject to maturity rules.
	FromCoinBase bool

	// Spendable is true if the wallet holds the key needed to spend the
	// output. Watch-only outputs report false and are never selected.
	Spendable bool

	// FromWallet is true if the transaction producing this output was
	// authored by this wallet. Unconfirmed change from our own
	// transactions is considered safe to spend; unconfirmed outputs from
	// third parties are not.
	FromWallet bool
}

// Amount returns the output's value as a btcutil.Amount.
func (c *Coin) Amount() btcutil.Amount {
	return btcutil.Amount(c.Value)
}

// WalletTx describes a transaction known to the wallet, as needed by the
// replacement engine.
type WalletTx struct {
	// Tx is the full transaction.
	Tx *wire.MsgTx

	// Confirmations is the transaction's depth in the chain. Zero means
	// unconfirmed.
	Confirmations int32

	// Conflicted is true if the transaction conflicts with a mined
	// transaction and can never confirm.
	Conflicted bool

	// ChangeIndexes lists the output indexes the wallet created as
	// change.
	ChangeIndexes []uint32
}

// Ledger is the wallet's view onto the coin set. The coin set is owned by
// the ledger; the wallet only reads it and flips lock bits. Implementations
// must clear all coin locks on restart.
type Ledger interface {
	// ListSpendableCoins returns every unspent output the ledger tracks,
	// excluding currently locked ones. Further eligibility filtering is
	// the coin selector's job.
	ListSpendableCoins() ([]Coin, error)

	// AddressBalance returns the total value of unlocked coins paying the
	// given address with at least minDepth confirmations.
	AddressBalance(addr btcutil.Address, minDepth int32) (btcutil.Amount,
		error)

	// LockCoin marks an output as unavailable for selection until
	// unlocked or the process restarts.
	LockCoin(op wire.OutPoint) error

	// UnlockCoin clears a previously set lock. Unlocking an output that
	// is not locked is a no-op.
	UnlockCoin(op wire.OutPoint) error

	// WalletTx returns the wallet's record of the given transaction, or
	// ErrUnknownTx if the ledger has never seen it.
	WalletTx(txid chainhash.Hash) (*WalletTx, error)

	// HasWalletSpend reports whether any wallet transaction spends an
	// output of the given transaction.
	HasWalletSpend(txid chainhash.Hash) (bool, error)

	// PrevOutput returns the output an outpoint refers to and whether the
	// wallet owns it. A false ownership report with a nil output means
	// the ledger does not know the outpoint at all.
	PrevOutput(op wire.OutPoint) (*wire.TxOut, bool, error)
}

// ChangeKey is a reserved change address handed out by the key pool. The
// reservation must end in exactly one call to Commit or Return.
type ChangeKey interface {
	// Script returns the pay-to script of the reserved change address.
	Script() []byte

	// Commit marks the reserved key as used, removing it from the pool.
	Commit() error

	// Return puts the reserved key back into the pool.
	Return() error
}

// KeyPool hands out change keys for freshly built transactions.
type KeyPool interface {
	// ReserveChangeKey reserves the next change key from the pool. It
	// returns ErrKeyPoolExhausted if none is available.
	ReserveChangeKey() (ChangeKey, error)
}

// Signer signs fully-formed unsigned transactions. Signing internals
// (key derivation, signature schemes) live behind this interface.
type Signer interface {
	// Sign populates the signature script or witness of every input of
	// tx. prevScripts and prevValues describe the outputs being spent, in
	// input order.
	Sign(tx *wire.MsgTx, prevScripts [][]byte,
		prevValues []btcutil.Amount) error
}

// CommitResult is the outcome of handing a signed transaction to the commit
// collaborator.
type CommitResult struct {
	// Accepted is true if the transaction passed the final policy check
	// and was accepted for relay.
	Accepted bool

	// RejectReason carries the collaborator's reason verbatim when
	// Accepted is false.
	RejectReason string
}

// Broadcaster performs the final policy check and relays signed
// transactions.
type Broadcaster interface {
	// PeeringActive reports whether peer-to-peer functionality is
	// available. Building proceeds without it only when broadcasting is
	// not requested.
	PeeringActive() bool

	// Commit submits a signed transaction. A non-nil error means the
	// collaborator itself failed; a rejection is reported through the
	// result instead.
	Commit(tx *wire.MsgTx) (CommitResult, error)
}

// FeeOracle resolves a fee rate for a confirmation target. It is typically
// backed by the node's fee estimator.
type FeeOracle interface {
	// EstimateRate returns the fee rate expected to confirm a transaction
	// within confTarget blocks. An error means the oracle has no data and
	// the caller should fall back to its configured default.
	EstimateRate(confTarget uint32) (lbtcunit.SatPerKVByte, error)
}

// Mempool exposes the local mempool state the replacement engine needs.
type Mempool interface {
	// HasDescendants reports whether the mempool contains a transaction
	// spending any output of the given transaction.
	HasDescendants(txid chainhash.Hash) (bool, error)

	// MinFeeRate returns the minimum fee rate currently required for
	// mempool acceptance.
	MinFeeRate() lbtcunit.SatPerKVByte
}

// ReplacementStore persists the link between a replaced transaction and its
// replacement. At most one active link exists per original.
type ReplacementStore interface {
	// MarkReplaced records that orig was replaced by repl. It fails if
	// orig already has an active replacement link.
	MarkReplaced(orig, repl chainhash.Hash) error

	// Replacement returns the recorded replacement for orig, if any.
	Replacement(orig chainhash.Hash) (chainhash.Hash, bool, error)
}
