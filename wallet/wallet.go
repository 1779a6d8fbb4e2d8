// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet implements transaction construction and fee replacement on
// top of a set of injected collaborators. The wallet itself owns no keys and
// no chain state; it selects coins from a ledger, reserves change keys from
// a key pool, and hands finished transactions to a signer and a broadcaster.
package wallet

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

// Collaborators bundles the external components a Wallet is built on.
type Collaborators struct {
	// Ledger tracks the wallet's coins and transactions.
	Ledger Ledger

	// KeyPool hands out change keys.
	KeyPool KeyPool

	// Signer signs finished transactions.
	Signer Signer

	// Broadcaster relays signed transactions.
	Broadcaster Broadcaster

	// FeeOracle estimates fee rates for confirmation targets.
	FeeOracle FeeOracle

	// Mempool exposes local mempool state.
	Mempool Mempool

	// Replacements records fee-bump links between transactions.
	Replacements ReplacementStore
}

// Wallet builds, signs, and replaces transactions. All public operations are
// serialized by an internal mutex, so concurrent callers observe a
// consistent coin set.
type Wallet struct {
	cfg         Config
	chainParams *chaincfg.Params

	ledger       Ledger
	keyPool      KeyPool
	signer       Signer
	broadcaster  Broadcaster
	feeOracle    FeeOracle
	mempool      Mempool
	replacements ReplacementStore

	mu sync.Mutex
}

// New creates a Wallet from its configuration and collaborators.
func New(cfg Config, chainParams *chaincfg.Params,
	c Collaborators) *Wallet {

	return &Wallet{
		cfg:          cfg,
		chainParams:  chainParams,
		ledger:       c.Ledger,
		keyPool:      c.KeyPool,
		signer:       c.Signer,
		broadcaster:  c.Broadcaster,
		feeOracle:    c.FeeOracle,
		mempool:      c.Mempool,
		replacements: c.Replacements,
	}
}

// PaymentRequest describes a payment to build.
type PaymentRequest struct {
	// Recipients are the payment destinations. At least one is required.
	Recipients []Recipient

	// Payload, when non-nil, adds a zero-value data-carrier output
	// holding the payload.
	Payload *Payload

	// Constraint restricts which coins may fund the payment. Nil means
	// wallet wide.
	Constraint CoinConstraint

	// Policy determines the fee. Nil resolves the default confirmation
	// target through the fee oracle.
	Policy FeePolicy

	// MinConf is the minimum confirmation depth of selected coins.
	MinConf int32

	// Broadcast commits the signed transaction for relay. Without it the
	// signed transaction is only returned.
	Broadcast bool
}

// PaymentResult reports a successfully built payment.
type PaymentResult struct {
	// Tx is the signed transaction with its accounting details.
	Tx *AuthoredTx

	// TxID is the signed transaction's hash.
	TxID chainhash.Hash

	// Committed is true if the transaction was accepted for relay.
	Committed bool
}

// BuildPayment builds, signs, and optionally broadcasts a payment. The spent
// coins are locked against reuse; on any failure every lock and reservation
// taken along the way is released before the error is returned.
func (w *Wallet) BuildPayment(req *PaymentRequest) (*PaymentResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var payloadScript []byte
	if req.Payload != nil {
		var err error
		payloadScript, err = w.dataCarrierScript(req.Payload)
		if err != nil {
			return nil, err
		}
	}

	return w.buildAndCommit(
		req.Recipients, payloadScript, req.Constraint, req.Policy, 0,
		req.MinConf, req.Broadcast,
	)
}

// PayloadRequest describes a payload-carrying self-payment: the address's
// balance is sent back to itself alongside a data-carrier output, with a
// fixed protocol fee taken out of the amount.
type PayloadRequest struct {
	// Address funds the payment and receives its own balance back.
	Address btcutil.Address

	// Payload is the application payload to embed.
	Payload *Payload

	// Fee is the fixed protocol fee. The resolved fee is never below it.
	Fee btcutil.Amount

	// Policy optionally overrides the rate used when the fixed fee is
	// not binding.
	Policy FeePolicy

	// Broadcast commits the signed transaction for relay.
	Broadcast bool
}

// BuildPayloadPayment builds a payload-carrying self-payment from a single
// address. The address's entire eligible balance funds the transaction and,
// less the fee, returns to the same address.
func (w *Wallet) BuildPayloadPayment(req *PayloadRequest) (*PaymentResult,
	error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	payloadScript, err := w.dataCarrierScript(req.Payload)
	if err != nil {
		return nil, err
	}

	constraint := FromAddress{Address: req.Address}
	if err := constraint.validate(); err != nil {
		return nil, err
	}

	selection, err := w.eligibleCoins(constraint, 0)
	if err != nil {
		return nil, err
	}
	if selection.total == 0 {
		return nil, fmt.Errorf("%w: address %v has no spendable "+
			"balance", ErrInsufficientFunds, req.Address)
	}

	recipients := []Recipient{{
		Address:     req.Address,
		Amount:      selection.total,
		SubtractFee: true,
	}}

	return w.buildAndCommit(
		recipients, payloadScript, constraint, req.Policy, req.Fee,
		0, req.Broadcast,
	)
}

// SweepAddress sends an address's entire eligible balance to a destination,
// with the fee taken out of the swept amount.
func (w *Wallet) SweepAddress(source, dest btcutil.Address, policy FeePolicy,
	broadcast bool) (*PaymentResult, error) {

	w.mu.Lock()
	defer w.mu.Unlock()

	constraint := FromAddress{Address: source}
	if err := constraint.validate(); err != nil {
		return nil, err
	}

	selection, err := w.eligibleCoins(constraint, 0)
	if err != nil {
		return nil, err
	}
	if selection.total == 0 {
		return nil, fmt.Errorf("%w: address %v has no spendable "+
			"balance", ErrInsufficientFunds, source)
	}

	recipients := []Recipient{{
		Address:     dest,
		Amount:      selection.total,
		SubtractFee: true,
	}}

	return w.buildAndCommit(
		recipients, nil, constraint, policy, 0, 0, broadcast,
	)
}

// buildAndCommit runs the shared payment pipeline: coin selection, change
// key reservation, assembly, signing, coin locking, and the optional commit.
// The caller holds the wallet mutex.
func (w *Wallet) buildAndCommit(recipients []Recipient, payloadScript []byte,
	constraint CoinConstraint, policy FeePolicy, feeFloor btcutil.Amount,
	minConf int32, broadcast bool) (*PaymentResult, error) {

	// Broadcasting without peer networking can only fail later, so fail
	// now before any state is touched.
	if broadcast && !w.broadcaster.PeeringActive() {
		return nil, ErrPeerNetworkingDisabled
	}

	if constraint == nil {
		constraint = WalletWide{}
	}
	if err := constraint.validate(); err != nil {
		return nil, err
	}

	scheme, err := w.resolveFeePolicy(policy)
	if err != nil {
		return nil, err
	}
	scheme.floor = feeFloor

	var target btcutil.Amount
	for _, r := range recipients {
		target += r.Amount
	}

	// A single-address constraint must be coverable by that address's
	// balance alone. The ledger's balance index answers this without
	// listing and filtering the full coin set.
	if from, ok := constraint.(FromAddress); ok {
		balance, err := w.ledger.AddressBalance(from.Address, minConf)
		if err != nil {
			return nil, err
		}
		if balance < target {
			return nil, fmt.Errorf("%w: address %v holds %v, "+
				"need %v", ErrInsufficientFunds, from.Address,
				balance, target)
		}
	}

	selection, err := w.eligibleCoins(constraint, minConf)
	if err != nil {
		return nil, err
	}

	// Check affordability again on the filtered coin set before reserving
	// a change key, so an underfunded request burns nothing from the pool.
	if err := selection.checkTarget(target); err != nil {
		return nil, err
	}

	changeKey, err := w.keyPool.ReserveChangeKey()
	if err != nil {
		return nil, err
	}

	authored, err := w.buildTx(
		recipients, payloadScript, scheme, selection,
		changeKey.Script(),
	)
	if err != nil {
		w.returnKey(changeKey)
		return nil, err
	}

	locked, err := w.lockInputs(authored.Tx)
	if err != nil {
		w.unlockCoins(locked)
		w.returnKey(changeKey)
		return nil, err
	}

	err = w.signer.Sign(
		authored.Tx, authored.PrevScripts, authored.PrevInputValues,
	)
	if err != nil {
		w.unlockCoins(locked)
		w.returnKey(changeKey)
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	result := &PaymentResult{
		Tx:   authored,
		TxID: authored.Tx.TxHash(),
	}

	log.Debugf("Built tx %v spending %v with fee %v", result.TxID,
		authored.TotalInput, authored.Fee)
	log.Tracef("Authored transaction: %v", newLogClosure(func() string {
		return spewTx(authored.Tx)
	}))

	if broadcast {
		commit, err := w.broadcaster.Commit(authored.Tx)
		switch {
		case err != nil:
			w.unlockCoins(locked)
			w.returnKey(changeKey)
			return nil, fmt.Errorf("%w: %v", ErrCommitRejected,
				err)

		case !commit.Accepted:
			w.unlockCoins(locked)
			w.returnKey(changeKey)
			return nil, fmt.Errorf("%w: %s", ErrCommitRejected,
				commit.RejectReason)
		}

		result.Committed = true
	}

	// The change key is only consumed when the transaction actually
	// carries a change output.
	if authored.ChangeIndex >= 0 {
		if err := changeKey.Commit(); err != nil {
			log.Warnf("Failed to commit change key: %v", err)
		}
	} else {
		w.returnKey(changeKey)
	}

	return result, nil
}

// lockInputs locks every coin the transaction spends. It returns the
// outpoints actually locked, so a mid-way failure can be rolled back.
func (w *Wallet) lockInputs(tx *wire.MsgTx) ([]wire.OutPoint, error) {
	locked := make([]wire.OutPoint, 0, len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		if err := w.ledger.LockCoin(txIn.PreviousOutPoint); err != nil {
			return locked, err
		}
		locked = append(locked, txIn.PreviousOutPoint)
	}

	return locked, nil
}

// unlockCoins releases previously taken coin locks, logging rather than
// failing on errors since it only runs on error paths.
func (w *Wallet) unlockCoins(ops []wire.OutPoint) {
	for _, op := range ops {
		if err := w.ledger.UnlockCoin(op); err != nil {
			log.Warnf("Failed to unlock coin %v: %v", op, err)
		}
	}
}

// returnKey puts a reserved change key back, logging on failure.
func (w *Wallet) returnKey(key ChangeKey) {
	if err := key.Return(); err != nil {
		log.Warnf("Failed to return change key: %v", err)
	}
}

// spewTx renders a transaction for trace logging.
func spewTx(tx *wire.MsgTx) string {
	return spew.Sdump(tx)
}
