// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

// finalSequence is the sequence used when a replacement should itself no
// longer signal replaceability. It is one below the final sequence so the
// transaction still honors its lock time.
const finalSequence = wire.MaxTxInSequenceNum - 1

// BumpFeeRequest describes a fee bump of an unconfirmed wallet transaction.
type BumpFeeRequest struct {
	// TxID identifies the transaction to replace.
	TxID chainhash.Hash

	// Policy determines the replacement's fee. An absolute policy fixes
	// the total fee and an explicit rate is used as given; both must
	// clear the minimum viable replacement fee. A target policy resolves
	// a rate through the fee oracle, raised to the minimum when too low.
	// A nil policy uses the default confirmation target.
	Policy FeePolicy

	// Final, when set, makes the replacement itself non-replaceable by
	// normalizing every input sequence.
	Final bool
}

// BumpResult reports the outcome of a fee bump.
type BumpResult struct {
	// Tx is the signed replacement transaction.
	Tx *wire.MsgTx

	// OldFee is the fee the replaced transaction paid.
	OldFee btcutil.Amount

	// NewFee is the fee the replacement pays.
	NewFee btcutil.Amount

	// Warnings carries non-fatal problems encountered after the
	// replacement was signed, such as a relay rejection or a bookkeeping
	// failure. The replacement transaction is valid either way.
	Warnings []string
}

// bumpCandidate carries everything the eligibility checks learned about the
// transaction being replaced.
type bumpCandidate struct {
	walletTx *WalletTx

	// prevScripts and prevValues describe the spent outputs in input
	// order.
	prevScripts [][]byte
	prevValues  []btcutil.Amount

	// oldFee is the fee the original pays.
	oldFee btcutil.Amount

	// oldRate is the original's fee rate measured over its true signed
	// size.
	oldRate lbtcunit.SatPerKVByte

	// changeIndex is the original's single change output.
	changeIndex uint32
}

// checkBumpEligibility verifies the transaction may be replaced at all. The
// checks run in a fixed order so a transaction failing several of them
// reports the same error on every attempt.
func (w *Wallet) checkBumpEligibility(txid chainhash.Hash) (*bumpCandidate,
	error) {

	walletTx, err := w.ledger.WalletTx(txid)
	if err != nil {
		return nil, err
	}

	// A wallet transaction spending one of its outputs would be
	// invalidated by the replacement.
	hasSpend, err := w.ledger.HasWalletSpend(txid)
	if err != nil {
		return nil, err
	}
	if hasSpend {
		return nil, fmt.Errorf("%w: a wallet transaction spends an "+
			"output of %v", ErrHasDescendants, txid)
	}

	hasDesc, err := w.mempool.HasDescendants(txid)
	if err != nil {
		return nil, err
	}
	if hasDesc {
		return nil, fmt.Errorf("%w: a mempool transaction spends an "+
			"output of %v", ErrHasDescendants, txid)
	}

	if walletTx.Confirmations != 0 || walletTx.Conflicted {
		return nil, fmt.Errorf("%w: %v", ErrTxConfirmed, txid)
	}

	if !signalsReplaceability(walletTx.Tx) {
		return nil, fmt.Errorf("%w: %v", ErrNotReplaceable, txid)
	}

	if _, replaced, err := w.replacements.Replacement(txid); err != nil {
		return nil, err
	} else if replaced {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyReplaced, txid)
	}

	// Every input must be ours, otherwise the original's fee cannot be
	// computed and the replacement cannot be signed.
	candidate := &bumpCandidate{
		walletTx:    walletTx,
		prevScripts: make([][]byte, 0, len(walletTx.Tx.TxIn)),
		prevValues:  make([]btcutil.Amount, 0, len(walletTx.Tx.TxIn)),
	}
	var inputTotal btcutil.Amount
	for _, txIn := range walletTx.Tx.TxIn {
		prevOut, mine, err := w.ledger.PrevOutput(
			txIn.PreviousOutPoint,
		)
		if err != nil {
			return nil, err
		}
		if !mine {
			return nil, fmt.Errorf("%w: input %v",
				ErrForeignInputs, txIn.PreviousOutPoint)
		}

		inputTotal += btcutil.Amount(prevOut.Value)
		candidate.prevScripts = append(
			candidate.prevScripts, prevOut.PkScript,
		)
		candidate.prevValues = append(
			candidate.prevValues, btcutil.Amount(prevOut.Value),
		)
	}

	switch len(walletTx.ChangeIndexes) {
	case 1:
		candidate.changeIndex = walletTx.ChangeIndexes[0]
	case 0:
		return nil, fmt.Errorf("%w: %v", ErrNoChangeOutput, txid)
	default:
		return nil, fmt.Errorf("%w: %v", ErrMultipleChangeOutputs,
			txid)
	}

	var outputTotal btcutil.Amount
	for _, txOut := range walletTx.Tx.TxOut {
		outputTotal += btcutil.Amount(txOut.Value)
	}

	candidate.oldFee = inputTotal - outputTotal
	candidate.oldRate = lbtcunit.CalcSatPerKVByte(
		candidate.oldFee, txVirtualSize(walletTx.Tx),
	)

	return candidate, nil
}

// signalsReplaceability reports whether the transaction opts into
// replacement, meaning at least one input has a sequence low enough under
// BIP 125.
func signalsReplaceability(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence <= maxRBFSequence {
			return true
		}
	}

	return false
}

// BumpFee replaces an unconfirmed wallet transaction with one paying a
// higher fee. The fee increase is taken entirely from the original's change
// output; recipient outputs are never touched. The replacement is signed,
// committed for relay, and linked to the original in the replacement store.
//
// Failures before signing leave the wallet untouched and are repeatable.
// Problems after the replacement is accepted are reported as warnings in the
// result rather than errors.
func (w *Wallet) BumpFee(req *BumpFeeRequest) (*BumpResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.broadcaster.PeeringActive() {
		return nil, ErrPeerNetworkingDisabled
	}

	candidate, err := w.checkBumpEligibility(req.TxID)
	if err != nil {
		return nil, err
	}

	// The replacement reuses the original's inputs and outputs, so its
	// worst-case signed size bounds the fee arithmetic below.
	newTx := candidate.walletTx.Tx.Copy()
	maxNewSize, err := maxSignedVSize(newTx, candidate.prevScripts)
	if err != nil {
		return nil, err
	}

	newFee, newRate, err := w.resolveBumpFee(
		req.Policy, candidate.oldRate, maxNewSize,
	)
	if err != nil {
		return nil, err
	}

	if newFee > w.cfg.maxFee() {
		return nil, fmt.Errorf("%w: %v > %v", ErrFeeExceedsMaximum,
			newFee, w.cfg.maxFee())
	}
	if err := w.checkMempoolFloor(newRate); err != nil {
		return nil, err
	}

	// Take the entire fee increase out of the change output. If that
	// leaves it as dust the output is dropped and its remainder absorbed
	// into the fee.
	delta := newFee - candidate.oldFee
	change := newTx.TxOut[candidate.changeIndex]
	if btcutil.Amount(change.Value) < delta {
		return nil, fmt.Errorf("%w: change %v cannot pay the fee "+
			"increase %v", ErrChangeTooSmall,
			btcutil.Amount(change.Value), delta)
	}

	change.Value -= int64(delta)
	remainder := btcutil.Amount(change.Value)
	if txrules.IsDustAmount(remainder, len(change.PkScript),
		btcutil.Amount(w.cfg.RelayFeePerKvb)) {

		log.Debugf("Dropping dust change %v of replacement for %v "+
			"into the fee", remainder, req.TxID)
		newTx.TxOut = append(
			newTx.TxOut[:candidate.changeIndex],
			newTx.TxOut[candidate.changeIndex+1:]...,
		)
		newFee += remainder
	}

	newSequence := uint32(maxRBFSequence)
	if req.Final {
		newSequence = finalSequence
	}
	for _, txIn := range newTx.TxIn {
		txIn.Sequence = newSequence
		txIn.SignatureScript = nil
		txIn.Witness = nil
	}

	err = w.signer.Sign(newTx, candidate.prevScripts, candidate.prevValues)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	result := &BumpResult{
		Tx:     newTx,
		OldFee: candidate.oldFee,
		NewFee: newFee,
	}

	log.Infof("Replacing tx %v (fee %v) with %v (fee %v)", req.TxID,
		candidate.oldFee, newTx.TxHash(), newFee)
	log.Tracef("Replacement transaction: %v",
		newLogClosure(func() string {
			return spewTx(newTx)
		}))

	commit, err := w.broadcaster.Commit(newTx)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrCommitRejected, err)

	case !commit.Accepted:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"replacement was not accepted for relay: %s",
			commit.RejectReason))
	}

	if err := w.replacements.MarkReplaced(req.TxID,
		newTx.TxHash()); err != nil {

		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"created replacement %v but could not record the "+
				"link: %v", newTx.TxHash(), err))
	}

	return result, nil
}

// resolveBumpFee turns the bump request's fee policy into the replacement's
// total fee and rate. Absolute policies fix the fee and must clear the
// minimum viable replacement fee; rate and target policies resolve a rate
// that is raised to the minimum when too low.
func (w *Wallet) resolveBumpFee(policy FeePolicy,
	oldRate lbtcunit.SatPerKVByte, maxNewSize lbtcunit.VByte) (
	btcutil.Amount, lbtcunit.SatPerKVByte, error) {

	if policy == nil {
		policy = FeePolicyTarget{}
	}

	switch p := policy.(type) {
	case FeePolicyAbsolute:
		err := w.checkBumpTotalFee(p.Fee, oldRate, maxNewSize)
		if err != nil {
			return 0, 0, err
		}

		return p.Fee, lbtcunit.CalcSatPerKVByte(p.Fee, maxNewSize),
			nil

	case FeePolicyRate:
		rate := p.Rate
		minRate := oldRate.AddSats(1) + w.cfg.incrementalRate()
		if rate < minRate {
			return 0, 0, fmt.Errorf("%w: rate %v must be at "+
				"least %v to replace the original",
				ErrFeeRateTooLow, rate, minRate)
		}

		return rate.FeeForVSize(maxNewSize), rate, nil

	case FeePolicyTarget:
		rate := w.bumpRateForTarget(p.ConfTarget, oldRate)

		return rate.FeeForVSize(maxNewSize), rate, nil

	default:
		return 0, 0, fmt.Errorf("%w: %T", ErrUnknownFeePolicy, policy)
	}
}
