// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

// maxRBFSequence is the highest input sequence number that still signals
// opt-in replaceability under BIP 125. Every transaction the wallet builds
// uses it so the transaction can be fee bumped later.
const maxRBFSequence = wire.MaxTxInSequenceNum - 2

// Recipient describes one payment destination.
type Recipient struct {
	// Address is the destination address.
	Address btcutil.Address

	// Amount is the value to pay, before any fee subtraction.
	Amount btcutil.Amount

	// SubtractFee marks this recipient as paying a share of the fee out
	// of its own amount instead of the fee coming from the inputs.
	SubtractFee bool
}

// AuthoredTx holds a newly built unsigned transaction along with everything
// needed to sign it and account for it.
type AuthoredTx struct {
	// Tx is the unsigned transaction.
	Tx *wire.MsgTx

	// PrevScripts holds the output script of each spent output, in input
	// order.
	PrevScripts [][]byte

	// PrevInputValues holds the value of each spent output, in input
	// order.
	PrevInputValues []btcutil.Amount

	// TotalInput is the combined value of all inputs.
	TotalInput btcutil.Amount

	// Fee is the fee the transaction pays. The value equation
	// TotalInput = sum(outputs) + Fee holds by construction.
	Fee btcutil.Amount

	// ChangeIndex is the index of the change output, or -1 when the
	// transaction carries no change.
	ChangeIndex int
}

// recipientOutputs validates the recipients and converts them into outputs.
// It returns the outputs in recipient order and the output indexes of the
// recipients that pay a fee share.
func recipientOutputs(recipients []Recipient,
	relayFeePerKb btcutil.Amount) ([]*wire.TxOut, []int, error) {

	if len(recipients) == 0 {
		return nil, nil, ErrNoRecipients
	}

	seen := fn.NewSet[string]()
	outputs := make([]*wire.TxOut, 0, len(recipients))
	var feePayers []int

	for i, r := range recipients {
		if r.Address == nil {
			return nil, nil, fmt.Errorf("%w: recipient %d has "+
				"no address", ErrInvalidRecipient, i)
		}
		if r.Amount <= 0 {
			return nil, nil, fmt.Errorf("%w: recipient %d has "+
				"non-positive amount %v", ErrInvalidRecipient,
				i, r.Amount)
		}

		pkScript, err := txscript.PayToAddrScript(r.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: recipient %d: %v",
				ErrInvalidRecipient, i, err)
		}

		key := string(pkScript)
		if seen.Contains(key) {
			return nil, nil, fmt.Errorf("%w: %v",
				ErrDuplicateRecipient, r.Address)
		}
		seen.Add(key)

		output := wire.NewTxOut(int64(r.Amount), pkScript)
		if err := txrules.CheckOutput(output, relayFeePerKb); err != nil {
			return nil, nil, fmt.Errorf("%w: recipient %d: %v",
				ErrInvalidRecipient, i, err)
		}

		outputs = append(outputs, output)
		if r.SubtractFee {
			feePayers = append(feePayers, i)
		}
	}

	return outputs, feePayers, nil
}

// countInputClasses buckets the spent output scripts into the script classes
// the size estimator understands. Scripts of any other class cannot have
// their signed size bounded and are rejected.
func countInputClasses(prevScripts [][]byte) (p2pkh, p2tr, p2wpkh,
	nested int, err error) {

	for _, script := range prevScripts {
		switch txscript.GetScriptClass(script) {
		case txscript.PubKeyHashTy:
			p2pkh++
		case txscript.WitnessV1TaprootTy:
			p2tr++
		case txscript.WitnessV0PubKeyHashTy:
			p2wpkh++

		// Pay-to-script-hash outputs in this wallet are always
		// nested witness key hash scripts.
		case txscript.ScriptHashTy:
			nested++

		default:
			return 0, 0, 0, 0, fmt.Errorf("%w: %v",
				ErrUnsupportedScript,
				txscript.GetScriptClass(script))
		}
	}

	return p2pkh, p2tr, p2wpkh, nested, nil
}

// buildTx assembles an unsigned transaction paying the given recipients,
// optionally carrying a data-carrier script as an extra zero-value output.
// The fee is iterated to a fixed point: each pass estimates the maximum
// signed size of the current input set, derives the fee, and draws more
// inputs if the total no longer covers amounts plus fee.
func (w *Wallet) buildTx(recipients []Recipient, payloadScript []byte,
	scheme *feeScheme, selection *coinSelection,
	changeScript []byte) (*AuthoredTx, error) {

	relayFeePerKb := btcutil.Amount(w.cfg.RelayFeePerKvb)

	outputs, feePayers, err := recipientOutputs(recipients, relayFeePerKb)
	if err != nil {
		return nil, err
	}
	if payloadScript != nil {
		outputs = append(outputs, wire.NewTxOut(0, payloadScript))
	}

	var targetAmount btcutil.Amount
	for _, r := range recipients {
		targetAmount += r.Amount
	}

	// When recipients pay the fee, the inputs only need to cover the
	// nominal amounts.
	subtracting := len(feePayers) > 0

	if err := selection.checkTarget(targetAmount); err != nil {
		return nil, err
	}

	fetchInputs := selection.inputSource()

	var (
		inputAmount btcutil.Amount
		inputs      []*wire.TxIn
		inputValues []btcutil.Amount
		prevScripts [][]byte
		fee         btcutil.Amount
	)
	for {
		selectionTarget := targetAmount
		if !subtracting {
			selectionTarget += fee
		}

		inputAmount, inputs, inputValues, prevScripts, err =
			fetchInputs(selectionTarget)
		if err != nil {
			return nil, err
		}
		if inputAmount < selectionTarget {
			return nil, fmt.Errorf("%w: have %v, need %v",
				ErrInsufficientFunds, inputAmount,
				selectionTarget)
		}

		p2pkh, p2tr, p2wpkh, nested, err := countInputClasses(
			prevScripts,
		)
		if err != nil {
			return nil, err
		}

		maxSignedSize := txsizes.EstimateVirtualSize(
			p2pkh, p2tr, p2wpkh, nested, outputs,
			len(changeScript),
		)
		newFee := scheme.feeFor(lbtcunit.VByte(maxSignedSize))

		// The fee only ever grows with the input set, so equality
		// means the fixed point is reached.
		if newFee == fee {
			break
		}
		fee = newFee
	}

	// Copy the output list so fee subtraction below does not alias the
	// validated outputs.
	txOuts := make([]*wire.TxOut, len(outputs))
	for i, out := range outputs {
		txOuts[i] = wire.NewTxOut(out.Value, out.PkScript)
	}

	if subtracting {
		if err := subtractFee(txOuts, feePayers, fee,
			relayFeePerKb); err != nil {

			return nil, err
		}
	}

	tx := &wire.MsgTx{
		Version: wire.TxVersion,
		TxIn:    inputs,
		TxOut:   txOuts,
	}
	for _, txIn := range tx.TxIn {
		txIn.Sequence = maxRBFSequence
	}

	var outputSum btcutil.Amount
	for _, out := range tx.TxOut {
		outputSum += btcutil.Amount(out.Value)
	}

	// Whatever the inputs carry beyond outputs and fee becomes change,
	// unless it is too small to be worth an output, in which case it is
	// folded into the fee.
	changeIndex := -1
	changeAmount := inputAmount - outputSum - fee
	if changeAmount != 0 && !txrules.IsDustAmount(changeAmount,
		len(changeScript), relayFeePerKb) {

		change := wire.NewTxOut(int64(changeAmount), changeScript)
		tx.TxOut = append(tx.TxOut, change)
		changeIndex = txauthor.RandomizeOutputPosition(
			tx.TxOut, len(tx.TxOut)-1,
		)
	} else if changeAmount != 0 {
		log.Debugf("Folding dust change %v into the fee", changeAmount)
		fee += changeAmount
	}

	if err := w.checkFeeBounds(fee, txVirtualSize(tx)); err != nil {
		return nil, err
	}

	return &AuthoredTx{
		Tx:              tx,
		PrevScripts:     prevScripts,
		PrevInputValues: inputValues,
		TotalInput:      inputAmount,
		Fee:             fee,
		ChangeIndex:     changeIndex,
	}, nil
}

// subtractFee splits the fee across the fee-paying outputs. Every payer
// carries an equal share; the first payer additionally carries the division
// remainder. An output that cannot afford its share, or would be left as
// dust, fails the build.
func subtractFee(outputs []*wire.TxOut, feePayers []int,
	fee, relayFeePerKb btcutil.Amount) error {

	share := fee / btcutil.Amount(len(feePayers))
	remainder := fee % btcutil.Amount(len(feePayers))

	for n, idx := range feePayers {
		deduction := share
		if n == 0 {
			deduction += remainder
		}

		out := outputs[idx]
		out.Value -= int64(deduction)

		if out.Value <= 0 || txrules.IsDustAmount(
			btcutil.Amount(out.Value), len(out.PkScript),
			relayFeePerKb) {

			return fmt.Errorf("%w: amount at output %d is too "+
				"small to pay its fee share %v",
				ErrInvalidRecipient, idx, deduction)
		}
	}

	return nil
}
