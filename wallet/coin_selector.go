// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// CoinConstraint is a sealed interface restricting which coins may fund a
// transaction. It is either a single address or the whole wallet. The sealed
// interface pattern is used here to provide compile-time safety, ensuring
// that only the intended implementations can be used.
type CoinConstraint interface {
	// isCoinConstraint is a marker method that is part of the sealed
	// interface pattern. It is unexported, so it can only be implemented
	// by types within this package.
	isCoinConstraint()

	// validate performs early checks on the constraint before any ledger
	// access happens.
	validate() error
}

// FromAddress restricts funding to coins paying a single address. The
// address's own balance must cover the target on its own.
type FromAddress struct {
	// Address is the only address whose coins may be spent.
	Address btcutil.Address
}

// WalletWide allows funding from any eligible coin in the wallet.
type WalletWide struct{}

func (FromAddress) isCoinConstraint() {}
func (WalletWide) isCoinConstraint()  {}

func (c FromAddress) validate() error {
	if c.Address == nil {
		return fmt.Errorf("%w: nil address", ErrUnknownConstraint)
	}

	return nil
}

func (WalletWide) validate() error { return nil }

// A compile-time assertion to ensure that all constraint types implement the
// interface.
var _ CoinConstraint = (*FromAddress)(nil)
var _ CoinConstraint = (*WalletWide)(nil)

// coinSelection is the outcome of filtering and ordering the ledger's coins
// for one build attempt.
type coinSelection struct {
	// eligible holds the spendable coins in selection order.
	eligible []Coin

	// total is the combined value of all eligible coins. Selection fails
	// fast when this cannot cover the target.
	total btcutil.Amount
}

// eligibleCoins queries the ledger and filters its coins down to the set the
// given constraint allows, ordered largest first. Locked coins, coins below
// minDepth, immature coinbase outputs, watch-only outputs, and (unless
// allowed by config) unsafe unconfirmed outputs are all excluded.
func (w *Wallet) eligibleCoins(constraint CoinConstraint,
	minDepth int32) (*coinSelection, error) {

	coins, err := w.ledger.ListSpendableCoins()
	if err != nil {
		return nil, err
	}

	maturity := int32(w.chainParams.CoinbaseMaturity)

	selection := &coinSelection{
		eligible: make([]Coin, 0, len(coins)),
	}
	for _, coin := range coins {
		if !w.coinEligible(&coin, minDepth, maturity) {
			continue
		}

		// Apply the constraint last so the cheap filters run first.
		if !constraintAllows(constraint, &coin) {
			continue
		}

		selection.eligible = append(selection.eligible, coin)
		selection.total += coin.Amount()
	}

	orderLargestFirst(selection.eligible)

	return selection, nil
}

// coinEligible reports whether a single coin may be spent at all, regardless
// of the constraint.
func (w *Wallet) coinEligible(coin *Coin, minDepth, maturity int32) bool {
	// Watch-only outputs cannot be signed for.
	if !coin.Spendable {
		return false
	}

	if coin.Confirmations < minDepth {
		return false
	}

	// Coinbase outputs must have reached maturity before their outputs
	// may be spent.
	if coin.FromCoinBase && coin.Confirmations < maturity {
		return false
	}

	// Unconfirmed outputs from third parties are unsafe: they can be
	// double-spent from under us. Our own unconfirmed change is fine.
	if coin.Confirmations == 0 && !coin.FromWallet &&
		!w.cfg.AllowUnsafe {

		return false
	}

	return true
}

// constraintAllows reports whether the constraint permits spending the coin.
func constraintAllows(constraint CoinConstraint, coin *Coin) bool {
	switch c := constraint.(type) {
	case FromAddress:
		if coin.Address == nil {
			return false
		}

		return coin.Address.String() == c.Address.String()

	case WalletWide:
		return true

	default:
		return false
	}
}

// checkTarget fails fast with ErrInsufficientFunds when the eligible total
// cannot cover the target. This runs before any change key is reserved.
func (s *coinSelection) checkTarget(target btcutil.Amount) error {
	if s.total < target {
		return fmt.Errorf("%w: have %v, need %v",
			ErrInsufficientFunds, s.total, target)
	}

	return nil
}

// orderLargestFirst sorts coins by descending value so the fewest inputs
// fund a given target. Ties break on outpoint for determinism.
func orderLargestFirst(coins []Coin) {
	sort.Slice(coins, func(i, j int) bool {
		if coins[i].Value != coins[j].Value {
			return coins[i].Value > coins[j].Value
		}

		cmp := bytes.Compare(
			coins[i].OutPoint.Hash[:], coins[j].OutPoint.Hash[:],
		)
		if cmp != 0 {
			return cmp < 0
		}

		return coins[i].OutPoint.Index < coins[j].OutPoint.Index
	})
}

// inputSource returns a txauthor.InputSource that dispenses the eligible
// coins one by one as the builder raises its target while iterating the fee
// to a fixed point. The closure reuses its state across calls, so drawn
// inputs stay drawn.
func (s *coinSelection) inputSource() txauthor.InputSource {
	// Current inputs and their total value. These are closed over by the
	// returned input source and reused across multiple calls.
	eligible := s.eligible
	currentTotal := btcutil.Amount(0)
	currentInputs := make([]*wire.TxIn, 0, len(eligible))
	currentScripts := make([][]byte, 0, len(eligible))
	currentInputValues := make([]btcutil.Amount, 0, len(eligible))

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		for currentTotal < target && len(eligible) != 0 {
			nextCoin := eligible[0]
			eligible = eligible[1:]

			outpoint := nextCoin.OutPoint
			nextInput := wire.NewTxIn(&outpoint, nil, nil)
			currentTotal += nextCoin.Amount()

			currentInputs = append(currentInputs, nextInput)
			currentScripts = append(
				currentScripts, nextCoin.PkScript,
			)
			currentInputValues = append(
				currentInputValues, nextCoin.Amount(),
			)
		}

		return currentTotal, currentInputs, currentInputValues,
			currentScripts, nil
	}
}
