// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

// FeePolicy is a sealed interface describing how the fee of a new
// transaction is determined. It is one of a fixed rate, a fixed absolute
// fee, or a confirmation target resolved through the fee oracle.
type FeePolicy interface {
	// isFeePolicy is the sealed interface marker method.
	isFeePolicy()
}

// FeePolicyRate pays an explicit fee rate.
type FeePolicyRate struct {
	// Rate is the fee rate to pay.
	Rate lbtcunit.SatPerKVByte
}

// FeePolicyAbsolute pays an explicit total fee regardless of the resulting
// transaction's size.
type FeePolicyAbsolute struct {
	// Fee is the total fee to pay.
	Fee btcutil.Amount
}

// FeePolicyTarget resolves the fee rate through the fee oracle for a
// confirmation target. A zero target uses the configured default.
type FeePolicyTarget struct {
	// ConfTarget is the desired confirmation depth in blocks.
	ConfTarget uint32
}

func (FeePolicyRate) isFeePolicy()     {}
func (FeePolicyAbsolute) isFeePolicy() {}
func (FeePolicyTarget) isFeePolicy()   {}

var _ FeePolicy = (*FeePolicyRate)(nil)
var _ FeePolicy = (*FeePolicyAbsolute)(nil)
var _ FeePolicy = (*FeePolicyTarget)(nil)

// feeScheme is the resolved form of a FeePolicy: either a rate applied to
// the transaction's virtual size, or a fixed absolute fee.
type feeScheme struct {
	// rate is the resolved fee rate. Ignored when absolute is set.
	rate lbtcunit.SatPerKVByte

	// absolute, when non-zero with absoluteSet, fixes the total fee.
	absolute btcutil.Amount

	// absoluteSet distinguishes an absolute fee of zero from a rate
	// scheme.
	absoluteSet bool

	// floor is a hard minimum on the resulting fee, used by payments that
	// carry a fixed protocol fee.
	floor btcutil.Amount
}

// resolveFeePolicy turns a caller-supplied fee policy into a concrete fee
// scheme, consulting the fee oracle where needed. A nil policy resolves like
// a target policy with the configured default confirmation target.
func (w *Wallet) resolveFeePolicy(policy FeePolicy) (*feeScheme, error) {
	if policy == nil {
		policy = FeePolicyTarget{}
	}

	switch p := policy.(type) {
	case FeePolicyRate:
		if p.Rate <= 0 {
			return nil, fmt.Errorf("%w: non-positive rate %v",
				ErrUnknownFeePolicy, p.Rate)
		}

		return &feeScheme{rate: w.raiseToRelayFloor(p.Rate)}, nil

	case FeePolicyAbsolute:
		if p.Fee <= 0 {
			return nil, fmt.Errorf("%w: non-positive fee %v",
				ErrUnknownFeePolicy, p.Fee)
		}

		return &feeScheme{absolute: p.Fee, absoluteSet: true}, nil

	case FeePolicyTarget:
		return &feeScheme{rate: w.rateForTarget(p.ConfTarget)}, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownFeePolicy, policy)
	}
}

// rateForTarget asks the fee oracle for a rate confirming within confTarget
// blocks, falling back to the configured fallback rate when the oracle has
// no data. The relay floor is always enforced.
func (w *Wallet) rateForTarget(confTarget uint32) lbtcunit.SatPerKVByte {
	if confTarget == 0 {
		confTarget = w.cfg.ConfTarget
	}

	rate, err := w.feeOracle.EstimateRate(confTarget)
	if err != nil {
		rate = w.cfg.fallbackRate()
		log.Debugf("Fee estimation for target %d unavailable, using "+
			"fallback rate %v: %v", confTarget, rate, err)
	}

	return w.raiseToRelayFloor(rate)
}

// raiseToRelayFloor deterministically raises a rate below the relay floor to
// one satoshi above it.
func (w *Wallet) raiseToRelayFloor(
	rate lbtcunit.SatPerKVByte) lbtcunit.SatPerKVByte {

	if floor := w.cfg.relayFloor(); rate < floor {
		return floor.AddSats(1)
	}

	return rate
}

// feeFor returns the fee the scheme assigns to a transaction of the given
// virtual size, honoring the scheme's floor.
func (s *feeScheme) feeFor(size lbtcunit.VByte) btcutil.Amount {
	fee := s.absolute
	if !s.absoluteSet {
		fee = s.rate.FeeForVSize(size)
	}

	if fee < s.floor {
		fee = s.floor
	}

	return fee
}

// checkFeeBounds verifies a final fee against the configured policy bounds:
// the fee must not exceed the maximum transaction fee and, for rate schemes,
// the implied rate must not fall below the relay floor.
func (w *Wallet) checkFeeBounds(fee btcutil.Amount,
	size lbtcunit.VByte) error {

	if fee > w.cfg.maxFee() {
		return fmt.Errorf("%w: %v > %v", ErrFeeExceedsMaximum, fee,
			w.cfg.maxFee())
	}

	if floor := w.cfg.relayFloor(); fee < floor.FeeForVSize(size) {
		return fmt.Errorf("%w: fee %v for %v is below the relay "+
			"floor %v", ErrFeeRateTooLow, fee, size, floor)
	}

	return nil
}

// bumpRateForTarget resolves the replacement rate for an estimate-driven
// bump. The returned rate is guaranteed to exceed the replaced transaction's
// rate by at least the effective incremental rate. When the estimate does
// not clear that bar the rate is raised deterministically rather than
// failing, since the caller explicitly asked for a replacement.
func (w *Wallet) bumpRateForTarget(confTarget uint32,
	oldRate lbtcunit.SatPerKVByte) lbtcunit.SatPerKVByte {

	newRate := w.rateForTarget(confTarget)

	minRate := oldRate.AddSats(1) + w.cfg.incrementalRate()
	if newRate < minRate {
		log.Debugf("Estimated bump rate %v below required minimum, "+
			"raising to %v", newRate, minRate)
		newRate = minRate
	}

	return newRate
}

// checkBumpTotalFee validates an explicit replacement total fee against the
// replaced transaction's fee. The new fee must beat the old rate applied to
// the replacement's maximum size plus the incremental relay fee for that
// size, and it must clear the relay floor on its own.
func (w *Wallet) checkBumpTotalFee(totalFee btcutil.Amount,
	oldRate lbtcunit.SatPerKVByte, maxNewSize lbtcunit.VByte) error {

	minTotal := oldRate.FeeForVSize(maxNewSize) +
		w.cfg.incrementalRate().FeeForVSize(maxNewSize)
	if totalFee < minTotal {
		return fmt.Errorf("%w: total fee %v must be at least %v to "+
			"replace the original", ErrFeeRateTooLow, totalFee,
			minTotal)
	}

	required := w.cfg.relayFloor().FeeForVSize(maxNewSize)
	if totalFee < required {
		return fmt.Errorf("%w: total fee %v cannot be less than "+
			"the required fee %v", ErrFeeRateTooLow, totalFee,
			required)
	}

	return nil
}

// checkMempoolFloor rejects a replacement rate the local mempool would not
// currently accept.
func (w *Wallet) checkMempoolFloor(rate lbtcunit.SatPerKVByte) error {
	if minRate := w.mempool.MinFeeRate(); rate < minRate {
		return fmt.Errorf("%w: new fee rate %v is below the current "+
			"minimum mempool fee rate %v", ErrFeeRateTooLow, rate,
			minRate)
	}

	return nil
}
