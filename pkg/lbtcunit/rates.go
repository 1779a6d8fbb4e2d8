// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package lbtcunit provides types for fee rates and transaction sizes used
// throughout the wallet's fee arithmetic. Fee rates are expressed in
// satoshis per kilo-virtual-byte (sat/kvb), the unit used by relay policy,
// and sizes in virtual bytes.
package lbtcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// kilo is the generic multiplier for kilo units.
const kilo = 1000

// SatPerKVByte represents a fee rate in sat/kvb.
type SatPerKVByte btcutil.Amount

// ZeroSatPerKVByte is a fee rate of 0 sat/kvb.
const ZeroSatPerKVByte SatPerKVByte = 0

// NewSatPerKVByte creates a new fee rate from a raw sat/kvb amount.
func NewSatPerKVByte(rate btcutil.Amount) SatPerKVByte {
	return SatPerKVByte(rate)
}

// CalcSatPerKVByte calculates the fee rate implied by paying the given fee
// for the given virtual size. The result is rounded down, matching how relay
// policy derives a rate from an observed transaction.
func CalcSatPerKVByte(fee btcutil.Amount, size VByte) SatPerKVByte {
	if size == 0 {
		return 0
	}

	return SatPerKVByte(int64(fee) * kilo / int64(size))
}

// FeeForVSize calculates the fee resulting from this fee rate and the given
// virtual size, rounded up to the next satoshi. Rounding up guarantees the
// resulting transaction pays at least the requested rate.
func (s SatPerKVByte) FeeForVSize(size VByte) btcutil.Amount {
	fee := (int64(s)*int64(size) + kilo - 1) / kilo

	return btcutil.Amount(fee)
}

// AddSats returns the fee rate increased by the given number of satoshis per
// kilo-virtual-byte.
func (s SatPerKVByte) AddSats(sats btcutil.Amount) SatPerKVByte {
	return s + SatPerKVByte(sats)
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return fmt.Sprintf("%d sat/kvb", int64(s))
}

// SatPerVByte represents a fee rate in sat/vbyte.
type SatPerVByte btcutil.Amount

// NewSatPerVByte creates a new fee rate from a raw sat/vb amount.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return SatPerVByte(rate)
}

// FeePerKVByte converts the fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	return SatPerKVByte(s * kilo)
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return fmt.Sprintf("%d sat/vb", int64(s))
}
