// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package vote

import "github.com/btcsuite/btcd/btcutil"

// Fixed protocol fees, consensus-enforced per operation. Registrations burn
// a whole coin to discourage squatting; votes pay a nominal fee.
const (
	// RegisterDelegateFee is burned when registering a delegate.
	RegisterDelegateFee = btcutil.Amount(btcutil.SatoshiPerBitcoin)

	// RegisterCommitteeFee is burned when registering a committee.
	RegisterCommitteeFee = btcutil.Amount(btcutil.SatoshiPerBitcoin)

	// SubmitBillFee is burned when publishing a bill.
	SubmitBillFee = btcutil.Amount(btcutil.SatoshiPerBitcoin)

	// BallotFee is paid by every vote and vote revocation.
	BallotFee = btcutil.Amount(100_000)
)

// ProtocolFee returns the fixed fee the chain requires for a governance
// message.
func ProtocolFee(msg Message) btcutil.Amount {
	switch msg.(type) {
	case *RegisterDelegate:
		return RegisterDelegateFee
	case *RegisterCommittee:
		return RegisterCommitteeFee
	case *SubmitBill:
		return SubmitBillFee
	default:
		return BallotFee
	}
}
