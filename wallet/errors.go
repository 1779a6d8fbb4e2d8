// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "errors"

// Input errors. The request itself is malformed, and nothing was mutated.
var (
	// ErrNoRecipients is returned when a payment is requested without any
	// recipients.
	ErrNoRecipients = errors.New("no recipients")

	// ErrInvalidRecipient is returned when a recipient has a non-positive
	// amount, or subtracting the fee would leave it with nothing to
	// receive.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrDuplicateRecipient is returned when two recipients pay the same
	// destination script.
	ErrDuplicateRecipient = errors.New("duplicated recipient")

	// ErrEmptyPayload is returned when a payload payment is requested with
	// an empty payload body.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrPayloadTooLarge is returned when the encoded payload exceeds the
	// configured data-carrier limit.
	ErrPayloadTooLarge = errors.New("payload exceeds data carrier limit")

	// ErrUnknownFeePolicy is returned when a fee policy of an unsupported
	// type is provided.
	ErrUnknownFeePolicy = errors.New("unknown fee policy")

	// ErrUnknownConstraint is returned when a coin constraint of an
	// unsupported type is provided.
	ErrUnknownConstraint = errors.New("unknown coin constraint")

	// ErrUnsupportedScript is returned when an input's previous output
	// script is of a kind the size estimator cannot bound.
	ErrUnsupportedScript = errors.New("unsupported script type")
)

// Resource errors. The wallet cannot fund the request; no side effects.
var (
	// ErrInsufficientFunds is returned when the eligible coins cannot
	// cover the requested amounts plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrChangeTooSmall is returned when a fee bump cannot be paid for by
	// the original transaction's change output.
	ErrChangeTooSmall = errors.New("change output is too small to bump " +
		"the fee")

	// ErrKeyPoolExhausted is returned when no change key could be
	// reserved.
	ErrKeyPoolExhausted = errors.New("key pool exhausted")
)

// Policy errors. The resolved fee violates policy bounds; no side effects.
var (
	// ErrFeeExceedsMaximum is returned when the resolved fee is above the
	// configured maximum transaction fee.
	ErrFeeExceedsMaximum = errors.New("fee exceeds maximum configured " +
		"transaction fee")

	// ErrFeeRateTooLow is returned when the resolved fee rate is below
	// what the mempool currently requires, or an explicit total fee does
	// not pay the minimum required increase.
	ErrFeeRateTooLow = errors.New("fee rate too low")
)

// State errors. The original transaction is in a state that forbids
// replacement; the transaction is left untouched.
var (
	// ErrUnknownTx is returned when the transaction to bump is not known
	// to the wallet.
	ErrUnknownTx = errors.New("unknown wallet transaction")

	// ErrTxConfirmed is returned when the transaction to bump has been
	// mined or conflicts with a mined transaction.
	ErrTxConfirmed = errors.New("transaction has been mined or is " +
		"conflicted")

	// ErrHasDescendants is returned when a wallet or mempool transaction
	// spends an output of the transaction to bump.
	ErrHasDescendants = errors.New("transaction has descendants")

	// ErrNotReplaceable is returned when the transaction does not signal
	// opt-in replaceability.
	ErrNotReplaceable = errors.New("transaction does not signal opt-in " +
		"replacement")

	// ErrAlreadyReplaced is returned when the transaction was already
	// replaced by an earlier fee bump.
	ErrAlreadyReplaced = errors.New("transaction was already replaced")

	// ErrForeignInputs is returned when the transaction spends inputs the
	// wallet does not own, making its true fee unknowable.
	ErrForeignInputs = errors.New("transaction contains inputs not " +
		"owned by this wallet")

	// ErrNoChangeOutput is returned when the transaction has no
	// identifiable change output to take the fee increase from.
	ErrNoChangeOutput = errors.New("transaction has no change output")

	// ErrMultipleChangeOutputs is returned when more than one output of
	// the transaction is identified as change.
	ErrMultipleChangeOutputs = errors.New("transaction has multiple " +
		"change outputs")
)

// Collaborator errors. A collaborator failed; these may occur after coin
// locks were taken, and the wallet guarantees their release.
var (
	// ErrPeerNetworkingDisabled is returned when broadcasting is requested
	// but peer-to-peer functionality is missing or disabled.
	ErrPeerNetworkingDisabled = errors.New("peer-to-peer functionality " +
		"missing or disabled")

	// ErrSigningFailed is returned when the signing collaborator could not
	// sign an input.
	ErrSigningFailed = errors.New("failed to sign transaction")

	// ErrCommitRejected is returned when the commit collaborator rejected
	// the signed transaction. The rejection reason is wrapped verbatim.
	ErrCommitRejected = errors.New("transaction rejected")
)

// ErrorKind is a stable classification of the errors returned by the public
// wallet operations, so callers can map failures without matching on every
// sentinel.
type ErrorKind uint8

const (
	// KindUnknown is the zero value used for errors produced outside this
	// package.
	KindUnknown ErrorKind = iota

	// KindInput marks malformed requests. Nothing was mutated.
	KindInput

	// KindResource marks requests the wallet cannot fund. No side effect.
	KindResource

	// KindPolicy marks fee-policy violations. No side effect.
	KindPolicy

	// KindState marks replacement attempts on a transaction whose state
	// forbids it. The transaction is untouched.
	KindState

	// KindCollaborator marks failures of the signing or commit
	// collaborators. Locks and reservations are released before the error
	// is returned.
	KindCollaborator
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResource:
		return "resource"
	case KindPolicy:
		return "policy"
	case KindState:
		return "state"
	case KindCollaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

// kindTable maps every sentinel to its kind. Order is irrelevant; each error
// appears exactly once.
var kindTable = map[ErrorKind][]error{
	KindInput: {
		ErrNoRecipients, ErrInvalidRecipient, ErrDuplicateRecipient,
		ErrEmptyPayload, ErrPayloadTooLarge, ErrUnknownFeePolicy,
		ErrUnknownConstraint, ErrUnsupportedScript,
	},
	KindResource: {
		ErrInsufficientFunds, ErrChangeTooSmall, ErrKeyPoolExhausted,
	},
	KindPolicy: {
		ErrFeeExceedsMaximum, ErrFeeRateTooLow,
	},
	KindState: {
		ErrUnknownTx, ErrTxConfirmed, ErrHasDescendants,
		ErrNotReplaceable, ErrAlreadyReplaced, ErrForeignInputs,
		ErrNoChangeOutput, ErrMultipleChangeOutputs,
	},
	KindCollaborator: {
		ErrPeerNetworkingDisabled, ErrSigningFailed, ErrCommitRejected,
	},
}

// Kind classifies an error returned by this package. Errors that do not wrap
// one of the package sentinels report KindUnknown.
func Kind(err error) ErrorKind {
	for kind, sentinels := range kindTable {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return kind
			}
		}
	}

	return KindUnknown
}
