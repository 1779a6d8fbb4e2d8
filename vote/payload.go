// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package vote encodes the chain's delegate and committee governance
// messages into wallet payloads. Each message is a one-byte operation code
// followed by a TLV stream, carried on chain in a data-carrier output built
// by the wallet.
package vote

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/tlv"

	"github.com/lbtcsuite/lbtcwallet/wallet"
)

// AppID tags governance payloads in the data-carrier output.
const AppID uint32 = 0x0001

// Operation codes. One per governance message.
const (
	OpRegisterDelegate  byte = 0xc1
	OpVote              byte = 0xc2
	OpRegisterCommittee byte = 0xc3
	OpVoteCommittee     byte = 0xc4
	OpRevokeVote        byte = 0xc5
	OpSubmitBill        byte = 0xc6
	OpVoteBill          byte = 0xc7
)

// Message size and count limits, enforced on encode and decode.
const (
	// MaxVoteTargets caps how many delegates a single vote or revocation
	// may name.
	MaxVoteTargets = 51

	// MaxNameLen caps delegate and committee names.
	MaxNameLen = 32

	// MaxURLLen caps the committee information URL.
	MaxURLLen = 256

	// MaxTitleLen caps a bill's title.
	MaxTitleLen = 128

	// MaxDetailLen caps a bill's detail text.
	MaxDetailLen = 512

	// MaxBillOptions caps the number of voteable options on a bill.
	MaxBillOptions = 16

	// MaxElementLen caps every element of a byte-string list (vote
	// targets, bill options). Decoding reads list elements with this
	// limit, so validation must never pass a longer one.
	MaxElementLen = 256
)

// TLV type numbers shared by the message bodies.
const (
	typeName    tlv.Type = 1
	typeTargets tlv.Type = 2
	typeURL     tlv.Type = 3
	typeTitle   tlv.Type = 4
	typeDetail  tlv.Type = 5
	typeOptions tlv.Type = 6
	typeEnd     tlv.Type = 7
	typeBill    tlv.Type = 8
	typeChoice  tlv.Type = 9
)

var (
	// ErrUnknownOp is returned when decoding a payload whose operation
	// code is not a governance operation.
	ErrUnknownOp = errors.New("unknown governance operation")

	// ErrInvalidMessage is returned when a message violates a size or
	// count limit.
	ErrInvalidMessage = errors.New("invalid governance message")
)

// Message is a governance message that can be carried in a wallet payload.
type Message interface {
	// op returns the message's operation code.
	op() byte

	// records returns the TLV records making up the message body.
	records() []tlv.Record

	// Validate checks the message against the protocol limits.
	Validate() error
}

// RegisterDelegate announces the sending address as a delegate candidate.
type RegisterDelegate struct {
	// Name is the delegate's unique display name.
	Name []byte
}

func (m *RegisterDelegate) op() byte { return OpRegisterDelegate }

func (m *RegisterDelegate) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeName, &m.Name),
	}
}

// Validate checks the delegate name.
func (m *RegisterDelegate) Validate() error {
	return checkName(m.Name)
}

// Vote casts the sending address's stake for up to MaxVoteTargets delegates.
type Vote struct {
	// Targets holds the delegate addresses being voted for, as
	// serialized address strings.
	Targets [][]byte
}

func (m *Vote) op() byte { return OpVote }

func (m *Vote) records() []tlv.Record {
	return []tlv.Record{newTargetsRecord(typeTargets, &m.Targets)}
}

// Validate checks the target list.
func (m *Vote) Validate() error {
	return checkTargets(m.Targets)
}

// RevokeVote withdraws previously cast delegate votes.
type RevokeVote struct {
	// Targets holds the delegate addresses the votes are withdrawn from.
	Targets [][]byte
}

func (m *RevokeVote) op() byte { return OpRevokeVote }

func (m *RevokeVote) records() []tlv.Record {
	return []tlv.Record{newTargetsRecord(typeTargets, &m.Targets)}
}

// Validate checks the target list.
func (m *RevokeVote) Validate() error {
	return checkTargets(m.Targets)
}

// RegisterCommittee announces the sending address as a committee candidate.
type RegisterCommittee struct {
	// Name is the committee's unique display name.
	Name []byte

	// URL points at the committee's published platform.
	URL []byte
}

func (m *RegisterCommittee) op() byte { return OpRegisterCommittee }

func (m *RegisterCommittee) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeName, &m.Name),
		tlv.MakePrimitiveRecord(typeURL, &m.URL),
	}
}

// Validate checks the committee name and URL.
func (m *RegisterCommittee) Validate() error {
	if err := checkName(m.Name); err != nil {
		return err
	}
	if len(m.URL) == 0 || len(m.URL) > MaxURLLen {
		return fmt.Errorf("%w: url length %d", ErrInvalidMessage,
			len(m.URL))
	}

	return nil
}

// VoteCommittee casts the sending address's stake for a committee candidate.
type VoteCommittee struct {
	// Target is the committee address being voted for.
	Target []byte
}

func (m *VoteCommittee) op() byte { return OpVoteCommittee }

func (m *VoteCommittee) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeTargets, &m.Target),
	}
}

// Validate checks the target address.
func (m *VoteCommittee) Validate() error {
	if len(m.Target) == 0 {
		return fmt.Errorf("%w: empty committee target",
			ErrInvalidMessage)
	}

	return nil
}

// SubmitBill publishes a bill for committee voting.
type SubmitBill struct {
	// Title is the bill's short title.
	Title []byte

	// Detail is the bill's description or a URL pointing at it.
	Detail []byte

	// Options are the voteable choices.
	Options [][]byte

	// EndHeight is the block height at which voting closes.
	EndHeight uint64
}

func (m *SubmitBill) op() byte { return OpSubmitBill }

func (m *SubmitBill) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeTitle, &m.Title),
		tlv.MakePrimitiveRecord(typeDetail, &m.Detail),
		newTargetsRecord(typeOptions, &m.Options),
		tlv.MakePrimitiveRecord(typeEnd, &m.EndHeight),
	}
}

// Validate checks the bill's fields.
func (m *SubmitBill) Validate() error {
	if len(m.Title) == 0 || len(m.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title length %d", ErrInvalidMessage,
			len(m.Title))
	}
	if len(m.Detail) > MaxDetailLen {
		return fmt.Errorf("%w: detail length %d", ErrInvalidMessage,
			len(m.Detail))
	}
	if len(m.Options) < 2 || len(m.Options) > MaxBillOptions {
		return fmt.Errorf("%w: %d options", ErrInvalidMessage,
			len(m.Options))
	}
	for i, opt := range m.Options {
		if len(opt) == 0 || len(opt) > MaxElementLen {
			return fmt.Errorf("%w: option %d length %d",
				ErrInvalidMessage, i, len(opt))
		}
	}
	if m.EndHeight == 0 {
		return fmt.Errorf("%w: zero end height", ErrInvalidMessage)
	}

	return nil
}

// VoteBill casts a committee member's vote on a bill option.
type VoteBill struct {
	// Bill identifies the bill by the txid that submitted it.
	Bill [32]byte

	// Choice is the index of the chosen option.
	Choice uint8
}

func (m *VoteBill) op() byte { return OpVoteBill }

func (m *VoteBill) records() []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeBill, &m.Bill),
		tlv.MakePrimitiveRecord(typeChoice, &m.Choice),
	}
}

// Validate checks the bill reference.
func (m *VoteBill) Validate() error {
	if m.Bill == [32]byte{} {
		return fmt.Errorf("%w: zero bill id", ErrInvalidMessage)
	}

	return nil
}

func checkName(name []byte) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("%w: name length %d", ErrInvalidMessage,
			len(name))
	}

	return nil
}

func checkTargets(targets [][]byte) error {
	if len(targets) == 0 || len(targets) > MaxVoteTargets {
		return fmt.Errorf("%w: %d vote targets", ErrInvalidMessage,
			len(targets))
	}
	for i, target := range targets {
		if len(target) == 0 || len(target) > MaxElementLen {
			return fmt.Errorf("%w: target %d length %d",
				ErrInvalidMessage, i, len(target))
		}
	}

	return nil
}

// Encode serializes a validated message into a payload body.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	stream, err := tlv.NewStream(msg.records()...)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.WriteByte(msg.op())
	if err := stream.Encode(&body); err != nil {
		return nil, err
	}

	return body.Bytes(), nil
}

// Decode parses a payload body back into its governance message.
func Decode(body []byte) (Message, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}

	var msg Message
	switch body[0] {
	case OpRegisterDelegate:
		msg = &RegisterDelegate{}
	case OpVote:
		msg = &Vote{}
	case OpRevokeVote:
		msg = &RevokeVote{}
	case OpRegisterCommittee:
		msg = &RegisterCommittee{}
	case OpVoteCommittee:
		msg = &VoteCommittee{}
	case OpSubmitBill:
		msg = &SubmitBill{}
	case OpVoteBill:
		msg = &VoteBill{}
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOp, body[0])
	}

	stream, err := tlv.NewStream(msg.records()...)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(bytes.NewReader(body[1:])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// Payload wraps an encoded message into the wallet's payload type.
func Payload(msg Message) (*wallet.Payload, error) {
	body, err := Encode(msg)
	if err != nil {
		return nil, err
	}

	return &wallet.Payload{AppID: AppID, Body: body}, nil
}

// Request builds the wallet request carrying a governance message from the
// given address, with the message's fixed protocol fee attached.
func Request(addr btcutil.Address, msg Message,
	broadcast bool) (*wallet.PayloadRequest, error) {

	payload, err := Payload(msg)
	if err != nil {
		return nil, err
	}

	return &wallet.PayloadRequest{
		Address:   addr,
		Payload:   payload,
		Fee:       ProtocolFee(msg),
		Broadcast: broadcast,
	}, nil
}

// newTargetsRecord builds the TLV record for a list of byte strings. Each
// element is serialized as a var-length byte slice, preceded by a var-int
// element count.
func newTargetsRecord(recType tlv.Type, targets *[][]byte) tlv.Record {
	sizeFunc := func() uint64 {
		var size uint64
		size += uint64(wire.VarIntSerializeSize(
			uint64(len(*targets)),
		))
		for _, target := range *targets {
			size += uint64(wire.VarIntSerializeSize(
				uint64(len(target)),
			))
			size += uint64(len(target))
		}

		return size
	}

	return tlv.MakeDynamicRecord(
		recType, targets, sizeFunc, encodeTargets, decodeTargets,
	)
}

func encodeTargets(w io.Writer, val interface{}, buf *[8]byte) error {
	targets, ok := val.(*[][]byte)
	if !ok {
		return tlv.NewTypeForEncodingErr(val, "[][]byte")
	}

	err := wire.WriteVarInt(w, 0, uint64(len(*targets)))
	if err != nil {
		return err
	}
	for _, target := range *targets {
		if err := wire.WriteVarBytes(w, 0, target); err != nil {
			return err
		}
	}

	return nil
}

func decodeTargets(r io.Reader, val interface{}, buf *[8]byte,
	l uint64) error {

	targets, ok := val.(*[][]byte)
	if !ok {
		return tlv.NewTypeForDecodingErr(val, "[][]byte", l, l)
	}

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if count > MaxVoteTargets {
		return fmt.Errorf("%w: %d vote targets", ErrInvalidMessage,
			count)
	}

	decoded := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		target, err := wire.ReadVarBytes(r, 0, MaxElementLen, "target")
		if err != nil {
			return err
		}
		decoded = append(decoded, target)
	}
	*targets = decoded

	return nil
}
