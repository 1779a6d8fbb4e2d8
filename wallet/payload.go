// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Payload is an application payload to be embedded in a transaction through
// a provably unspendable data-carrier output. The wallet treats the body as
// opaque; structured payloads are encoded by higher layers.
type Payload struct {
	// AppID identifies the application-level protocol the body belongs
	// to. It is serialized as a 4-byte little-endian tag ahead of the
	// body.
	AppID uint32

	// Body is the raw payload data.
	Body []byte
}

// encode returns the full data push carried by the output script: the
// little-endian application tag followed by the body.
func (p *Payload) encode() []byte {
	data := make([]byte, 4+len(p.Body))
	binary.LittleEndian.PutUint32(data[:4], p.AppID)
	copy(data[4:], p.Body)

	return data
}

// dataCarrierScript validates the payload and builds the OP_RETURN output
// script carrying it. The chain relays data-carrier scripts well beyond the
// standard 80-byte policy, so pushes larger than a single canonical script
// element are permitted here.
func (w *Wallet) dataCarrierScript(payload *Payload) ([]byte, error) {
	if payload == nil || len(payload.Body) == 0 {
		return nil, ErrEmptyPayload
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddFullData(payload.encode())

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("building data carrier script: %w", err)
	}

	if len(script) > w.cfg.MaxDataCarrierSize {
		return nil, fmt.Errorf("%w: script is %d bytes, limit is %d",
			ErrPayloadTooLarge, len(script),
			w.cfg.MaxDataCarrierSize)
	}

	return script, nil
}
