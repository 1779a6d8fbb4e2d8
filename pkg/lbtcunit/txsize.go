// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package lbtcunit

import "fmt"

// VByte expresses a transaction size in virtual bytes. One virtual byte is
// 1/4th of a weight unit, so for transactions without witness data the
// virtual size equals the serialized size.
type VByte int64

// NewVByte creates a new VByte from a raw size.
func NewVByte(val int64) VByte {
	return VByte(val)
}

// String returns the string representation of the virtual size.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", int64(v))
}
