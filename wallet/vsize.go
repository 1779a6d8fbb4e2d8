// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/mempool"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

// txVirtualSize returns the virtual size of a transaction as relay policy
// measures it. For unsigned transactions this undercounts the final size;
// use maxSignedVSize to bound the signed size instead.
func txVirtualSize(tx *wire.MsgTx) lbtcunit.VByte {
	return lbtcunit.VByte(mempool.GetTxVirtualSize(btcutil.NewTx(tx)))
}

// maxSignedVSize returns an upper bound on the transaction's virtual size
// once every input carries a worst-case signature. prevScripts holds the
// spent output scripts in input order.
func maxSignedVSize(tx *wire.MsgTx,
	prevScripts [][]byte) (lbtcunit.VByte, error) {

	p2pkh, p2tr, p2wpkh, nested, err := countInputClasses(prevScripts)
	if err != nil {
		return 0, err
	}

	size := txsizes.EstimateVirtualSize(
		p2pkh, p2tr, p2wpkh, nested, tx.TxOut, 0,
	)

	return lbtcunit.VByte(size), nil
}
