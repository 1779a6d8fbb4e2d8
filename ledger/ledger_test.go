package ledger

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/lbtcsuite/lbtcwallet/wallet"
)

var testParams = &chaincfg.RegressionNetParams

// ownEverything treats every address as spendable.
type ownEverything struct{}

func (ownEverything) HaveKey(btcutil.Address) bool { return true }

func newTestLedger(t *testing.T) *TxLedger {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "ledger.db"), true,
		10*time.Second,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	ledger, err := Open(&Config{
		DB:          db,
		ChainParams: testParams,
		Clock:       clock.NewTestClock(time.Unix(1_700_000_000, 0)),
		KeyOwner:    ownEverything{},
	})
	require.NoError(t, err)

	return ledger
}

func testScript(t *testing.T, seed byte) []byte {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		bytes.Repeat([]byte{seed}, 20), testParams,
	)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return script
}

// fundingTx pays two outputs to wallet addresses; output 1 is change.
func fundingTx(t *testing.T) *wire.MsgTx {
	t.Helper()

	return &wire.MsgTx{
		Version: wire.TxVersion,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{
				Hash: chainhash.Hash{0xf0},
			},
			Sequence: wire.MaxTxInSequenceNum - 2,
		}},
		TxOut: []*wire.TxOut{
			wire.NewTxOut(600_000, testScript(t, 0x01)),
			wire.NewTxOut(400_000, testScript(t, 0x02)),
		},
	}
}

func minedAt(height int32) *wtxmgr.BlockMeta {
	return &wtxmgr.BlockMeta{
		Block: wtxmgr.Block{
			Hash:   chainhash.Hash{byte(height)},
			Height: height,
		},
		Time: time.Unix(1_700_000_000, 0),
	}
}

// TestLedgerCoins records a mined transaction and checks the coin view.
func TestLedgerCoins(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)

	tx := fundingTx(t)
	require.NoError(t, ledger.RecordTx(tx, minedAt(100), map[uint32]bool{
		0: false,
		1: true,
	}))
	ledger.SyncHeight(105)

	coins, err := ledger.ListSpendableCoins()
	require.NoError(t, err)
	require.Len(t, coins, 2)

	for _, coin := range coins {
		require.EqualValues(t, 6, coin.Confirmations)
		require.True(t, coin.Spendable)
		require.False(t, coin.FromWallet)
		require.NotNil(t, coin.Address)
	}

	// Balance of the first output's address at various depths.
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		bytes.Repeat([]byte{0x01}, 20), testParams,
	)
	require.NoError(t, err)

	balance, err := ledger.AddressBalance(addr, 1)
	require.NoError(t, err)
	require.EqualValues(t, 600_000, balance)

	balance, err = ledger.AddressBalance(addr, 10)
	require.NoError(t, err)
	require.Zero(t, balance)
}

// TestLedgerLocks checks that locks hide coins and are purely in memory.
func TestLedgerLocks(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)

	tx := fundingTx(t)
	require.NoError(t, ledger.RecordTx(tx, minedAt(100), map[uint32]bool{
		0: false,
		1: true,
	}))
	ledger.SyncHeight(105)

	op := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
	require.NoError(t, ledger.LockCoin(op))

	coins, err := ledger.ListSpendableCoins()
	require.NoError(t, err)
	require.Len(t, coins, 1)
	require.Len(t, ledger.LockedCoins(), 1)

	// Reopening the ledger clears all locks; only the coins survive.
	reopened, err := Open(&Config{
		DB:          ledger.db,
		ChainParams: testParams,
		Clock:       clock.NewTestClock(time.Unix(1_700_000_000, 0)),
		KeyOwner:    ownEverything{},
	})
	require.NoError(t, err)
	require.Empty(t, reopened.LockedCoins())

	require.NoError(t, ledger.UnlockCoin(op))
	require.NoError(t, ledger.UnlockCoin(op))

	coins, err = ledger.ListSpendableCoins()
	require.NoError(t, err)
	require.Len(t, coins, 2)
}

// TestLedgerSpend records an unmined spend of a recorded coin and checks the
// transaction and spend views used by the replacement engine.
func TestLedgerSpend(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)

	funding := fundingTx(t)
	require.NoError(t, ledger.RecordTx(
		funding, minedAt(100), map[uint32]bool{0: false, 1: true},
	))
	ledger.SyncHeight(105)

	spend := &wire.MsgTx{
		Version: wire.TxVersion,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{
				Hash:  funding.TxHash(),
				Index: 0,
			},
			Sequence: wire.MaxTxInSequenceNum - 2,
		}},
		TxOut: []*wire.TxOut{
			wire.NewTxOut(500_000, testScript(t, 0x03)),
			wire.NewTxOut(90_000, testScript(t, 0x04)),
		},
	}
	require.NoError(t, ledger.RecordTx(
		spend, nil, map[uint32]bool{1: true},
	))

	// The spent coin disappears; the spend's own outputs appear, flagged
	// as wallet-authored.
	coins, err := ledger.ListSpendableCoins()
	require.NoError(t, err)
	require.Len(t, coins, 2)

	for _, coin := range coins {
		if coin.OutPoint.Hash == spend.TxHash() {
			require.True(t, coin.FromWallet)
			require.Zero(t, coin.Confirmations)
		}
	}

	// The replacement engine's views.
	walletTx, err := ledger.WalletTx(spend.TxHash())
	require.NoError(t, err)
	require.Zero(t, walletTx.Confirmations)
	require.False(t, walletTx.Conflicted)
	require.Equal(t, []uint32{1}, walletTx.ChangeIndexes)

	hasSpend, err := ledger.HasWalletSpend(funding.TxHash())
	require.NoError(t, err)
	require.True(t, hasSpend)

	hasSpend, err = ledger.HasWalletSpend(spend.TxHash())
	require.NoError(t, err)
	require.False(t, hasSpend)

	txOut, mine, err := ledger.PrevOutput(wire.OutPoint{
		Hash:  funding.TxHash(),
		Index: 0,
	})
	require.NoError(t, err)
	require.True(t, mine)
	require.EqualValues(t, 600_000, txOut.Value)

	// Unknown transactions are reported with the wallet's sentinel.
	_, err = ledger.WalletTx(chainhash.Hash{0xff})
	require.ErrorIs(t, err, wallet.ErrUnknownTx)

	_, err = ledger.Received(spend.TxHash())
	require.NoError(t, err)
}
