package wallet

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

var (
	errMock     = errors.New("mock error")
	errSignFail = errors.New("sign fail")
	errMarkFail = errors.New("mark fail")

	testParams = &chaincfg.RegressionNetParams
)

// testAddress derives a deterministic P2WPKH test address from a seed byte.
func testAddress(t *testing.T, seed byte) btcutil.Address {
	t.Helper()

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		bytes.Repeat([]byte{seed}, 20), testParams,
	)
	require.NoError(t, err)

	return addr
}

// makeCoin builds a confirmed, spendable wallet coin paying the given
// address. The outpoint is derived from the seed so coins stay distinct.
func makeCoin(t *testing.T, addr btcutil.Address, value btcutil.Amount,
	confs int32, seed byte) Coin {

	t.Helper()

	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	var hash chainhash.Hash
	copy(hash[:], bytes.Repeat([]byte{seed}, 32))

	return Coin{
		OutPoint: wire.OutPoint{Hash: hash, Index: uint32(seed)},
		TxOut: wire.TxOut{
			Value:    int64(value),
			PkScript: pkScript,
		},
		Address:       addr,
		Confirmations: confs,
		Spendable:     true,
	}
}

// mockLedger is an in-memory wallet.Ledger.
type mockLedger struct {
	coins    []Coin
	txs      map[chainhash.Hash]*WalletTx
	spends   map[chainhash.Hash]bool
	prevOuts map[wire.OutPoint]*wire.TxOut
	foreign  map[wire.OutPoint]*wire.TxOut
	locked   map[wire.OutPoint]struct{}
}

func newMockLedger(coins ...Coin) *mockLedger {
	return &mockLedger{
		coins:    coins,
		txs:      make(map[chainhash.Hash]*WalletTx),
		spends:   make(map[chainhash.Hash]bool),
		prevOuts: make(map[wire.OutPoint]*wire.TxOut),
		foreign:  make(map[wire.OutPoint]*wire.TxOut),
		locked:   make(map[wire.OutPoint]struct{}),
	}
}

func (m *mockLedger) ListSpendableCoins() ([]Coin, error) {
	var unlocked []Coin
	for _, coin := range m.coins {
		if _, ok := m.locked[coin.OutPoint]; ok {
			continue
		}
		unlocked = append(unlocked, coin)
	}

	return unlocked, nil
}

func (m *mockLedger) AddressBalance(addr btcutil.Address,
	minDepth int32) (btcutil.Amount, error) {

	var balance btcutil.Amount
	for _, coin := range m.coins {
		if _, ok := m.locked[coin.OutPoint]; ok {
			continue
		}
		if coin.Address == nil ||
			coin.Address.String() != addr.String() {

			continue
		}
		if coin.Confirmations < minDepth {
			continue
		}
		balance += coin.Amount()
	}

	return balance, nil
}

func (m *mockLedger) LockCoin(op wire.OutPoint) error {
	m.locked[op] = struct{}{}
	return nil
}

func (m *mockLedger) UnlockCoin(op wire.OutPoint) error {
	delete(m.locked, op)
	return nil
}

func (m *mockLedger) WalletTx(txid chainhash.Hash) (*WalletTx, error) {
	walletTx, ok := m.txs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTx, txid)
	}

	return walletTx, nil
}

func (m *mockLedger) HasWalletSpend(txid chainhash.Hash) (bool, error) {
	return m.spends[txid], nil
}

func (m *mockLedger) PrevOutput(op wire.OutPoint) (*wire.TxOut, bool,
	error) {

	if out, ok := m.prevOuts[op]; ok {
		return out, true, nil
	}
	if out, ok := m.foreign[op]; ok {
		return out, false, nil
	}

	return nil, false, nil
}

// addWalletTx registers an unconfirmed wallet transaction whose inputs are
// all owned, spending outputs worth inputValue in total split evenly across
// the inputs.
func (m *mockLedger) addWalletTx(t *testing.T, tx *wire.MsgTx,
	inputValue btcutil.Amount, changeIdx []uint32) {

	t.Helper()

	require.NotEmpty(t, tx.TxIn)
	perInput := inputValue / btcutil.Amount(len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		m.prevOuts[txIn.PreviousOutPoint] = &wire.TxOut{
			Value:    int64(perInput),
			PkScript: p2wkhScript(t, 0x77),
		}
	}

	m.txs[tx.TxHash()] = &WalletTx{
		Tx:            tx,
		ChangeIndexes: changeIdx,
	}
}

func p2wkhScript(t *testing.T, seed byte) []byte {
	t.Helper()

	script, err := txscript.PayToAddrScript(testAddress(t, seed))
	require.NoError(t, err)

	return script
}

// mockChangeKey is a single reservable change key.
type mockChangeKey struct {
	script    []byte
	committed bool
	returned  bool
}

func (m *mockChangeKey) Script() []byte { return m.script }

func (m *mockChangeKey) Commit() error {
	m.committed = true
	return nil
}

func (m *mockChangeKey) Return() error {
	m.returned = true
	return nil
}

// mockKeyPool hands out mockChangeKeys.
type mockKeyPool struct {
	keys     []*mockChangeKey
	reserved int
	fail     bool
}

func newMockKeyPool(t *testing.T) *mockKeyPool {
	return &mockKeyPool{
		keys: []*mockChangeKey{
			{script: p2wkhScript(t, 0xaa)},
			{script: p2wkhScript(t, 0xbb)},
		},
	}
}

func (m *mockKeyPool) ReserveChangeKey() (ChangeKey, error) {
	if m.fail || m.reserved >= len(m.keys) {
		return nil, ErrKeyPoolExhausted
	}

	key := m.keys[m.reserved]
	m.reserved++

	return key, nil
}

// mockSigner attaches fixed-size witnesses so signed transactions have a
// realistic virtual size.
type mockSigner struct {
	fail   bool
	signed int
}

func (m *mockSigner) Sign(tx *wire.MsgTx, prevScripts [][]byte,
	prevValues []btcutil.Amount) error {

	if m.fail {
		return errSignFail
	}
	if len(prevScripts) != len(tx.TxIn) ||
		len(prevValues) != len(tx.TxIn) {

		return fmt.Errorf("%w: mismatched prev data", errMock)
	}

	for _, txIn := range tx.TxIn {
		txIn.Witness = wire.TxWitness{
			make([]byte, 72), make([]byte, 33),
		}
	}
	m.signed++

	return nil
}

// mockBroadcaster records committed transactions.
type mockBroadcaster struct {
	active bool
	accept bool
	reason string
	err    error
	sent   []*wire.MsgTx
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{active: true, accept: true}
}

func (m *mockBroadcaster) PeeringActive() bool { return m.active }

func (m *mockBroadcaster) Commit(tx *wire.MsgTx) (CommitResult, error) {
	if m.err != nil {
		return CommitResult{}, m.err
	}

	m.sent = append(m.sent, tx)

	return CommitResult{Accepted: m.accept, RejectReason: m.reason}, nil
}

// mockOracle returns a fixed fee rate estimate.
type mockOracle struct {
	rate lbtcunit.SatPerKVByte
	err  error
}

func (m *mockOracle) EstimateRate(uint32) (lbtcunit.SatPerKVByte, error) {
	return m.rate, m.err
}

// mockMempool reports descendants and a minimum fee rate.
type mockMempool struct {
	descendants map[chainhash.Hash]bool
	minRate     lbtcunit.SatPerKVByte
}

func newMockMempool() *mockMempool {
	return &mockMempool{descendants: make(map[chainhash.Hash]bool)}
}

func (m *mockMempool) HasDescendants(txid chainhash.Hash) (bool, error) {
	return m.descendants[txid], nil
}

func (m *mockMempool) MinFeeRate() lbtcunit.SatPerKVByte {
	return m.minRate
}

// mockReplaceStore is an in-memory replacement link store.
type mockReplaceStore struct {
	links    map[chainhash.Hash]chainhash.Hash
	failMark bool
}

func newMockReplaceStore() *mockReplaceStore {
	return &mockReplaceStore{links: make(map[chainhash.Hash]chainhash.Hash)}
}

func (m *mockReplaceStore) MarkReplaced(orig, repl chainhash.Hash) error {
	if m.failMark {
		return errMarkFail
	}
	if _, ok := m.links[orig]; ok {
		return fmt.Errorf("%w: already marked", errMock)
	}
	m.links[orig] = repl

	return nil
}

func (m *mockReplaceStore) Replacement(orig chainhash.Hash) (chainhash.Hash,
	bool, error) {

	repl, ok := m.links[orig]
	return repl, ok, nil
}

// harness wires a Wallet to a full set of mock collaborators.
type harness struct {
	wallet       *Wallet
	ledger       *mockLedger
	keyPool      *mockKeyPool
	signer       *mockSigner
	broadcaster  *mockBroadcaster
	oracle       *mockOracle
	mempool      *mockMempool
	replacements *mockReplaceStore
}

// newHarness builds a wallet over the given coins with default config and a
// 10 sat/vb fee estimate.
func newHarness(t *testing.T, coins ...Coin) *harness {
	t.Helper()

	h := &harness{
		ledger:       newMockLedger(coins...),
		keyPool:      newMockKeyPool(t),
		signer:       &mockSigner{},
		broadcaster:  newMockBroadcaster(),
		oracle:       &mockOracle{rate: 10_000},
		mempool:      newMockMempool(),
		replacements: newMockReplaceStore(),
	}

	h.wallet = New(DefaultConfig(), testParams, Collaborators{
		Ledger:       h.ledger,
		KeyPool:      h.keyPool,
		Signer:       h.signer,
		Broadcaster:  h.broadcaster,
		FeeOracle:    h.oracle,
		Mempool:      h.mempool,
		Replacements: h.replacements,
	})

	return h
}

// checkValueEquation asserts that inputs equal outputs plus fee.
func checkValueEquation(t *testing.T, authored *AuthoredTx) {
	t.Helper()

	var outputSum btcutil.Amount
	for _, txOut := range authored.Tx.TxOut {
		outputSum += btcutil.Amount(txOut.Value)
	}

	require.Equal(t, authored.TotalInput, outputSum+authored.Fee)
}
