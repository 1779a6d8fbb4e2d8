package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestEligibleCoinsFiltering checks the per-coin eligibility rules.
func TestEligibleCoinsFiltering(t *testing.T) {
	t.Parallel()

	addr := testAddress(t, 0x01)

	confirmed := makeCoin(t, addr, 50_000, 6, 1)

	watchOnly := makeCoin(t, addr, 60_000, 6, 2)
	watchOnly.Spendable = false

	shallow := makeCoin(t, addr, 70_000, 1, 3)

	immature := makeCoin(t, addr, 80_000, 50, 4)
	immature.FromCoinBase = true

	matured := makeCoin(t, addr, 90_000, 150, 5)
	matured.FromCoinBase = true

	unsafeCoin := makeCoin(t, addr, 40_000, 0, 6)

	ownChange := makeCoin(t, addr, 30_000, 0, 7)
	ownChange.FromWallet = true

	coins := []Coin{
		confirmed, watchOnly, shallow, immature, matured, unsafeCoin,
		ownChange,
	}

	tests := []struct {
		name        string
		minDepth    int32
		allowUnsafe bool
		wantValues  []btcutil.Amount
	}{{
		name:     "default depth",
		minDepth: 0,
		wantValues: []btcutil.Amount{
			90_000, 70_000, 50_000, 30_000,
		},
	}, {
		name:     "deep confirmations only",
		minDepth: 3,
		wantValues: []btcutil.Amount{
			90_000, 50_000,
		},
	}, {
		name:        "unsafe allowed",
		minDepth:    0,
		allowUnsafe: true,
		wantValues: []btcutil.Amount{
			90_000, 70_000, 50_000, 40_000, 30_000,
		},
	}}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, coins...)
			h.wallet.cfg.AllowUnsafe = tc.allowUnsafe

			selection, err := h.wallet.eligibleCoins(
				WalletWide{}, tc.minDepth,
			)
			require.NoError(t, err)

			var values []btcutil.Amount
			for _, coin := range selection.eligible {
				values = append(values, coin.Amount())
			}
			require.Equal(t, tc.wantValues, values)
		})
	}
}

// TestEligibleCoinsConstraint checks that a FromAddress constraint excludes
// every other address's coins.
func TestEligibleCoinsConstraint(t *testing.T) {
	t.Parallel()

	addrA := testAddress(t, 0x01)
	addrB := testAddress(t, 0x02)

	h := newHarness(t,
		makeCoin(t, addrA, 50_000, 6, 1),
		makeCoin(t, addrB, 60_000, 6, 2),
		makeCoin(t, addrA, 70_000, 6, 3),
	)

	selection, err := h.wallet.eligibleCoins(FromAddress{Address: addrA}, 0)
	require.NoError(t, err)

	require.Len(t, selection.eligible, 2)
	require.EqualValues(t, 120_000, selection.total)
	for _, coin := range selection.eligible {
		require.Equal(t, addrA.String(), coin.Address.String())
	}
}

// TestInputSource checks that the input source draws coins largest first and
// keeps previously drawn inputs across calls.
func TestInputSource(t *testing.T) {
	t.Parallel()

	addr := testAddress(t, 0x01)
	selection := &coinSelection{
		eligible: []Coin{
			makeCoin(t, addr, 90_000, 6, 1),
			makeCoin(t, addr, 50_000, 6, 2),
			makeCoin(t, addr, 10_000, 6, 3),
		},
		total: 150_000,
	}
	orderLargestFirst(selection.eligible)

	fetch := selection.inputSource()

	total, inputs, values, scripts, err := fetch(80_000)
	require.NoError(t, err)
	require.EqualValues(t, 90_000, total)
	require.Len(t, inputs, 1)
	require.Equal(t, []btcutil.Amount{90_000}, values)
	require.Len(t, scripts, 1)

	// Raising the target keeps the first input and draws the next.
	total, inputs, values, _, err = fetch(120_000)
	require.NoError(t, err)
	require.EqualValues(t, 140_000, total)
	require.Len(t, inputs, 2)
	require.Equal(t, []btcutil.Amount{90_000, 50_000}, values)

	// An unreachable target returns everything without error; the caller
	// detects the shortfall.
	total, inputs, _, _, err = fetch(200_000)
	require.NoError(t, err)
	require.EqualValues(t, 150_000, total)
	require.Len(t, inputs, 3)
}

// TestOrderLargestFirst checks the selection ordering, including the
// deterministic tie break.
func TestOrderLargestFirst(t *testing.T) {
	t.Parallel()

	addr := testAddress(t, 0x01)

	a := makeCoin(t, addr, 50_000, 6, 2)
	b := makeCoin(t, addr, 50_000, 6, 1)
	c := makeCoin(t, addr, 90_000, 6, 3)

	coins := []Coin{a, b, c}
	orderLargestFirst(coins)

	require.EqualValues(t, 90_000, coins[0].Value)

	// Equal values order by outpoint.
	require.Equal(t, b.OutPoint, coins[1].OutPoint)
	require.Equal(t, a.OutPoint, coins[2].OutPoint)
}

// TestConstraintValidation checks the sealed constraint validation.
func TestConstraintValidation(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, FromAddress{}.validate(), ErrUnknownConstraint)
	require.NoError(t, FromAddress{Address: testAddress(t, 1)}.validate())
	require.NoError(t, WalletWide{}.validate())
}
