// Copyright (c) 2025 The lbtcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"

	"github.com/lbtcsuite/lbtcwallet/pkg/lbtcunit"
)

const (
	// defaultMaxTxFee is the default hard ceiling on a single
	// transaction's fee, 0.1 coin.
	defaultMaxTxFee = btcutil.SatoshiPerBitcoin / 10

	// defaultRelayFeePerKvb is the default minimum relay fee rate.
	defaultRelayFeePerKvb = 1000

	// defaultIncrementalRelayFeePerKvb is the default network-wide
	// incremental relay fee rate a replacement must pay on top of the
	// replaced transaction's rate.
	defaultIncrementalRelayFeePerKvb = 1000

	// defaultWalletIncrementalFeePerKvb is the wallet's own conservative
	// incremental rate, kept above the network default to future proof
	// against policy changes our node may not know about.
	defaultWalletIncrementalFeePerKvb = 5000

	// defaultFallbackFeePerKvb is used when a confirmation-target
	// estimate is requested but the fee oracle has no data.
	defaultFallbackFeePerKvb = 20000

	// defaultConfTarget is the confirmation target used when the caller
	// does not specify a fee policy.
	defaultConfTarget = 6

	// defaultMaxDataCarrierSize bounds the serialized data-carrier
	// script. It is sized for the application payloads the chain relays,
	// not the 80-byte limit of vanilla relay policy.
	defaultMaxDataCarrierSize = 1024
)

// Config carries the wallet's policy knobs. Field tags follow the go-flags
// convention so the struct can be embedded into a daemon's option group.
type Config struct {
	// MaxTxFee is the maximum total fee, in satoshis, the wallet will
	// ever attach to a single transaction.
	MaxTxFee int64 `long:"maxtxfee" description:"Maximum total transaction fee in satoshis"`

	// RelayFeePerKvb is the minimum relay fee rate in sat/kvb. Resolved
	// fees are never allowed below this floor.
	RelayFeePerKvb int64 `long:"minrelaytxfee" description:"Minimum relay fee rate in sat/kvb"`

	// IncrementalRelayFeePerKvb is the network incremental relay fee rate
	// in sat/kvb used by the replacement engine.
	IncrementalRelayFeePerKvb int64 `long:"incrementalfee" description:"Incremental relay fee rate in sat/kvb"`

	// WalletIncrementalFeePerKvb is the wallet's conservative incremental
	// rate; the larger of this and IncrementalRelayFeePerKvb is applied.
	WalletIncrementalFeePerKvb int64 `long:"walletincrementalfee" description:"Wallet incremental relay fee rate in sat/kvb"`

	// FallbackFeePerKvb is the rate used when the fee oracle is
	// unavailable, in sat/kvb.
	FallbackFeePerKvb int64 `long:"fallbackfee" description:"Fallback fee rate in sat/kvb when estimation is unavailable"`

	// ConfTarget is the default confirmation target in blocks.
	ConfTarget uint32 `long:"txconfirmtarget" description:"Default confirmation target in blocks"`

	// MaxDataCarrierSize is the maximum serialized size of a data-carrier
	// output script, in bytes.
	MaxDataCarrierSize int `long:"datacarriersize" description:"Maximum data carrier script size in bytes"`

	// AllowUnsafe permits spending unconfirmed outputs received from
	// third parties. Unconfirmed change from our own transactions is
	// always spendable.
	AllowUnsafe bool `long:"spendzeroconfchange" description:"Allow spending unsafe unconfirmed outputs"`
}

// DefaultConfig returns the wallet's default policy configuration.
func DefaultConfig() Config {
	return Config{
		MaxTxFee:                   defaultMaxTxFee,
		RelayFeePerKvb:             defaultRelayFeePerKvb,
		IncrementalRelayFeePerKvb:  defaultIncrementalRelayFeePerKvb,
		WalletIncrementalFeePerKvb: defaultWalletIncrementalFeePerKvb,
		FallbackFeePerKvb:          defaultFallbackFeePerKvb,
		ConfTarget:                 defaultConfTarget,
		MaxDataCarrierSize:         defaultMaxDataCarrierSize,
	}
}

// ParseConfig applies command-line style overrides on top of the default
// configuration.
func ParseConfig(args []string) (Config, error) {
	cfg := DefaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// relayFloor returns the relay fee floor as a rate.
func (c *Config) relayFloor() lbtcunit.SatPerKVByte {
	return lbtcunit.NewSatPerKVByte(btcutil.Amount(c.RelayFeePerKvb))
}

// incrementalRate returns the effective incremental relay rate, the larger
// of the network rate and the wallet's conservative rate.
func (c *Config) incrementalRate() lbtcunit.SatPerKVByte {
	network := lbtcunit.NewSatPerKVByte(
		btcutil.Amount(c.IncrementalRelayFeePerKvb),
	)
	ours := lbtcunit.NewSatPerKVByte(
		btcutil.Amount(c.WalletIncrementalFeePerKvb),
	)
	if network > ours {
		return network
	}

	return ours
}

// maxFee returns the fee ceiling as an amount.
func (c *Config) maxFee() btcutil.Amount {
	return btcutil.Amount(c.MaxTxFee)
}

// fallbackRate returns the rate used when fee estimation is unavailable.
func (c *Config) fallbackRate() lbtcunit.SatPerKVByte {
	return lbtcunit.NewSatPerKVByte(btcutil.Amount(c.FallbackFeePerKvb))
}
