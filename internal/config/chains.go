package config

import (
	"sort"
	"time"
)

// Chain identifies one of the blockchains the indexer supports. It is
// the textual chain segment of an asset ID and the chain column of
// every persisted table.
type Chain string

const (
	Ethereum  Chain = "ethereum"
	Polygon   Chain = "polygon"
	BNBChain  Chain = "smartchain"
	Arbitrum  Chain = "arbitrum"
	Optimism  Chain = "optimism"
	Avalanche Chain = "avalanchec"
	Fantom    Chain = "fantom"
	Base      Chain = "base"

	Solana    Chain = "solana"
	Ton       Chain = "ton"
	Near      Chain = "near"
	Tron      Chain = "tron"
	Xrp       Chain = "xrp"
	Aptos     Chain = "aptos"
	Sui       Chain = "sui"
	Cosmos    Chain = "cosmos"
	Osmosis   Chain = "osmosis"
	Bitcoin   Chain = "bitcoin"
	Litecoin  Chain = "litecoin"
	Doge      Chain = "doge"
	Algorand  Chain = "algorand"
	Stellar   Chain = "stellar"
	Polkadot  Chain = "polkadot"
	Cardano   Chain = "cardano"
	Hypercore Chain = "hypercore"
)

// EVMChains lists every chain whose provider is the shared EVM
// implementation (differentiated only by chain ID + gas semantics).
var EVMChains = []Chain{Ethereum, Polygon, BNBChain, Arbitrum, Optimism, Avalanche, Fantom, Base}

// ChainDefaults is the static registry of per-chain parser tuning,
// overridden by chain.<name>.* config fields (§6). Mirrors the chain
// constant tables found in original_source/parser.
type ChainDefaults struct {
	PollInterval   time.Duration
	AwaitBlocks    uint64
	OutdatedWindow time.Duration
}

var defaultRegistry = map[Chain]ChainDefaults{
	Ethereum:  {PollInterval: 12 * time.Second, AwaitBlocks: 3, OutdatedWindow: time.Hour},
	Polygon:   {PollInterval: 2 * time.Second, AwaitBlocks: 30, OutdatedWindow: time.Hour},
	BNBChain:  {PollInterval: 3 * time.Second, AwaitBlocks: 15, OutdatedWindow: time.Hour},
	Arbitrum:  {PollInterval: 1 * time.Second, AwaitBlocks: 5, OutdatedWindow: time.Hour},
	Optimism:  {PollInterval: 2 * time.Second, AwaitBlocks: 5, OutdatedWindow: time.Hour},
	Avalanche: {PollInterval: 2 * time.Second, AwaitBlocks: 5, OutdatedWindow: time.Hour},
	Fantom:    {PollInterval: 1 * time.Second, AwaitBlocks: 5, OutdatedWindow: time.Hour},
	Base:      {PollInterval: 2 * time.Second, AwaitBlocks: 5, OutdatedWindow: time.Hour},
	Solana:    {PollInterval: 1 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Ton:       {PollInterval: 5 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Near:      {PollInterval: 2 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Tron:      {PollInterval: 3 * time.Second, AwaitBlocks: 19, OutdatedWindow: time.Hour},
	Xrp:       {PollInterval: 4 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Aptos:     {PollInterval: 1 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Sui:       {PollInterval: 1 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Cosmos:    {PollInterval: 6 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Osmosis:   {PollInterval: 6 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Bitcoin:   {PollInterval: 60 * time.Second, AwaitBlocks: 2, OutdatedWindow: 6 * time.Hour},
	Litecoin:  {PollInterval: 30 * time.Second, AwaitBlocks: 2, OutdatedWindow: 6 * time.Hour},
	Doge:      {PollInterval: 20 * time.Second, AwaitBlocks: 20, OutdatedWindow: 6 * time.Hour},
	Algorand:  {PollInterval: 4 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Stellar:   {PollInterval: 5 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Polkadot:  {PollInterval: 6 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
	Cardano:   {PollInterval: 20 * time.Second, AwaitBlocks: 2, OutdatedWindow: 6 * time.Hour},
	Hypercore: {PollInterval: 2 * time.Second, AwaitBlocks: 1, OutdatedWindow: time.Hour},
}

// DefaultFor returns the registry defaults for chain, falling back to
// a conservative global default (2s poll, 2 blocks await, 1h
// outdated) when the chain has not been added to the registry yet.
func DefaultFor(chain Chain) ChainDefaults {
	if d, ok := defaultRegistry[chain]; ok {
		return d
	}
	return ChainDefaults{PollInterval: 2 * time.Second, AwaitBlocks: 2, OutdatedWindow: time.Hour}
}

// AllChains returns every chain known to the registry, in a stable
// (alphabetical) order. Load builds one ChainConfig per entry of this
// list.
func AllChains() []Chain {
	chains := make([]Chain, 0, len(defaultRegistry))
	for c := range defaultRegistry {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}
