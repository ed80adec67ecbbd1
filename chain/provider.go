// Package chain defines the Chain Provider capability set (C1):
// a uniform interface over one blockchain's RPC, with one
// implementation per chain family, discovered at startup via a static
// registry instead of inheritance (§9 design note).
package chain

import (
	"context"
	"errors"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// Sentinel errors distinguished per §7: 4xx/decode failures propagate
// immediately and are never retried by a Provider implementation.
var (
	ErrTokenNotFound  = errors.New("chain: token not found")
	ErrInvalidAddress = errors.New("chain: invalid address")
	ErrUnsupported    = errors.New("chain: capability not supported by this provider")
)

// Asset describes an on-chain token or native coin's metadata, as
// resolved by GetTokenData.
type Asset struct {
	ID       asset.ID
	Name     string
	Symbol   string
	Decimals int
	Type     string
}

// AssetBalance is one entry of GetAssetsBalances' result.
type AssetBalance struct {
	AssetID asset.ID
	Balance string
}

// Provider abstracts one blockchain. Every method bears ctx and must
// respect its deadline (§4.1: "the provider MUST NOT block
// indefinitely"). Implementations are responsible for their own
// bounded, jittered retry of transient errors; 4xx/decode errors and
// ErrTokenNotFound propagate to the caller unretried (§7).
type Provider interface {
	Chain() config.Chain

	// LatestBlock returns the chain's current tip.
	LatestBlock(ctx context.Context) (uint64, error)

	// GetTransactions returns every relevant transaction at block,
	// already normalized to model.Transaction (address checksumming,
	// fee computation, type/direction-neutral form).
	GetTransactions(ctx context.Context, block uint64) ([]model.Transaction, error)

	// GetTokenData resolves token metadata; returns ErrTokenNotFound
	// for an id with no matching contract/mint/issuer.
	GetTokenData(ctx context.Context, tokenID asset.ID) (Asset, error)

	// GetAssetsBalances enumerates native + known token balances for
	// address.
	GetAssetsBalances(ctx context.Context, address string) ([]AssetBalance, error)

	// GetTransactionsByAddress returns a bounded window of recent
	// history for address, used to bootstrap a newly subscribed
	// address (C8's FetchAddressTransactions).
	GetTransactionsByAddress(ctx context.Context, address string) ([]model.Transaction, error)
}

// NFTProvider is an optional capability: chains whose Provider also
// implements NFTProvider are the ones FetchNftAssetsAddressesAssociations
// is started for (§4.4). The NFT metadata providers themselves are an
// external-collaborator surface out of scope here; this interface
// exists only so C8's NFT consumer compiles and tests against a fake.
type NFTProvider interface {
	GetNFTHoldings(ctx context.Context, address string) ([]AssetBalance, error)
}

// Broadcaster is an optional capability for chains that support
// submitting a signed transaction through this same RPC endpoint.
// Nothing in the indexing pipeline calls it; it exists because §4.1
// lists "optional receipt-batch fetch" and broadcast as part of what a
// Provider implementation may encapsulate, and the (out of scope)
// swap/send API reaches it through this package's registry.
type Broadcaster interface {
	Broadcast(ctx context.Context, signedTx []byte) (txHash string, err error)
}

// Registry is the static map Chain -> Provider populated at startup
// (§9: "discover at startup via a static map Chain -> Provider. Do not
// use inheritance.").
type Registry struct {
	providers map[config.Chain]Provider
}

// NewRegistry builds a Registry from the given providers, keyed by
// each provider's own Chain().
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[config.Chain]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Chain()] = p
	}
	return r
}

// Get returns the provider for chain, or ok=false if the chain has no
// registered capability — the caller (Consumer Runner) simply does not
// start a task for it (§4.6).
func (r *Registry) Get(chain config.Chain) (Provider, bool) {
	p, ok := r.providers[chain]
	return p, ok
}

// Chains returns every chain with a registered provider.
func (r *Registry) Chains() []config.Chain {
	out := make([]config.Chain, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	return out
}
