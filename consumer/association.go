package consumer

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/broker"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// AssociationStore is the persistence surface the four C8 consumers
// share.
type AssociationStore interface {
	Upsert(ctx context.Context, chain config.Chain, address, assetID string) error
	Deactivate(ctx context.Context, chain config.Chain, address, assetID string) error
}

// TokenAssociationsConsumer implements FetchTokenAddressesAssociations
// (§4.4): resolve balances, write a row for every non-zero token.
type TokenAssociationsConsumer struct {
	registry *chain.Registry
	store    AssociationStore
}

func NewTokenAssociationsConsumer(registry *chain.Registry, store AssociationStore) *TokenAssociationsConsumer {
	return &TokenAssociationsConsumer{registry: registry, store: store}
}

func (c *TokenAssociationsConsumer) Handle(ctx context.Context, body []byte) error {
	payload, provider, err := decodeAndResolve(c.registry, body)
	if err != nil {
		return err
	}
	balances, err := provider.GetAssetsBalances(ctx, payload.Address)
	if errors.Is(err, chain.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "consumer: get_assets_balances")
	}
	for _, b := range balances {
		if b.AssetID.IsNative() {
			continue
		}
		if isZero(b.Balance) {
			if err := c.store.Deactivate(ctx, payload.Chain, payload.Address, b.AssetID.String()); err != nil {
				return err
			}
			continue
		}
		if err := c.store.Upsert(ctx, payload.Chain, payload.Address, b.AssetID.String()); err != nil {
			return err
		}
	}
	return nil
}

// CoinAssociationsConsumer implements FetchCoinAddressesAssociations
// (§4.4): ensures the native-coin row exists unconditionally.
type CoinAssociationsConsumer struct {
	store AssociationStore
}

func NewCoinAssociationsConsumer(store AssociationStore) *CoinAssociationsConsumer {
	return &CoinAssociationsConsumer{store: store}
}

func (c *CoinAssociationsConsumer) Handle(ctx context.Context, body []byte) error {
	var payload model.ChainAddressPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "consumer: decode ChainAddressPayload")
	}
	native := asset.ID{Chain: payload.Chain}
	return c.store.Upsert(ctx, payload.Chain, payload.Address, native.String())
}

// NFTAssociationsConsumer implements
// FetchNftAssetsAddressesAssociations (§4.4).
type NFTAssociationsConsumer struct {
	registry *chain.Registry
	store    AssociationStore
}

func NewNFTAssociationsConsumer(registry *chain.Registry, store AssociationStore) *NFTAssociationsConsumer {
	return &NFTAssociationsConsumer{registry: registry, store: store}
}

func (c *NFTAssociationsConsumer) Handle(ctx context.Context, body []byte) error {
	var payload model.ChainAddressPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "consumer: decode ChainAddressPayload")
	}
	provider, ok := c.registry.Get(payload.Chain)
	if !ok {
		return nil
	}
	nftProvider, ok := provider.(chain.NFTProvider)
	if !ok {
		// Chain has no NFT capability; §4.4: "chains that do not
		// implement a capability are simply not started" — here the
		// Consumer Runner would not have started this task at all, but
		// guard anyway since the registry is shared across consumers.
		return nil
	}
	holdings, err := nftProvider.GetNFTHoldings(ctx, payload.Address)
	if err != nil {
		return errors.Wrap(err, "consumer: get_nft_holdings")
	}
	for _, h := range holdings {
		if err := c.store.Upsert(ctx, payload.Chain, payload.Address, h.AssetID.String()); err != nil {
			return err
		}
	}
	return nil
}

// AddressTransactionsConsumer implements FetchAddressTransactions
// (§4.4): bootstrap an address's recent history and republish it
// into the main per-chain queue so C7 handles it uniformly.
type AddressTransactionsConsumer struct {
	registry  *chain.Registry
	publisher Publisher
}

func NewAddressTransactionsConsumer(registry *chain.Registry, publisher Publisher) *AddressTransactionsConsumer {
	return &AddressTransactionsConsumer{registry: registry, publisher: publisher}
}

func (c *AddressTransactionsConsumer) Handle(ctx context.Context, body []byte) error {
	payload, provider, err := decodeAndResolve(c.registry, body)
	if err != nil {
		return err
	}
	txs, err := provider.GetTransactionsByAddress(ctx, payload.Address)
	if errors.Is(err, chain.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "consumer: get_transactions_by_address")
	}
	if len(txs) == 0 {
		return nil
	}

	byBlock := map[uint64][]model.Transaction{}
	for _, tx := range txs {
		byBlock[tx.BlockNumber] = append(byBlock[tx.BlockNumber], tx)
	}
	queue := broker.PerChainQueue(broker.QueueFetchBlockTransactions, string(payload.Chain))
	for block, blockTxs := range byBlock {
		msg := model.TransactionsPayload{Chain: payload.Chain, Block: block, Transactions: blockTxs}
		if err := c.publisher.Publish(ctx, queue, msg); err != nil {
			return err
		}
	}
	return nil
}

func decodeAndResolve(registry *chain.Registry, body []byte) (model.ChainAddressPayload, chain.Provider, error) {
	var payload model.ChainAddressPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, nil, errors.Wrap(err, "consumer: decode ChainAddressPayload")
	}
	provider, ok := registry.Get(payload.Chain)
	if !ok {
		return payload, nil, errors.Errorf("consumer: no provider for chain %s", payload.Chain)
	}
	return payload, provider, nil
}

func isZero(amount string) bool {
	if amount == "" {
		return true
	}
	for _, r := range amount {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}
