// Package utxo implements chain.Provider for the Bitcoin-family chains
// (Bitcoin, Litecoin, Doge): no accounts, no ERC-20-style tokens
// (asset.Normalize already rejects a token id for these chains), and
// "transaction" means one row of ins/outs rather than a from/to pair.
package utxo

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/chain/rpcclient"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// Options configures one UTXO chain instance.
type Options struct {
	Chain        config.Chain
	NativeSymbol string
	Decimals     int
}

// Provider implements chain.Provider over a bitcoind-style JSON-RPC
// endpoint (getblockcount, getblockhash, getblock verbosity=2).
type Provider struct {
	opts Options
	rpc  *rpcclient.Client
}

func New(opts Options, client *rpcclient.Client) *Provider {
	return &Provider{opts: opts, rpc: client}
}

func (p *Provider) Chain() config.Chain { return p.opts.Chain }

func (p *Provider) LatestBlock(ctx context.Context) (uint64, error) {
	var height uint64
	if err := p.rpc.Call(ctx, &height, "getblockcount"); err != nil {
		return 0, errors.Wrap(err, "utxo: getblockcount")
	}
	return height, nil
}

type rpcVin struct {
	Prevout *struct {
		ScriptPubKey struct {
			Address string `json:"address"`
		} `json:"scriptPubKey"`
		Value float64 `json:"value"`
	} `json:"prevout"`
}

type rpcVout struct {
	Value        float64 `json:"value"`
	ScriptPubKey struct {
		Address string `json:"address"`
	} `json:"scriptPubKey"`
}

type rpcTx struct {
	TxID string    `json:"txid"`
	Vin  []rpcVin  `json:"vin"`
	Vout []rpcVout `json:"vout"`
}

type rpcBlock struct {
	Height       uint64  `json:"height"`
	Confirmations int64  `json:"confirmations"`
	Tx           []rpcTx `json:"tx"`
}

// GetTransactions fetches the block at height with full previous-output
// data (verbosity 2 on bitcoind) and maps each entry to a
// model.Transaction with its full input/output set; state is confirmed
// as soon as the block itself is returned, since this provider only
// sees blocks the node already considers on its best chain.
func (p *Provider) GetTransactions(ctx context.Context, height uint64) ([]model.Transaction, error) {
	var hash string
	if err := p.rpc.Call(ctx, &hash, "getblockhash", height); err != nil {
		return nil, errors.Wrap(err, "utxo: getblockhash")
	}
	var blk rpcBlock
	if err := p.rpc.Call(ctx, &blk, "getblock", hash, 2); err != nil {
		return nil, errors.Wrap(err, "utxo: getblock")
	}

	nativeAsset := asset.ID{Chain: p.opts.Chain}
	out := make([]model.Transaction, 0, len(blk.Tx))
	for _, tx := range blk.Tx {
		var ins, outs []model.UTXOEntry
		for _, in := range tx.Vin {
			if in.Prevout == nil || in.Prevout.ScriptPubKey.Address == "" {
				continue
			}
			ins = append(ins, model.UTXOEntry{
				Address: in.Prevout.ScriptPubKey.Address,
				Value:   amountString(in.Prevout.Value),
			})
		}
		for _, o := range tx.Vout {
			if o.ScriptPubKey.Address == "" {
				continue
			}
			outs = append(outs, model.UTXOEntry{
				Address: o.ScriptPubKey.Address,
				Value:   amountString(o.Value),
			})
		}
		if len(ins) == 0 && len(outs) == 0 {
			continue
		}
		out = append(out, model.Transaction{
			ID:          model.NewID(p.opts.Chain, tx.TxID),
			Hash:        tx.TxID,
			Chain:       p.opts.Chain,
			AssetID:     nativeAsset,
			Type:        "transfer",
			State:       model.StateConfirmed,
			BlockNumber: height,
			FeeAssetID:  nativeAsset,
			UTXOInputs:  ins,
			UTXOOutputs: outs,
		})
	}
	return out, nil
}

func amountString(btc float64) string {
	// bitcoind reports amounts in whole coins; store the human value as
	// a plain decimal string rather than converting to satoshis here,
	// the Transaction Store keeps the chain's native precision as-is.
	return strconv.FormatFloat(btc, 'f', -1, 64)
}

// GetTokenData: UTXO chains carry no tokens (asset.Normalize already
// rejects a non-empty token id for this chain family), so any call
// here is a caller bug rather than a missing-contract lookup.
func (p *Provider) GetTokenData(ctx context.Context, tokenID asset.ID) (chain.Asset, error) {
	if tokenID.IsNative() {
		return chain.Asset{ID: tokenID, Symbol: p.opts.NativeSymbol, Decimals: p.opts.Decimals, Type: "native"}, nil
	}
	return chain.Asset{}, chain.ErrUnsupported
}

func (p *Provider) GetAssetsBalances(ctx context.Context, address string) ([]chain.AssetBalance, error) {
	// bitcoind has no address-balance RPC without txindex + an address
	// index plugin; chain.ErrUnsupported tells the caller to derive the
	// balance from the Transaction Store's UTXO set instead.
	return nil, chain.ErrUnsupported
}

func (p *Provider) GetTransactionsByAddress(ctx context.Context, address string) ([]model.Transaction, error) {
	return nil, chain.ErrUnsupported
}

var _ chain.Provider = (*Provider)(nil)
