// Package evm implements chain.Provider for every EVM-family chain
// (§4.1). One instance is configured per config.EVMChains entry,
// differing only by chain id, native symbol/decimals and fee
// semantics; the derivation rules themselves are shared.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/chain/rpcclient"
	"github.com/omniwallet/chain-indexer/internal/config"
	ilog "github.com/omniwallet/chain-indexer/internal/log"
	"github.com/omniwallet/chain-indexer/model"
)

var logger = ilog.NewModuleLogger(ilog.ChainProvider)

// erc20TransferSelector is the 4-byte selector of transfer(address,uint256),
// the only calldata shape §4.1 asks the provider to recognize besides
// a plain native transfer (empty calldata).
const erc20TransferSelector = "0xa9059cbb"

// Options configures one EVM chain instance.
type Options struct {
	Chain         config.Chain
	NativeSymbol  string
	NativeDecimal int
}

// Provider implements chain.Provider over a single EVM JSON-RPC
// endpoint.
type Provider struct {
	opts Options
	rpc  *rpcclient.Client
}

// New wraps an already-dialed rpcclient.Client for chainOpts.
func New(opts Options, client *rpcclient.Client) *Provider {
	return &Provider{opts: opts, rpc: client}
}

func (p *Provider) Chain() config.Chain { return p.opts.Chain }

// LatestBlock calls eth_blockNumber.
func (p *Provider) LatestBlock(ctx context.Context) (uint64, error) {
	var hex hexutil.Uint64
	if err := p.rpc.Call(ctx, &hex, "eth_blockNumber"); err != nil {
		return 0, errors.Wrap(err, "evm: eth_blockNumber")
	}
	return uint64(hex), nil
}

// rpcTx mirrors the subset of eth_getBlockByNumber(full=true)'s
// transaction object this provider reads.
type rpcTx struct {
	Hash                 ethcommon.Hash  `json:"hash"`
	From                 ethcommon.Address `json:"from"`
	To                    *ethcommon.Address `json:"to"`
	Value                 *hexutil.Big    `json:"value"`
	Input                 hexutil.Bytes   `json:"input"`
	Gas                   hexutil.Uint64  `json:"gas"`
	GasPrice              *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas          *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas  *hexutil.Big    `json:"maxPriorityFeePerGas"`
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	BaseFeePerGas *hexutil.Big  `json:"baseFeePerGas"`
	Transactions []rpcTx        `json:"transactions"`
}

type rpcReceipt struct {
	TransactionHash   ethcommon.Hash `json:"transactionHash"`
	Status            hexutil.Uint64 `json:"status"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
}

// GetTransactions fetches eth_getBlockByNumber(full=true), filters to
// plain native transfers (empty calldata) and ERC-20
// transfer(address,uint256) calls, then fetches the receipts of the
// remaining transactions in one batch (a second round trip;
// eth_getBlockReceipts is not used).
func (p *Provider) GetTransactions(ctx context.Context, block uint64) ([]model.Transaction, error) {
	var blk rpcBlock
	if err := p.rpc.Call(ctx, &blk, "eth_getBlockByNumber", hexutil.EncodeUint64(block), true); err != nil {
		return nil, errors.Wrap(err, "evm: eth_getBlockByNumber")
	}

	var relevant []rpcTx
	for _, tx := range blk.Transactions {
		input := strings.ToLower(tx.Input.String())
		if input == "0x" || input == "" || strings.HasPrefix(input, erc20TransferSelector) {
			relevant = append(relevant, tx)
		}
	}
	if len(relevant) == 0 {
		return nil, nil
	}

	receipts, err := p.batchReceipts(ctx, relevant)
	if err != nil {
		return nil, errors.Wrap(err, "evm: eth_getTransactionReceipt batch")
	}

	var out []model.Transaction
	for _, tx := range relevant {
		receipt, ok := receipts[tx.Hash]
		if !ok {
			continue
		}
		txn, emit := p.toTransaction(tx, receipt, block)
		if emit {
			out = append(out, txn)
		}
	}
	return out, nil
}

// batchReceipts fetches one eth_getTransactionReceipt per relevant
// transaction in a single JSON-RPC batch request, issued after (not
// together with) the block fetch.
func (p *Provider) batchReceipts(ctx context.Context, txs []rpcTx) (map[ethcommon.Hash]rpcReceipt, error) {
	elems := make([]rpc.BatchElem, len(txs))
	results := make([]rpcReceipt, len(txs))
	for i, tx := range txs {
		elems[i] = rpc.BatchElem{
			Method: "eth_getTransactionReceipt",
			Args:   []interface{}{tx.Hash.Hex()},
			Result: &results[i],
		}
	}
	if err := p.rpc.BatchCall(ctx, elems); err != nil {
		return nil, err
	}
	out := make(map[ethcommon.Hash]rpcReceipt, len(txs))
	for i, e := range elems {
		if e.Error != nil {
			logger.Warn("receipt fetch failed", "hash", txs[i].Hash.Hex(), "err", e.Error)
			continue
		}
		out[txs[i].Hash] = results[i]
	}
	return out, nil
}

// toTransaction derives model.Transaction per §4.1: state from
// receipt.status, fee = gasUsed * effectiveGasPrice, and an ERC-20
// transfer is emitted only when confirmed.
func (p *Provider) toTransaction(tx rpcTx, receipt rpcReceipt, block uint64) (model.Transaction, bool) {
	state := model.StateFailed
	if receipt.Status == 1 {
		state = model.StateConfirmed
	}

	fee := new(big.Int).Mul(new(big.Int).SetUint64(uint64(receipt.GasUsed)), effectiveGasPrice(tx, receipt))
	nativeAsset := asset.ID{Chain: p.opts.Chain}

	input := strings.ToLower(tx.Input.String())
	isERC20 := strings.HasPrefix(input, erc20TransferSelector)

	if isERC20 {
		if state != model.StateConfirmed {
			// §4.1: "ERC-20 transfers are emitted only when confirmed."
			return model.Transaction{}, false
		}
		to, value, ok := decodeERC20Transfer(tx.Input)
		if !ok {
			return model.Transaction{}, false
		}
		contract := ""
		if tx.To != nil {
			contract = tx.To.Hex()
		}
		assetID, ok := asset.New(p.opts.Chain, contract)
		if !ok {
			return model.Transaction{}, false
		}
		return model.Transaction{
			ID:          model.NewID(p.opts.Chain, tx.Hash.Hex()),
			Hash:        tx.Hash.Hex(),
			Chain:       p.opts.Chain,
			AssetID:     assetID,
			From:        tx.From.Hex(),
			To:          to,
			Type:        "transfer",
			State:       state,
			BlockNumber: block,
			Fee:         fee.String(),
			FeeAssetID:  nativeAsset,
			Value:       value.String(),
		}, true
	}

	to := ""
	if tx.To != nil {
		to = tx.To.Hex()
	}
	value := big.NewInt(0)
	if tx.Value != nil {
		value = (*big.Int)(tx.Value)
	}
	return model.Transaction{
		ID:          model.NewID(p.opts.Chain, tx.Hash.Hex()),
		Hash:        tx.Hash.Hex(),
		Chain:       p.opts.Chain,
		AssetID:     nativeAsset,
		From:        tx.From.Hex(),
		To:          to,
		Type:        "transfer",
		State:       state,
		BlockNumber: block,
		Fee:         fee.String(),
		FeeAssetID:  nativeAsset,
		Value:       value.String(),
	}, true
}

// effectiveGasPrice prefers the receipt's own field (post-London
// chains); legacy chains/nodes fall back to the transaction's gasPrice.
func effectiveGasPrice(tx rpcTx, receipt rpcReceipt) *big.Int {
	if receipt.EffectiveGasPrice != nil {
		return (*big.Int)(receipt.EffectiveGasPrice)
	}
	if tx.GasPrice != nil {
		return (*big.Int)(tx.GasPrice)
	}
	return big.NewInt(0)
}

// decodeERC20Transfer extracts the recipient and value arguments of a
// transfer(address,uint256) call: selector (4 bytes) + address (32
// bytes, right-aligned) + value (32 bytes).
func decodeERC20Transfer(data []byte) (to string, value *big.Int, ok bool) {
	if len(data) < 4+32+32 {
		return "", nil, false
	}
	args := data[4:]
	to = ethcommon.BytesToAddress(args[0:32]).Hex()
	value = new(big.Int).SetBytes(args[32:64])
	return to, value, true
}

func (p *Provider) GetTokenData(ctx context.Context, tokenID asset.ID) (chain.Asset, error) {
	if tokenID.IsNative() {
		return chain.Asset{ID: tokenID, Symbol: p.opts.NativeSymbol, Decimals: p.opts.NativeDecimal, Type: "native"}, nil
	}
	name, err := p.callString(ctx, tokenID.TokenID, "0x06fdde03")
	if err != nil {
		return chain.Asset{}, chain.ErrTokenNotFound
	}
	symbol, _ := p.callString(ctx, tokenID.TokenID, "0x95d89b41")
	decimals, _ := p.callUint8(ctx, tokenID.TokenID, "0x313ce567")
	return chain.Asset{ID: tokenID, Name: name, Symbol: symbol, Decimals: decimals, Type: "erc20"}, nil
}

func (p *Provider) callString(ctx context.Context, contract, selector string) (string, error) {
	var raw hexutil.Bytes
	err := p.rpc.Call(ctx, &raw, "eth_call", map[string]interface{}{
		"to":   contract,
		"data": selector,
	}, "latest")
	if err != nil || len(raw) < 64 {
		return "", errors.Wrap(err, "evm: eth_call")
	}
	return decodeABIString(raw), nil
}

func (p *Provider) callUint8(ctx context.Context, contract, selector string) (int, error) {
	var raw hexutil.Bytes
	err := p.rpc.Call(ctx, &raw, "eth_call", map[string]interface{}{
		"to":   contract,
		"data": selector,
	}, "latest")
	if err != nil || len(raw) < 32 {
		return 0, errors.Wrap(err, "evm: eth_call")
	}
	return int(new(big.Int).SetBytes(raw[:32]).Uint64()), nil
}

// decodeABIString unpacks a dynamic ABI string return value: 32-byte
// offset (ignored, always 0x20), 32-byte length, then the UTF-8 bytes.
func decodeABIString(raw []byte) string {
	if len(raw) < 64 {
		return ""
	}
	length := new(big.Int).SetBytes(raw[32:64]).Uint64()
	if uint64(len(raw)) < 64+length {
		return ""
	}
	return strings.TrimRight(string(raw[64:64+length]), "\x00")
}

// GetAssetsBalances returns the native balance plus nothing else: ERC-20
// balance enumeration needs an indexed token list this provider does
// not maintain, so callers combine this with the Transaction Store's
// known-asset list.
func (p *Provider) GetAssetsBalances(ctx context.Context, address string) ([]chain.AssetBalance, error) {
	var hex hexutil.Big
	if err := p.rpc.Call(ctx, &hex, "eth_getBalance", address, "latest"); err != nil {
		return nil, errors.Wrap(err, "evm: eth_getBalance")
	}
	return []chain.AssetBalance{{
		AssetID: asset.ID{Chain: p.opts.Chain},
		Balance: (*big.Int)(&hex).String(),
	}}, nil
}

// GetTransactionsByAddress is not exposed by a bare EVM JSON-RPC node;
// it requires an indexing API (Etherscan-style) this provider does not
// wire, so it reports chain.ErrUnsupported and callers skip history
// bootstrap for EVM chains until one is configured.
func (p *Provider) GetTransactionsByAddress(ctx context.Context, address string) ([]model.Transaction, error) {
	return nil, chain.ErrUnsupported
}

var _ chain.Provider = (*Provider)(nil)

func init() {
	// Guard against a silent typo in the selector constant above.
	if !strings.HasPrefix(erc20TransferSelector, "0x") || len(erc20TransferSelector) != 10 {
		panic(fmt.Sprintf("evm: malformed erc20 selector %q", erc20TransferSelector))
	}
}
