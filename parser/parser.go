// Package parser implements the Block Parser (C6): one long-running
// loop per chain that polls for new blocks, fetches and filters their
// transactions, and publishes them in strictly ascending order. The
// checkpoint-then-fetch-then-publish-then-commit shape is built around
// config.ChainConfig / chain.Provider / broker.Client.
package parser

import (
	"context"
	"time"

	"github.com/omniwallet/chain-indexer/broker"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/internal/config"
	ilog "github.com/omniwallet/chain-indexer/internal/log"
	"github.com/omniwallet/chain-indexer/internal/metrics"
	"github.com/omniwallet/chain-indexer/model"
)

var logger = ilog.NewModuleLogger(ilog.Parser)

// maxBlockRetries bounds the per-height RPC retry counter of §4.2's
// error policy; past this the height is dead-lettered and skipped.
const maxBlockRetries = 5

// ParserState is the minimal C2 surface the Block Parser needs.
type ParserState interface {
	Get(ctx context.Context, chain config.Chain) (model.ParserState, error)
	SetCurrentBlock(ctx context.Context, chain config.Chain, height uint64) error
	SetLatestBlock(ctx context.Context, chain config.Chain, height uint64) error
}

// DeadLetters records blocks skipped after exhausting retries.
type DeadLetters interface {
	Record(ctx context.Context, chain config.Chain, block uint64, reason string, attempts int) error
}

// Predicate filters transactions fetched from the provider before
// publishing, per §4.2 step 5 ("drops uninteresting types such as
// token-approvals unless configured on"). The default predicate
// accepts everything a Provider already returned, since chain
// providers only ever emit native and ERC-20 transfers (§4.1).
type Predicate func(model.Transaction) bool

func AcceptAll(model.Transaction) bool { return true }

// Parser drives one chain's continuous ingestion loop.
type Parser struct {
	chain     config.Chain
	cfg       config.ChainConfig
	provider  chain.Provider
	state     ParserState
	publisher *broker.Client
	deadLet   DeadLetters
	predicate Predicate
}

// New builds a Parser for chain, wiring provider, state store,
// publisher and dead-letter store. predicate may be nil for
// AcceptAll.
func New(cfg config.ChainConfig, provider chain.Provider, state ParserState, publisher *broker.Client, deadLet DeadLetters, predicate Predicate) *Parser {
	if predicate == nil {
		predicate = AcceptAll
	}
	return &Parser{
		chain:     cfg.Chain,
		cfg:       cfg,
		provider:  provider,
		state:     state,
		publisher: publisher,
		deadLet:   deadLet,
		predicate: predicate,
	}
}

// Run executes the loop of §4.2 until shutdown fires or ctx is
// canceled. Cancellation is checked before each loop iteration and
// before each RPC retry (§5 cancellation rule).
func (p *Parser) Run(ctx context.Context, shutdown <-chan struct{}) error {
	retries := map[uint64]int{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			return nil
		default:
		}

		sleep, err := p.step(ctx, retries)
		if err != nil {
			logger.Error("parser step failed", "chain", p.chain, "err", err)
		}
		if sleep {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-shutdown:
				return nil
			case <-time.After(p.cfg.PollInterval):
			}
		}
	}
}

// step executes one iteration of §4.2 steps 1-8 and reports whether
// the caller should sleep before the next one.
func (p *Parser) step(ctx context.Context, retries map[uint64]int) (sleep bool, err error) {
	st, err := p.state.Get(ctx, p.chain)
	if err != nil {
		return true, err
	}

	latest, err := p.provider.LatestBlock(ctx)
	if err != nil {
		logger.Warn("latest_block failed", "chain", p.chain, "err", err)
		return true, nil
	}
	if err := p.state.SetLatestBlock(ctx, p.chain, latest); err != nil {
		return true, err
	}
	st.LatestBlock = latest

	if st.CurrentBlock+p.cfg.AwaitBlocks >= st.LatestBlock {
		metrics.ParserLag(string(p.chain), 0)
		return true, nil
	}

	next := st.CurrentBlock + 1
	metrics.ParserLag(string(p.chain), int64(st.LatestBlock-next))

	txs, err := p.provider.GetTransactions(ctx, next)
	if err != nil {
		retries[next]++
		metrics.ParserRPCRetry(string(p.chain))
		if retries[next] >= maxBlockRetries {
			p.skipBlock(ctx, next, err.Error(), retries[next])
			delete(retries, next)
			return false, nil
		}
		return true, nil
	}
	delete(retries, next)

	filtered := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if p.predicate(tx) {
			filtered = append(filtered, tx)
		}
	}

	queue := broker.PerChainQueue(broker.QueueFetchBlockTransactions, string(p.chain))
	payload := model.TransactionsPayload{Chain: p.chain, Block: next, Transactions: filtered}
	if err := p.publisher.Publish(ctx, queue, payload); err != nil {
		// §4.2: "a publish failure leaves current_block unchanged; next
		// iteration republishes."
		return true, err
	}

	if err := p.state.SetCurrentBlock(ctx, p.chain, next); err != nil {
		return true, err
	}
	metrics.ParserCheckpoint(string(p.chain), int64(next))

	return next+p.cfg.AwaitBlocks >= latest, nil
}

// skipBlock records a height whose RPC fetch exhausted its retry
// budget and advances past it, the "single accepted source of lost
// deliveries" §4.2 calls for.
func (p *Parser) skipBlock(ctx context.Context, block uint64, reason string, attempts int) {
	logger.Error("dead-lettering block", "chain", p.chain, "block", block, "attempts", attempts, "reason", reason)
	metrics.ParserDeadLetter(string(p.chain))
	if err := p.deadLet.Record(ctx, p.chain, block, reason, attempts); err != nil {
		logger.Error("failed to record dead letter", "chain", p.chain, "block", block, "err", err)
	}
	if err := p.state.SetCurrentBlock(ctx, p.chain, block); err != nil {
		logger.Error("failed to advance past dead-lettered block", "chain", p.chain, "block", block, "err", err)
	}
}
