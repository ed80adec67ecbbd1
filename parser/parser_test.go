package parser

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/chain"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

type fakeProvider struct {
	chain  config.Chain
	latest uint64
	txs    map[uint64][]model.Transaction
}

func (p *fakeProvider) Chain() config.Chain { return p.chain }
func (p *fakeProvider) LatestBlock(ctx context.Context) (uint64, error) { return p.latest, nil }
func (p *fakeProvider) GetTransactions(ctx context.Context, block uint64) ([]model.Transaction, error) {
	return p.txs[block], nil
}
func (p *fakeProvider) GetTokenData(ctx context.Context, id asset.ID) (chain.Asset, error) {
	return chain.Asset{}, chain.ErrTokenNotFound
}
func (p *fakeProvider) GetAssetsBalances(ctx context.Context, address string) ([]chain.AssetBalance, error) {
	return nil, nil
}
func (p *fakeProvider) GetTransactionsByAddress(ctx context.Context, address string) ([]model.Transaction, error) {
	return nil, nil
}

var _ chain.Provider = (*fakeProvider)(nil)

type fakeState struct {
	current map[config.Chain]uint64
	latest  map[config.Chain]uint64
}

func newFakeState() *fakeState {
	return &fakeState{current: map[config.Chain]uint64{}, latest: map[config.Chain]uint64{}}
}

func (s *fakeState) Get(ctx context.Context, chain config.Chain) (model.ParserState, error) {
	return model.ParserState{Chain: chain, CurrentBlock: s.current[chain], LatestBlock: s.latest[chain]}, nil
}
func (s *fakeState) SetCurrentBlock(ctx context.Context, chain config.Chain, height uint64) error {
	s.current[chain] = height
	return nil
}
func (s *fakeState) SetLatestBlock(ctx context.Context, chain config.Chain, height uint64) error {
	s.latest[chain] = height
	return nil
}

var _ ParserState = (*fakeState)(nil)

type fakeDeadLetters struct {
	recorded []uint64
}

func (d *fakeDeadLetters) Record(ctx context.Context, chain config.Chain, block uint64, reason string, attempts int) error {
	d.recorded = append(d.recorded, block)
	return nil
}

var _ DeadLetters = (*fakeDeadLetters)(nil)

func TestBackpressure_SleepsWhenBehindAwaitBlocks(t *testing.T) {
	state := newFakeState()
	state.current[config.Ethereum] = 10
	state.latest[config.Ethereum] = 11 // 10 + await(2) >= 11, should sleep

	cfg := config.ChainConfig{Chain: config.Ethereum, AwaitBlocks: 2}
	p := &Parser{
		chain:     config.Ethereum,
		cfg:       cfg,
		state:     state,
		deadLet:   &fakeDeadLetters{},
		predicate: AcceptAll,
		provider:  &fakeProvider{chain: config.Ethereum, latest: 11},
	}

	sleep, err := p.step(context.Background(), map[uint64]int{})
	require.NoError(t, err)
	assert.True(t, sleep)
	assert.Equal(t, uint64(10), state.current[config.Ethereum])
}

type stubErrProvider struct {
	chain config.Chain
}

func (p *stubErrProvider) Chain() config.Chain                            { return p.chain }
func (p *stubErrProvider) LatestBlock(ctx context.Context) (uint64, error) { return 100, nil }
func (p *stubErrProvider) GetTransactions(ctx context.Context, block uint64) ([]model.Transaction, error) {
	return nil, errors.New("rpc unavailable")
}
func (p *stubErrProvider) GetTokenData(ctx context.Context, id asset.ID) (chain.Asset, error) {
	return chain.Asset{}, chain.ErrTokenNotFound
}
func (p *stubErrProvider) GetAssetsBalances(ctx context.Context, address string) ([]chain.AssetBalance, error) {
	return nil, nil
}
func (p *stubErrProvider) GetTransactionsByAddress(ctx context.Context, address string) ([]model.Transaction, error) {
	return nil, nil
}

var _ chain.Provider = (*stubErrProvider)(nil)

func TestDeadLetter_AfterExhaustingRetries(t *testing.T) {
	state := newFakeState()
	state.current[config.Ethereum] = 10
	state.latest[config.Ethereum] = 100

	dl := &fakeDeadLetters{}
	cfg := config.ChainConfig{Chain: config.Ethereum, AwaitBlocks: 2}
	p := &Parser{
		chain:     config.Ethereum,
		cfg:       cfg,
		state:     state,
		deadLet:   dl,
		predicate: AcceptAll,
		provider:  &stubErrProvider{chain: config.Ethereum},
	}

	retries := map[uint64]int{}
	for i := 0; i < maxBlockRetries; i++ {
		_, _ = p.step(context.Background(), retries)
	}
	assert.Equal(t, []uint64{11}, dl.recorded)
	assert.Equal(t, uint64(11), state.current[config.Ethereum])
}
