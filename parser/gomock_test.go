package parser

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniwallet/chain-indexer/internal/config"
)

// TestDeadLetter_RecordsExactAttemptCount exercises the same retry
// exhaustion path as TestDeadLetter_AfterExhaustingRetries but asserts
// against a generated gomock.Controller expectation instead of a
// hand-written fake, so the exact argument list §4.2 step 7 passes to
// DeadLetters.Record is pinned down explicitly.
func TestDeadLetter_RecordsExactAttemptCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dl := NewMockDeadLetters(ctrl)
	dl.EXPECT().
		Record(gomock.Any(), config.Ethereum, uint64(11), gomock.Any(), maxBlockRetries).
		Return(nil).
		Times(1)

	state := newFakeState()
	state.current[config.Ethereum] = 10
	state.latest[config.Ethereum] = 100

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
		_, err := p.step(context.Background(), retries)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(11), state.current[config.Ethereum])
}
