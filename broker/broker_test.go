package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerChainQueue(t *testing.T) {
	assert.Equal(t, "FetchBlockTransactions.ethereum", PerChainQueue(QueueFetchBlockTransactions, "ethereum"))
}

func TestNewAddressesBindings_CoverSpecFanout(t *testing.T) {
	want := map[string]bool{
		QueueFetchTokenAddressesAssociations: true,
		QueueFetchCoinAddressesAssociations:  true,
		QueueFetchNftAssetsAddressesAssoc:    true,
		QueueFetchAddressTransactions:        true,
		QueueFetchTransactions:                true,
	}
	assert.Len(t, newAddressesBindings, len(want))
	for _, q := range newAddressesBindings {
		assert.True(t, want[q], "unexpected binding %s", q)
	}
}
