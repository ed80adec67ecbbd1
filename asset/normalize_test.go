package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omniwallet/chain-indexer/internal/config"
)

func TestNormalize_Scenarios(t *testing.T) {
	// §8 scenario 6.
	got, ok := Normalize(config.Tron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	assert.True(t, ok)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", got)

	_, ok = Normalize(config.Sui, "0x2::sui::SUI")
	assert.False(t, ok)

	_, ok = Normalize(config.Ethereum, "0x123")
	assert.False(t, ok)
}

func TestParse_RoundTrip(t *testing.T) {
	valid, ok := Parse("ethereum_0x6b175474e89094c44da98b954eedeac495271d0f")
	assert.True(t, ok)
	assert.Equal(t, config.Ethereum, valid.Chain)
	reparsed, ok := Parse(valid.String())
	assert.True(t, ok)
	assert.Equal(t, valid, reparsed)

	native, ok := Parse("ethereum")
	assert.True(t, ok)
	assert.True(t, native.IsNative())
	assert.Equal(t, "ethereum", native.String())
}

func TestParse_InvalidIsNone(t *testing.T) {
	_, ok := Parse("")
	assert.False(t, ok)

	_, ok = Parse("_abc")
	assert.False(t, ok)

	_, ok = Parse("sui_0x2::sui::SUI")
	assert.False(t, ok)
}

func TestNormalizeEVM_Idempotent(t *testing.T) {
	addr := "0x6b175474e89094c44da98b954eedeac495271d0f"
	once, ok := Normalize(config.Ethereum, addr)
	assert.True(t, ok)
	twice, ok := Normalize(config.Ethereum, once)
	assert.True(t, ok)
	assert.Equal(t, once, twice)
}

func TestUTXOAndCosmosTokensDisallowed(t *testing.T) {
	_, ok := Normalize(config.Bitcoin, "anything")
	assert.False(t, ok)
	_, ok = Normalize(config.Cosmos, "uatom")
	assert.False(t, ok)
}
