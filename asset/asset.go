// Package asset implements the asset identifier value object: a
// (chain, optional token_id) pair, canonicalized per chain at ingress
// rather than normalized silently.
package asset

import (
	"strings"

	"github.com/omniwallet/chain-indexer/internal/config"
)

// ID is the value object identifying a fungible asset. TokenID is
// empty for the chain's native coin.
type ID struct {
	Chain   config.Chain
	TokenID string
}

// IsNative reports whether id identifies the chain's native coin.
func (id ID) IsNative() bool { return id.TokenID == "" }

// String renders id in its textual form: "<chain>" for native assets,
// "<chain>_<token_id>" for tokens (§6).
func (id ID) String() string {
	if id.IsNative() {
		return string(id.Chain)
	}
	return string(id.Chain) + "_" + id.TokenID
}

// Parse splits s on the first underscore into chain and token id, then
// canonicalizes the token id via Normalize. Invalid token ids are
// rejected (ok=false) rather than round-tripped as garbage.
func Parse(s string) (id ID, ok bool) {
	if s == "" {
		return ID{}, false
	}
	chain, tokenID, hasToken := strings.Cut(s, "_")
	if chain == "" {
		return ID{}, false
	}
	if !hasToken {
		return ID{Chain: config.Chain(chain)}, true
	}
	normalized, valid := Normalize(config.Chain(chain), tokenID)
	if !valid {
		return ID{}, false
	}
	return ID{Chain: config.Chain(chain), TokenID: normalized}, true
}

// New builds an ID for a token, validating and canonicalizing tokenID
// the same way Parse does. Used at ingress (chain providers, the
// consumer's asset resolution step) so invalid ids never reach
// storage.
func New(chain config.Chain, tokenID string) (ID, bool) {
	if tokenID == "" {
		return ID{Chain: chain}, true
	}
	normalized, ok := Normalize(chain, tokenID)
	if !ok {
		return ID{}, false
	}
	return ID{Chain: chain, TokenID: normalized}, true
}
