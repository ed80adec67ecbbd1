package asset

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58/base58"

	"github.com/omniwallet/chain-indexer/internal/config"
)

// Normalize canonicalizes a token id for chain, per the per-family
// validation rules below. It returns ok=false for anything that isn't
// a well-formed token id on that chain rather than silently passing it
// through.
func Normalize(chain config.Chain, tokenID string) (string, bool) {
	switch {
	case isEVM(chain):
		return normalizeEVM(tokenID)
	case chain == config.Solana, chain == config.Ton, chain == config.Near, chain == config.Aptos:
		// as-is: these chains' native token/mint addresses are already
		// canonical in their own base58/hex encodings.
		if tokenID == "" {
			return "", false
		}
		return tokenID, true
	case chain == config.Tron:
		return normalizeTron(tokenID)
	case chain == config.Xrp:
		return normalizeXRP(tokenID)
	case chain == config.Stellar:
		return normalizeStellar(tokenID)
	case chain == config.Sui:
		return normalizeSui(tokenID)
	case chain == config.Algorand:
		return normalizeAlgorand(tokenID)
	case chain == config.Bitcoin, chain == config.Litecoin, chain == config.Doge,
		chain == config.Cosmos, chain == config.Osmosis:
		// UTXO chains and the Cosmos-SDK family have no first-class
		// fungible token standard this pipeline supports; tokens are
		// disallowed rather than silently accepted (§3).
		return "", false
	default:
		return "", false
	}
}

func isEVM(chain config.Chain) bool {
	for _, c := range config.EVMChains {
		if c == chain {
			return true
		}
	}
	return false
}

// normalizeEVM checksums an EVM address per EIP-55 and requires the
// standard 20-byte hex length. checksum(checksum(x)) == checksum(x)
// holds because ethcommon.Address.Hex() is a pure function of the
// 20 raw bytes (§8 round-trip law).
func normalizeEVM(tokenID string) (string, bool) {
	if !ethcommon.IsHexAddress(tokenID) {
		return "", false
	}
	return ethcommon.HexToAddress(tokenID).Hex(), true
}

// normalizeTron requires a base58 address beginning with 'T' of
// exactly 34 characters (§3).
func normalizeTron(tokenID string) (string, bool) {
	if len(tokenID) != 34 || tokenID[0] != 'T' {
		return "", false
	}
	if _, err := base58.Decode(tokenID); err != nil {
		return "", false
	}
	return tokenID, true
}

// normalizeXRP requires the issuer segment to begin with 'r' and be at
// most 34 characters (§3). XRP token ids are "<issuer>.<currency>";
// only the issuer portion is validated here, mirroring the source's
// lenient currency-code handling.
func normalizeXRP(tokenID string) (string, bool) {
	issuer := tokenID
	if i := strings.IndexByte(tokenID, '.'); i >= 0 {
		issuer = tokenID[:i]
	}
	if len(issuer) == 0 || issuer[0] != 'r' || len(issuer) > 34 {
		return "", false
	}
	return tokenID, true
}

// normalizeStellar requires the 56-character 'G...' issuer form (§3).
func normalizeStellar(tokenID string) (string, bool) {
	issuer := tokenID
	if i := strings.IndexByte(tokenID, '-'); i >= 0 {
		issuer = tokenID[:i]
	}
	if len(issuer) != 56 || issuer[0] != 'G' {
		return "", false
	}
	return tokenID, true
}

// normalizeSui requires exactly the "<package>::<module>::<type>" form
// (two '::' separators), a total length of at least 64, and rejects
// the bare native 0x2 address (§3; format_token_id(Sui, "0x2::sui::SUI")
// → None per §8 scenario 6).
func normalizeSui(tokenID string) (string, bool) {
	if strings.Count(tokenID, "::") != 2 {
		return "", false
	}
	if len(tokenID) < 64 {
		return "", false
	}
	pkg := tokenID[:strings.Index(tokenID, "::")]
	if pkg == "0x2" {
		return "", false
	}
	return tokenID, true
}

// normalizeAlgorand requires a purely numeric asset index (§3).
func normalizeAlgorand(tokenID string) (string, bool) {
	if tokenID == "" {
		return "", false
	}
	for _, r := range tokenID {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return tokenID, true
}
