package model

import (
	"time"

	"github.com/omniwallet/chain-indexer/internal/config"
)

// Subscription is a device's declared interest in on-chain activity
// at one address on one chain, per one wallet index (§3). Unique by
// (DeviceID, WalletIndex, Chain, Address).
type Subscription struct {
	DeviceID   string
	WalletIndex int
	Chain      config.Chain
	Address    string
}

// Device is a push-notification target (§3). PublicKey, when set,
// enables signed-request authentication on the (out of scope) API
// layer; it is carried here because C9 needs the push Token and the
// API layer needs the PublicKey from the same row.
type Device struct {
	ID        string
	DeviceID  string
	Platform  string
	Token     string
	PublicKey string
	Locale    string
	Currency  string
	UpdatedAt time.Time
}

// Association records the discovered presence of an asset at an
// address, driven by the Address-Association Fan-out (C8). Composite
// key (AssetID, Address).
type Association struct {
	AssetID   string
	Address   string
	Chain     config.Chain
	CreatedAt time.Time
}

// ParserState is the per-chain cursor of §3/§4.7. Invariant:
// CurrentBlock <= LatestBlock always.
type ParserState struct {
	Chain        config.Chain
	CurrentBlock uint64
	LatestBlock  uint64
	AwaitBlocks  uint64
	UpdatedAt    time.Time
}

// DeadLetter records a block, message, or transaction that could not
// be processed after the allowed retries (§9 design note: "implementers
// should add an explicit parser_deadletter(chain, block, reason) table").
type DeadLetter struct {
	ID        string
	Chain     config.Chain
	Block     uint64
	Reason    string
	Attempts  int
	CreatedAt time.Time
}
