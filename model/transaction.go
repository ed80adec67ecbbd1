// Package model holds the canonical data types shared across the
// indexing pipeline: Transaction, Subscription, Device, ParserState
// and the association row.
package model

import (
	"time"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/internal/config"
)

// State is the lifecycle state of a Transaction.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateReverted  State = "reverted"
)

// Direction is computed per-observer at notification time, never
// stored globally (§3).
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionSelf     Direction = "self"
)

// UTXOEntry is one input or output of a UTXO-chain transaction.
type UTXOEntry struct {
	Address string
	Value   string
}

// Transaction is the canonical, chain-agnostic transaction record.
// Direction is filled in by Finalize for a specific observer address
// set; it is not meaningful before that call.
type Transaction struct {
	ID          string
	Hash        string
	Chain       config.Chain
	AssetID     asset.ID
	From        string
	To          string
	Memo        string
	Type        string
	State       State
	BlockNumber uint64
	Sequence    uint64
	Fee         string
	FeeAssetID  asset.ID
	Value       string
	Direction   Direction
	CreatedAt   time.Time

	UTXOInputs  []UTXOEntry
	UTXOOutputs []UTXOEntry
	Metadata    map[string]string
}

// NewID computes the canonical "chain_hash" primary key (§3).
func NewID(chain config.Chain, hash string) string {
	return string(chain) + "_" + hash
}

// Addresses returns the distinct set of addresses this transaction
// touches: From, To, and every UTXO input/output address. The
// Transactions Consumer unions this set across a whole block payload
// to query the Subscription Index in one round trip (§4.3 step 1).
func (t *Transaction) Addresses() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(t.From)
	add(t.To)
	for _, in := range t.UTXOInputs {
		add(in.Address)
	}
	for _, o := range t.UTXOOutputs {
		add(o.Address)
	}
	return out
}

// AssetIDs returns the distinct asset ids referenced by this
// transaction: its value asset and its fee asset. The consumer
// resolves these against the Transaction Store to find which are
// missing and need a FetchAssetsPayload (§4.3 step 3d).
func (t *Transaction) AssetIDs() []asset.ID {
	if t.FeeAssetID == t.AssetID || t.FeeAssetID.Chain == "" {
		return []asset.ID{t.AssetID}
	}
	return []asset.ID{t.AssetID, t.FeeAssetID}
}

// Finalize re-projects t for a single observer's address set, setting
// Direction to incoming/outgoing/self. It returns a copy; the
// original transaction (as persisted) never carries a direction
// (§3, §4.3 step 3b).
func (t Transaction) Finalize(observerAddresses []string) Transaction {
	owned := map[string]struct{}{}
	for _, a := range observerAddresses {
		owned[a] = struct{}{}
	}
	_, fromOwned := owned[t.From]
	_, toOwned := owned[t.To]
	switch {
	case fromOwned && toOwned:
		t.Direction = DirectionSelf
	case fromOwned:
		t.Direction = DirectionOutgoing
	case toOwned:
		t.Direction = DirectionIncoming
	}
	return t
}
