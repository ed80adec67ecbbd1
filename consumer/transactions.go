// Package consumer implements the Transactions Consumer (C7) and the
// four Address-Association Fan-out consumers (C8), each a Handler the
// Consumer Runner (C10) wires to broker.Client.Consume: decode JSON,
// dispatch to a per-payload method, ack/nack by returning error or
// nil.
package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/broker"
	"github.com/omniwallet/chain-indexer/internal/config"
	ilog "github.com/omniwallet/chain-indexer/internal/log"
	"github.com/omniwallet/chain-indexer/internal/metrics"
	"github.com/omniwallet/chain-indexer/model"
	"github.com/omniwallet/chain-indexer/push"
)

var logger = ilog.NewModuleLogger(ilog.Consumer)

// SubscriptionIndex is the C3 surface the Transactions Consumer needs.
type SubscriptionIndex interface {
	GetSubscriptions(ctx context.Context, chain config.Chain, addresses []string) ([]model.Subscription, error)
}

// DeviceStore resolves a subscription's device.
type DeviceStore interface {
	Get(ctx context.Context, deviceID string) (model.Device, bool, error)
}

// TransactionStore is the C4 surface the Transactions Consumer needs.
type TransactionStore interface {
	UpsertBatch(ctx context.Context, txs []model.Transaction) error
	KnownAssets(ctx context.Context, ids []asset.ID) (map[string]bool, error)
}

// OutdatedWindows resolves the per-chain staleness window of §4.3
// step 3c.
type OutdatedWindows interface {
	OutdatedWindow(chain config.Chain) time.Duration
}

// TransactionsConsumer implements C7.
type TransactionsConsumer struct {
	subs      SubscriptionIndex
	devices   DeviceStore
	txStore   TransactionStore
	windows   OutdatedWindows
	publisher Publisher
	builder   push.MessageBuilder
}

func NewTransactionsConsumer(subs SubscriptionIndex, devices DeviceStore, txStore TransactionStore, windows OutdatedWindows, publisher Publisher, builder push.MessageBuilder) *TransactionsConsumer {
	if builder == nil {
		builder = push.DefaultMessageBuilder{}
	}
	return &TransactionsConsumer{subs: subs, devices: devices, txStore: txStore, windows: windows, publisher: publisher, builder: builder}
}

// Handle implements broker.Handler for queue
// FetchBlockTransactions.<chain>, executing §4.3 steps 1-5. The ack
// happens in broker.Client.Consume once Handle returns nil; all
// downstream effects (notification publishes, batch upsert) are
// attempted before that return, per §4.3's "per-message ack only
// after all downstream effects have been attempted".
func (c *TransactionsConsumer) Handle(ctx context.Context, body []byte) error {
	var payload model.TransactionsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "consumer: decode TransactionsPayload")
	}
	if len(payload.Transactions) == 0 {
		return nil
	}

	addresses := unionAddresses(payload.Transactions)
	subs, err := c.subs.GetSubscriptions(ctx, payload.Chain, addresses)
	if err != nil {
		return errors.Wrap(err, "consumer: get_subscriptions")
	}

	byAddress := map[string][]model.Subscription{}
	for _, s := range subs {
		byAddress[s.Address] = append(byAddress[s.Address], s)
	}

	window := c.windows.OutdatedWindow(payload.Chain)
	now := time.Now()

	var missingAll []asset.ID
	seenMissing := map[string]struct{}{}
	knownByTx := make([]map[string]bool, len(payload.Transactions))

	for i, tx := range payload.Transactions {
		for _, addr := range tx.Addresses() {
			for _, sub := range byAddress[addr] {
				if err := c.notifyOne(ctx, sub, tx, window, now); err != nil {
					logger.Warn("notify failed", "device", sub.DeviceID, "tx", tx.ID, "err", err)
				}
			}
		}

		known, err := c.txStore.KnownAssets(ctx, tx.AssetIDs())
		if err != nil {
			logger.Warn("known assets lookup failed", "tx", tx.ID, "err", err)
			continue
		}
		knownByTx[i] = known
		for _, id := range tx.AssetIDs() {
			if known[id.String()] {
				continue
			}
			if _, dup := seenMissing[id.String()]; dup {
				continue
			}
			seenMissing[id.String()] = struct{}{}
			missingAll = append(missingAll, id)
		}
	}

	if len(missingAll) > 0 {
		ids := make([]string, len(missingAll))
		for i, id := range missingAll {
			ids[i] = id.String()
		}
		if err := c.publisher.Publish(ctx, broker.QueueFetchAssets, model.FetchAssetsPayload{AssetIDs: ids}); err != nil {
			logger.Warn("publish FetchAssetsPayload failed", "err", err)
		}
	}

	// §4.3 step 4: batch-insert with a pre-insert guard dropping
	// transactions whose referenced assets are not yet present. Reuses
	// the KnownAssets lookup already taken above instead of querying
	// again per transaction.
	toInsert := make([]model.Transaction, 0, len(payload.Transactions))
	for i, tx := range payload.Transactions {
		if assetsReady(tx, knownByTx[i]) {
			toInsert = append(toInsert, tx)
		}
	}
	if len(toInsert) == 0 {
		return nil
	}
	return errors.Wrap(c.txStore.UpsertBatch(ctx, toInsert), "consumer: upsert batch")
}

func assetsReady(tx model.Transaction, known map[string]bool) bool {
	if known == nil {
		return false
	}
	for _, id := range tx.AssetIDs() {
		if id.IsNative() {
			continue
		}
		if !known[id.String()] {
			return false
		}
	}
	return true
}

func (c *TransactionsConsumer) notifyOne(ctx context.Context, sub model.Subscription, tx model.Transaction, window time.Duration, now time.Time) error {
	device, ok, err := c.devices.Get(ctx, sub.DeviceID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	finalized := tx.Finalize([]string{sub.Address})

	if !tx.CreatedAt.IsZero() && now.Sub(tx.CreatedAt) > window {
		// §4.3 step 3c: persist regardless, but skip the push.
		return nil
	}

	msg := c.builder.Build(device, finalized, sub)
	if err := c.publisher.Publish(ctx, broker.QueueNotificationsTransactions, model.NotificationsPayload{Notifications: []model.PushMessage{msg}}); err != nil {
		return err
	}
	metrics.NotificationsSent()
	return nil
}

func unionAddresses(txs []model.Transaction) []string {
	seen := map[string]struct{}{}
	var out []string
	for i := range txs {
		for _, addr := range txs[i].Addresses() {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
