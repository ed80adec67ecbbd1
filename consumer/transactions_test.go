package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniwallet/chain-indexer/asset"
	"github.com/omniwallet/chain-indexer/broker"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

type fakeSubs struct {
	byAddress map[string][]model.Subscription
}

func (f *fakeSubs) GetSubscriptions(ctx context.Context, chain config.Chain, addresses []string) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, a := range addresses {
		out = append(out, f.byAddress[a]...)
	}
	return out, nil
}

type fakeDevices struct {
	devices map[string]model.Device
}

func (f *fakeDevices) Get(ctx context.Context, deviceID string) (model.Device, bool, error) {
	d, ok := f.devices[deviceID]
	return d, ok, nil
}

type fakeTxStore struct {
	known   map[string]bool
	upserts []model.Transaction
}

func (f *fakeTxStore) UpsertBatch(ctx context.Context, txs []model.Transaction) error {
	f.upserts = append(f.upserts, txs...)
	return nil
}
func (f *fakeTxStore) KnownAssets(ctx context.Context, ids []asset.ID) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		if f.known[id.String()] {
			out[id.String()] = true
		}
	}
	return out, nil
}

type fixedWindow time.Duration

func (w fixedWindow) OutdatedWindow(config.Chain) time.Duration { return time.Duration(w) }

type fakePublisher struct {
	published map[string][][]byte
}

func newFakePublisher() *fakePublisher { return &fakePublisher{published: map[string][][]byte{}} }

func (f *fakePublisher) Publish(ctx context.Context, queue string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.published[queue] = append(f.published[queue], body)
	return nil
}

func baseTx(addr string, createdAt time.Time) model.Transaction {
	return model.Transaction{
		ID:        "ethereum_0x1",
		Hash:      "0x1",
		Chain:     config.Ethereum,
		AssetID:   asset.ID{Chain: config.Ethereum},
		From:      "0xzzz",
		To:        addr,
		State:     model.StateConfirmed,
		CreatedAt: createdAt,
	}
}

func TestTransactionsConsumer_OutdatedSkipsNotificationButStillPersists(t *testing.T) {
	subs := &fakeSubs{byAddress: map[string][]model.Subscription{
		"0xabc": {{DeviceID: "dev1", Chain: config.Ethereum, Address: "0xabc"}},
	}}
	devices := &fakeDevices{devices: map[string]model.Device{"dev1": {ID: "d1", DeviceID: "dev1", Token: "tok"}}}
	txStore := &fakeTxStore{known: map[string]bool{}}
	pub := newFakePublisher()

	c := NewTransactionsConsumer(subs, devices, txStore, fixedWindow(time.Hour), pub, nil)

	payload := model.TransactionsPayload{
		Chain:        config.Ethereum,
		Block:        1,
		Transactions: []model.Transaction{baseTx("0xabc", time.Now().Add(-2*time.Hour))},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), body))
	assert.Empty(t, pub.published[broker.QueueNotificationsTransactions], "outdated transaction must not produce a notification")
	assert.Len(t, txStore.upserts, 1, "transaction must still be persisted")
}

func TestTransactionsConsumer_FreshTransactionNotifies(t *testing.T) {
	subs := &fakeSubs{byAddress: map[string][]model.Subscription{
		"0xabc": {{DeviceID: "dev1", Chain: config.Ethereum, Address: "0xabc"}},
	}}
	devices := &fakeDevices{devices: map[string]model.Device{"dev1": {ID: "d1", DeviceID: "dev1", Token: "tok"}}}
	txStore := &fakeTxStore{known: map[string]bool{}}
	pub := newFakePublisher()

	c := NewTransactionsConsumer(subs, devices, txStore, fixedWindow(time.Hour), pub, nil)

	payload := model.TransactionsPayload{
		Chain:        config.Ethereum,
		Block:        1,
		Transactions: []model.Transaction{baseTx("0xabc", time.Now())},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), body))
	assert.Len(t, pub.published[broker.QueueNotificationsTransactions], 1)
}

func TestTransactionsConsumer_MissingAssetDropsFromBatchInsert(t *testing.T) {
	subs := &fakeSubs{}
	devices := &fakeDevices{devices: map[string]model.Device{}}
	txStore := &fakeTxStore{known: map[string]bool{}}
	pub := newFakePublisher()

	c := NewTransactionsConsumer(subs, devices, txStore, fixedWindow(time.Hour), pub, nil)

	tokenID, ok := asset.New(config.Ethereum, "0x1111111111111111111111111111111111111111")
	require.True(t, ok)
	tx := baseTx("0xabc", time.Now())
	tx.AssetID = tokenID

	payload := model.TransactionsPayload{Chain: config.Ethereum, Block: 1, Transactions: []model.Transaction{tx}}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), body))
	assert.Empty(t, txStore.upserts, "transaction referencing an unknown asset must be dropped (§4.3 step 4 guard)")
	assert.NotEmpty(t, pub.published[broker.QueueFetchAssets], "missing asset id must trigger a FetchAssetsPayload")
}
