package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/jinzhu/gorm"

	lru "github.com/omniwallet/chain-indexer/internal/cache"
	"github.com/omniwallet/chain-indexer/internal/config"
	"github.com/omniwallet/chain-indexer/model"
)

// subscriptionCacheSize bounds the in-process LRU fronting Redis,
// built on internal/cache.
const subscriptionCacheSize = 100_000

// subscriptionRow is the gorm-mapped form of model.Subscription (§3).
type subscriptionRow struct {
	DeviceID    string `gorm:"column:device_id;primary_key"`
	WalletIndex int    `gorm:"column:wallet_index;primary_key"`
	Chain       string `gorm:"column:chain;primary_key"`
	Address     string `gorm:"column:address;primary_key;index"`
}

func (subscriptionRow) TableName() string { return "subscriptions" }

func (r subscriptionRow) toModel() model.Subscription {
	return model.Subscription{
		DeviceID:    r.DeviceID,
		WalletIndex: r.WalletIndex,
		Chain:       config.Chain(r.Chain),
		Address:     r.Address,
	}
}

// SubscriptionIndex implements C3: get_subscriptions(chain,
// addresses), get_subscriptions_by_device(device_id, wallet_index),
// add/remove subscription. The hot path (get_subscriptions) is
// required to answer in under 50ms for up to 10^4 addresses (§4.8),
// so every address key is looked up first in an in-process LRU, then
// in Redis, and only falls back to Postgres on a full miss, which it
// then backfills into both caches.
type SubscriptionIndex struct {
	db     *gorm.DB
	redis  *redis.Client
	local  lru.Cache
}

func NewSubscriptionIndex(db *gorm.DB, redisClient *redis.Client) (*SubscriptionIndex, error) {
	c, err := lru.New(subscriptionCacheSize)
	if err != nil {
		return nil, err
	}
	return &SubscriptionIndex{db: db, redis: redisClient, local: c}, nil
}

func cacheKey(chain config.Chain, address string) string {
	return string(chain) + ":" + address
}

// GetSubscriptions answers get_subscriptions(chain, addresses),
// checking the LRU and Redis before any address falls through to
// Postgres.
func (s *SubscriptionIndex) GetSubscriptions(ctx context.Context, chain config.Chain, addresses []string) ([]model.Subscription, error) {
	var out []model.Subscription
	var missed []string

	for _, addr := range addresses {
		key := cacheKey(chain, addr)
		if v, ok := s.local.Get(key); ok {
			out = append(out, v.([]model.Subscription)...)
			continue
		}
		if subs, ok, err := s.getFromRedis(ctx, key); err == nil && ok {
			s.local.Add(key, subs)
			out = append(out, subs...)
			continue
		}
		missed = append(missed, addr)
	}
	if len(missed) == 0 {
		return out, nil
	}

	var rows []subscriptionRow
	if err := s.db.Where("chain = ? AND address IN (?)", string(chain), missed).Find(&rows).Error; err != nil {
		return nil, err
	}
	byAddr := map[string][]model.Subscription{}
	for _, r := range rows {
		byAddr[r.Address] = append(byAddr[r.Address], r.toModel())
	}
	for _, addr := range missed {
		subs := byAddr[addr]
		out = append(out, subs...)
		key := cacheKey(chain, addr)
		s.local.Add(key, subs)
		s.setRedis(ctx, key, subs)
	}
	return out, nil
}

func (s *SubscriptionIndex) getFromRedis(ctx context.Context, key string) ([]model.Subscription, bool, error) {
	if s.redis == nil {
		return nil, false, nil
	}
	raw, err := s.redis.Get(key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var subs []model.Subscription
	if err := json.Unmarshal(raw, &subs); err != nil {
		return nil, false, err
	}
	return subs, true, nil
}

func (s *SubscriptionIndex) setRedis(ctx context.Context, key string, subs []model.Subscription) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(subs)
	if err != nil {
		return
	}
	if err := s.redis.Set(key, raw, 10*time.Minute).Err(); err != nil {
		logger.Warn("redis set failed", "key", key, "err", err)
	}
}

// GetSubscriptionsByDevice answers get_subscriptions_by_device, a
// management-path query the API layer uses; it bypasses the hot-path
// caches since it is not keyed by (chain, address).
func (s *SubscriptionIndex) GetSubscriptionsByDevice(ctx context.Context, deviceID string, walletIndex int) ([]model.Subscription, error) {
	var rows []subscriptionRow
	err := s.db.Where("device_id = ? AND wallet_index = ?", deviceID, walletIndex).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Subscription, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Add registers sub, invalidating its (chain, address) cache entry so
// the next get_subscriptions call observes it.
func (s *SubscriptionIndex) Add(ctx context.Context, sub model.Subscription) error {
	row := subscriptionRow{
		DeviceID:    sub.DeviceID,
		WalletIndex: sub.WalletIndex,
		Chain:       string(sub.Chain),
		Address:     sub.Address,
	}
	if err := s.db.Save(&row).Error; err != nil {
		return err
	}
	s.invalidate(sub.Chain, sub.Address)
	return nil
}

// Remove deletes sub and invalidates its cache entry.
func (s *SubscriptionIndex) Remove(ctx context.Context, sub model.Subscription) error {
	err := s.db.Where("device_id = ? AND wallet_index = ? AND chain = ? AND address = ?",
		sub.DeviceID, sub.WalletIndex, string(sub.Chain), sub.Address).Delete(subscriptionRow{}).Error
	if err != nil {
		return err
	}
	s.invalidate(sub.Chain, sub.Address)
	return nil
}

func (s *SubscriptionIndex) invalidate(chain config.Chain, address string) {
	key := cacheKey(chain, address)
	s.local.Remove(key)
	if s.redis != nil {
		if err := s.redis.Del(key).Err(); err != nil {
			logger.Warn("redis invalidate failed", "key", key, "err", err)
		}
	}
}

// NewRedisClient dials a Redis endpoint for the subscription cache.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}
