// Package cache is an LRU wrapper around a single (unsharded)
// hashicorp/golang-lru cache, keyed on a plain string. Its one user is
// the Subscription Index's hot (chain, address) lookup.
package cache

import (
	"errors"

	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded, thread-safe key-value cache.
type Cache interface {
	Add(key string, value interface{}) (evicted bool)
	Get(key string) (value interface{}, ok bool)
	Contains(key string) bool
	Remove(key string)
	Purge()
}

type lruCache struct {
	lru *lru.Cache
}

func (c *lruCache) Add(key string, value interface{}) (evicted bool) {
	return c.lru.Add(key, value)
}

func (c *lruCache) Get(key string) (value interface{}, ok bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *lruCache) Remove(key string) {
	c.lru.Remove(key)
}

func (c *lruCache) Purge() {
	c.lru.Purge()
}

// New returns an LRU cache holding at most size entries.
func New(size int) (Cache, error) {
	if size <= 0 {
		return nil, errors.New("cache: size must be positive")
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruCache{lru: l}, nil
}
