// Package cache keeps recently scraped status markup so re-queued
// receipts inside the TTL window skip the browser entirely.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/config"
)

const keyPrefix = "status:"

// Store is a Redis-backed cache of receipt -> status HTML with an
// in-memory fallback. When Redis is unreachable the store degrades to
// the process-local map instead of failing lookups.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry

	memMutex sync.RWMutex
	memCache map[string]memItem
}

type memItem struct {
	html      string
	expiresAt time.Time
}

// New connects to Redis when an address is configured. A failed ping is
// logged and the store runs memory-only; caching is an optimization,
// never a hard dependency.
func New(ctx context.Context, cfg config.CacheConfig, log *logrus.Entry) *Store {
	s := &Store{
		ttl:      cfg.TTL,
		log:      log,
		memCache: make(map[string]memItem),
	}

	if cfg.Addr == "" {
		log.Debug("No Redis address configured, using memory cache")
		return s
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable, using memory cache")
		_ = client.Close()
		return s
	}

	log.WithField("addr", cfg.Addr).Info("Redis cache connected")
	s.client = client
	return s
}

// Get returns the cached status HTML for a receipt, if present and
// fresh.
func (s *Store) Get(ctx context.Context, receipt string) (string, bool) {
	key := keyPrefix + receipt

	if s.client != nil {
		val, err := s.client.Get(ctx, key).Result()
		if err == nil {
			s.log.WithField("receipt", receipt).Debug("Cache hit (Redis)")
			return val, true
		}
		if err != redis.Nil {
			s.log.WithField("receipt", receipt).WithError(err).
				Warn("Redis get failed, falling back to memory cache")
		}
	}

	s.memMutex.RLock()
	item, ok := s.memCache[key]
	s.memMutex.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(item.expiresAt) {
		s.memMutex.Lock()
		delete(s.memCache, key)
		s.memMutex.Unlock()
		return "", false
	}

	s.log.WithField("receipt", receipt).Debug("Cache hit (memory)")
	return item.html, true
}

// Set stores the status HTML for a receipt under the configured TTL.
func (s *Store) Set(ctx context.Context, receipt, html string) {
	key := keyPrefix + receipt

	if s.client != nil {
		err := s.client.Set(ctx, key, html, s.ttl).Err()
		if err == nil {
			return
		}
		s.log.WithField("receipt", receipt).WithError(err).
			Warn("Redis set failed, falling back to memory cache")
	}

	s.memMutex.Lock()
	s.memCache[key] = memItem{html: html, expiresAt: time.Now().Add(s.ttl)}
	s.memMutex.Unlock()
}

// Close releases the Redis connection, if any.
func (s *Store) Close() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}
