// Package cache provides a Redis read cache for ledger metadata
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
	"github.com/MoMannn/wanchain-example/internal/ledger"
)

var (
	// ErrCacheMiss indicates a cache miss
	ErrCacheMiss = errors.New("cache miss")
)

// NewClient creates a Redis client from configuration
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// LedgerCache caches ledger info and asset info by ledger address
type LedgerCache struct {
	client redis.Cmdable
	log    *zap.Logger
	prefix string
	ttl    time.Duration
}

// NewLedgerCache creates a new Redis-based ledger cache
func NewLedgerCache(client redis.Cmdable, log *zap.Logger, prefix string, ttl time.Duration) *LedgerCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerCache{
		client: client,
		log:    log,
		prefix: prefix,
		ttl:    ttl,
	}
}

// GetInfo retrieves cached ledger info
func (c *LedgerCache) GetInfo(ctx context.Context, ledgerID string) (*ledger.Info, error) {
	var info ledger.Info
	if err := c.get(ctx, c.infoKey(ledgerID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetInfo stores ledger info
func (c *LedgerCache) SetInfo(ctx context.Context, ledgerID string, info *ledger.Info) error {
	return c.set(ctx, c.infoKey(ledgerID), info)
}

// InvalidateLedger drops the cached info of a ledger
func (c *LedgerCache) InvalidateLedger(ctx context.Context, ledgerID string) error {
	return c.del(ctx, c.infoKey(ledgerID))
}

// GetAsset retrieves cached asset info
func (c *LedgerCache) GetAsset(ctx context.Context, ledgerID, assetID string) (*ledger.Asset, error) {
	var asset ledger.Asset
	if err := c.get(ctx, c.assetKey(ledgerID, assetID), &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// SetAsset stores asset info
func (c *LedgerCache) SetAsset(ctx context.Context, ledgerID string, asset *ledger.Asset) error {
	return c.set(ctx, c.assetKey(ledgerID, asset.ID), asset)
}

// Ping checks the Redis connection
func (c *LedgerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *LedgerCache) get(ctx context.Context, key string, dst interface{}) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		c.log.Error("failed to get from cache", zap.Error(err), zap.String("key", key))
		return err
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.log.Error("failed to unmarshal cached value", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}

func (c *LedgerCache) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Error("failed to marshal value for cache", zap.Error(err))
		return err
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Error("failed to set cache", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}

func (c *LedgerCache) del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Error("failed to invalidate cache", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}

// Key generation helpers

func (c *LedgerCache) infoKey(ledgerID string) string {
	return fmt.Sprintf("%s:ledger:%s:info", c.prefix, common.HexToAddress(ledgerID).Hex())
}

// assetKey uses the decimal form of the id so "007" and "7" share an entry
func (c *LedgerCache) assetKey(ledgerID, assetID string) string {
	if id, err := ledger.ParseAssetID(assetID); err == nil {
		assetID = id.String()
	}
	return fmt.Sprintf("%s:ledger:%s:asset:%s", c.prefix, common.HexToAddress(ledgerID).Hex(), assetID)
}
