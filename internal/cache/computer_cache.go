package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"cloudrent/api/internal/models"
	"cloudrent/api/internal/utils"
)

// ComputerCache is a read-through cache for single computer lookups.
// Entries are invalidated on every mutation; a short TTL bounds staleness
// if an invalidation is ever missed.
type ComputerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewComputerCache creates a ComputerCache with the given TTL.
func NewComputerCache(rdb *redis.Client, ttl time.Duration) *ComputerCache {
	return &ComputerCache{rdb: rdb, ttl: ttl}
}

func computerKey(id utils.SixID) string {
	return fmt.Sprintf("computer:%s", id.String())
}

// Get returns the cached computer, or (nil, nil) on a cache miss.
// Cache errors are logged and treated as misses.
func (c *ComputerCache) Get(ctx context.Context, id utils.SixID) (*models.Computer, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, computerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		log.Printf("WARN: computer cache get failed for %s: %v", id.String(), err)
		return nil, nil
	}
	var computer models.Computer
	if err := json.Unmarshal(data, &computer); err != nil {
		// Corrupt entry; drop it and fall through to the DB.
		c.Invalidate(ctx, id)
		return nil, nil
	}
	return &computer, nil
}

// Set stores the computer under its ID with the configured TTL.
func (c *ComputerCache) Set(ctx context.Context, computer *models.Computer) {
	if c == nil || c.rdb == nil || computer == nil {
		return
	}
	data, err := json.Marshal(computer)
	if err != nil {
		log.Printf("WARN: computer cache marshal failed for %s: %v", computer.ID.String(), err)
		return
	}
	if err := c.rdb.Set(ctx, computerKey(computer.ID), data, c.ttl).Err(); err != nil {
		log.Printf("WARN: computer cache set failed for %s: %v", computer.ID.String(), err)
	}
}

// Invalidate removes the cached entry for the given computer.
func (c *ComputerCache) Invalidate(ctx context.Context, id utils.SixID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, computerKey(id)).Err(); err != nil {
		log.Printf("WARN: computer cache invalidate failed for %s: %v", id.String(), err)
	}
}
