package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/lead-router/internal/domain"
)

// IngestionRecord marks an external reference as delivered. Only the lead id is
// kept: assignment state changes after ingestion and is read back from the leads table.
type IngestionRecord struct {
	LeadID string `json:"lead_id"`
}

// IngestionCache is a fast-path lookup for redelivered webhooks. The leads table
// stays authoritative; a miss or an unavailable cache only costs a database read.
type IngestionCache interface {
	Get(ctx context.Context, source domain.LeadSource, externalRef string) (*IngestionRecord, error)
	Put(ctx context.Context, source domain.LeadSource, externalRef string, record IngestionRecord) error
}

type redisIngestionCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisIngestionCache stores records under <namespace>:ingest:<source>:<ref>.
func NewRedisIngestionCache(client *redis.Client, namespace string, ttl time.Duration) IngestionCache {
	if namespace == "" {
		namespace = "lead-router"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisIngestionCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *redisIngestionCache) key(source domain.LeadSource, ref string) string {
	return fmt.Sprintf("%s:ingest:%s:%s", c.namespace, source, ref)
}

func (c *redisIngestionCache) Get(ctx context.Context, source domain.LeadSource, externalRef string) (*IngestionRecord, error) {
	raw, err := c.client.Get(ctx, c.key(source, externalRef)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record IngestionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode ingestion record: %w", err)
	}
	return &record, nil
}

func (c *redisIngestionCache) Put(ctx context.Context, source domain.LeadSource, externalRef string, record IngestionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(source, externalRef), raw, c.ttl).Err()
}
