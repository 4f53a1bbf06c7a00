// Package redisstore keeps each clinician's recently used medicines in a
// Redis list.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/homeopms/go-smartrx/internal/domain/recall"
)

const keyPrefix = "smartrx:used_medicines:"

// UsedMedicineStore implements recall.Store on Redis lists
type UsedMedicineStore struct {
	client redis.UniversalClient
}

// NewUsedMedicineStore creates a store over client
func NewUsedMedicineStore(client redis.UniversalClient) *UsedMedicineStore {
	return &UsedMedicineStore{client: client}
}

// NewClient parses a redis:// URL and pings the server
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func key(clinicianID string) string {
	return keyPrefix + clinicianID
}

// LoadUsedMedicines returns at most recall.MaxUsedMedicines names, most recent first
func (s *UsedMedicineStore) LoadUsedMedicines(ctx context.Context, clinicianID string) ([]string, error) {
	names, err := s.client.LRange(ctx, key(clinicianID), 0, recall.MaxUsedMedicines-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load used medicines: %w", err)
	}
	return names, nil
}

// SaveUsedMedicines replaces the list atomically
func (s *UsedMedicineStore) SaveUsedMedicines(ctx context.Context, clinicianID string, names []string) error {
	k := key(clinicianID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(names) > 0 {
			values := make([]interface{}, len(names))
			for i, n := range names {
				values[i] = n
			}
			pipe.RPush(ctx, k, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save used medicines: %w", err)
	}
	return nil
}
