package server

import (
	"context"

	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/storage"
)

// cachingStore writes through to Postgres and refreshes the Redis cache with
// each completed intelligence store. Cache failures are non-fatal.
type cachingStore struct {
	Store *storage.Store
	Cache *storage.Cache
}

func (s *cachingStore) SaveRunStatus(ctx context.Context, status research.RunStatus) error {
	return s.Store.SaveRunStatus(ctx, status)
}

func (s *cachingStore) SaveIntelligenceStore(ctx context.Context, store research.IntelligenceStore) error {
	if err := s.Store.SaveIntelligenceStore(ctx, store); err != nil {
		return err
	}
	if s.Cache != nil {
		_ = s.Cache.PutStore(ctx, store)
	}
	return nil
}
