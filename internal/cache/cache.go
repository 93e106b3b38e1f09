package cache

import (
	"context"
	"time"

	"boutique/backend/internal/domain"
)

type DashboardCache interface {
	Get(ctx context.Context, storeID domain.Store) (*domain.DashboardResponse, bool, error)
	Set(ctx context.Context, storeID domain.Store, value *domain.DashboardResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, storeID domain.Store) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ domain.Store) (*domain.DashboardResponse, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ domain.Store, _ *domain.DashboardResponse, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context, _ domain.Store) error {
	return nil
}

func dashboardKey(storeID domain.Store) string {
	return "boutique:dashboard:" + string(storeID)
}
