package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"boutique/backend/internal/cache"
	"boutique/backend/internal/domain"
)

// Source is the read side the engine aggregates from.
type Source interface {
	GetDashboardMetrics(ctx context.Context, storeID domain.Store, since time.Time, lowStockThreshold int) (domain.DashboardMetrics, error)
	GetTopProducts(ctx context.Context, storeID domain.Store, limit int) ([]domain.TopProduct, error)
}

type Engine struct {
	source            Source
	cache             cache.DashboardCache
	cacheTTL          time.Duration
	lowStockThreshold int
	topLimit          int
	now               func() time.Time
	logger            *zap.Logger
}

func NewEngine(source Source, cacheStore cache.DashboardCache, cacheTTL time.Duration, lowStockThreshold int, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDashboardCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		source:            source,
		cache:             cacheStore,
		cacheTTL:          cacheTTL,
		lowStockThreshold: lowStockThreshold,
		topLimit:          5,
		now:               time.Now,
		logger:            logger.Named("dashboard"),
	}
}

// Build returns the cached view for storeID or computes and caches a fresh one.
// Cache failures degrade to a direct computation.
func (e *Engine) Build(ctx context.Context, storeID domain.Store) (domain.DashboardResponse, error) {
	if cached, ok, err := e.cache.Get(ctx, storeID); err == nil && ok {
		cached.Cached = true
		return *cached, nil
	} else if err != nil {
		e.logger.Warn("dashboard cache read failed", zap.String("store", string(storeID)), zap.Error(err))
	}

	now := e.now()
	metrics, err := e.source.GetDashboardMetrics(ctx, storeID, startOfDay(now), e.lowStockThreshold)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	metrics.TodaySales = metrics.TodaySales.Round(2)

	top, err := e.source.GetTopProducts(ctx, storeID, e.topLimit)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	if top == nil {
		top = []domain.TopProduct{}
	}

	resp := domain.DashboardResponse{
		Store:       storeID,
		Metrics:     metrics,
		TopProducts: top,
		GeneratedAt: now.UTC(),
	}
	if err := e.cache.Set(ctx, storeID, &resp, e.cacheTTL); err != nil {
		e.logger.Warn("dashboard cache write failed", zap.String("store", string(storeID)), zap.Error(err))
	}
	return resp, nil
}

// Invalidate drops the cached view so the next Build recomputes it.
func (e *Engine) Invalidate(ctx context.Context, storeID domain.Store) {
	if err := e.cache.Invalidate(ctx, storeID); err != nil {
		e.logger.Warn("dashboard cache invalidate failed", zap.String("store", string(storeID)), zap.Error(err))
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
