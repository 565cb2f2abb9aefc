package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"katalog/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedProductService serves single-product reads from redis and evicts the
// entry after every mutation of that product. Listings always go to next.
// A miss fills the entry while holding the product's lock, and mutations
// evict under the same lock, so a fill never stores a superseded snapshot.
type CachedProductService struct {
	next        Products
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
	locks       *keyedMutex
}

// NewCachedProductService wraps next with a read-through cache.
func NewCachedProductService(next Products, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
		locks:       newKeyedMutex(),
	}
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func (s *CachedProductService) AvailabilityPolicy() AvailabilityPolicy {
	return s.next.AvailabilityPolicy()
}

func (s *CachedProductService) List(ctx context.Context, opts ListOptions) ([]models.Product, int64, error) {
	return s.next.List(ctx, opts)
}

func (s *CachedProductService) ListAvailable(ctx context.Context, opts ListOptions) ([]models.Product, int64, error) {
	return s.next.ListAvailable(ctx, opts)
}

func (s *CachedProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	key := productKey(id)
	if product, ok := s.lookup(ctx, key); ok {
		return product, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	// Another reader may have filled the entry while we waited.
	if product, ok := s.lookup(ctx, key); ok {
		return product, nil
	}

	product, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return product, nil
}

func (s *CachedProductService) lookup(ctx context.Context, key string) (*models.Product, bool) {
	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var product models.Product
	if err := json.Unmarshal(val, &product); err != nil {
		s.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		return nil, false
	}
	return &product, true
}

func (s *CachedProductService) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	return s.next.Create(ctx, in)
}

func (s *CachedProductService) Update(ctx context.Context, id string, in models.ProductInput, partial bool) (*models.Product, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.next.Update(ctx, id, in, partial)
	s.evict(ctx, id)
	return product, err
}

func (s *CachedProductService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.next.Delete(ctx, id)
	s.evict(ctx, id)
	return err
}

func (s *CachedProductService) SetAvailability(ctx context.Context, id string, available bool) (*models.Product, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.next.SetAvailability(ctx, id, available)
	s.evict(ctx, id)
	return product, err
}

func (s *CachedProductService) MarkUnavailable(ctx context.Context, id string) (*models.Product, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.next.MarkUnavailable(ctx, id)
	s.evict(ctx, id)
	return product, err
}

func (s *CachedProductService) DecreaseStock(ctx context.Context, id string, quantity int) (*models.Product, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, ok, err := s.next.DecreaseStock(ctx, id, quantity)
	s.evict(ctx, id)
	return product, ok, err
}

func (s *CachedProductService) IncreaseStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.next.IncreaseStock(ctx, id, quantity)
	s.evict(ctx, id)
	return product, err
}

// evict runs even when the mutation failed; a spare miss costs one read.
func (s *CachedProductService) evict(ctx context.Context, id string) {
	if err := s.redisClient.Del(ctx, productKey(id)).Err(); err != nil {
		s.logger.Warn("cache eviction failed", zap.String("product_id", id), zap.Error(err))
	}
}
