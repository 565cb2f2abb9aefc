package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"katalog/internal/models"
	"katalog/internal/repositories"
	"katalog/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedService(t *testing.T) (*services.CachedProductService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := services.NewProductService(repositories.NewMemoryProductRepository(), services.ProductServiceConfig{}, nil, nil)
	return services.NewCachedProductService(inner, rdb, 0, nil), mr
}

func TestCachedProductService_ReadThrough(t *testing.T) {
	cached, mr := newCachedService(t)
	ctx := context.Background()

	product, err := cached.Create(ctx, laptopInput())
	require.NoError(t, err)
	key := "product:" + product.ID
	assert.False(t, mr.Exists(key))

	got, err := cached.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laptop", got.Name)
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key).Seconds(), 0.0)

	// Served from redis.
	again, err := cached.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
	assert.Equal(t, "1200.00", again.Price.StringFixed(2))
	assert.Equal(t, 10, again.Stock)
}

func TestCachedProductService_MutationsEvict(t *testing.T) {
	cached, mr := newCachedService(t)
	ctx := context.Background()

	product, err := cached.Create(ctx, laptopInput())
	require.NoError(t, err)
	key := "product:" + product.ID

	warm := func() {
		t.Helper()
		_, err := cached.Get(ctx, product.ID)
		require.NoError(t, err)
		require.True(t, mr.Exists(key))
	}

	warm()
	_, _, err = cached.DecreaseStock(ctx, product.ID, 4)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	got, err := cached.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)

	_, err = cached.IncreaseStock(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	warm()
	_, err = cached.MarkUnavailable(ctx, product.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	warm()
	_, err = cached.SetAvailability(ctx, product.ID, true)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	warm()
	_, err = cached.Update(ctx, product.ID, models.ProductInput{Stock: ptr(0)}, true)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	warm()
	require.NoError(t, cached.Delete(ctx, product.ID))
	assert.False(t, mr.Exists(key))

	_, err = cached.Get(ctx, product.ID)
	assert.True(t, errors.Is(err, repositories.ErrProductNotFound))
}

func TestCachedProductService_RedisDown(t *testing.T) {
	cached, mr := newCachedService(t)
	ctx := context.Background()

	product, err := cached.Create(ctx, laptopInput())
	require.NoError(t, err)

	mr.Close()

	got, err := cached.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, got.ID)

	_, err = cached.IncreaseStock(ctx, product.ID, 1)
	assert.NoError(t, err)
}

func TestCachedProductService_ListsBypassCache(t *testing.T) {
	cached, mr := newCachedService(t)
	ctx := context.Background()

	_, err := cached.Create(ctx, laptopInput())
	require.NoError(t, err)

	products, total, err := cached.List(ctx, services.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, products, 1)

	_, total, err = cached.ListAvailable(ctx, services.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	assert.Empty(t, mr.Keys())
	assert.Equal(t, services.AvailabilityDirect, cached.AvailabilityPolicy())
}

// gatedRepository holds the first GetByID after arm() until release is closed,
// after the stored product has already been read.
type gatedRepository struct {
	repositories.ProductRepository
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepository) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.entered = make(chan struct{})
	r.release = make(chan struct{})
}

func (r *gatedRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := r.ProductRepository.GetByID(ctx, id)

	r.mu.Lock()
	gated := r.armed
	r.armed = false
	r.mu.Unlock()

	if gated {
		close(r.entered)
		<-r.release
	}
	return product, err
}

func TestCachedProductService_FillDoesNotOutliveWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &gatedRepository{ProductRepository: repositories.NewMemoryProductRepository()}
	inner := services.NewProductService(repo, services.ProductServiceConfig{}, nil, nil)
	cached := services.NewCachedProductService(inner, rdb, 0, nil)
	ctx := context.Background()

	product, err := cached.Create(ctx, laptopInput())
	require.NoError(t, err)

	repo.arm()
	readDone := make(chan error, 1)
	go func() {
		_, err := cached.Get(ctx, product.ID)
		readDone <- err
	}()
	<-repo.entered

	writeDone := make(chan error, 1)
	go func() {
		_, err := cached.IncreaseStock(ctx, product.ID, 5)
		writeDone <- err
	}()

	// Give the write a chance to finish while the read still holds its
	// old snapshot.
	select {
	case err := <-writeDone:
		writeDone <- err
	case <-time.After(50 * time.Millisecond):
	}
	close(repo.release)

	require.NoError(t, <-readDone)
	require.NoError(t, <-writeDone)

	stored, err := repo.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, stored.Stock)

	got, err := cached.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Stock)
}
