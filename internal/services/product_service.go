package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"katalog/internal/metrics"
	"katalog/internal/models"
	"katalog/internal/repositories"
	"katalog/internal/validation"

	"go.uber.org/zap"
)

// AvailabilityPolicy decides where is_available comes from.
type AvailabilityPolicy string

const (
	// AvailabilityDirect stores a client-settable flag, true by default.
	AvailabilityDirect AvailabilityPolicy = "direct"
	// AvailabilityDerived computes the flag as stock > 0 on every read.
	AvailabilityDerived AvailabilityPolicy = "derived"
)

// ParseAvailabilityPolicy validates a configured policy name.
func ParseAvailabilityPolicy(s string) (AvailabilityPolicy, error) {
	switch p := AvailabilityPolicy(s); p {
	case AvailabilityDirect, AvailabilityDerived:
		return p, nil
	}
	return "", fmt.Errorf("unknown availability policy %q", s)
}

var (
	ErrInvalidQuantity     = errors.New("quantity cannot be negative")
	ErrAvailabilityDerived = errors.New("is_available is derived from stock")
)

// ListOptions pages and filters a product listing.
type ListOptions struct {
	Search string
	Offset int
	Limit  int
}

// Products is the set of product operations exposed over HTTP.
type Products interface {
	List(ctx context.Context, opts ListOptions) ([]models.Product, int64, error)
	ListAvailable(ctx context.Context, opts ListOptions) ([]models.Product, int64, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, in models.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id string, in models.ProductInput, partial bool) (*models.Product, error)
	Delete(ctx context.Context, id string) error
	SetAvailability(ctx context.Context, id string, available bool) (*models.Product, error)
	MarkUnavailable(ctx context.Context, id string) (*models.Product, error)
	DecreaseStock(ctx context.Context, id string, quantity int) (*models.Product, bool, error)
	IncreaseStock(ctx context.Context, id string, quantity int) (*models.Product, error)
	AvailabilityPolicy() AvailabilityPolicy
}

// ProductServiceConfig groups ProductService settings.
type ProductServiceConfig struct {
	Availability AvailabilityPolicy
	Ordering     repositories.Ordering
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo      repositories.ProductRepository
	validator *validation.Validator
	publisher EventPublisher
	logger    *zap.Logger
	locks     *keyedMutex
	policy    AvailabilityPolicy
	ordering  repositories.Ordering
	now       func() time.Time
}

// NewProductService creates a new ProductService. A nil publisher drops
// events and a nil logger discards logs.
func NewProductService(repo repositories.ProductRepository, cfg ProductServiceConfig, publisher EventPublisher, logger *zap.Logger) *ProductService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Availability == "" {
		cfg.Availability = AvailabilityDirect
	}
	if cfg.Ordering == "" {
		cfg.Ordering = repositories.OrderByName
	}
	return &ProductService{
		repo:      repo,
		validator: validation.New(),
		publisher: publisher,
		logger:    logger,
		locks:     newKeyedMutex(),
		policy:    cfg.Availability,
		ordering:  cfg.Ordering,
		now:       time.Now,
	}
}

// AvailabilityPolicy returns the configured policy.
func (s *ProductService) AvailabilityPolicy() AvailabilityPolicy {
	return s.policy
}

// List returns a page of all products in default order.
func (s *ProductService) List(ctx context.Context, opts ListOptions) ([]models.Product, int64, error) {
	return s.list(ctx, repositories.ListFilter{Search: opts.Search, Offset: opts.Offset, Limit: opts.Limit})
}

// ListAvailable returns a page of the products that are currently available.
func (s *ProductService) ListAvailable(ctx context.Context, opts ListOptions) ([]models.Product, int64, error) {
	filter := repositories.ListFilter{Search: opts.Search, Offset: opts.Offset, Limit: opts.Limit}
	if s.policy == AvailabilityDerived {
		filter.InStockOnly = true
	} else {
		filter.AvailableOnly = true
	}
	return s.list(ctx, filter)
}

func (s *ProductService) list(ctx context.Context, filter repositories.ListFilter) ([]models.Product, int64, error) {
	filter.Order = s.ordering
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		s.present(&products[i])
	}
	return products, total, nil
}

// Get retrieves a single product by its ID.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(product), nil
}

// Create validates in and stores a new product.
func (s *ProductService) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	in.TrimName()
	errs := s.validateInput(in, true)
	if in.Name != nil && len(errs["name"]) == 0 {
		if err := s.checkNameFree(ctx, *in.Name, ""); err != nil {
			if !errors.Is(err, errNameTaken) {
				return nil, err
			}
			errs.Add("name", validation.MsgNameTaken)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	product := &models.Product{IsAvailable: true}
	if s.policy == AvailabilityDerived {
		in.IsAvailable = nil
	}
	in.Apply(product)
	now := s.clock()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.repo.Create(ctx, product); err != nil {
		if errors.Is(err, repositories.ErrDuplicateName) {
			return nil, validation.NewFieldError("name", validation.MsgNameTaken)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("name", product.Name))
	s.present(product)
	s.publish(ctx, EventProductCreated, product)
	return product, nil
}

// Update applies in to an existing product. A full update requires every
// required field; a partial one touches only the supplied fields.
func (s *ProductService) Update(ctx context.Context, id string, in models.ProductInput, partial bool) (*models.Product, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	in.TrimName()
	errs := s.validateInput(in, !partial)
	if in.Name != nil && *in.Name != product.Name && len(errs["name"]) == 0 {
		if err := s.checkNameFree(ctx, *in.Name, id); err != nil {
			if !errors.Is(err, errNameTaken) {
				return nil, err
			}
			errs.Add("name", validation.MsgNameTaken)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if s.policy == AvailabilityDerived {
		in.IsAvailable = nil
	}
	in.Apply(product)
	product.UpdatedAt = s.touch(product.UpdatedAt)

	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, repositories.ErrDuplicateName) {
			return nil, validation.NewFieldError("name", validation.MsgNameTaken)
		}
		return nil, err
	}

	s.present(product)
	s.publish(ctx, EventProductUpdated, product)
	return product, nil
}

// Delete permanently removes a product.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	s.publish(ctx, EventProductDeleted, &models.Product{ID: id})
	return nil
}

// SetAvailability stores a new availability flag.
func (s *ProductService) SetAvailability(ctx context.Context, id string, available bool) (*models.Product, error) {
	return s.writeAvailability(ctx, id, available, "set_availability")
}

// MarkUnavailable clears the availability flag. Repeating it is harmless.
func (s *ProductService) MarkUnavailable(ctx context.Context, id string) (*models.Product, error) {
	return s.writeAvailability(ctx, id, false, "mark_unavailable")
}

func (s *ProductService) writeAvailability(ctx context.Context, id string, available bool, source string) (*models.Product, error) {
	if s.policy == AvailabilityDerived {
		return nil, ErrAvailabilityDerived
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	product.IsAvailable = available
	product.UpdatedAt = s.touch(product.UpdatedAt)
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}

	metrics.AvailabilityChanges.WithLabelValues(source).Inc()
	s.present(product)
	s.publish(ctx, EventAvailabilityChanged, product)
	return product, nil
}

// DecreaseStock removes quantity units. When fewer are left the product is
// returned unchanged with ok=false.
func (s *ProductService) DecreaseStock(ctx context.Context, id string, quantity int) (*models.Product, bool, error) {
	if quantity < 0 {
		return nil, false, ErrInvalidQuantity
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	product, err := s.repo.AdjustStock(ctx, id, -quantity, s.touch(current.UpdatedAt))
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientStock) {
			metrics.StockMutations.WithLabelValues("decrease", metrics.ResultRejected).Inc()
			s.logger.Debug("stock decrease refused",
				zap.String("product_id", id),
				zap.Int("quantity", quantity),
				zap.Int("stock", current.Stock),
			)
			return s.present(current), false, nil
		}
		metrics.StockMutations.WithLabelValues("decrease", metrics.ResultError).Inc()
		return nil, false, err
	}

	metrics.StockMutations.WithLabelValues("decrease", metrics.ResultOK).Inc()
	s.present(product)
	s.publish(ctx, EventStockChanged, product)
	return product, true, nil
}

// IncreaseStock adds quantity units.
func (s *ProductService) IncreaseStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity > models.MaxStock {
		return nil, fmt.Errorf("cannot add %d to %s: %w", quantity, id, repositories.ErrStockLimit)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product, err := s.repo.AdjustStock(ctx, id, quantity, s.touch(current.UpdatedAt))
	if err != nil {
		if errors.Is(err, repositories.ErrStockLimit) {
			metrics.StockMutations.WithLabelValues("increase", metrics.ResultRejected).Inc()
		} else {
			metrics.StockMutations.WithLabelValues("increase", metrics.ResultError).Inc()
		}
		return nil, err
	}

	metrics.StockMutations.WithLabelValues("increase", metrics.ResultOK).Inc()
	s.present(product)
	s.publish(ctx, EventStockChanged, product)
	return product, nil
}

var errNameTaken = errors.New("name taken")

func (s *ProductService) checkNameFree(ctx context.Context, name, exceptID string) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != exceptID {
		return errNameTaken
	}
	return nil
}

// validateInput collects every field error in one pass, starting with the
// values that failed to decode.
func (s *ProductService) validateInput(in models.ProductInput, full bool) validation.Errors {
	errs := validation.Errors{}
	errs.Merge(in.DecodeErrors)

	if in.Price != nil {
		if msg, ok := validation.DecimalPrecision(*in.Price, models.PriceMaxDigits, models.PriceDecimalPlaces); !ok {
			errs.Add("price", msg)
			in.Price = nil
		}
	}

	if err := s.validator.Struct(in); err != nil {
		if fe, ok := validation.AsErrors(err); ok {
			errs.Merge(fe)
		} else {
			errs.Add("non_field_errors", err.Error())
		}
	}
	if full {
		if in.Name == nil && len(errs["name"]) == 0 {
			errs.Add("name", validation.MsgRequired)
		}
		if in.Price == nil && len(errs["price"]) == 0 {
			errs.Add("price", validation.MsgRequired)
		}
	}
	return errs
}

// present fills in values computed at read time.
func (s *ProductService) present(p *models.Product) *models.Product {
	if s.policy == AvailabilityDerived {
		p.IsAvailable = p.IsInStock()
	}
	return p
}

func (s *ProductService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// touch returns a timestamp strictly after prev.
func (s *ProductService) touch(prev time.Time) time.Time {
	t := s.clock()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func (s *ProductService) publish(ctx context.Context, routingKey string, product *models.Product) {
	body, err := json.Marshal(ProductEvent{
		Type:       routingKey,
		ProductID:  product.ID,
		Product:    product,
		OccurredAt: s.clock(),
	})
	if err != nil {
		s.logger.Warn("failed to encode product event", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, routingKey, body); err != nil {
		metrics.EventsPublished.WithLabelValues(routingKey, metrics.ResultError).Inc()
		s.logger.Warn("failed to publish product event",
			zap.String("routing_key", routingKey),
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues(routingKey, metrics.ResultOK).Inc()
}
