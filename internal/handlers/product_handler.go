package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"katalog/internal/authz"
	"katalog/internal/middleware"
	"katalog/internal/models"
	"katalog/internal/services"
	"katalog/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductHandlerConfig sets listing defaults.
type ProductHandlerConfig struct {
	PageSize    int
	MaxPageSize int
}

// ProductHandler handles HTTP requests related to products.
type ProductHandler struct {
	productService services.Products
	authorizer     authz.Authorizer
	logger         *zap.Logger
	pageSize       int
	maxPageSize    int
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(productService services.Products, authorizer authz.Authorizer, cfg ProductHandlerConfig, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &ProductHandler{
		productService: productService,
		authorizer:     authorizer,
		logger:         logger,
		pageSize:       cfg.PageSize,
		maxPageSize:    cfg.MaxPageSize,
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleList)
	productRoutes.Get("/available", h.HandleListAvailable)
	productRoutes.Post("/", h.HandleCreate)
	productRoutes.Get("/:id", h.HandleGet)
	productRoutes.Put("/:id", h.HandleUpdate)
	productRoutes.Patch("/:id", h.HandlePartialUpdate)
	productRoutes.Delete("/:id", h.HandleDelete)
	productRoutes.Post("/:id/set-availability", h.HandleSetAvailability)
	productRoutes.Post("/:id/mark-unavailable", h.HandleMarkUnavailable)
	productRoutes.Post("/:id/adjust-stock", h.HandleAdjustStock)
}

func (h *ProductHandler) authorize(c *fiber.Ctx, op authz.Operation) error {
	return authz.Check(h.authorizer, op, middleware.CallerFrom(c))
}

// HandleList returns a page of products.
func (h *ProductHandler) HandleList(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpList); err != nil {
		return respondError(c, h.logger, err)
	}
	return h.list(c, h.productService.List)
}

// HandleListAvailable returns a page of the products currently available.
func (h *ProductHandler) HandleListAvailable(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpListAvailable); err != nil {
		return respondError(c, h.logger, err)
	}
	return h.list(c, h.productService.ListAvailable)
}

type listFunc func(ctx context.Context, opts services.ListOptions) ([]models.Product, int64, error)

func (h *ProductHandler) list(c *fiber.Ctx, fetch listFunc) error {
	req, err := parsePage(c, h.pageSize, h.maxPageSize)
	if err != nil {
		return message(c, fiber.StatusNotFound, msgInvalidPage)
	}

	products, total, err := fetch(c.UserContext(), services.ListOptions{
		Search: strings.TrimSpace(c.Query("search")),
		Offset: req.offset(),
		Limit:  req.PerPage,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	page, err := newPage(req, total, toProductResponses(products))
	if err != nil {
		return message(c, fiber.StatusNotFound, msgInvalidPage)
	}
	return c.JSON(page)
}

// HandleGet returns one product.
func (h *ProductHandler) HandleGet(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpRetrieve); err != nil {
		return respondError(c, h.logger, err)
	}
	product, err := h.productService.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toProductResponse(product))
}

// HandleCreate creates a product from the request body.
func (h *ProductHandler) HandleCreate(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpCreate); err != nil {
		return respondError(c, h.logger, err)
	}

	in, err := decodeProductInput(c.Body())
	if err != nil {
		h.logger.Debug("invalid product body", zap.Error(err))
		return bodyError(c, err)
	}

	product, err := h.productService.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toProductResponse(product))
}

// HandleUpdate replaces the writable fields of a product.
func (h *ProductHandler) HandleUpdate(c *fiber.Ctx) error {
	return h.update(c, false)
}

// HandlePartialUpdate changes only the supplied fields of a product.
func (h *ProductHandler) HandlePartialUpdate(c *fiber.Ctx) error {
	return h.update(c, true)
}

func (h *ProductHandler) update(c *fiber.Ctx, partial bool) error {
	if err := h.authorize(c, authz.OpUpdate); err != nil {
		return respondError(c, h.logger, err)
	}

	in, err := decodeProductInput(c.Body())
	if err != nil {
		h.logger.Debug("invalid product body", zap.Error(err))
		return bodyError(c, err)
	}

	product, err := h.productService.Update(c.UserContext(), c.Params("id"), in, partial)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toProductResponse(product))
}

// HandleDelete removes a product.
func (h *ProductHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpDelete); err != nil {
		return respondError(c, h.logger, err)
	}
	if err := h.productService.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleSetAvailability stores the boolean sent as is_available.
func (h *ProductHandler) HandleSetAvailability(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpSetAvailability); err != nil {
		return respondError(c, h.logger, err)
	}

	body, err := decodeObject(c.Body())
	if err != nil {
		return message(c, fiber.StatusBadRequest, msgAvailabilityBool)
	}
	var available bool
	raw, ok := body["is_available"]
	if !ok || isNull(raw) || json.Unmarshal(raw, &available) != nil {
		return message(c, fiber.StatusBadRequest, msgAvailabilityBool)
	}

	product, err := h.productService.SetAvailability(c.UserContext(), c.Params("id"), available)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toProductResponse(product))
}

// HandleMarkUnavailable clears the availability flag.
func (h *ProductHandler) HandleMarkUnavailable(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpMarkUnavailable); err != nil {
		return respondError(c, h.logger, err)
	}
	product, err := h.productService.MarkUnavailable(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(toProductResponse(product))
}

// HandleAdjustStock increases or decreases stock by a quantity.
// Body: {"action": "increase"|"decrease", "quantity": n}. Defaults are
// "increase" and 0.
func (h *ProductHandler) HandleAdjustStock(c *fiber.Ctx) error {
	if err := h.authorize(c, authz.OpAdjustStock); err != nil {
		return respondError(c, h.logger, err)
	}

	body, err := decodeObject(c.Body())
	if err != nil {
		return bodyError(c, err)
	}

	quantity := 0
	if raw, ok := body["quantity"]; ok {
		q, err := parseQuantity(raw)
		if err != nil {
			return message(c, fiber.StatusBadRequest, msgQuantityInteger)
		}
		quantity = q
	}
	if quantity < 0 {
		return message(c, fiber.StatusBadRequest, msgQuantityNegative)
	}

	action := "increase"
	if raw, ok := body["action"]; ok {
		if isNull(raw) || json.Unmarshal(raw, &action) != nil {
			return message(c, fiber.StatusBadRequest, msgInvalidAction)
		}
	}

	ctx, id := c.UserContext(), c.Params("id")
	var product *models.Product
	switch action {
	case "increase":
		product, err = h.productService.IncreaseStock(ctx, id, quantity)
	case "decrease":
		var ok bool
		product, ok, err = h.productService.DecreaseStock(ctx, id, quantity)
		if err == nil && !ok {
			return message(c, fiber.StatusBadRequest, msgNotEnoughStock)
		}
	default:
		return message(c, fiber.StatusBadRequest, msgInvalidAction)
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(fiber.Map{
		"status":  fmt.Sprintf("Stock %sd by %d.", action, quantity),
		"product": toProductResponse(product),
	})
}

// decodeObject reads a JSON object body. An empty body is an empty object.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	body := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeProductInput reads a product body field by field. Values of the wrong
// type are recorded in DecodeErrors so they are reported together with the
// validation errors. Only a body that is not a JSON object is an error.
func decodeProductInput(data []byte) (models.ProductInput, error) {
	var in models.ProductInput
	body, err := decodeObject(data)
	if err != nil {
		return in, err
	}

	errs := validation.Errors{}
	for field, raw := range body {
		if isNull(raw) {
			switch field {
			case "name", "description", "price", "stock", "is_available":
				errs.Add(field, validation.MsgNull)
			}
			continue
		}

		switch field {
		case "name", "description":
			var v string
			if json.Unmarshal(raw, &v) != nil {
				errs.Add(field, validation.MsgNotString)
				continue
			}
			if field == "name" {
				in.Name = &v
			} else {
				in.Description = &v
			}
		case "price":
			var v decimal.Decimal
			if json.Unmarshal(raw, &v) != nil {
				errs.Add(field, validation.MsgNotNumber)
				continue
			}
			in.Price = &v
		case "stock":
			n, err := parseInteger(raw)
			if err != nil || n > math.MaxInt || n < math.MinInt {
				errs.Add(field, validation.MsgNotInteger)
				continue
			}
			v := int(n)
			in.Stock = &v
		case "is_available":
			var v bool
			if json.Unmarshal(raw, &v) != nil {
				errs.Add(field, validation.MsgNotBoolean)
				continue
			}
			in.IsAvailable = &v
		}
	}
	if len(errs) > 0 {
		in.DecodeErrors = errs
	}
	return in, nil
}

var errNotInteger = errors.New("not an integer")

// parseInteger accepts an integral JSON number or a string holding one.
func parseInteger(raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, errNotInteger
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %v", errNotInteger, err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return 0, errNotInteger
	}
	return int64(f), nil
}

// parseQuantity is parseInteger limited to the stock range.
func parseQuantity(raw json.RawMessage) (int, error) {
	n, err := parseInteger(raw)
	if err != nil {
		return 0, err
	}
	if n > models.MaxStock || n < -models.MaxStock {
		return 0, fmt.Errorf("quantity %d out of range", n)
	}
	return int(n), nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
