package products

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/pagination"
	"github.com/harborline/storefront/pkg/types"
)

const serviceName = "products"

// Service covers the buyer-facing catalog plus the supplier inventory
// endpoints. Catalog reads and inventory reads are cached; inventory updates
// invalidate the service prefix.
type Service interface {
	List(ctx context.Context, params pagination.Params) (*types.ProductPage, error)
	Get(ctx context.Context, id string) (*types.Product, error)
	GetInventory(ctx context.Context, productID string) (*types.Inventory, error)
	UpdateInventory(ctx context.Context, productID string, input InventoryInput) (*types.Inventory, error)
}

// InventoryInput is the supplier inventory update payload.
type InventoryInput struct {
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Location          string `json:"location,omitempty"`
}

type service struct {
	api    *api.Client
	cache  cache.Store
	logger *logger.Logger
}

// NewService builds the product service.
func NewService(client *api.Client, store cache.Store, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{api: client, cache: store, logger: logg}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*types.ProductPage, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pagination cursor")
	}

	key := cache.Key(serviceName, "list", limit, params.Cursor)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out types.ProductPage
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if params.Cursor != "" {
		query.Set("cursor", params.Cursor)
	}

	var out types.ProductPage
	if err := s.api.Get(ctx, "products.list", "/products?"+query.Encode(), &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}

func (s *service) Get(ctx context.Context, id string) (*types.Product, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	key := cache.Key(serviceName, "get", id)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out types.Product
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	var out types.Product
	if err := s.api.Get(ctx, "products.get", "/products/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}

func (s *service) GetInventory(ctx context.Context, productID string) (*types.Inventory, error) {
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	key := cache.Key(serviceName, "inventory", productID)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out types.Inventory
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	var out types.Inventory
	if err := s.api.AuthGet(ctx, "products.get_inventory", "/products/"+url.PathEscape(productID)+"/inventory", &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}

func (s *service) UpdateInventory(ctx context.Context, productID string, input InventoryInput) (*types.Inventory, error) {
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.LowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock threshold cannot be negative")
	}

	var out types.Inventory
	path := "/products/" + url.PathEscape(productID) + "/inventory"
	if err := s.api.AuthPut(ctx, "products.update_inventory", path, input, &out); err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, cache.Prefix(serviceName)); err != nil {
		s.logger.Warn(ctx, "product cache invalidation failed")
	}
	return &out, nil
}
