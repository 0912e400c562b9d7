package addresses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	"github.com/harborline/storefront/pkg/enums"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

const serviceName = "addresses"

// ErrNoAddresses is returned by Resolve when the user has no saved address of
// the requested type. Callers offer inline creation instead of a selector.
var ErrNoAddresses = errors.New("no saved addresses of requested type")

// Service wraps the address endpoints with validation, read caching, and
// cache invalidation on mutation.
type Service interface {
	List(ctx context.Context, addrType enums.AddressType) ([]types.Address, error)
	Create(ctx context.Context, input AddressInput) (*types.Address, error)
	Update(ctx context.Context, id string, input AddressInput) (*types.Address, error)
	Delete(ctx context.Context, id string) error
	SetDefault(ctx context.Context, id string) error
	Resolve(ctx context.Context, addrType enums.AddressType) (*types.Address, error)
	Validate(input AddressInput) map[string]string
}

type service struct {
	api    *api.Client
	cache  cache.Store
	logger *logger.Logger
}

// NewService builds the address service.
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

func (s *service) List(ctx context.Context, addrType enums.AddressType) ([]types.Address, error) {
	if !addrType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid address type %q", addrType))
	}

	key := cache.Key(serviceName, "list", addrType)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out []types.Address
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	var out []types.Address
	path := "/addresses?type=" + url.QueryEscape(addrType.String())
	if err := s.api.AuthGet(ctx, "addresses.list", path, &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, input AddressInput) (*types.Address, error) {
	if fields := s.Validate(input); len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address validation failed").WithDetails(fields)
	}

	var created types.Address
	if err := s.api.AuthPost(ctx, "addresses.create", "/addresses", input, &created); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &created, nil
}

func (s *service) Update(ctx context.Context, id string, input AddressInput) (*types.Address, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if fields := s.Validate(input); len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address validation failed").WithDetails(fields)
	}

	var updated types.Address
	if err := s.api.AuthPut(ctx, "addresses.update", "/addresses/"+url.PathEscape(id), input, &updated); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &updated, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if err := s.api.AuthDelete(ctx, "addresses.delete", "/addresses/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// SetDefault promotes the address to the default of its type; the backend
// demotes the prior default. Calling it on the current default is a no-op.
func (s *service) SetDefault(ctx context.Context, id string) error {
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address id is required")
	}
	if err := s.api.AuthPost(ctx, "addresses.set_default", "/addresses/"+url.PathEscape(id)+"/default", nil, nil); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Resolve picks the one address of the requested type that checkout should
// use: the default when one exists, otherwise the first returned. List order
// is server-defined and not guaranteed stable, so the no-default pick is
// effectively non-deterministic.
func (s *service) Resolve(ctx context.Context, addrType enums.AddressType) (*types.Address, error) {
	list, err := s.List(ctx, addrType)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoAddresses
	}
	for i := range list {
		if list[i].IsDefault {
			return &list[i], nil
		}
	}
	return &list[0], nil
}

func (s *service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cache.Prefix(serviceName)); err != nil {
		s.logger.Warn(ctx, "address cache invalidation failed")
	}
}
