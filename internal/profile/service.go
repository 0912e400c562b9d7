package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

const serviceName = "profile"

// Service exposes the customer profile endpoints. Reads are cached; every
// mutation invalidates the service's cache prefix.
type Service interface {
	Get(ctx context.Context) (*types.Profile, error)
	Update(ctx context.Context, input UpdateInput) (*types.Profile, error)
	ChangePassword(ctx context.Context, input PasswordInput) error
	Email(ctx context.Context) (string, error)
}

type service struct {
	api    *api.Client
	cache  cache.Store
	logger *logger.Logger
}

// NewService builds the profile service.
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

// UpdateInput is the editable subset of the profile.
type UpdateInput struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

func (s *service) Get(ctx context.Context) (*types.Profile, error) {
	key := cache.Key(serviceName, "get")
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out types.Profile
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	var out types.Profile
	if err := s.api.AuthGet(ctx, "profile.get", "/profile", &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*types.Profile, error) {
	var updated types.Profile
	if err := s.api.AuthPut(ctx, "profile.update", "/profile", input, &updated); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &updated, nil
}

// ChangePassword validates locally before touching the network. The backend
// re-validates; the local pass exists to fail fast with field errors.
func (s *service) ChangePassword(ctx context.Context, input PasswordInput) error {
	if fields := ValidatePassword(input); len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "password change validation failed").WithDetails(fields)
	}
	return s.api.AuthPost(ctx, "profile.change_password", "/profile/password", input, nil)
}

// Email returns the customer email for confirmation stitching.
func (s *service) Email(ctx context.Context) (string, error) {
	prof, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return prof.Email, nil
}

func (s *service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cache.Prefix(serviceName)); err != nil {
		s.logger.Warn(ctx, "profile cache invalidation failed")
	}
}
