package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
)

const serviceName = "onboarding"

// Application is the vendor onboarding submission.
type Application struct {
	BusinessName  string `json:"business_name" validate:"required"`
	ContactEmail  string `json:"contact_email" validate:"required,email"`
	ContactPhone  string `json:"contact_phone,omitempty" validate:"omitempty,min=10"`
	TaxID         string `json:"tax_id" validate:"required"`
	Description   string `json:"description,omitempty"`
	WebsiteURL    string `json:"website_url,omitempty" validate:"omitempty,url"`
	AcceptedTerms bool   `json:"accepted_terms" validate:"eq=true"`
}

// Status is the current state of a vendor's onboarding application.
type Status struct {
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Service submits and tracks vendor onboarding. Status reads are cached;
// submission invalidates so the next read reflects the new application.
type Service interface {
	Submit(ctx context.Context, app Application) (*Status, error)
	Status(ctx context.Context) (*Status, error)
	Validate(app Application) map[string]string
}

type service struct {
	api    *api.Client
	cache  cache.Store
	logger *logger.Logger
}

// NewService builds the onboarding service.
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

var appValidator = newAppValidator()

func newAppValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if tag == "-" || tag == "" {
			return field.Name
		}
		return tag
	})
	return v
}

// Validate returns a field-keyed error map; empty means the application is
// acceptable to submit.
func (s *service) Validate(app Application) map[string]string {
	fields := map[string]string{}

	if err := appValidator.Struct(app); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fe := range invalid {
				fields[fe.Field()] = messageFor(fe)
			}
		} else {
			fields["input"] = "invalid application"
		}
	}

	return fields
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "eq":
		return "terms must be accepted"
	default:
		return "invalid value"
	}
}

func (s *service) Submit(ctx context.Context, app Application) (*Status, error) {
	if fields := s.Validate(app); len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "onboarding validation failed").WithDetails(fields)
	}

	var out Status
	if err := s.api.AuthPost(ctx, "onboarding.submit", "/onboarding", app, &out); err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, cache.Prefix(serviceName)); err != nil {
		s.logger.Warn(ctx, "onboarding cache invalidation failed")
	}
	return &out, nil
}

func (s *service) Status(ctx context.Context) (*Status, error) {
	key := cache.Key(serviceName, "status")
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out Status
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	var out Status
	if err := s.api.AuthGet(ctx, "onboarding.status", "/onboarding/status", &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}
