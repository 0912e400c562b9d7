package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
)

const serviceName = "analytics"

// Query selects one supplier metric over a date range. The JSON form of the
// query is the cache key, so two structurally identical queries share an
// entry.
type Query struct {
	Metric      string    `json:"metric"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Granularity string    `json:"granularity,omitempty"`
}

// Point is one bucketed value in a report series.
type Point struct {
	Date  string          `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Report is the query result series plus its total.
type Report struct {
	Metric string          `json:"metric"`
	Points []Point         `json:"points"`
	Total  decimal.Decimal `json:"total"`
}

// Service runs read-only supplier analytics queries. Results change slowly,
// so they are cached longer than the other services.
type Service interface {
	Run(ctx context.Context, q Query) (*Report, error)
}

type service struct {
	api    *api.Client
	cache  cache.Store
	logger *logger.Logger
}

// NewService builds the analytics service. The store should carry the
// analytics TTL, not the default service TTL.
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

func (s *service) Run(ctx context.Context, q Query) (*Report, error) {
	if q.Metric == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "metric is required")
	}
	if !q.To.IsZero() && !q.From.IsZero() && q.To.Before(q.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date range end precedes start")
	}

	key := cache.Key(serviceName, "run", q)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var out Report
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	query := url.Values{}
	query.Set("metric", q.Metric)
	if !q.From.IsZero() {
		query.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		query.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Granularity != "" {
		query.Set("granularity", q.Granularity)
	}

	var out Report
	if err := s.api.AuthGet(ctx, "analytics.run", "/analytics?"+query.Encode(), &out); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, encoded)
	}
	return &out, nil
}
