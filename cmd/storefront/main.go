package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harborline/storefront/internal/addresses"
	"github.com/harborline/storefront/internal/analytics"
	"github.com/harborline/storefront/internal/cart"
	"github.com/harborline/storefront/internal/checkout"
	"github.com/harborline/storefront/internal/products"
	"github.com/harborline/storefront/internal/profile"
	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/auth"
	"github.com/harborline/storefront/pkg/cache"
	"github.com/harborline/storefront/pkg/config"
	"github.com/harborline/storefront/pkg/enums"
	"github.com/harborline/storefront/pkg/env"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/metrics"
	"github.com/harborline/storefront/pkg/pagination"
)

// storefront drives a full cart -> checkout -> confirmation flow against the
// configured backend. Point STOREFRONT_API_BASE_URL at cmd/mockapi for a
// self-contained demo.
func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "storefront flow failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	tokens := auth.NewTokenStore(cfg.JWT)
	requestMetrics := metrics.NewRequestMetrics(prometheus.DefaultRegisterer)

	client, err := api.NewClient(cfg.API, tokens, logg,
		api.WithMetrics(requestMetrics),
		api.WithRetry(cfg.API.MaxRetries, cfg.API.RetryBase),
	)
	if err != nil {
		return err
	}

	serviceCache, analyticsCache, closeCaches, err := buildCaches(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCaches()

	if err := login(ctx, client, tokens); err != nil {
		return err
	}

	cartSession, err := cart.NewSession(client, serviceCache, logg)
	if err != nil {
		return err
	}
	addrSvc, err := addresses.NewService(client, serviceCache, logg)
	if err != nil {
		return err
	}
	profSvc, err := profile.NewService(client, serviceCache, logg)
	if err != nil {
		return err
	}
	productSvc, err := products.NewService(client, serviceCache, logg)
	if err != nil {
		return err
	}
	flow, err := checkout.NewSession(client, cartSession, addrSvc, profSvc, logg)
	if err != nil {
		return err
	}

	page, err := productSvc.List(ctx, pagination.Params{Limit: 10})
	if err != nil {
		return fmt.Errorf("listing products: %w", err)
	}
	if len(page.Products) == 0 {
		return fmt.Errorf("backend has no products to buy")
	}

	for _, p := range page.Products[:min(2, len(page.Products))] {
		if _, err := cartSession.Add(ctx, p.ID, 1); err != nil {
			return fmt.Errorf("adding %s: %w", p.ID, err)
		}
		ctx := logg.WithField(ctx, "product_id", p.ID)
		logg.Info(ctx, "added to cart")
	}

	totals, err := cartSession.Totals(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "subtotal", totals.Subtotal.String()), "cart ready")

	if err := ensureBillingAddress(ctx, addrSvc); err != nil {
		return err
	}

	if err := flow.Proceed(ctx); err != nil {
		return fmt.Errorf("entering checkout: %w", err)
	}
	if err := flow.UseSavedBilling(ctx); err != nil {
		return fmt.Errorf("resolving billing: %w", err)
	}
	if err := flow.SetPaymentMethod(enums.PaymentMethodCard); err != nil {
		return err
	}
	flow.SetCustomerNotes("demo order placed by cmd/storefront")

	confirmation, err := flow.PlaceOrder(ctx)
	if err != nil {
		return fmt.Errorf("placing order: %w", err)
	}

	if flow.Reconcile(ctx) {
		logg.Warn(ctx, "server-side cart clear failed; local cart restored")
	}

	out, err := json.MarshalIndent(confirmation, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	analyticsSvc, err := analytics.NewService(client, analyticsCache, logg)
	if err != nil {
		return err
	}
	report, err := analyticsSvc.Run(ctx, analytics.Query{Metric: "revenue"})
	if err != nil {
		logg.Warn(ctx, "revenue query failed; backend may not serve analytics")
		return nil
	}
	logg.Info(logg.WithField(ctx, "revenue", report.Total.String()), "supplier revenue to date")
	return nil
}

func buildCaches(ctx context.Context, cfg *config.Config) (cache.Store, cache.Store, func(), error) {
	if cfg.Redis.URL == "" {
		return cache.NewMemory(cfg.Cache.TTL), cache.NewMemory(cfg.Cache.AnalyticsTTL), func() {}, nil
	}

	services, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bootstrapping redis cache: %w", err)
	}
	analytics, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache.AnalyticsTTL)
	if err != nil {
		_ = services.Close()
		return nil, nil, nil, fmt.Errorf("bootstrapping analytics cache: %w", err)
	}
	closeAll := func() {
		_ = services.Close()
		_ = analytics.Close()
	}
	return services, analytics, closeAll, nil
}

type loginResponse struct {
	Token string `json:"token"`
}

func login(ctx context.Context, client *api.Client, tokens *auth.TokenStore) error {
	email := env.Get("STOREFRONT_DEMO_EMAIL", "demo@harborline.example")
	var out loginResponse
	if err := client.Post(ctx, "auth.login", "/auth/login", map[string]string{"email": email}, &out); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	tokens.Set(out.Token)
	if _, ok := tokens.Token(); !ok {
		return fmt.Errorf("backend returned an unusable session token")
	}
	return nil
}

func ensureBillingAddress(ctx context.Context, addrSvc addresses.Service) error {
	_, err := addrSvc.Resolve(ctx, enums.AddressTypeBilling)
	if err == nil {
		return nil
	}
	if !errors.Is(err, addresses.ErrNoAddresses) {
		return err
	}

	_, err = addrSvc.Create(ctx, addresses.AddressInput{
		Type:         enums.AddressTypeBilling,
		FirstName:    "Demo",
		LastName:     "Buyer",
		AddressLine1: "1 Harbor Way",
		City:         "Oakland",
		State:        "CA",
		PostalCode:   "94607",
		Country:      "US",
		IsDefault:    true,
	})
	if err != nil {
		return fmt.Errorf("creating billing address: %w", err)
	}
	return nil
}
