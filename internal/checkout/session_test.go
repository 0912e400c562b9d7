package checkout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/harborline/storefront/internal/addresses"
	"github.com/harborline/storefront/internal/cart"
	"github.com/harborline/storefront/internal/profile"
	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	"github.com/harborline/storefront/pkg/config"
	"github.com/harborline/storefront/pkg/enums"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

type staticTokens struct{}

func (staticTokens) Token() (string, bool) { return "test-token", true }

// commerceBackend is a minimal in-memory peer covering every endpoint the
// checkout flow touches.
type commerceBackend struct {
	mu             sync.Mutex
	cart           types.Cart
	addresses      []types.Address
	lastOrderBody  map[string]json.RawMessage
	lastIdemKey    string
	orderCount     int
	failCartClear  bool
	clearAttempted chan struct{}
}

func newCommerceBackend() *commerceBackend {
	return &commerceBackend{
		cart:           types.Cart{ID: "cart-1"},
		clearAttempted: make(chan struct{}, 4),
	}
}

func (b *commerceBackend) addCartItem(item types.CartItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart.Items = append(b.cart.Items, item)
}

func (b *commerceBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/cart", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.cart)
	})
	r.Delete("/cart", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		fail := b.failCartClear
		if !fail {
			b.cart.Items = nil
		}
		b.mu.Unlock()
		select {
		case b.clearAttempted <- struct{}{}:
		default:
		}
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "cart service unavailable"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/addresses", func(w http.ResponseWriter, req *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		wantType := req.URL.Query().Get("type")
		out := []types.Address{}
		for _, a := range b.addresses {
			if string(a.Type) == wantType {
				out = append(out, a)
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/profile", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, types.Profile{ID: "u1", Email: "dana@example.com"})
	})
	r.Post("/orders", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		b.mu.Lock()
		b.orderCount++
		b.lastIdemKey = req.Header.Get("Idempotency-Key")
		b.lastOrderBody = map[string]json.RawMessage{}
		_ = json.Unmarshal(body, &b.lastOrderBody)
		subtotal := decimal.Zero
		for _, item := range b.cart.Items {
			subtotal = subtotal.Add(item.LineTotal())
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, types.OrderResponse{
			OrderID:  "ord-100",
			Subtotal: subtotal,
			Shipping: decimal.Zero,
			Total:    subtotal,
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestSession(t *testing.T, backend *commerceBackend) (*Session, *cart.Session) {
	t.Helper()

	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	client, err := api.NewClient(config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, staticTokens{}, logg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	cartSession, err := cart.NewSession(client, cache.NewMemory(5*time.Minute), logg)
	if err != nil {
		t.Fatalf("cart.NewSession: %v", err)
	}
	addrSvc, err := addresses.NewService(client, cache.NewMemory(5*time.Minute), logg)
	if err != nil {
		t.Fatalf("addresses.NewService: %v", err)
	}
	profSvc, err := profile.NewService(client, cache.NewMemory(5*time.Minute), logg)
	if err != nil {
		t.Fatalf("profile.NewService: %v", err)
	}

	session, err := NewSession(client, cartSession, addrSvc, profSvc, logg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session, cartSession
}

func seededBackend() *commerceBackend {
	b := newCommerceBackend()
	b.addCartItem(types.CartItem{ID: "line-1", ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromFloat(12.50), ProductName: "Hex Bolts"})
	b.addresses = []types.Address{
		{ID: "b1", Type: enums.AddressTypeBilling, FirstName: "Dana", LastName: "Reyes", AddressLine1: "14 Pier Rd", City: "Oakland", State: "CA", PostalCode: "94607", Country: "US", IsDefault: true},
		{ID: "s1", Type: enums.AddressTypeShipping, FirstName: "Dana", LastName: "Reyes", AddressLine1: "900 Depot Ave", City: "Oakland", State: "CA", PostalCode: "94607", Country: "US", IsDefault: true},
	}
	return b
}

func readyToPlace(t *testing.T, session *Session, cartSession *cart.Session) {
	t.Helper()
	ctx := context.Background()

	if _, err := cartSession.Cart(ctx); err != nil {
		t.Fatalf("prime cart view: %v", err)
	}
	if err := session.Proceed(ctx); err != nil {
		t.Fatalf("Proceed: %v", err)
	}
	if err := session.UseSavedBilling(ctx); err != nil {
		t.Fatalf("UseSavedBilling: %v", err)
	}
	if err := session.SetPaymentMethod(enums.PaymentMethodCard); err != nil {
		t.Fatalf("SetPaymentMethod: %v", err)
	}
}

func TestProceedGuardsEmptyCart(t *testing.T) {
	session, _ := newTestSession(t, newCommerceBackend())

	err := session.Proceed(context.Background())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
	if session.Step() != enums.StepCart {
		t.Fatalf("step must stay at cart, got %s", session.Step())
	}
}

func TestProceedWithItemsEntersCheckout(t *testing.T) {
	session, _ := newTestSession(t, seededBackend())

	if err := session.Proceed(context.Background()); err != nil {
		t.Fatalf("Proceed: %v", err)
	}
	if session.Step() != enums.StepCheckout {
		t.Fatalf("expected checkout step, got %s", session.Step())
	}
}

func TestBackNavigation(t *testing.T) {
	session, _ := newTestSession(t, seededBackend())
	ctx := context.Background()

	if err := session.Proceed(ctx); err != nil {
		t.Fatalf("Proceed: %v", err)
	}
	session.Back()
	if session.Step() != enums.StepCart {
		t.Fatalf("expected cart step after back, got %s", session.Step())
	}
	// Data survives a round trip through the cart step.
	if err := session.Proceed(ctx); err != nil {
		t.Fatalf("second Proceed: %v", err)
	}
}

func TestUseSavedBillingResolvesDefault(t *testing.T) {
	session, _ := newTestSession(t, seededBackend())

	if err := session.UseSavedBilling(context.Background()); err != nil {
		t.Fatalf("UseSavedBilling: %v", err)
	}
	if got := session.Data().BillingAddress.ID; got != "b1" {
		t.Fatalf("expected billing b1, got %q", got)
	}
}

func TestUseSavedBillingNoAddressesPassesSentinel(t *testing.T) {
	backend := seededBackend()
	backend.addresses = nil
	session, _ := newTestSession(t, backend)

	err := session.UseSavedBilling(context.Background())
	if err == nil || err != addresses.ErrNoAddresses {
		t.Fatalf("expected ErrNoAddresses, got %v", err)
	}
}

func TestUncheckingDifferentShippingRevertsToBilling(t *testing.T) {
	session, _ := newTestSession(t, seededBackend())
	ctx := context.Background()

	if err := session.SetUseDifferentShipping(ctx, true); err != nil {
		t.Fatalf("enable different shipping: %v", err)
	}
	if session.Data().ShippingAddress == nil {
		t.Fatal("expected resolved shipping address")
	}

	if err := session.SetUseDifferentShipping(ctx, false); err != nil {
		t.Fatalf("disable different shipping: %v", err)
	}
	data := session.Data()
	if data.UseDifferentShipping || data.ShippingAddress != nil {
		t.Fatalf("expected shipping reverted to billing, got %+v", data)
	}
}

func TestPlaceOrderFromCartStepFails(t *testing.T) {
	session, _ := newTestSession(t, seededBackend())

	_, err := session.PlaceOrder(context.Background())
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlaceOrderRejectsEmptyManualBilling(t *testing.T) {
	session, cartSession := newTestSession(t, seededBackend())
	ctx := context.Background()

	if _, err := cartSession.Cart(ctx); err != nil {
		t.Fatalf("prime cart: %v", err)
	}
	if err := session.Proceed(ctx); err != nil {
		t.Fatalf("Proceed: %v", err)
	}
	session.SetManualBilling(types.Address{})
	if err := session.SetPaymentMethod(enums.PaymentMethodCard); err != nil {
		t.Fatalf("SetPaymentMethod: %v", err)
	}

	_, err := session.PlaceOrder(ctx)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank billing form, got %v", err)
	}
}

func TestPlaceOrderOmitsShippingWhenSameAsBilling(t *testing.T) {
	backend := seededBackend()
	session, cartSession := newTestSession(t, backend)
	ctx := context.Background()

	readyToPlace(t, session, cartSession)

	conf, err := session.PlaceOrder(ctx)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	backend.mu.Lock()
	raw, present := backend.lastOrderBody["shipping_address"]
	idemKey := backend.lastIdemKey
	backend.mu.Unlock()
	if present && string(raw) != "null" {
		t.Fatalf("expected shipping_address omitted or null, got %s", raw)
	}
	if idemKey == "" {
		t.Fatal("expected Idempotency-Key header on order creation")
	}

	if conf.OrderID != "ord-100" {
		t.Fatalf("unexpected order id %q", conf.OrderID)
	}
	if len(conf.Items) != 1 || conf.Items[0].ProductName != "Hex Bolts" {
		t.Fatalf("expected confirmation stitched from pre-clear items, got %+v", conf.Items)
	}
	if conf.CustomerEmail != "dana@example.com" {
		t.Fatalf("expected profile email on confirmation, got %q", conf.CustomerEmail)
	}

	if session.Step() != enums.StepConfirmation {
		t.Fatalf("expected confirmation step, got %s", session.Step())
	}
	count, err := cartSession.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cart cleared after order, got %d items", count)
	}
}

func TestPlaceOrderSendsShippingWhenDifferent(t *testing.T) {
	backend := seededBackend()
	session, cartSession := newTestSession(t, backend)
	ctx := context.Background()

	readyToPlace(t, session, cartSession)
	if err := session.SetUseDifferentShipping(ctx, true); err != nil {
		t.Fatalf("SetUseDifferentShipping: %v", err)
	}

	if _, err := session.PlaceOrder(ctx); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	backend.mu.Lock()
	raw, present := backend.lastOrderBody["shipping_address"]
	backend.mu.Unlock()
	if !present || string(raw) == "null" {
		t.Fatal("expected shipping_address in payload")
	}
	var shipped types.Address
	if err := json.Unmarshal(raw, &shipped); err != nil {
		t.Fatalf("decode shipping address: %v", err)
	}
	if shipped.ID != "s1" {
		t.Fatalf("expected resolved shipping s1, got %q", shipped.ID)
	}
}

func TestBackFromConfirmationDiscardsView(t *testing.T) {
	backend := seededBackend()
	session, cartSession := newTestSession(t, backend)

	readyToPlace(t, session, cartSession)
	if _, err := session.PlaceOrder(context.Background()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	session.Back()
	if session.Step() != enums.StepCart {
		t.Fatalf("expected cart step, got %s", session.Step())
	}
	if session.Confirmation() != nil {
		t.Fatal("expected confirmation discarded")
	}
	backend.mu.Lock()
	orders := backend.orderCount
	backend.mu.Unlock()
	if orders != 1 {
		t.Fatalf("back navigation must not touch the placed order, got %d orders", orders)
	}
}

func TestReconcileRestoresCartWhenRemoteClearFails(t *testing.T) {
	backend := seededBackend()
	backend.failCartClear = true
	session, cartSession := newTestSession(t, backend)
	ctx := context.Background()

	readyToPlace(t, session, cartSession)
	if _, err := session.PlaceOrder(ctx); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// The optimistic clear shows an empty cart immediately.
	count, err := cartSession.ItemCount(ctx)
	if err != nil {
		t.Fatalf("ItemCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected optimistic empty view, got %d items", count)
	}

	if !session.Reconcile(ctx) {
		t.Fatal("expected reconcile to restore after failed remote clear")
	}
	items := cartSession.Snapshot()
	if len(items) != 1 {
		t.Fatalf("expected restored pre-clear view, got %+v", items)
	}

	// A second call has nothing left to do.
	if session.Reconcile(ctx) {
		t.Fatal("expected reconcile to be one-shot")
	}
}

func TestReconcileNoopWhenClearSucceeds(t *testing.T) {
	backend := seededBackend()
	session, cartSession := newTestSession(t, backend)

	readyToPlace(t, session, cartSession)
	if _, err := session.PlaceOrder(context.Background()); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if session.Reconcile(context.Background()) {
		t.Fatal("expected no restore when the remote clear succeeded")
	}
}
