package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

const serviceName = "cart"

// Session is the single source of truth for the current cart. Reads go
// through the cached fetch; every mutation invalidates the cache and
// refetches, so the local view never drifts from the server for longer than
// one round trip. A session mutex serializes mutations: rapid opposing
// updates to the same line cannot interleave.
type Session struct {
	mu      sync.Mutex
	api     *api.Client
	cache   cache.Store
	logger  *logger.Logger
	current types.Cart
}

// NewSession builds a cart session.
func NewSession(client *api.Client, store cache.Store, logg *logger.Logger) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Session{api: client, cache: store, logger: logg}, nil
}

type addPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type quantityPayload struct {
	Quantity int `json:"quantity"`
}

// Cart returns the current cart, from cache when fresh.
func (s *Session) Cart(ctx context.Context) (types.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(ctx)
}

// Items returns a copy of the current cart lines.
func (s *Session) Items(ctx context.Context) ([]types.CartItem, error) {
	cart, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]types.CartItem, len(cart.Items))
	copy(items, cart.Items)
	return items, nil
}

// Totals derives the cart amounts from the current view. Shipping is a fixed
// zero; the subtotal does not depend on line order.
func (s *Session) Totals(ctx context.Context) (types.Totals, error) {
	cart, err := s.Cart(ctx)
	if err != nil {
		return types.Totals{}, err
	}
	return types.ComputeTotals(cart), nil
}

// ItemCount sums quantities across lines.
func (s *Session) ItemCount(ctx context.Context) (int, error) {
	cart, err := s.Cart(ctx)
	if err != nil {
		return 0, err
	}
	return cart.ItemCount(), nil
}

// Add puts a product in the cart. Requires an authenticated session; the
// request never leaves the client without a valid token.
func (s *Session) Add(ctx context.Context, productID string, quantity int) (types.Cart, error) {
	if productID == "" {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.api.AuthPost(ctx, "cart.add", "/cart/items", addPayload{ProductID: productID, Quantity: quantity}, nil); err != nil {
		return types.Cart{}, err
	}
	return s.refresh(ctx)
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line; every caller gets the same policy.
func (s *Session) UpdateQuantity(ctx context.Context, itemID string, quantity int) (types.Cart, error) {
	if itemID == "" {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if quantity <= 0 {
		return s.Remove(ctx, itemID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.api.AuthPut(ctx, "cart.update_quantity", "/cart/items/"+url.PathEscape(itemID), quantityPayload{Quantity: quantity}, nil); err != nil {
		return types.Cart{}, err
	}
	return s.refresh(ctx)
}

// Remove deletes a line. Removing an absent line succeeds silently.
func (s *Session) Remove(ctx context.Context, itemID string) (types.Cart, error) {
	if itemID == "" {
		return types.Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.api.AuthDelete(ctx, "cart.remove", "/cart/items/"+url.PathEscape(itemID), nil)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return types.Cart{}, err
	}
	return s.refresh(ctx)
}

// Clear empties the cart on the server and locally. Clearing an already
// empty cart succeeds.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.api.AuthDelete(ctx, "cart.clear", "/cart", nil)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	_, err = s.refresh(ctx)
	return err
}

// Snapshot copies the current local view without touching the network. Order
// placement captures it before the optimistic clear so the confirmation can
// be stitched from it.
func (s *Session) Snapshot() []types.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]types.CartItem, len(s.current.Items))
	copy(items, s.current.Items)
	return items
}

// ClearLocal applies the post-order empty-cart view immediately. The cache
// entry is overwritten with the empty cart so reads reflect the transition
// before the server-side clear lands.
func (s *Session) ClearLocal(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = types.Cart{ID: s.current.ID}
	s.storeView(ctx, s.current)
}

// ClearRemote deletes the server-side cart after a successful order. The
// order already exists, so a failure here only desyncs the stale cart: it is
// logged, never surfaced to the user. The error return lets the checkout
// session record the failure for reconciliation.
func (s *Session) ClearRemote(ctx context.Context) error {
	err := s.api.AuthDelete(ctx, "cart.clear_remote", "/cart", nil)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		ctx = s.logger.WithOperation(ctx, "cart.clear_remote")
		s.logger.Warn(ctx, "post-order cart clear failed")
		return err
	}
	return nil
}

// Restore puts a snapshot back as the local view, undoing an optimistic
// clear whose server-side counterpart failed.
func (s *Session) Restore(ctx context.Context, items []types.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.Items = make([]types.CartItem, len(items))
	copy(s.current.Items, items)
	s.storeView(ctx, s.current)
}

// fetch returns the cached cart or loads it from the server. Callers hold
// the session mutex.
func (s *Session) fetch(ctx context.Context) (types.Cart, error) {
	key := cache.Key(serviceName, "get")
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var cart types.Cart
		if err := json.Unmarshal(cached, &cart); err == nil {
			s.current = cart
			return cart, nil
		}
	}

	var cart types.Cart
	if err := s.api.AuthGet(ctx, "cart.get", "/cart", &cart); err != nil {
		return types.Cart{}, err
	}

	s.current = cart
	s.storeView(ctx, cart)
	return cart, nil
}

// refresh invalidates the cached view and refetches after a mutation.
// Callers hold the session mutex.
func (s *Session) refresh(ctx context.Context) (types.Cart, error) {
	if err := s.cache.Invalidate(ctx, cache.Prefix(serviceName)); err != nil {
		s.logger.Warn(ctx, "cart cache invalidation failed")
	}
	return s.fetch(ctx)
}

func (s *Session) storeView(ctx context.Context, cart types.Cart) {
	if encoded, err := json.Marshal(cart); err == nil {
		_ = s.cache.Set(ctx, cache.Key(serviceName, "get"), encoded)
	}
}
