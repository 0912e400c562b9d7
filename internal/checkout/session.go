package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/harborline/storefront/internal/addresses"
	"github.com/harborline/storefront/internal/cart"
	"github.com/harborline/storefront/internal/profile"
	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/enums"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

// Session drives the cart -> checkout -> confirmation flow. It owns the
// single CheckoutData snapshot, enforces the step transition table, and
// assembles the order payload. One Session serves one user flow; methods are
// safe for concurrent use but the flow itself is sequential.
type Session struct {
	mu        sync.Mutex
	api       *api.Client
	cart      *cart.Session
	addresses addresses.Service
	profile   profile.Service
	logger    *logger.Logger

	step         enums.CheckoutStep
	data         types.CheckoutData
	manual       bool
	confirmation *types.OrderConfirmation

	// set by PlaceOrder for the post-order reconciliation window
	preClearItems []types.CartItem
	clearFailed   bool
	clearDone     chan struct{}
}

// NewSession builds a checkout session starting at the cart step.
func NewSession(client *api.Client, cartSession *cart.Session, addrs addresses.Service, prof profile.Service, logg *logger.Logger) (*Session, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if cartSession == nil {
		return nil, fmt.Errorf("cart session required")
	}
	if addrs == nil {
		return nil, fmt.Errorf("address service required")
	}
	if prof == nil {
		return nil, fmt.Errorf("profile service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Session{
		api:       client,
		cart:      cartSession,
		addresses: addrs,
		profile:   prof,
		logger:    logg,
		step:      enums.StepCart,
	}, nil
}

// Step returns the current state-machine step.
func (s *Session) Step() enums.CheckoutStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Data returns a copy of the current checkout snapshot.
func (s *Session) Data() types.CheckoutData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Confirmation returns the stitched order view after a successful placement,
// or nil before one exists.
func (s *Session) Confirmation() *types.OrderConfirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmation
}

// Proceed moves from the cart step into checkout. An empty cart cannot enter
// checkout.
func (s *Session) Proceed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != enums.StepCart {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot proceed from %s", s.step))
	}

	count, err := s.cart.ItemCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	s.step = enums.StepCheckout
	return nil
}

// Back returns to the cart step. From checkout the gathered data survives in
// case the user proceeds again; from confirmation the view is discarded, the
// placed order is never reversed.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.step {
	case enums.StepCheckout:
		s.step = enums.StepCart
	case enums.StepConfirmation:
		s.confirmation = nil
		s.data = types.CheckoutData{}
		s.manual = false
		s.step = enums.StepCart
	}
}

// UseSavedBilling resolves the billing address from the user's saved
// addresses: the default of the billing type, else the first returned.
// addresses.ErrNoAddresses passes through so the caller can offer inline
// creation; an address created that way comes back in through
// SetManualBilling or a fresh resolution, on equal footing.
func (s *Session) UseSavedBilling(ctx context.Context) error {
	resolved, err := s.addresses.Resolve(ctx, enums.AddressTypeBilling)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = false
	s.data.BillingAddress = *resolved
	return nil
}

// SetManualBilling switches the billing source to the manual form, dropping
// any saved-address selection.
func (s *Session) SetManualBilling(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = true
	s.data.BillingAddress = addr
}

// SetUseDifferentShipping toggles the separate-shipping flag. Enabling it
// resolves the shipping address independently of billing; disabling reverts
// shipping to the billing address.
func (s *Session) SetUseDifferentShipping(ctx context.Context, use bool) error {
	if !use {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.data.UseDifferentShipping = false
		s.data.ShippingAddress = nil
		return nil
	}

	resolved, err := s.addresses.Resolve(ctx, enums.AddressTypeShipping)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.UseDifferentShipping = true
	s.data.ShippingAddress = resolved
	return nil
}

// SetShippingAddress overrides the resolved shipping address, for carts that
// ship somewhere picked or created inline. Only meaningful while the
// different-shipping flag is on.
func (s *Session) SetShippingAddress(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.UseDifferentShipping {
		s.data.ShippingAddress = &addr
	}
}

// SetPaymentMethod records the chosen payment option.
func (s *Session) SetPaymentMethod(method enums.PaymentMethod) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PaymentMethod = method
	return nil
}

// SetCustomerNotes records free-form order notes.
func (s *Session) SetCustomerNotes(notes string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CustomerNotes = notes
}

// PlaceOrder validates the gathered data, submits the order, and transitions
// to confirmation. The cart empties locally the moment the order succeeds;
// the server-side clear runs in the background and its failure is only
// logged. Shipping is omitted from the payload when the order ships to the
// billing address.
func (s *Session) PlaceOrder(ctx context.Context) (*types.OrderConfirmation, error) {
	s.mu.Lock()

	if s.step != enums.StepCheckout {
		s.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot place order from %s", s.step))
	}
	if s.data.BillingAddress.IsEmpty() {
		s.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing address is required")
	}
	if !s.data.PaymentMethod.IsValid() {
		s.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if s.data.UseDifferentShipping && (s.data.ShippingAddress == nil || s.data.ShippingAddress.IsEmpty()) {
		s.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}

	payload := types.OrderRequest{
		BillingAddress:       s.data.BillingAddress,
		PaymentMethod:        s.data.PaymentMethod,
		CustomerNotes:        s.data.CustomerNotes,
		UseDifferentShipping: s.data.UseDifferentShipping,
	}
	if s.data.UseDifferentShipping {
		payload.ShippingAddress = s.data.ShippingAddress
	}
	s.mu.Unlock()

	items := s.cart.Snapshot()
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	var resp types.OrderResponse
	err := s.api.AuthPost(ctx, "checkout.place_order", "/orders", payload, &resp,
		api.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return nil, err
	}

	email, err := s.profile.Email(ctx)
	if err != nil {
		s.logger.Warn(ctx, "profile email lookup failed for confirmation")
		email = ""
	}

	confirmation := &types.OrderConfirmation{
		OrderID:       resp.OrderID,
		Items:         items,
		CustomerEmail: email,
		Subtotal:      resp.Subtotal,
		Shipping:      resp.Shipping,
		Total:         resp.Total,
	}

	s.cart.ClearLocal(ctx)

	s.mu.Lock()
	s.confirmation = confirmation
	s.preClearItems = items
	s.clearFailed = false
	s.clearDone = make(chan struct{})
	s.step = enums.StepConfirmation
	done := s.clearDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.cart.ClearRemote(context.WithoutCancel(ctx)); err != nil {
			s.mu.Lock()
			s.clearFailed = true
			s.mu.Unlock()
		}
	}()

	return confirmation, nil
}

// Reconcile checks the background clear from the last placed order and, when
// it failed while the confirmation is still showing, restores the pre-clear
// cart view so the stale server cart and the local view agree again. Returns
// true when a restore happened.
func (s *Session) Reconcile(ctx context.Context) bool {
	s.mu.Lock()
	done := s.clearDone
	s.mu.Unlock()
	if done == nil {
		return false
	}
	<-done

	s.mu.Lock()
	failed := s.clearFailed && s.step == enums.StepConfirmation
	items := s.preClearItems
	s.clearFailed = false
	s.mu.Unlock()

	if !failed {
		return false
	}
	s.cart.Restore(ctx, items)
	return true
}
