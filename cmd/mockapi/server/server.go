// Package server is an in-memory stand-in for the remote commerce API. It
// exists for local development and for driving the CLI end to end without a
// real backend. State lives for the process lifetime only.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborline/storefront/internal/onboarding"
	"github.com/harborline/storefront/pkg/enums"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

// devSigningSecret signs mock session tokens. The storefront client never
// verifies signatures, it only reads claims, so the value is arbitrary.
const devSigningSecret = "mockapi-dev-secret"

const tokenTTL = 12 * time.Hour

// Options configures the mock server.
type Options struct {
	JWTIssuer string
	Logger    *logger.Logger
}

// Server holds the in-memory commerce state.
type Server struct {
	mu        sync.Mutex
	issuer    string
	logger    *logger.Logger
	products  []types.Product
	inventory map[string]types.Inventory
	cart      types.Cart
	addresses []types.Address
	profile   types.Profile
	onboard   onboarding.Status
	orders    map[string]types.OrderResponse
	idemSeen  map[string]string
}

// New builds a seeded mock server.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Server{
		issuer:    opts.JWTIssuer,
		logger:    opts.Logger,
		cart:      types.Cart{ID: uuid.NewString()},
		inventory: map[string]types.Inventory{},
		orders:    map[string]types.OrderResponse{},
		idemSeen:  map[string]string{},
		profile:   types.Profile{ID: uuid.NewString(), Email: "demo@harborline.example", FirstName: "Demo", LastName: "Buyer"},
		onboard:   onboarding.Status{State: "none"},
	}
	s.seed()
	return s, nil
}

func (s *Server) seed() {
	s.products = []types.Product{
		{ID: "prod-bolts", Name: "Hex Bolts M8 (100 ct)", Price: decimal.NewFromFloat(12.50), Category: "fasteners", InStock: true},
		{ID: "prod-washers", Name: "Flat Washers M8 (200 ct)", Price: decimal.NewFromFloat(4.25), Category: "fasteners", InStock: true},
		{ID: "prod-anchor", Name: "Concrete Anchor Kit", Price: decimal.NewFromFloat(30.00), Category: "anchors", InStock: true},
	}
	for _, p := range s.products {
		s.inventory[p.ID] = types.Inventory{ProductID: p.ID, Quantity: 100, LowStockThreshold: 10, Location: "main"}
	}
}

// Router assembles the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/auth/login", s.handleLogin)
	r.Get("/products", s.handleListProducts)
	r.Get("/products/{id}", s.handleGetProduct)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)

		r.Get("/cart", s.handleGetCart)
		r.Post("/cart/items", s.handleAddCartItem)
		r.Put("/cart/items/{id}", s.handleUpdateCartItem)
		r.Delete("/cart/items/{id}", s.handleRemoveCartItem)
		r.Delete("/cart", s.handleClearCart)

		r.Get("/addresses", s.handleListAddresses)
		r.Post("/addresses", s.handleCreateAddress)
		r.Put("/addresses/{id}", s.handleUpdateAddress)
		r.Delete("/addresses/{id}", s.handleDeleteAddress)
		r.Post("/addresses/{id}/default", s.handleSetDefaultAddress)

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handleUpdateProfile)
		r.Post("/profile/password", s.handleChangePassword)

		r.Get("/products/{id}/inventory", s.handleGetInventory)
		r.Put("/products/{id}/inventory", s.handleUpdateInventory)

		r.Post("/orders", s.handleCreateOrder)

		r.Post("/onboarding", s.handleSubmitOnboarding)
		r.Get("/onboarding/status", s.handleOnboardingStatus)

		r.Get("/analytics", s.handleAnalytics)
	})

	return r
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := req.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return []byte(devSigningSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		next.ServeHTTP(w, req)
	})
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, req *http.Request) {
	var in loginRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	s.mu.Lock()
	s.profile.Email = in.Email
	s.mu.Unlock()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   s.profile.ID,
		"email": in.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(devSigningSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: signed})
}

func (s *Server) handleListProducts(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, types.ProductPage{Products: s.products})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "product not found")
}

func (s *Server) handleGetCart(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.cart)
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleAddCartItem(w http.ResponseWriter, req *http.Request) {
	var in addItemRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	if in.Quantity < 1 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var product *types.Product
	for i := range s.products {
		if s.products[i].ID == in.ProductID {
			product = &s.products[i]
			break
		}
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	for i := range s.cart.Items {
		if s.cart.Items[i].ProductID == in.ProductID {
			s.cart.Items[i].Quantity += in.Quantity
			writeJSON(w, http.StatusOK, s.cart)
			return
		}
	}

	s.cart.Items = append(s.cart.Items, types.CartItem{
		ID:          uuid.NewString(),
		ProductID:   product.ID,
		Quantity:    in.Quantity,
		UnitPrice:   product.Price,
		ProductName: product.Name,
		Product: types.ProductSnapshot{
			ID:    product.ID,
			Name:  product.Name,
			Price: product.Price,
		},
	})
	writeJSON(w, http.StatusCreated, s.cart)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleUpdateCartItem(w http.ResponseWriter, req *http.Request) {
	var in updateItemRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if in.Quantity < 1 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must be at least 1")
		return
	}

	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart.Items {
		if s.cart.Items[i].ID == id {
			s.cart.Items[i].Quantity = in.Quantity
			writeJSON(w, http.StatusOK, s.cart)
			return
		}
	}
	writeError(w, http.StatusNotFound, "cart item not found")
}

func (s *Server) handleRemoveCartItem(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cart.Items[:0]
	found := false
	for _, item := range s.cart.Items {
		if item.ID == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	s.cart.Items = kept
	if !found {
		writeError(w, http.StatusNotFound, "cart item not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearCart(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Items = nil
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAddresses(w http.ResponseWriter, req *http.Request) {
	wantType := req.URL.Query().Get("type")
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []types.Address{}
	for _, a := range s.addresses {
		if wantType == "" || string(a.Type) == wantType {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAddress(w http.ResponseWriter, req *http.Request) {
	var in types.Address
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if !in.Type.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "unknown address type")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in.ID = uuid.NewString()
	if in.IsDefault {
		s.demoteDefaultLocked(in.Type)
	}
	s.addresses = append(s.addresses, in)
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, req *http.Request) {
	var in types.Address
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.addresses {
		if s.addresses[i].ID == id {
			in.ID = id
			in.IsDefault = s.addresses[i].IsDefault
			s.addresses[i] = in
			writeJSON(w, http.StatusOK, in)
			return
		}
	}
	writeError(w, http.StatusNotFound, "address not found")
}

func (s *Server) handleDeleteAddress(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.addresses[:0]
	found := false
	for _, a := range s.addresses {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	s.addresses = kept
	if !found {
		writeError(w, http.StatusNotFound, "address not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetDefaultAddress promotes one address and demotes the prior default
// of the same type, keeping at most one default per type.
func (s *Server) handleSetDefaultAddress(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *types.Address
	for i := range s.addresses {
		if s.addresses[i].ID == id {
			target = &s.addresses[i]
			break
		}
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "address not found")
		return
	}

	s.demoteDefaultLocked(target.Type)
	target.IsDefault = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) demoteDefaultLocked(addrType enums.AddressType) {
	for i := range s.addresses {
		if s.addresses[i].Type == addrType {
			s.addresses[i].IsDefault = false
		}
	}
}

func (s *Server) handleGetProfile(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	var in types.Profile
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if in.FirstName != "" {
		s.profile.FirstName = in.FirstName
	}
	if in.LastName != "" {
		s.profile.LastName = in.LastName
	}
	if in.Phone != "" {
		s.profile.Phone = in.Phone
	}
	if in.Company != "" {
		s.profile.Company = in.Company
	}
	writeJSON(w, http.StatusOK, s.profile)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetInventory(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventory[id]
	if !ok {
		writeError(w, http.StatusNotFound, "inventory not found")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleUpdateInventory(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	var in types.Inventory
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inventory[id]; !ok {
		writeError(w, http.StatusNotFound, "inventory not found")
		return
	}
	in.ProductID = id
	s.inventory[id] = in
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, req *http.Request) {
	var in types.OrderRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if in.BillingAddress.IsEmpty() {
		writeError(w, http.StatusUnprocessableEntity, "billing address is required")
		return
	}
	if !in.PaymentMethod.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "unknown payment method")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart.Items) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "cart is empty")
		return
	}

	// Replaying the same dedupe token returns the original order.
	idemKey := req.Header.Get("Idempotency-Key")
	if idemKey != "" {
		if orderID, seen := s.idemSeen[idemKey]; seen {
			writeJSON(w, http.StatusOK, s.orders[orderID])
			return
		}
	}

	subtotal := decimal.Zero
	for _, item := range s.cart.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	resp := types.OrderResponse{
		OrderID:  uuid.NewString(),
		Subtotal: subtotal,
		Shipping: decimal.Zero,
		Total:    subtotal,
	}
	s.orders[resp.OrderID] = resp
	if idemKey != "" {
		s.idemSeen[idemKey] = resp.OrderID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSubmitOnboarding(w http.ResponseWriter, req *http.Request) {
	var in onboarding.Application
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboard = onboarding.Status{State: "pending", SubmittedAt: time.Now().UTC()}
	writeJSON(w, http.StatusCreated, s.onboard)
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.onboard)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, req *http.Request) {
	metric := req.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}

	s.mu.Lock()
	orderTotal := decimal.Zero
	for _, o := range s.orders {
		orderTotal = orderTotal.Add(o.Total)
	}
	orderCount := len(s.orders)
	s.mu.Unlock()

	report := map[string]any{
		"metric": metric,
		"points": []map[string]any{
			{"date": time.Now().UTC().Format("2006-01-02"), "value": orderTotal},
		},
		"total": orderTotal,
	}
	if metric == "orders" {
		report["total"] = decimal.NewFromInt(int64(orderCount))
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
