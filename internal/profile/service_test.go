package profile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/harborline/storefront/pkg/api"
	"github.com/harborline/storefront/pkg/cache"
	"github.com/harborline/storefront/pkg/config"
	pkgerrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/logger"
	"github.com/harborline/storefront/pkg/types"
)

type staticTokens struct{}

func (staticTokens) Token() (string, bool) { return "test-token", true }

type profileBackend struct {
	getCalls      int64
	passwordCalls int64
	profile       types.Profile
}

func (b *profileBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/profile", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&b.getCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.profile)
	})
	r.Put("/profile", func(w http.ResponseWriter, req *http.Request) {
		var in UpdateInput
		_ = json.NewDecoder(req.Body).Decode(&in)
		if in.FirstName != "" {
			b.profile.FirstName = in.FirstName
		}
		if in.Phone != "" {
			b.profile.Phone = in.Phone
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.profile)
	})
	r.Post("/profile/password", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&b.passwordCalls, 1)
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func newTestService(t *testing.T, backend http.Handler) Service {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	client, err := api.NewClient(config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, staticTokens{}, logg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	svc, err := NewService(client, cache.NewMemory(5*time.Minute), logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestGetCachesWithinTTL(t *testing.T) {
	backend := &profileBackend{profile: types.Profile{ID: "u1", Email: "dana@example.com"}}
	svc := newTestService(t, backend.router())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		prof, err := svc.Get(ctx)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if prof.Email != "dana@example.com" {
			t.Fatalf("unexpected email %q", prof.Email)
		}
	}
	if calls := atomic.LoadInt64(&backend.getCalls); calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
}

func TestUpdateInvalidatesCache(t *testing.T) {
	backend := &profileBackend{profile: types.Profile{ID: "u1", Email: "dana@example.com", FirstName: "Dana"}}
	svc := newTestService(t, backend.router())

	ctx := context.Background()
	if _, err := svc.Get(ctx); err != nil {
		t.Fatalf("warmup Get: %v", err)
	}
	if _, err := svc.Update(ctx, UpdateInput{FirstName: "Dee"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	prof, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if prof.FirstName != "Dee" {
		t.Fatalf("expected refreshed profile, got %+v", prof)
	}
	if calls := atomic.LoadInt64(&backend.getCalls); calls != 2 {
		t.Fatalf("expected 2 backend calls, got %d", calls)
	}
}

func TestEmailReadsProfile(t *testing.T) {
	backend := &profileBackend{profile: types.Profile{Email: "dana@example.com"}}
	svc := newTestService(t, backend.router())

	email, err := svc.Email(context.Background())
	if err != nil {
		t.Fatalf("Email: %v", err)
	}
	if email != "dana@example.com" {
		t.Fatalf("unexpected email %q", email)
	}
}

func TestChangePasswordValidatesLocally(t *testing.T) {
	backend := &profileBackend{}
	svc := newTestService(t, backend.router())

	cases := []struct {
		name  string
		input PasswordInput
		field string
	}{
		{"missing current", PasswordInput{NewPassword: "longenough", ConfirmPassword: "longenough"}, "current_password"},
		{"too short", PasswordInput{CurrentPassword: "old", NewPassword: "short", ConfirmPassword: "short"}, "new_password"},
		{"mismatch", PasswordInput{CurrentPassword: "old", NewPassword: "longenough", ConfirmPassword: "different1"}, "confirm_password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), tc.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			domainErr := pkgerrors.As(err)
			if domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
			fields, ok := domainErr.Details().(map[string]string)
			if !ok {
				t.Fatalf("expected field map details, got %T", domainErr.Details())
			}
			if _, present := fields[tc.field]; !present {
				t.Fatalf("expected error on %q, got %v", tc.field, fields)
			}
		})
	}

	if calls := atomic.LoadInt64(&backend.passwordCalls); calls != 0 {
		t.Fatalf("validation failures must not reach the backend, got %d calls", calls)
	}

	err := svc.ChangePassword(context.Background(), PasswordInput{
		CurrentPassword: "old-secret",
		NewPassword:     "longenough",
		ConfirmPassword: "longenough",
	})
	if err != nil {
		t.Fatalf("valid change: %v", err)
	}
	if calls := atomic.LoadInt64(&backend.passwordCalls); calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
}
