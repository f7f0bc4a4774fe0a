package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/services"
)

func TestMeHandlersGetProfileSuccess(t *testing.T) {
	created := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			if userID != "user-6" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.UserProfile{
				ID:        "user-6",
				Name:      "Asha",
				Email:     "asha@example.com",
				Phone:     "+91 98450 00000",
				CreatedAt: created,
			}, nil
		},
	}
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-6"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp profileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile.Name != "Asha" || resp.Profile.Email != "asha@example.com" {
		t.Fatalf("unexpected profile %#v", resp.Profile)
	}
}

func TestMeHandlersGetProfileMissingFallsBackToClaims(t *testing.T) {
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserNotFound
		},
	}
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-new", Email: "New@Example.com"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for fresh user, got %d", rr.Code)
	}

	var resp profileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile.ID != "user-new" || resp.Profile.Email != "new@example.com" {
		t.Fatalf("expected claim-derived profile, got %#v", resp.Profile)
	}
}

func TestMeHandlersUpdateProfileSuccess(t *testing.T) {
	service := &stubUserService{
		updateProfileFunc: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			if cmd.UserID != "user-6" || cmd.ActorID != "user-6" {
				t.Fatalf("unexpected command %#v", cmd)
			}
			if cmd.Name == nil || *cmd.Name != "Asha R" {
				t.Fatalf("expected name pointer, got %#v", cmd.Name)
			}
			if cmd.Phone != nil {
				t.Fatalf("phone must stay nil when omitted")
			}
			return services.UserProfile{ID: "user-6", Name: "Asha R", Email: "asha@example.com"}, nil
		},
	}
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	body := bytes.NewBufferString(`{"name":"Asha R"}`)
	req := httptest.NewRequest(http.MethodPut, "/me", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-6", Email: "asha@example.com"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersUpdateProfileNoFields(t *testing.T) {
	handler := NewMeHandlers(nil, &stubUserService{})
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPut, "/me", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-6"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfileInvalidPhone(t *testing.T) {
	service := &stubUserService{
		updateProfileFunc: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserInvalidInput
		},
	}
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	body := bytes.NewBufferString(`{"phone":"not-a-phone"}`)
	req := httptest.NewRequest(http.MethodPut, "/me", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-6"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUnauthenticated(t *testing.T) {
	handler := NewMeHandlers(nil, &stubUserService{})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	handler.getProfile(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMeHandlersAdminClaimOverridesStoredFlag(t *testing.T) {
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{ID: userID, IsAdmin: false}, nil
		},
	}
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var resp profileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Profile.IsAdmin {
		t.Fatalf("expected token admin claim to win")
	}
}
