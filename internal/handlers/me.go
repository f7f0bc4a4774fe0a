package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kiranakart/api/internal/platform/auth"
	"github.com/kiranakart/api/internal/platform/httpx"
	"github.com/kiranakart/api/internal/services"
)

// MeHandlers serves the authenticated user's own profile.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

const maxProfileBodySize = 8 * 1024

// NewMeHandlers constructs profile handlers.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			// First login: no stored profile yet, answer from token claims.
			writeJSONResponse(w, http.StatusOK, profileResponse{Profile: profilePayload{
				ID:      identity.UID,
				Email:   strings.ToLower(strings.TrimSpace(identity.Email)),
				IsAdmin: identity.IsAdmin(),
			}})
			return
		}
		h.writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile, identity)})
}

type updateProfileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req updateProfileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Name == nil && req.Phone == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errNoEditableFields.Error(), http.StatusBadRequest))
		return
	}

	profile, err := h.users.UpdateProfile(ctx, services.UpdateProfileCommand{
		UserID:  identity.UID,
		Email:   strings.ToLower(strings.TrimSpace(identity.Email)),
		Name:    cloneStringPointer(req.Name),
		Phone:   cloneStringPointer(req.Phone),
		ActorID: identity.UID,
	})
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile, identity)})
}

func (h *MeHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *MeHandlers) writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}

type profileResponse struct {
	Profile profilePayload `json:"profile"`
}

type profilePayload struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildProfilePayload(profile services.UserProfile, identity *auth.Identity) profilePayload {
	payload := profilePayload{
		ID:        strings.TrimSpace(profile.ID),
		Name:      strings.TrimSpace(profile.Name),
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		Phone:     strings.TrimSpace(profile.Phone),
		IsAdmin:   profile.IsAdmin,
		CreatedAt: formatTime(profile.CreatedAt),
		UpdatedAt: formatTime(profile.UpdatedAt),
	}
	// Token claims are authoritative for role, stored flags can lag.
	if identity != nil && identity.IsAdmin() {
		payload.IsAdmin = true
	}
	return payload
}
