package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fschubi/lbvatlas-sub005/internal/observability"
	"github.com/fschubi/lbvatlas-sub005/internal/platform/httpx"
	"github.com/fschubi/lbvatlas-sub005/internal/shared"
)

// Handler wires HTTP endpoints for the authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    *TokenService
	refresh   *RefreshStore
	resolver  PermissionResolver
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenService, refresh *RefreshStore, resolver PermissionResolver, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		tokens:    tokens,
		refresh:   refresh,
		resolver:  resolver,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers the unauthenticated auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%v: %w", err, httpx.ErrValidation))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.CountLogin("failure")
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	refreshToken, err := h.refresh.Issue(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("issue refresh token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.refresh.WriteCookie(w, refreshToken)

	perms, err := h.resolver.ResolvePermissions(r.Context(), user.Role)
	if err != nil {
		h.logger.Error("resolve permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.metrics.CountLogin("success")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserResponse(user, perms),
	})
}

// Validate re-resolves the live permission set for the authenticated
// identity. Mounted behind the Authenticator middleware.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.GetUser(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("load user", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(user, identity.Permissions),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := h.refresh.ReadCookie(r)
	if token == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := h.refresh.Resolve(r.Context(), token)
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	// Rotate: the old refresh token dies with the reissue.
	if err := h.refresh.Revoke(r.Context(), token); err != nil {
		h.logger.Warn("revoke refresh token", slog.Any("error", err))
	}
	next, err := h.refresh.Issue(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("rotate refresh token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.refresh.WriteCookie(w, next)

	access, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	perms, err := h.resolver.ResolvePermissions(r.Context(), user.Role)
	if err != nil {
		h.logger.Error("resolve permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"token": access,
		"user":  toUserResponse(user, perms),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.refresh.ReadCookie(r); token != "" {
		if err := h.refresh.Revoke(r.Context(), token); err != nil {
			h.logger.Warn("revoke refresh token", slog.Any("error", err))
		}
	}
	h.refresh.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func toUserResponse(user *User, perms []string) userResponse {
	if perms == nil {
		perms = []string{}
	}
	return userResponse{
		ID:          user.ID,
		Username:    user.Username,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: perms,
	}
}
