package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// Handler exposes the auth endpoints.
type Handler struct {
	Svc *Service
	Mw  *Middleware
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/forgot-password", h.forgot)
		r.Post("/reset-password", h.reset)

		r.Group(func(r chi.Router) {
			r.Use(h.Mw.RequireAuth)
			r.Get("/me", h.me)
			r.Group(func(r chi.Router) {
				r.Use(h.Mw.RequireRole("admin"))
				r.Post("/register", h.register)
				r.Get("/users", h.listUsers)
				r.Patch("/users/{userID}/roles", h.changeRoles)
				r.Patch("/users/{userID}/active", h.changeActive)
			})
		})
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Svc.Users(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) changeRoles(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid user id", nil)
		return
	}
	var in struct {
		Roles []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	user, err := h.Svc.ChangeRoles(r.Context(), id, in.Roles)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, user)
}

func (h *Handler) changeActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid user id", nil)
		return
	}
	var in struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Active == nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	user, err := h.Svc.SetActive(r.Context(), id, *in.Active)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, user)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	user, err := h.Svc.Register(r.Context(), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	user, pair, err := h.Svc.Login(r.Context(), in, r.UserAgent(), clientIP(r))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"user": user, "tokens": pair})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RefreshToken == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "refreshToken is required", nil)
		return
	}
	pair, err := h.Svc.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RefreshToken == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "refreshToken is required", nil)
		return
	}
	if err := h.Svc.Logout(r.Context(), in.RefreshToken); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	raw, _ := common.UserID(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	user, err := h.Svc.Me(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, user)
}

func (h *Handler) forgot(w http.ResponseWriter, r *http.Request) {
	var in ForgotInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	if err := h.Svc.Forgot(r.Context(), in); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]string{"status": "ok"})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var in ResetInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	if err := h.Svc.Reset(r.Context(), in); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
