package notify

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/events"
)

// AdminHandler exposes webhook endpoint management. Mounted under an
// admin-only route group.
type AdminHandler struct {
	Store      Store
	Dispatcher *Dispatcher
}

// Register mounts the webhook admin routes.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/endpoints", h.listEndpoints)
		r.Post("/endpoints", h.createEndpoint)
		r.Put("/endpoints/{endpointID}", h.updateEndpoint)
		r.Delete("/endpoints/{endpointID}", h.deleteEndpoint)
		r.Get("/deliveries", h.listDeliveries)
		r.Get("/dlq", h.listDLQ)
		r.Post("/deliveries/{deliveryID}/replay", h.replayDelivery)
	})
}

type endpointInput struct {
	URL    string   `json:"url" validate:"required,url"`
	Topics []string `json:"topics" validate:"required,min=1"`
	Active *bool    `json:"active"`
}

func (h *AdminHandler) createEndpoint(w http.ResponseWriter, r *http.Request) {
	var in endpointInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := common.ValidateStruct(in); err != nil {
		common.RenderError(w, err)
		return
	}
	for _, topic := range in.Topics {
		if topic != "*" && !events.Known(topic) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown topic "+topic, nil)
			return
		}
	}
	secret, err := newSecret()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "secret generation failed", nil)
		return
	}
	ep, err := h.Store.CreateEndpoint(r.Context(), in.URL, secret, in.Topics)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	// The secret is returned exactly once, at creation.
	common.JSON(w, http.StatusCreated, map[string]any{
		"endpoint": ep,
		"secret":   secret,
	})
}

func (h *AdminHandler) updateEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid endpoint id", nil)
		return
	}
	var in endpointInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := common.ValidateStruct(in); err != nil {
		common.RenderError(w, err)
		return
	}
	current, err := h.Store.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	current.URL = in.URL
	current.Topics = in.Topics
	if in.Active != nil {
		current.Active = *in.Active
	}
	ep, err := h.Store.UpdateEndpoint(r.Context(), current)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, ep)
}

func (h *AdminHandler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	eps, err := h.Store.ListEndpoints(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": eps})
}

func (h *AdminHandler) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid endpoint id", nil)
		return
	}
	if err := h.Store.DeleteEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "endpoint not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	var endpointID uuid.UUID
	if raw := r.URL.Query().Get("endpointId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid endpoint id", nil)
			return
		}
		endpointID = id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	dels, err := h.Store.ListDeliveries(r.Context(), endpointID, limit)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": dels})
}

func (h *AdminHandler) listDLQ(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Store.ListDLQ(r.Context(), limit)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *AdminHandler) replayDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "deliveryID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid delivery id", nil)
		return
	}
	del, err := h.Store.ResetDeliveryForReplay(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "delivery not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, del)
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
