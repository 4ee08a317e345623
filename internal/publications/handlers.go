package publications

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

type Handler struct {
	Svc         *Service
	DefaultPage int
	MaxPage     int
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/publications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{publicationID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/assign", h.assign)
			r.Post("/finish", h.finish)
			r.Post("/discard", h.discard)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	perPage := queryInt(q.Get("per_page"), h.DefaultPage)
	if perPage > h.MaxPage {
		perPage = h.MaxPage
	}

	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("q"),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	}
	if raw := q.Get("assigned_to"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid assigned_to", nil)
			return
		}
		filter.AssignedTo = &id
	}
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_DATE", "from must be RFC3339", nil)
			return
		}
		filter.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_DATE", "to must be RFC3339", nil)
			return
		}
		filter.To = &ts
	}

	items, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"publications": items,
		"pagination":   common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in PublicationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	p, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.publicationID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.publicationID(w, r)
	if !ok {
		return
	}
	var in struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	p, err := h.Svc.Assign(r.Context(), id, in.UserID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.publicationID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.Finish(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.publicationID(w, r)
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	p, err := h.Svc.Discard(r.Context(), id, in.Reason)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) publicationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "publicationID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", "invalid publication id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
