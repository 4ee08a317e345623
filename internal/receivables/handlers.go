package receivables

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// Handler exposes receivables over HTTP. Idempotency guards the import
// endpoint and ReminderLimit throttles reminder dispatch; either may be nil.
type Handler struct {
	Svc           *Service
	Idempotency   func(http.Handler) http.Handler
	ReminderLimit func(http.Handler) http.Handler
}

// Register mounts the receivable routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/receivables", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/due-soon", h.DueSoon)
		r.With(orPass(h.Idempotency)).Post("/import", h.Import)
		r.With(orPass(h.ReminderLimit)).Post("/remind", h.RemindBatch)
		r.Route("/{receivableID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/pay", h.Pay)
			r.With(orPass(h.ReminderLimit)).Post("/remind", h.Remind)
		})
	})
}

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw != nil {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var cfg ImportConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	recs, err := h.Svc.Import(r.Context(), cfg)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"imported": len(recs),
		"items":    recs,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "receivableID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid receivable id", nil)
		return
	}
	rec, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "receivable not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Search: q.Get("q"),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	}
	if raw := q.Get("dueFrom"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DueFrom = ts
		}
	}
	if raw := q.Get("dueTo"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DueTo = ts
		}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status filter", nil)
		return
	}
	recs, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items":      recs,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "receivableID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid receivable id", nil)
		return
	}
	rec, err := h.Svc.MarkPaid(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "receivable not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}

func (h *Handler) Remind(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "receivableID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid receivable id", nil)
		return
	}
	rec, err := h.Svc.SendReminder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "receivable not found", nil)
			return
		}
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}

func (h *Handler) RemindBatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ReceivableIDs []uuid.UUID `json:"receivableIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	report, err := h.Svc.SendReminders(r.Context(), in.ReceivableIDs)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, report)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Svc.Dashboard(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sum)
}

func (h *Handler) DueSoon(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Svc.DueSoon(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": recs})
}
