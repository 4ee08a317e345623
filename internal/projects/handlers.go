package projects

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

type Handler struct {
	Svc     *Service
	PerPage int
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Get("/tasks", h.listTasks)
			r.Post("/tasks", h.addTask)
		})
	})
	r.Route("/tasks/{taskID}", func(r chi.Router) {
		r.Put("/", h.updateTask)
		r.Delete("/", h.deleteTask)
		r.Patch("/status", h.moveTask)
		r.Patch("/assignee", h.assignTask)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.PerPage)
	filter := ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("q"),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	}
	list, total, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"projects":   list,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in ProjectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	project, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, project)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "projectID", "invalid project id")
	if !ok {
		return
	}
	project, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, project)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "projectID", "invalid project id")
	if !ok {
		return
	}
	var in ProjectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	project, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, project)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "projectID", "invalid project id")
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "projectID", "invalid project id")
	if !ok {
		return
	}
	tasks, err := h.Svc.Tasks(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) addTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "projectID", "invalid project id")
	if !ok {
		return
	}
	var in TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	task, err := h.Svc.AddTask(r.Context(), id, in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, task)
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID", "invalid task id")
	if !ok {
		return
	}
	var in TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	task, err := h.Svc.UpdateTask(r.Context(), id, in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, task)
}

func (h *Handler) moveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID", "invalid task id")
	if !ok {
		return
	}
	var in struct {
		Status TaskStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	task, err := h.Svc.MoveTask(r.Context(), id, in.Status)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, task)
}

func (h *Handler) assignTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID", "invalid task id")
	if !ok {
		return
	}
	var in struct {
		AssignedTo *uuid.UUID `json:"assignedTo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", nil)
		return
	}
	task, err := h.Svc.AssignTask(r.Context(), id, in.AssignedTo)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "taskID", "invalid task id")
	if !ok {
		return
	}
	if err := h.Svc.DeleteTask(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ID", msg, nil)
		return uuid.Nil, false
	}
	return id, true
}
