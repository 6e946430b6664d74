package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/config"
	"github.com/taskhub/taskhub/internal/domain/task"
	"github.com/taskhub/taskhub/internal/http/middlewares"
	"github.com/taskhub/taskhub/internal/utils"
)

type TasksStore interface {
	Create(ctx context.Context, userID string, req task.CreateTaskRequest) (task.Task, error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	List(ctx context.Context, userID string, f task.ListFilter) ([]task.Task, int, error)
	Count(ctx context.Context, userID string, f task.ListFilter) (int, error)
	Update(ctx context.Context, id string, req task.UpdateTaskRequest) (task.Task, error)
	Toggle(ctx context.Context, id string) (task.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type TasksHandler struct {
	repo TasksStore
}

func NewTasksHandler(repo TasksStore) *TasksHandler {
	return &TasksHandler{repo: repo}
}

type listTasksQuery struct {
	Completed     *bool   `form:"completed"`
	Search        *string `form:"search" binding:"omitempty,max=255"`
	SortBy        *string `form:"sort_by" binding:"omitempty,oneof=title created_at updated_at"`
	SortDirection *string `form:"sort_direction" binding:"omitempty,oneof=asc desc"`
	PerPage       *int    `form:"per_page" binding:"omitempty,min=5,max=100"`
	Page          *int    `form:"page" binding:"omitempty,min=1"`
}

func (h *TasksHandler) ListTasks(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnauthenticated(ctx)
		return
	}

	var q listTasksQuery

	if !BindQuery(ctx, &q) {
		return
	}

	f := task.ListFilter{
		Completed: q.Completed,
		Search:    q.Search,
	}

	if q.SortBy != nil {
		f.SortBy = *q.SortBy
	}
	if q.SortDirection != nil {
		f.SortDirection = *q.SortDirection
	}
	if q.PerPage != nil {
		f.PerPage = *q.PerPage
	}
	if q.Page != nil {
		f.Page = *q.Page
	}

	f = f.WithDefaults()

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, total, err := h.repo.List(cctx, u.ID, f)

	if err != nil {
		RespondInternal(ctx, "Could not list tasks")
		return
	}

	// a page past the end comes back empty, losing the windowed total
	if len(items) == 0 && f.Page > 1 {
		total, err = h.repo.Count(cctx, u.ID, f)

		if err != nil {
			RespondInternal(ctx, "Could not list tasks")
			return
		}
	}

	payload := utils.Paginate(items, total, f.Page, f.PerPage, ctx.Request.URL.Path)

	RespondJSONWithETag(ctx, http.StatusOK, payload)
}

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnauthenticated(ctx)
		return
	}

	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		RespondFieldError(ctx, "title", "The title field is required.")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	t, err := h.repo.Create(cctx, u.ID, req)

	if err != nil {
		RespondInternal(ctx, "Could not create task")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"data": t})
}

func (h *TasksHandler) GetTaskByID(ctx *gin.Context) {
	t, ok := h.fetchOwned(ctx)

	if !ok {
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"data": t})
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	t, ok := h.fetchOwned(ctx)

	if !ok {
		return
	}

	var req task.UpdateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// "sometimes" semantics: a present-but-blank title is rejected, an
	// absent one leaves the field alone
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		RespondFieldError(ctx, "title", "The title field is required.")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	updated, err := h.repo.Update(cctx, t.ID, req)

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}

		RespondInternal(ctx, "Could not update task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": updated})
}

func (h *TasksHandler) ToggleComplete(ctx *gin.Context) {
	t, ok := h.fetchOwned(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	updated, err := h.repo.Toggle(cctx, t.ID)

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return
		}

		RespondInternal(ctx, "Could not update task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": updated})
}

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	t, ok := h.fetchOwned(ctx)

	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	// the repo reports whether a row actually went away; the task was
	// just fetched, so a false here is a benign race, not an error
	_, err := h.repo.Delete(cctx, t.ID)

	if err != nil {
		RespondInternal(ctx, "Could not delete task")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// fetchOwned loads the task from the path id and enforces ownership.
// Check-then-act: handlers only mutate after this passes.
func (h *TasksHandler) fetchOwned(ctx *gin.Context) (task.Task, bool) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnauthenticated(ctx)
		return task.Task{}, false
	}

	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Task not found")
		return task.Task{}, false
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	t, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			RespondNotFound(ctx, "Task not found")
			return task.Task{}, false
		}

		RespondInternal(ctx, "Could not fetch task")
		return task.Task{}, false
	}

	if !ownerAllowed(u, t) {
		RespondForbidden(ctx)
		return task.Task{}, false
	}

	return t, true
}
