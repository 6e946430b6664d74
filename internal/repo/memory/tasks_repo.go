package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taskhub/taskhub/internal/domain/task"
)

// TasksRepo is an in-memory stand-in for the postgres repository. It mirrors
// the SQL semantics closely enough to back handler tests and local hacking.
type TasksRepo struct {
	mu    sync.RWMutex
	items map[string]task.Task
}

func NewTasksRepo() *TasksRepo {
	return &TasksRepo{
		items: make(map[string]task.Task),
	}
}

func (r *TasksRepo) Create(_ context.Context, userID string, req task.CreateTaskRequest) (task.Task, error) {
	now := time.Now().UTC()
	t := task.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Completed != nil {
		t.Completed = *req.Completed
	}

	r.mu.Lock()
	r.items[t.ID] = t
	r.mu.Unlock()

	return t, nil
}

func (r *TasksRepo) GetByID(_ context.Context, id string) (task.Task, error) {
	r.mu.RLock()
	t, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	return t, nil
}

func (r *TasksRepo) List(_ context.Context, userID string, f task.ListFilter) ([]task.Task, int, error) {
	f = f.WithDefaults()

	r.mu.RLock()
	matched := make([]task.Task, 0, len(r.items))

	for _, t := range r.items {
		if t.UserID != userID {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		if f.Search != nil && *f.Search != "" && !matchesSearch(t, *f.Search) {
			continue
		}
		matched = append(matched, t)
	}
	r.mu.RUnlock()

	sortTasks(matched, f.SortBy, f.SortDirection)

	total := len(matched)

	start := (f.Page - 1) * f.PerPage
	if start >= total {
		return []task.Task{}, total, nil
	}

	end := start + f.PerPage
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func (r *TasksRepo) Count(ctx context.Context, userID string, f task.ListFilter) (int, error) {
	f.Page = 1
	f.PerPage = 0
	_, total, err := r.List(ctx, userID, f)
	return total, err
}

func (r *TasksRepo) Update(_ context.Context, id string, req task.UpdateTaskRequest) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	// a body with nothing to change must not bump updated_at
	if req.Title == nil && req.Description == nil && req.Completed == nil {
		return t, nil
	}

	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	t.UpdatedAt = time.Now().UTC()

	r.items[id] = t

	return t, nil
}

func (r *TasksRepo) Toggle(_ context.Context, id string) (task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	t.Completed = !t.Completed
	t.UpdatedAt = time.Now().UTC()
	r.items[id] = t

	return t, nil
}

func (r *TasksRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[id]
	if !ok {
		return false, nil
	}

	delete(r.items, id)
	return true, nil
}

func matchesSearch(t task.Task, search string) bool {
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(t.Title), needle) ||
		strings.Contains(strings.ToLower(t.Description), needle)
}

func sortTasks(items []task.Task, sortBy, direction string) {
	desc := !strings.EqualFold(direction, "asc")

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]

		var less, equal bool

		switch sortBy {
		case task.SortByTitle:
			less, equal = a.Title < b.Title, a.Title == b.Title
		case task.SortByUpdatedAt:
			less, equal = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}

		// stable tiebreak on id, always ascending
		if equal {
			return a.ID < b.ID
		}
		if desc {
			return !less
		}
		return less
	})
}
