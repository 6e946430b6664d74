package task

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("task not found")

type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"` // owner, never serialized
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description" binding:"omitempty"`
	Completed   *bool  `json:"completed" binding:"omitempty"`
}

// Partial update: nil pointers mean "leave unchanged".
type UpdateTaskRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description" binding:"omitempty"`
	Completed   *bool   `json:"completed" binding:"omitempty"`
}

// Sort fields accepted by List. Anything else is rejected at the edge
// before a query is built.
const (
	SortByTitle     = "title"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
)

// with pointers if optional, it will be nil
type ListFilter struct {
	Completed     *bool
	Search        *string
	SortBy        string
	SortDirection string
	Page          int
	PerPage       int
}

// Defaults mirrors the edge-layer defaults so repo implementations can be
// called directly in tests.
func (f ListFilter) WithDefaults() ListFilter {
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	if f.SortDirection == "" {
		f.SortDirection = "desc"
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage == 0 {
		f.PerPage = 10
	}
	return f
}
