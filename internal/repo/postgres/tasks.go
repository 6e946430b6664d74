package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskhub/taskhub/internal/domain/task"
	"github.com/taskhub/taskhub/internal/observability"
)

type TasksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

// constructor function

func NewTasksRepo(pool *pgxpool.Pool, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{pool: pool, prom: prom}
}

func (r *TasksRepo) observe(op string, fn func() error) error {
	if r.prom == nil {
		return fn()
	}
	return r.prom.ObserveDB(op, fn)
}

// sort columns must come from this whitelist, never from caller input
var sortColumns = map[string]string{
	task.SortByTitle:     "title",
	task.SortByCreatedAt: "created_at",
	task.SortByUpdatedAt: "updated_at",
}

func (r *TasksRepo) Create(ctx context.Context, userID string, req task.CreateTaskRequest) (task.Task, error) {
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

	err := r.observe("tasks.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO tasks (id, user_id, title, description, completed, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			t.ID, t.UserID, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt,
		)
		return err
	})

	if err != nil {
		return task.Task{}, err
	}

	return t, nil
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	var t task.Task

	err := r.observe("tasks.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, user_id, title, description, completed, created_at, updated_at
			 FROM tasks WHERE id = $1`,
			id,
		).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}

	return t, nil
}

func (r *TasksRepo) List(ctx context.Context, userID string, f task.ListFilter) ([]task.Task, int, error) {
	f = f.WithDefaults()

	baseQuery :=
		`SELECT id,
		user_id,
		title,
		description,
		completed,
		created_at,
		updated_at,
		COUNT(*) OVER() AS TOTAL
	FROM tasks
	`

	conds := []string{"user_id = $1"}
	args := []interface{}{userID}

	argsPosition := 2

	// filtered conditional checks.
	if f.Completed != nil {
		conds = append(conds, fmt.Sprintf("completed = $%d", argsPosition))
		args = append(args, *f.Completed)
		argsPosition++
	}

	// search hits title OR description, case-insensitive substring
	if f.Search != nil && *f.Search != "" {
		pattern := "%" + escapeLike(*f.Search) + "%"
		conds = append(conds, fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, argsPosition, argsPosition))
		args = append(args, pattern)
		argsPosition++
	}

	query := baseQuery + " WHERE " + strings.Join(conds, " AND ")

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}

	direction := "DESC"
	if strings.EqualFold(f.SortDirection, "asc") {
		direction = "ASC"
	}

	// stable ordering for pagination
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d", column, direction, argsPosition, argsPosition+1)

	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	output := make([]task.Task, 0, f.PerPage)
	total := 0

	err := r.observe("tasks.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)

		if err != nil {
			return err
		}

		defer rows.Close()

		for rows.Next() {
			var t task.Task
			var n int

			err = rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt, &n)

			if err != nil {
				return err
			}

			total = n
			output = append(output, t)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, 0, err
	}

	return output, total, nil
}

// Count is used when the requested page is past the end: the window total
// is lost because no rows come back.
func (r *TasksRepo) Count(ctx context.Context, userID string, f task.ListFilter) (int, error) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}

	argsPosition := 2

	if f.Completed != nil {
		conds = append(conds, fmt.Sprintf("completed = $%d", argsPosition))
		args = append(args, *f.Completed)
		argsPosition++
	}

	if f.Search != nil && *f.Search != "" {
		pattern := "%" + escapeLike(*f.Search) + "%"
		conds = append(conds, fmt.Sprintf(`(title ILIKE $%d ESCAPE '\' OR description ILIKE $%d ESCAPE '\')`, argsPosition, argsPosition))
		args = append(args, pattern)
	}

	query := `SELECT COUNT(*) FROM tasks WHERE ` + strings.Join(conds, " AND ")

	total := 0

	err := r.observe("tasks.count", func() error {
		return r.pool.QueryRow(ctx, query, args...).Scan(&total)
	})

	if err != nil {
		return 0, err
	}

	return total, nil
}

func (r *TasksRepo) Update(ctx context.Context, id string, req task.UpdateTaskRequest) (task.Task, error) {
	// a body with nothing to change must not bump updated_at
	if req.Title == nil && req.Description == nil && req.Completed == nil {
		return r.GetByID(ctx, id)
	}

	var t task.Task

	err := r.observe("tasks.update", func() error {
		// nil arguments leave the column untouched
		return r.pool.QueryRow(
			ctx,
			`UPDATE tasks
				SET title = COALESCE($2, title),
						description = COALESCE($3, description),
						completed = COALESCE($4, completed),
						updated_at = NOW()
			WHERE id = $1
			RETURNING id, user_id, title, description, completed, created_at, updated_at`,
			id,
			req.Title,
			req.Description,
			req.Completed,
		).Scan(
			&t.ID,
			&t.UserID,
			&t.Title,
			&t.Description,
			&t.Completed,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
	})

	if err != nil {
		// if there are no rows matching the id
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		// if it is any other type of error
		return task.Task{}, err
	}

	return t, nil
}

// Toggle flips completion in a single statement so the read-modify-write
// cannot race with a concurrent update.
func (r *TasksRepo) Toggle(ctx context.Context, id string) (task.Task, error) {
	var t task.Task

	err := r.observe("tasks.toggle", func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE tasks
				SET completed = NOT completed,
						updated_at = NOW()
			WHERE id = $1
			RETURNING id, user_id, title, description, completed, created_at, updated_at`,
			id,
		).Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}

	return t, nil
}

// Delete reports whether a row was actually removed; deleting a task that
// is already gone is a benign no-op at this layer.
func (r *TasksRepo) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false

	err := r.observe("tasks.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)

		if err != nil {
			return err
		}

		deleted = tag.RowsAffected() > 0
		return nil
	})

	if err != nil {
		return false, err
	}

	return deleted, nil
}

// escapeLike neutralizes LIKE metacharacters in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
