package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"focusbot/internal/tasks"
	"focusbot/pkg/logx"
)

// Repository implements tasks.Repository over SQLite or PostgreSQL. Queries
// are written with ? placeholders and rebound for the active driver.
type Repository struct {
	db  *sqlx.DB
	log logx.Logger
	now func() time.Time
}

var _ tasks.Repository = (*Repository)(nil)

func newRepository(db *sqlx.DB, log logx.Logger) *Repository {
	return &Repository{db: db, log: log, now: time.Now}
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

type taskRow struct {
	ID       int64          `db:"id"`
	UserID   int64          `db:"user_id"`
	Title    string         `db:"title"`
	Planned  int64          `db:"planned_seconds"`
	Spent    int64          `db:"spent_seconds"`
	Day      string         `db:"day"`
	Status   string         `db:"status"`
	Score    sql.NullInt64  `db:"score"`
	Category sql.NullString `db:"category"`
}

const taskColumns = `id, user_id, title, planned_seconds, spent_seconds, day, status, score, category`

func (row taskRow) task() (tasks.Task, error) {
	day, err := time.Parse(tasks.DayLayout, row.Day)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("task %d: bad day %q: %w", row.ID, row.Day, err)
	}
	t := tasks.Task{
		ID:             row.ID,
		UserID:         row.UserID,
		Title:          row.Title,
		PlannedSeconds: row.Planned,
		SpentSeconds:   row.Spent,
		Date:           day,
		Status:         tasks.Status(row.Status),
	}
	if row.Score.Valid {
		v := int(row.Score.Int64)
		t.Score = &v
	}
	if row.Category.Valid {
		v := row.Category.String
		t.Category = &v
	}
	return t, nil
}

func dayString(t time.Time) string { return tasks.Day(t).Format(tasks.DayLayout) }

func (r *Repository) CreateTask(ctx context.Context, in tasks.NewTask) (tasks.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return tasks.Task{}, err
	}
	var category any
	if in.Category != nil {
		category = *in.Category
	}

	q := r.db.Rebind(`INSERT INTO tasks(user_id, title, planned_seconds, spent_seconds, day, status, category, created_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err := r.db.QueryRowxContext(ctx, q,
		in.UserID, in.Title, in.PlannedSeconds, dayString(in.Date), string(tasks.StatusPlanned), category, r.now().Unix(),
	).Scan(&id)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return tasks.Task{
		ID:             id,
		UserID:         in.UserID,
		Title:          in.Title,
		PlannedSeconds: in.PlannedSeconds,
		Date:           tasks.Day(in.Date),
		Status:         tasks.StatusPlanned,
		Category:       in.Category,
	}, nil
}

func (r *Repository) GetTask(ctx context.Context, ownerID, taskID int64) (tasks.Task, error) {
	q := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?`)
	var row taskRow
	if err := r.db.GetContext(ctx, &row, q, taskID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasks.Task{}, tasks.ErrNotFound
		}
		return tasks.Task{}, fmt.Errorf("get task: %w", err)
	}
	return row.task()
}

func (r *Repository) ListTasksForDate(ctx context.Context, ownerID int64, day time.Time) ([]tasks.Task, error) {
	return r.ListTasksForDateRange(ctx, ownerID, day, day)
}

func (r *Repository) ListTasksForDateRange(ctx context.Context, ownerID int64, from, to time.Time) ([]tasks.Task, error) {
	q := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC, id ASC`)
	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, q, ownerID, dayString(from), dayString(to)); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]tasks.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ListTasksByStatus returns every owner's tasks in one status.
func (r *Repository) ListTasksByStatus(ctx context.Context, status tasks.Status) ([]tasks.Task, error) {
	q := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY id ASC`)
	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, q, string(status)); err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	out := make([]tasks.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.task()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, ownerID, taskID int64, status tasks.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", tasks.ErrInvalidInput, status)
	}
	q := r.db.Rebind(`UPDATE tasks SET status = ? WHERE id = ? AND user_id = ?`)
	return r.execOne(ctx, "update status", q, string(status), taskID, ownerID)
}

func (r *Repository) UpdateSpentSeconds(ctx context.Context, ownerID, taskID, spent int64) error {
	q := r.db.Rebind(`UPDATE tasks
		SET spent_seconds = CASE WHEN ? > spent_seconds THEN ? ELSE spent_seconds END
		WHERE id = ? AND user_id = ?`)
	return r.execOne(ctx, "update spent", q, spent, spent, taskID, ownerID)
}

func (r *Repository) UpdatePlannedSeconds(ctx context.Context, ownerID, taskID, planned int64) error {
	if planned <= 0 {
		return fmt.Errorf("%w: planned seconds must be positive", tasks.ErrInvalidInput)
	}
	q := r.db.Rebind(`UPDATE tasks SET planned_seconds = ? WHERE id = ? AND user_id = ?`)
	return r.execOne(ctx, "update planned", q, planned, taskID, ownerID)
}

func (r *Repository) DeleteTasksBefore(ctx context.Context, day time.Time) (int64, error) {
	q := r.db.Rebind(`DELETE FROM tasks WHERE day < ?`)
	res, err := r.db.ExecContext(ctx, q, dayString(day))
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) execOne(ctx context.Context, op, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

type userRow struct {
	ID         int64  `db:"id"`
	TelegramID int64  `db:"telegram_id"`
	Timezone   string `db:"timezone"`
	CreatedAt  int64  `db:"created_at"`
}

func (row userRow) user() tasks.User {
	return tasks.User{
		ID:         row.ID,
		TelegramID: row.TelegramID,
		Timezone:   row.Timezone,
		CreatedAt:  time.Unix(row.CreatedAt, 0).UTC(),
	}
}

func (r *Repository) ListUsers(ctx context.Context) ([]tasks.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, telegram_id, timezone, created_at FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]tasks.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.user())
	}
	return out, nil
}

func (r *Repository) GetUser(ctx context.Context, userID int64) (tasks.User, error) {
	q := r.db.Rebind(`SELECT id, telegram_id, timezone, created_at FROM users WHERE id = ?`)
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasks.User{}, tasks.ErrNotFound
		}
		return tasks.User{}, fmt.Errorf("get user: %w", err)
	}
	return row.user(), nil
}

// EnsureUser registers a Telegram account on first contact and returns the
// existing row afterwards. The timezone of an existing user is kept.
func (r *Repository) EnsureUser(ctx context.Context, telegramID int64, timezone string) (tasks.User, error) {
	if telegramID == 0 {
		return tasks.User{}, fmt.Errorf("%w: telegram id required", tasks.ErrInvalidInput)
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	ins := r.db.Rebind(`INSERT INTO users(telegram_id, timezone, created_at) VALUES (?, ?, ?)
		ON CONFLICT (telegram_id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, ins, telegramID, timezone, r.now().Unix()); err != nil {
		return tasks.User{}, fmt.Errorf("ensure user: %w", err)
	}
	sel := r.db.Rebind(`SELECT id, telegram_id, timezone, created_at FROM users WHERE telegram_id = ?`)
	var row userRow
	if err := r.db.GetContext(ctx, &row, sel, telegramID); err != nil {
		return tasks.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return row.user(), nil
}
