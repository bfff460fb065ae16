package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

// UpcomingDays is the server-side window of ?upcoming=true.
const UpcomingDays = 7

const taskColumns = `id, text, category, priority, due_date, due_time, completed, completed_at, notes, created_at`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tasks persists tasks per user in Postgres.
type Tasks struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Tasks {
	return &Tasks{db: db, now: time.Now}
}

// Ping checks the connection.
func (r *Tasks) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database not initialized")
	}
	return r.db.PingContext(ctx)
}

// List returns the user's live tasks matching f, oldest first.
func (r *Tasks) List(ctx context.Context, userID string, f models.FetchFilter) ([]models.Task, error) {
	q, args := listQuery(userID, f, models.DateOf(r.now()))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		logger.Error(ctx, "Repository List failed", "error", err)
		return nil, err
	}
	defer rows.Close()
	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error(ctx, "Repository scan task failed", "error", err)
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func listQuery(userID string, f models.FetchFilter, today models.Date) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE deleted_at IS NULL AND user_id = $1`)
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Category != "" {
		b.WriteString(" AND category = " + arg(f.Category))
	}
	if f.Completed != nil {
		b.WriteString(" AND completed = " + arg(*f.Completed))
	}
	if f.DueDate != nil {
		b.WriteString(" AND due_date = " + arg(*f.DueDate))
	}
	if f.Upcoming {
		b.WriteString(" AND due_date BETWEEN " + arg(today) + " AND " + arg(today.AddDays(UpcomingDays)))
	}
	b.WriteString(" ORDER BY created_at, id")
	return b.String(), args
}

// Get returns one live task.
func (r *Tasks) Get(ctx context.Context, userID, id string) (models.Task, error) {
	return get(ctx, r.db, userID, id, false)
}

// Create stores a task built from p with a fresh id.
func (r *Tasks) Create(ctx context.Context, userID string, p models.TaskPatch) (models.Task, error) {
	return create(ctx, r.db, userID, p, r.now())
}

// Update merges p into the stored task inside a transaction.
func (r *Tasks) Update(ctx context.Context, userID, id string, p models.TaskPatch) (models.Task, error) {
	var out models.Task
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		t, err := update(ctx, tx, userID, id, p, r.now())
		out = t
		return err
	})
	return out, err
}

// Delete soft deletes a task.
func (r *Tasks) Delete(ctx context.Context, userID, id string) error {
	return softDelete(ctx, r.db, userID, id, r.now())
}

// ApplyBatch runs ops in one transaction. Operations naming a task the user
// doesn't own, or that fail validation, are skipped and counted.
func (r *Tasks) ApplyBatch(ctx context.Context, userID string, ops []models.BatchOperation) (models.BatchResult, error) {
	res := models.BatchResult{Success: true, IDMapping: map[string]string{}}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		for i, op := range ops {
			var err error
			switch op.Type {
			case models.BatchCreate:
				var t models.Task
				if t, err = create(ctx, tx, userID, op.Data, now); err == nil && op.TempID != "" {
					res.IDMapping[op.TempID] = t.ID
				}
			case models.BatchUpdate:
				_, err = update(ctx, tx, userID, op.ID, op.Data, now)
			case models.BatchDelete:
				err = softDelete(ctx, tx, userID, op.ID, now)
			default:
				err = &models.FieldError{Field: "type", Reason: fmt.Sprintf("unknown operation %q", op.Type)}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) {
				logger.Warn(ctx, "Batch operation skipped", "index", i, "type", op.Type, "id", op.ID, "error", err)
				res.Skipped++
				continue
			}
			return fmt.Errorf("batch op %d (%s): %w", i, op.Type, err)
		}
		return nil
	})
	if err != nil {
		return models.BatchResult{}, err
	}
	return res, nil
}

func (r *Tasks) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func get(ctx context.Context, q queryer, userID, id string, forUpdate bool) (models.Task, error) {
	stmt := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	if forUpdate {
		stmt += " FOR UPDATE"
	}
	t, err := scanTask(q.QueryRowContext(ctx, stmt, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.ErrNotFound
	}
	return t, err
}

func create(ctx context.Context, q queryer, userID string, p models.TaskPatch, now time.Time) (models.Task, error) {
	if p.Text == nil {
		return models.Task{}, &models.FieldError{Field: "text", Reason: "is required"}
	}
	if err := p.Validate(); err != nil {
		return models.Task{}, err
	}
	// id and created_at are assigned here, never by the caller.
	p.ID, p.CreatedAt = "", nil
	t := p.NewTask(uuid.New().String(), now)
	_, err := q.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, text, category, priority, due_date, due_time, completed, completed_at, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, userID, t.Text, t.Category, string(t.Priority), t.DueDate, t.DueTime,
		t.Completed, nullTime(t.CompletedAt), t.Notes, t.CreatedAt.Time, now)
	if err != nil {
		logger.Error(ctx, "Repository Create failed", "error", err)
		return models.Task{}, err
	}
	return t, nil
}

func update(ctx context.Context, q queryer, userID, id string, p models.TaskPatch, now time.Time) (models.Task, error) {
	if err := p.Validate(); err != nil {
		return models.Task{}, err
	}
	t, err := get(ctx, q, userID, id, true)
	if err != nil {
		return models.Task{}, err
	}
	p.Apply(&t, now)
	_, err = q.ExecContext(ctx,
		`UPDATE tasks SET text = $1, category = $2, priority = $3, due_date = $4, due_time = $5,
		 completed = $6, completed_at = $7, notes = $8, updated_at = $9
		 WHERE id = $10 AND user_id = $11`,
		t.Text, t.Category, string(t.Priority), t.DueDate, t.DueTime,
		t.Completed, nullTime(t.CompletedAt), t.Notes, now, id, userID)
	if err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Task{}, err
	}
	return t, nil
}

func softDelete(ctx context.Context, q queryer, userID, id string, now time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE tasks SET deleted_at = $1 WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL`, now, id, userID)
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (models.Task, error) {
	var (
		t           models.Task
		priority    string
		dueDate     sql.NullTime
		dueTime     sql.NullString
		completedAt sql.NullTime
		notes       sql.NullString
		createdAt   time.Time
	)
	if err := s.Scan(&t.ID, &t.Text, &t.Category, &priority, &dueDate, &dueTime,
		&t.Completed, &completedAt, &notes, &createdAt); err != nil {
		return models.Task{}, err
	}
	t.Priority = models.ParsePriority(priority)
	if dueDate.Valid {
		d := models.DateOf(dueDate.Time)
		t.DueDate = &d
	}
	if dueTime.Valid {
		t.DueTime = &dueTime.String
	}
	if completedAt.Valid {
		t.CompletedAt = models.TimestampPtr(completedAt.Time)
	}
	if notes.Valid {
		t.Notes = &notes.String
	}
	t.CreatedAt = models.NewTimestamp(createdAt)
	return t, nil
}

func nullTime(ts *models.Timestamp) sql.NullTime {
	if ts == nil || ts.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ts.Time, Valid: true}
}
