package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tuleapsync/internal/events"
	"tuleapsync/internal/taskdata"
)

// Repo is the local cache of task data and the sync log.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// CachedTask is a task data snapshot as last synchronized.
type CachedTask struct {
	RepositoryURL string
	TaskID        string
	Summary       string
	Status        string
	// Modified is the server modification date; zero when the task has none.
	Modified time.Time
	SyncedAt string
	Data     *taskdata.TaskData
}

// SaveTaskData stores td, replacing any earlier snapshot of the same task.
func (r Repo) SaveTaskData(ctx context.Context, tx *sql.Tx, td *taskdata.TaskData, syncedAt time.Time) error {
	if td.TaskID == "" {
		return fmt.Errorf("save task data: task has no id")
	}
	data, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", td.TaskID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_data(repository_url,task_id,summary,status,modified_at,synced_at,data_json) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(repository_url,task_id) DO UPDATE SET summary=excluded.summary,status=excluded.status,modified_at=excluded.modified_at,synced_at=excluded.synced_at,data_json=excluded.data_json`,
		td.RepositoryURL, td.TaskID, td.Value(taskdata.Summary), statusLabel(td), modifiedMillis(td),
		syncedAt.UTC().Format(time.RFC3339), string(data))
	return err
}

func statusLabel(td *taskdata.TaskData) string {
	attr, ok := td.Attribute(taskdata.Status)
	if !ok {
		return ""
	}
	if label, ok := attr.OptionLabel(attr.Value()); ok {
		return label
	}
	return attr.Value()
}

func modifiedMillis(td *taskdata.TaskData) any {
	ms, err := strconv.ParseInt(td.Value(taskdata.DateModification), 10, 64)
	if err != nil {
		return nil
	}
	return ms
}

const taskColumns = `repository_url,task_id,summary,status,modified_at,synced_at,data_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (CachedTask, error) {
	var (
		t        CachedTask
		modified sql.NullInt64
		data     string
	)
	if err := s.Scan(&t.RepositoryURL, &t.TaskID, &t.Summary, &t.Status, &modified, &t.SyncedAt, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	if modified.Valid {
		t.Modified = time.UnixMilli(modified.Int64)
	}
	t.Data = &taskdata.TaskData{}
	if err := json.Unmarshal([]byte(data), t.Data); err != nil {
		return t, fmt.Errorf("decode cached task %s: %w", t.TaskID, err)
	}
	return t, nil
}

func (r Repo) GetTaskData(ctx context.Context, repositoryURL, taskID string) (CachedTask, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_data WHERE repository_url=? AND task_id=?`, repositoryURL, taskID))
}

// GetTaskDataTx reads within tx so a sync run sees its own writes.
func (r Repo) GetTaskDataTx(ctx context.Context, tx *sql.Tx, repositoryURL, taskID string) (CachedTask, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_data WHERE repository_url=? AND task_id=?`, repositoryURL, taskID))
}

type TaskFilters struct {
	RepositoryURL string
	Status        string
	Limit         int
}

// ListTaskData returns cached tasks, most recently modified first.
func (r Repo) ListTaskData(ctx context.Context, f TaskFilters) ([]CachedTask, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.RepositoryURL != "" {
		clauses = append(clauses, "repository_url=?")
		args = append(args, f.RepositoryURL)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := fmt.Sprintf(`SELECT %s FROM task_data WHERE %s ORDER BY COALESCE(modified_at,0) DESC, task_id`, taskColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CachedTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTaskData(ctx context.Context, repositoryURL, taskID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_data WHERE repository_url=? AND task_id=?`, repositoryURL, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type EventFilters struct {
	RepositoryURL string
	RunID         string
	Type          string
	TaskID        string
	// Cursor returns only events older than the given id when positive.
	Cursor int64
	Limit  int
}

// LatestEvents returns the sync log newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]events.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.RepositoryURL != "" {
		clauses = append(clauses, "repository_url=?")
		args = append(args, f.RepositoryURL)
	}
	if f.RunID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, f.RunID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,run_id,type,repository_url,COALESCE(task_id,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []events.Event
	for rows.Next() {
		var e events.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.RunID, &e.Type, &e.RepositoryURL, &e.TaskID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
