package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types written by a synchronization run.
const (
	TypeQueryStarted   = "query.started"
	TypeQueryCompleted = "query.completed"
	TypeTaskCached     = "task.cached"
	TypeTaskUnchanged  = "task.unchanged"
	TypeTaskFailed     = "task.failed"
	TypeTaskPosted     = "task.posted"
)

type Payload map[string]any

// Event is one line of the sync log.
type Event struct {
	ID            int64
	TS            string
	RunID         string
	Type          string
	RepositoryURL string
	TaskID        string
	Payload       string
}

// Writer appends to the sync log on behalf of one run. Events written by
// the same Writer share its RunID.
type Writer struct {
	RepositoryURL string
	RunID         string
	Now           func() time.Time
}

// NewWriter starts a run with a fresh id.
func NewWriter(repositoryURL string) Writer {
	return Writer{RepositoryURL: repositoryURL, RunID: uuid.NewString(), Now: time.Now}
}

// Append writes one event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, taskID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if w.RunID == "" {
		return fmt.Errorf("append %s: writer has no run id", evtType)
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,run_id,type,repository_url,task_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, w.RunID, evtType, w.RepositoryURL, nullable(taskID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
