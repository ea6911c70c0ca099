package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"tuleapsync/internal/connector"
	"tuleapsync/internal/events"
	"tuleapsync/internal/repo"
	"tuleapsync/internal/rest"
	"tuleapsync/internal/taskdata"
)

// Source is the repository side of a synchronization.
type Source interface {
	GetTaskData(ctx context.Context, taskID string) (*taskdata.TaskData, error)
	PostTaskData(ctx context.Context, td *taskdata.TaskData) (connector.PostResult, error)
	PerformQuery(ctx context.Context, q connector.Query, collector connector.Collector) (connector.QueryResult, error)
}

// Importer reads tasks from a saved SOAP getArtifacts response.
type Importer interface {
	ImportSOAP(ctx context.Context, r io.Reader, collector connector.Collector) (connector.QueryResult, error)
}

var (
	_ Source   = (*connector.Connector)(nil)
	_ Importer = (*connector.Connector)(nil)
)

// Engine keeps the local cache of one repository in step with the server
// and logs every run.
type Engine struct {
	DB            *sql.DB
	Repo          repo.Repo
	Source        Source
	RepositoryURL string
	Now           func() time.Time
}

func New(db *sql.DB, repositoryURL string, src Source) Engine {
	return Engine{
		DB:            db,
		Repo:          repo.Repo{DB: db},
		Source:        src,
		RepositoryURL: repositoryURL,
		Now:           time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) writer() events.Writer {
	w := events.NewWriter(e.RepositoryURL)
	w.Now = e.now
	return w
}

// SyncReport summarizes one query run.
type SyncReport struct {
	RunID     string
	Cached    []string
	Unchanged []string
	Failures  []connector.Failure
}

// SyncQuery runs q and caches every task whose modification date differs
// from the cached one. Tasks that failed to convert are logged, not cached.
func (e Engine) SyncQuery(ctx context.Context, name string, q connector.Query) (SyncReport, error) {
	started := events.Payload{"query": name, "title": q.Title, "kind": q.Kind()}
	return e.sync(ctx, name, started, func(c connector.Collector) (connector.QueryResult, error) {
		return e.Source.PerformQuery(ctx, q, c)
	})
}

// ImportSOAP caches the artifacts of a saved SOAP response the way
// SyncQuery caches query results. The run is logged under name.
func (e Engine) ImportSOAP(ctx context.Context, name string, r io.Reader) (SyncReport, error) {
	imp, ok := e.Source.(Importer)
	if !ok {
		return SyncReport{}, errors.New("source cannot import SOAP responses")
	}
	started := events.Payload{"query": name, "kind": "SOAP_IMPORT"}
	return e.sync(ctx, name, started, func(c connector.Collector) (connector.QueryResult, error) {
		return imp.ImportSOAP(ctx, r, c)
	})
}

func (e Engine) sync(ctx context.Context, name string, started events.Payload, run func(connector.Collector) (connector.QueryResult, error)) (SyncReport, error) {
	w := e.writer()
	report := SyncReport{RunID: w.RunID}
	var tasks []*taskdata.TaskData
	res, qerr := run(connector.CollectorFunc(func(td *taskdata.TaskData) {
		tasks = append(tasks, td)
	}))
	if qerr != nil {
		var canceled *rest.CanceledError
		if errors.As(qerr, &canceled) {
			return report, qerr
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, events.TypeQueryStarted, "", started); err != nil {
		return report, err
	}
	if qerr != nil {
		if err := w.Append(ctx, tx, events.TypeQueryCompleted, "", events.Payload{"query": name, "error": qerr.Error()}); err != nil {
			return report, err
		}
		if err := tx.Commit(); err != nil {
			return report, err
		}
		return report, fmt.Errorf("sync %s: %w", name, qerr)
	}

	for _, td := range tasks {
		cached, err := e.Repo.GetTaskDataTx(ctx, tx, e.RepositoryURL, td.TaskID)
		switch {
		case err == nil && !cached.Modified.IsZero() && !connector.HasTaskChanged(cached.Modified, td):
			if err := w.Append(ctx, tx, events.TypeTaskUnchanged, td.TaskID, nil); err != nil {
				return report, err
			}
			report.Unchanged = append(report.Unchanged, td.TaskID)
			continue
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return report, err
		}
		if err := e.Repo.SaveTaskData(ctx, tx, td, e.now()); err != nil {
			return report, fmt.Errorf("cache %s: %w", td.TaskID, err)
		}
		if err := w.Append(ctx, tx, events.TypeTaskCached, td.TaskID, events.Payload{"summary": td.Value(taskdata.Summary)}); err != nil {
			return report, err
		}
		report.Cached = append(report.Cached, td.TaskID)
	}
	for _, f := range res.Failures {
		if err := w.Append(ctx, tx, events.TypeTaskFailed, "", events.Payload{"artifact_id": f.ArtifactID, "error": f.Err.Error()}); err != nil {
			return report, err
		}
	}
	report.Failures = res.Failures
	if err := w.Append(ctx, tx, events.TypeQueryCompleted, "", events.Payload{
		"query":     name,
		"cached":    len(report.Cached),
		"unchanged": len(report.Unchanged),
		"failed":    len(report.Failures),
	}); err != nil {
		return report, err
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

// SyncTask fetches one task and caches it.
func (e Engine) SyncTask(ctx context.Context, taskID string) (*taskdata.TaskData, error) {
	td, err := e.Source.GetTaskData(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.store(ctx, td, events.TypeTaskCached, events.Payload{"summary": td.Value(taskdata.Summary)}); err != nil {
		return nil, err
	}
	return td, nil
}

// PostTask publishes td and caches the task as the server now has it.
func (e Engine) PostTask(ctx context.Context, td *taskdata.TaskData) (connector.PostResult, error) {
	res, err := e.Source.PostTaskData(ctx, td)
	if err != nil {
		return res, err
	}
	fresh, err := e.Source.GetTaskData(ctx, res.TaskID)
	if err != nil {
		return res, fmt.Errorf("refresh %s after post: %w", res.TaskID, err)
	}
	if err := e.store(ctx, fresh, events.TypeTaskPosted, events.Payload{"kind": string(res.Kind)}); err != nil {
		return res, err
	}
	return res, nil
}

func (e Engine) store(ctx context.Context, td *taskdata.TaskData, evtType string, payload events.Payload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveTaskData(ctx, tx, td, e.now()); err != nil {
		return fmt.Errorf("cache %s: %w", td.TaskID, err)
	}
	if err := e.writer().Append(ctx, tx, evtType, td.TaskID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
