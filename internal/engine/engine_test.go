package engine_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"tuleapsync/internal/connector"
	"tuleapsync/internal/db"
	"tuleapsync/internal/domain"
	"tuleapsync/internal/engine"
	"tuleapsync/internal/events"
	"tuleapsync/internal/migrate"
	"tuleapsync/internal/repo"
	"tuleapsync/internal/taskdata"
)

const repoURL = "https://tuleap.example.com"

type fakeSource struct {
	tasks    map[string]*taskdata.TaskData
	failures []connector.Failure
	queryErr error
	posted   []*taskdata.TaskData
}

func newFakeSource() *fakeSource {
	return &fakeSource{tasks: map[string]*taskdata.TaskData{}}
}

func (f *fakeSource) put(artifact int, summary string, modified int64) string {
	id := domain.ForArtifact(3, 42, artifact).String()
	td := taskdata.New(domain.ConnectorKind, repoURL, id)
	td.CreateAttribute(taskdata.Summary).SetValue(summary)
	td.CreateAttribute(taskdata.DateModification).SetValue(strconv.FormatInt(modified, 10))
	f.tasks[id] = td
	return id
}

func (f *fakeSource) GetTaskData(_ context.Context, taskID string) (*taskdata.TaskData, error) {
	td, ok := f.tasks[taskID]
	if !ok {
		return nil, errors.New("no such task")
	}
	return td, nil
}

func (f *fakeSource) PostTaskData(_ context.Context, td *taskdata.TaskData) (connector.PostResult, error) {
	f.posted = append(f.posted, td)
	if td.IsNew() {
		id := f.put(100, td.Value(taskdata.Summary), 1_700_000_900_000)
		return connector.PostResult{TaskID: id, Kind: connector.PostCreated}, nil
	}
	return connector.PostResult{TaskID: td.TaskID, Kind: connector.PostUpdated}, nil
}

func (f *fakeSource) PerformQuery(_ context.Context, _ connector.Query, c connector.Collector) (connector.QueryResult, error) {
	if f.queryErr != nil {
		return connector.QueryResult{}, f.queryErr
	}
	for _, td := range f.tasks {
		c.Accept(td)
	}
	return connector.QueryResult{Collected: len(f.tasks), Failures: f.failures}, nil
}

type testEnv struct {
	Engine engine.Engine
	Source *fakeSource
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	src := newFakeSource()
	eng := engine.New(conn, repoURL, src)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Source: src, Ctx: context.Background()}
}

func eventTypes(t *testing.T, env testEnv, runID string) []string {
	t.Helper()
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{RunID: runID})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var types []string
	for i := len(evts) - 1; i >= 0; i-- {
		types = append(types, evts[i].Type)
	}
	return types
}

func TestSyncQueryCachesOnlyChangedTasks(t *testing.T) {
	env := newTestEnv(t)
	first := env.Source.put(7, "Crash on save", 1_700_000_000_000)
	env.Source.put(8, "Slow export", 1_700_000_100_000)

	report, err := env.Engine.SyncQuery(env.Ctx, "bugs", connector.Query{Title: "Bugs"})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if len(report.Cached) != 2 || len(report.Unchanged) != 0 {
		t.Fatalf("unexpected first report %+v", report)
	}

	env.Source.put(7, "Crash on save (again)", 1_700_000_200_000)
	report, err = env.Engine.SyncQuery(env.Ctx, "bugs", connector.Query{Title: "Bugs"})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(report.Cached) != 1 || report.Cached[0] != first || len(report.Unchanged) != 1 {
		t.Fatalf("unexpected second report %+v", report)
	}
	cached, err := env.Engine.Repo.GetTaskData(env.Ctx, repoURL, first)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if cached.Summary != "Crash on save (again)" || cached.Data.Value(taskdata.Summary) != cached.Summary {
		t.Fatalf("cache not refreshed: %+v", cached)
	}
	types := eventTypes(t, env, report.RunID)
	if len(types) != 4 || types[0] != events.TypeQueryStarted || types[3] != events.TypeQueryCompleted {
		t.Fatalf("unexpected run events %v", types)
	}
}

func TestSyncQueryLogsFailures(t *testing.T) {
	env := newTestEnv(t)
	env.Source.failures = []connector.Failure{{ArtifactID: 9, Err: errors.New("tracker gone")}}
	report, err := env.Engine.SyncQuery(env.Ctx, "bugs", connector.Query{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{RunID: report.RunID, Type: events.TypeTaskFailed})
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected one failure event, got %d (%v)", len(evts), err)
	}
}

func TestFailedQueryIsLogged(t *testing.T) {
	env := newTestEnv(t)
	env.Source.queryErr = errors.New("server down")
	report, err := env.Engine.SyncQuery(env.Ctx, "bugs", connector.Query{})
	if err == nil {
		t.Fatalf("expected error")
	}
	types := eventTypes(t, env, report.RunID)
	if len(types) != 2 || types[1] != events.TypeQueryCompleted {
		t.Fatalf("unexpected run events %v", types)
	}
}

func TestPostTaskRefreshesCache(t *testing.T) {
	env := newTestEnv(t)
	td := taskdata.New(domain.ConnectorKind, repoURL, "")
	td.CreateAttribute(taskdata.Summary).SetValue("New bug")
	res, err := env.Engine.PostTask(env.Ctx, td)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Kind != connector.PostCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	cached, err := env.Engine.Repo.GetTaskData(env.Ctx, repoURL, res.TaskID)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if cached.Modified.UnixMilli() != 1_700_000_900_000 {
		t.Fatalf("unexpected modification date %v", cached.Modified)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{TaskID: res.TaskID})
	if err != nil || len(evts) != 1 || evts[0].Type != events.TypeTaskPosted {
		t.Fatalf("unexpected events %+v (%v)", evts, err)
	}
}

func TestSyncTaskPropagatesErrors(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SyncTask(env.Ctx, "3:42#1"); err == nil {
		t.Fatalf("expected error for unknown task")
	}
	if _, err := env.Engine.Repo.GetTaskData(env.Ctx, repoURL, "3:42#1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected nothing cached, got %v", err)
	}
}

type importingSource struct {
	*fakeSource
	read string
}

func (s *importingSource) ImportSOAP(ctx context.Context, r io.Reader, c connector.Collector) (connector.QueryResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return connector.QueryResult{}, err
	}
	s.read = string(raw)
	return s.PerformQuery(ctx, connector.Query{}, c)
}

func TestImportSOAPCachesTasks(t *testing.T) {
	env := newTestEnv(t)
	src := &importingSource{fakeSource: env.Source}
	env.Engine.Source = src
	id := env.Source.put(7, "Crash on save", 1_700_000_000_000)

	report, err := env.Engine.ImportSOAP(env.Ctx, "dump.xml", strings.NewReader("<dump/>"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if src.read != "<dump/>" {
		t.Fatalf("source read %q", src.read)
	}
	if len(report.Cached) != 1 || report.Cached[0] != id {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := env.Engine.Repo.GetTaskData(env.Ctx, repoURL, id); err != nil {
		t.Fatalf("task not cached: %v", err)
	}
	got := eventTypes(t, env, report.RunID)
	want := []string{events.TypeQueryStarted, events.TypeTaskCached, events.TypeQueryCompleted}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestImportSOAPNeedsImporter(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ImportSOAP(env.Ctx, "dump.xml", strings.NewReader("")); err == nil {
		t.Fatalf("expected an error for a source without SOAP support")
	}
}
