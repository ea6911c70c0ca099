package connector_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"tuleapsync/internal/connector"
	"tuleapsync/internal/domain"
	"tuleapsync/internal/rest"
	"tuleapsync/internal/taskdata"
)

const (
	repoURL = "https://tuleap.example.com"

	projectID    = 3
	trackerID    = 42
	fieldTitle   = 1
	fieldStatus  = 2
	statusOpen   = 10
	statusClosed = 11
)

type fakeAPI struct {
	trackers  map[int]*domain.Tracker
	artifacts map[int]*domain.Artifact
	comments  map[int][]domain.Comment
	reports   map[int][]int
	plannings map[int][]domain.TopPlanning

	commentErr   error
	trackerCalls int
	created      []*domain.Artifact
	updated      []*domain.Artifact
	lastCriteria map[string][]string
}

func newFakeAPI() *fakeAPI {
	tr := domain.NewTracker(trackerID, "Bugs")
	tr.ItemName = "bug"
	tr.Project = domain.Ref{ID: projectID}
	_ = tr.AddField(&domain.StringField{FieldBase: domain.FieldBase{ID: fieldTitle, Name: "summary", Label: "Summary", Role: domain.RoleTitle}})
	_ = tr.AddField(&domain.SelectBoxField{
		FieldBase:  domain.FieldBase{ID: fieldStatus, Name: "status", Label: "Status", Role: domain.RoleStatus},
		Items:      []domain.SelectItem{{ID: statusOpen, Label: "Open"}, {ID: statusClosed, Label: "Closed"}},
		OpenStatus: []int{statusOpen},
	})
	return &fakeAPI{
		trackers:  map[int]*domain.Tracker{trackerID: tr},
		artifacts: map[int]*domain.Artifact{},
		comments:  map[int][]domain.Comment{},
		reports:   map[int][]int{},
		plannings: map[int][]domain.TopPlanning{},
	}
}

func (f *fakeAPI) addArtifact(id, tracker int, title string, status int) {
	a := domain.NewArtifact(id, domain.Ref{ID: tracker}, domain.Ref{})
	a.SubmittedOn = time.UnixMilli(1_700_000_000_000)
	a.LastModified = time.UnixMilli(1_700_000_500_000)
	a.SetValue(domain.LiteralValue{Field: fieldTitle, Value: title})
	a.SetValue(domain.BoundValue{Field: fieldStatus, ValueIDs: []int{status}})
	f.artifacts[id] = a
}

func (f *fakeAPI) Tracker(ctx context.Context, id int) (*domain.Tracker, error) {
	f.trackerCalls++
	tr, ok := f.trackers[id]
	if !ok {
		return nil, &rest.ServerError{Status: 404, Code: 404, Message: "tracker not found", Parsed: true}
	}
	return tr, nil
}

func (f *fakeAPI) Artifact(ctx context.Context, id int) (*domain.Artifact, error) {
	a, ok := f.artifacts[id]
	if !ok {
		return nil, &rest.ServerError{Status: 404, Parsed: true}
	}
	return a.Clone(), nil
}

func (f *fakeAPI) ArtifactComments(ctx context.Context, id int) ([]domain.Comment, error) {
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	return f.comments[id], nil
}

func (f *fakeAPI) ReportArtifacts(ctx context.Context, reportID int) ([]*domain.Artifact, error) {
	var out []*domain.Artifact
	for _, id := range f.reports[reportID] {
		out = append(out, f.artifacts[id].Clone())
	}
	return out, nil
}

func (f *fakeAPI) QueryArtifacts(ctx context.Context, tracker int, criteria map[string][]string) ([]*domain.Artifact, error) {
	f.lastCriteria = criteria
	var out []*domain.Artifact
	for id := 1; id <= len(f.artifacts); id++ {
		if a, ok := f.artifacts[id]; ok && a.Tracker.ID == tracker {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (f *fakeAPI) TopPlannings(ctx context.Context, project int) ([]domain.TopPlanning, error) {
	return f.plannings[project], nil
}

func (f *fakeAPI) CreateArtifact(ctx context.Context, a *domain.Artifact) (int, error) {
	f.created = append(f.created, a)
	return 100, nil
}

func (f *fakeAPI) UpdateArtifact(ctx context.Context, a *domain.Artifact) error {
	f.updated = append(f.updated, a)
	return nil
}

func newConnector(api connector.API) *connector.Connector {
	c := connector.New(repoURL, api)
	c.Logger = log.New(io.Discard, "", 0)
	c.Now = func() time.Time { return time.UnixMilli(1_700_001_000_000) }
	return c
}

func collectAll(tasks *[]*taskdata.TaskData) connector.Collector {
	return connector.CollectorFunc(func(td *taskdata.TaskData) { *tasks = append(*tasks, td) })
}

func TestGetTaskDataConvertsArtifactAndComments(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(7, trackerID, "Crash on save", statusOpen)
	api.comments[7] = []domain.Comment{{Author: domain.User{ID: 5, Username: "jdoe"}, Date: time.UnixMilli(1_700_000_100_000), Body: "Seen twice"}}
	c := newConnector(api)

	td, err := c.GetTaskData(context.Background(), "3:42#7")
	if err != nil {
		t.Fatalf("get task data: %v", err)
	}
	if got := td.Value(taskdata.Summary); got != "Crash on save" {
		t.Fatalf("expected summary, got %q", got)
	}
	want := connector.TaskURL(repoURL, domain.ForArtifact(projectID, trackerID, 7))
	if got := td.Value(taskdata.TaskURL); got != want {
		t.Fatalf("expected url %q, got %q", want, got)
	}
	if got := td.Value(taskdata.TrackerID); got != "42" {
		t.Fatalf("expected tracker attribute 42, got %q", got)
	}
	if _, ok := td.Attribute(taskdata.PrefixComment + "1"); !ok {
		t.Fatalf("expected the comment to be converted")
	}
}

func TestGetTaskDataRejectsProjectTask(t *testing.T) {
	c := newConnector(newFakeAPI())
	_, err := c.GetTaskData(context.Background(), domain.ForProject(projectID).String())
	if !errors.Is(err, domain.ErrInvalidTaskID) {
		t.Fatalf("expected ErrInvalidTaskID, got %v", err)
	}
}

func TestReportQueryRecordsConversionFailures(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(1, trackerID, "first", statusOpen)
	api.addArtifact(2, 99, "orphan", statusOpen)
	api.addArtifact(3, trackerID, "third", statusClosed)
	api.reports[5] = []int{1, 2, 3}
	c := newConnector(api)

	var tasks []*taskdata.TaskData
	res, err := c.PerformQuery(context.Background(), connector.Query{
		Title:      "open bugs",
		Attributes: map[string]string{connector.ParamKind: connector.KindReport, connector.ParamReportID: "5"},
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if res.Collected != 2 || len(tasks) != 2 {
		t.Fatalf("expected 2 collected tasks, got %d (%d)", res.Collected, len(tasks))
	}
	if len(res.Failures) != 1 || res.Failures[0].ArtifactID != 2 {
		t.Fatalf("expected artifact 2 to fail, got %+v", res.Failures)
	}
	if !errors.Is(res.Failures[0].Err, rest.ErrNotFound) {
		t.Fatalf("expected the failure to keep its cause, got %v", res.Failures[0].Err)
	}
	if tasks[0].TaskID != "3:42#1" || tasks[1].TaskID != "3:42#3" {
		t.Fatalf("unexpected task ids %q %q", tasks[0].TaskID, tasks[1].TaskID)
	}
	// One refresh for tracker 42 and one failed attempt for tracker 99.
	if api.trackerCalls != 2 {
		t.Fatalf("expected trackers to be refreshed once per query, got %d calls", api.trackerCalls)
	}
}

func TestCustomQueryAttachesComments(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(1, trackerID, "first", statusOpen)
	api.comments[1] = []domain.Comment{{Author: domain.Anonymous, Date: time.UnixMilli(1_700_000_000_000), Body: "hello"}}
	c := newConnector(api)

	var tasks []*taskdata.TaskData
	criteria := map[string][]string{"status": {"Open"}}
	_, err := c.PerformQuery(context.Background(), connector.Query{
		Attributes: map[string]string{connector.ParamKind: connector.KindCustom, connector.ParamTrackerID: "42"},
		Criteria:   criteria,
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if _, ok := tasks[0].Attribute(taskdata.PrefixComment + "1"); !ok {
		t.Fatalf("expected comments on custom query results")
	}
	if got := api.lastCriteria["status"]; len(got) != 1 || got[0] != "Open" {
		t.Fatalf("criteria not forwarded: %v", api.lastCriteria)
	}
}

func TestCustomQueryFailsWhenCommentsCannotBeRead(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(1, trackerID, "first", statusOpen)
	api.commentErr = &rest.ServerError{Status: 500, Body: "boom"}
	c := newConnector(api)

	_, err := c.PerformQuery(context.Background(), connector.Query{
		Attributes: map[string]string{connector.ParamKind: connector.KindCustom, connector.ParamTrackerID: "42"},
	}, connector.CollectorFunc(func(*taskdata.TaskData) {}))
	if err == nil || !strings.Contains(err.Error(), "comments of artifact 1") {
		t.Fatalf("expected comment failure, got %v", err)
	}
}

func TestTopLevelPlanningQueryYieldsOneTask(t *testing.T) {
	api := newFakeAPI()
	capacity := 12.5
	api.plannings[projectID] = []domain.TopPlanning{{
		ID: 8,
		Milestones: []domain.Milestone{{
			ID: 30, Label: "Release 1", Status: "Open", URI: "milestones/30",
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Capacity: &capacity,
		}},
		BacklogItems: []domain.BacklogItem{{
			ID: 31, Label: "Story", Status: "Open", Type: "User Stories",
			Artifact: domain.ArtifactRef{ID: 31, Tracker: domain.Ref{ID: 77}},
		}},
	}}
	c := newConnector(api)

	var tasks []*taskdata.TaskData
	res, err := c.PerformQuery(context.Background(), connector.Query{
		Attributes: map[string]string{connector.ParamKind: connector.KindTopLevelPlanning, connector.ParamProjectID: "3"},
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if res.Collected != 1 || len(tasks) != 1 {
		t.Fatalf("expected a single planning task, got %d", len(tasks))
	}
	td := tasks[0]
	if td.TaskID != domain.ForProject(projectID).String() {
		t.Fatalf("unexpected task id %q", td.TaskID)
	}
	m, ok := td.Attribute(connector.MilestoneEntry(30))
	if !ok {
		t.Fatalf("missing milestone entry")
	}
	if m.ChildValue(connector.PlanningCapacity) != "12.5" || m.ChildValue(connector.PlanningTopPlanning) != "8" {
		t.Fatalf("unexpected milestone entry children %q %q", m.ChildValue(connector.PlanningCapacity), m.ChildValue(connector.PlanningTopPlanning))
	}
	b, ok := td.Attribute(connector.BacklogItemEntry(31))
	if !ok {
		t.Fatalf("missing backlog entry")
	}
	if got := b.ChildValue(connector.PlanningArtifact); got != "3:77#31" {
		t.Fatalf("expected backlog artifact task id, got %q", got)
	}
}

func TestQueryErrors(t *testing.T) {
	c := newConnector(newFakeAPI())
	noop := connector.CollectorFunc(func(*taskdata.TaskData) {})

	_, err := c.PerformQuery(context.Background(), connector.Query{Attributes: map[string]string{connector.ParamKind: "SAVED"}}, noop)
	if !errors.Is(err, connector.ErrUnknownQueryKind) {
		t.Fatalf("expected ErrUnknownQueryKind, got %v", err)
	}
	_, err = c.PerformQuery(context.Background(), connector.Query{Attributes: map[string]string{connector.ParamKind: connector.KindReport}}, noop)
	if !errors.Is(err, connector.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for a missing report id, got %v", err)
	}
	_, err = c.PerformQuery(context.Background(), connector.Query{Attributes: map[string]string{connector.ParamKind: connector.KindReport, connector.ParamReportID: "five"}}, noop)
	if !errors.Is(err, connector.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for a malformed report id, got %v", err)
	}
}

func TestQueryStopsWhenCanceled(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(1, trackerID, "first", statusOpen)
	api.reports[5] = []int{1}
	c := newConnector(api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PerformQuery(ctx, connector.Query{
		Attributes: map[string]string{connector.ParamKind: connector.KindReport, connector.ParamReportID: "5"},
	}, connector.CollectorFunc(func(*taskdata.TaskData) { t.Fatalf("nothing should be collected") }))
	var canceled *rest.CanceledError
	if !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
}

func TestPostTaskDataCreatesNewTask(t *testing.T) {
	api := newFakeAPI()
	c := newConnector(api)
	td := taskdata.New(domain.ConnectorKind, repoURL, "")
	if err := c.InitializeNewTaskData(context.Background(), td, trackerID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	td.CreateAttribute(taskdata.Summary).SetValue("Brand new")
	td.CreateAttribute(taskdata.CommentNew).SetValue("  first words  ")

	res, err := c.PostTaskData(context.Background(), td)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Kind != connector.PostCreated || res.TaskID != "3:42#100" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(api.created) != 1 {
		t.Fatalf("expected one creation, got %d", len(api.created))
	}
	a := api.created[0]
	if title, _ := a.LiteralOf(fieldTitle); title != "Brand new" {
		t.Fatalf("expected title, got %q", title)
	}
	if a.NewComment != "first words" {
		t.Fatalf("expected trimmed comment, got %q", a.NewComment)
	}
}

func TestPostTaskDataUpdatesExistingTask(t *testing.T) {
	api := newFakeAPI()
	api.addArtifact(7, trackerID, "Crash on save", statusOpen)
	c := newConnector(api)
	td, err := c.GetTaskData(context.Background(), "3:42#7")
	if err != nil {
		t.Fatalf("get task data: %v", err)
	}
	op, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
	if !ok {
		t.Fatalf("missing status operation")
	}
	op.SetValue("11")

	res, err := c.PostTaskData(context.Background(), td)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Kind != connector.PostUpdated || res.TaskID != "3:42#7" {
		t.Fatalf("unexpected result %+v", res)
	}
	if ids, _ := api.updated[0].BoundOf(fieldStatus); len(ids) != 1 || ids[0] != statusClosed {
		t.Fatalf("expected the operation to close the artifact, got %v", ids)
	}
}

func TestMapFromGenericNeedsTracker(t *testing.T) {
	c := newConnector(newFakeAPI())
	td := taskdata.New(domain.ConnectorKind, repoURL, "")
	if _, err := c.MapFromGeneric(context.Background(), td); !errors.Is(err, connector.ErrUnknownTracker) {
		t.Fatalf("expected ErrUnknownTracker, got %v", err)
	}
}
