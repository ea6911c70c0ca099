package connector_test

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/connector"
	"tuleapsync/internal/domain"
	"tuleapsync/internal/rest"
	"tuleapsync/internal/server"
	"tuleapsync/internal/taskdata"
)

type mockTuleap struct {
	fixture *server.Fixture
	tokens  *server.TokenStore
	conn    *connector.Connector
}

func startMock(t *testing.T) *mockTuleap {
	t.Helper()
	fixture := server.DemoFixture()
	tokens := server.NewTokenStore()
	discard := log.New(io.Discard, "", 0)
	handler, err := server.New(server.Config{
		Fixture: fixture,
		Auth:    server.AuthConfig{Secret: "integration", Tokens: tokens},
		Logger:  discard,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})

	base := "http://" + ln.Addr().String()
	reg := codec.New(time.UTC)
	httpConn := rest.NewHTTPConnector(base+"/api/v1", 5*time.Second)
	auth := &rest.TokenAuthenticator{Conn: httpConn, Codec: reg, Credentials: rest.Credentials{Username: "jdoe", Password: "secret"}}
	client := rest.New(httpConn, auth, reg)
	client.PageSize = 2
	client.Logger = discard

	c := connector.New(base, client)
	c.Users = fixture.Server()
	c.Codec = reg
	c.Logger = discard
	return &mockTuleap{fixture: fixture, tokens: tokens, conn: c}
}

func bugID(artifact int) string {
	return domain.ForArtifact(server.DemoProjectID, server.DemoBugTrackerID, artifact).String()
}

func TestReportQueryAgainstMock(t *testing.T) {
	m := startMock(t)
	var tasks []*taskdata.TaskData
	res, err := m.conn.PerformQuery(context.Background(), connector.Query{
		Title: "Open bugs",
		Attributes: map[string]string{
			connector.ParamKind:     connector.KindReport,
			connector.ParamReportID: strconv.Itoa(server.DemoReportID),
		},
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if res.Collected != 2 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if tasks[0].TaskID != bugID(1) || tasks[1].TaskID != bugID(2) {
		t.Fatalf("unexpected task ids %q %q", tasks[0].TaskID, tasks[1].TaskID)
	}
	if got := tasks[1].Value(taskdata.UserAssigned); got != "103" {
		t.Fatalf("expected assignee 103, got %q", got)
	}
}

func TestCustomQueryAgainstMock(t *testing.T) {
	m := startMock(t)
	var tasks []*taskdata.TaskData
	_, err := m.conn.PerformQuery(context.Background(), connector.Query{
		Attributes: map[string]string{
			connector.ParamKind:      connector.KindCustom,
			connector.ParamTrackerID: strconv.Itoa(server.DemoBugTrackerID),
		},
		Criteria: map[string][]string{"status": {"On going", "Done"}},
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if len(tasks) != 2 || tasks[0].TaskID != bugID(2) || tasks[1].TaskID != bugID(3) {
		t.Fatalf("expected bugs 2 and 3, got %d tasks", len(tasks))
	}
	if _, ok := tasks[0].Attribute(taskdata.PrefixComment + "1"); !ok {
		t.Fatalf("expected the comment of bug 2")
	}
	if _, ok := tasks[1].Attribute(taskdata.PrefixAttachment + "1"); !ok {
		t.Fatalf("expected the attachment of bug 3")
	}
}

func TestUpdateFollowsWorkflowAndSurvivesTokenRevocation(t *testing.T) {
	m := startMock(t)
	ctx := context.Background()

	td, err := m.conn.GetTaskData(ctx, bugID(2))
	if err != nil {
		t.Fatalf("get task data: %v", err)
	}
	op, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
	if !ok {
		t.Fatalf("missing status operation")
	}
	if opts := op.Options(); len(opts) != 1 || opts[0].Key != strconv.Itoa(server.DemoStatusDone) {
		t.Fatalf("expected only Done to be reachable from On going, got %+v", opts)
	}
	op.SetValue(strconv.Itoa(server.DemoStatusDone))
	td.CreateAttribute(taskdata.CommentNew).SetValue("Fixed in 2.3")

	// The next request carries a token the server no longer knows.
	m.tokens.Revoke()
	res, err := m.conn.PostTaskData(ctx, td)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.Kind != connector.PostUpdated {
		t.Fatalf("expected an update, got %+v", res)
	}
	if m.tokens.Len() != 1 {
		t.Fatalf("expected a fresh login, got %d live tokens", m.tokens.Len())
	}

	stored, ok := m.fixture.Artifact(2)
	if !ok {
		t.Fatalf("artifact 2 missing")
	}
	if ids, _ := stored.BoundOf(server.DemoFieldStatus); len(ids) != 1 || ids[0] != server.DemoStatusDone {
		t.Fatalf("expected status Done, got %v", ids)
	}
	if n := len(stored.Comments); n != 2 || stored.Comments[1].Body != "Fixed in 2.3" || stored.Comments[1].Author.Username != "jdoe" {
		t.Fatalf("unexpected comments %+v", stored.Comments)
	}

	again, err := m.conn.GetTaskData(ctx, bugID(2))
	if err != nil {
		t.Fatalf("get task data again: %v", err)
	}
	s := connector.Summarize(nil, again)
	if s.Status != "Done" {
		t.Fatalf("expected Done after update, got %q", s.Status)
	}
	if again.Value(taskdata.DateCompletion) == "" {
		t.Fatalf("expected a completion date on a done bug")
	}
}

func TestCreateTaskAgainstMock(t *testing.T) {
	m := startMock(t)
	ctx := context.Background()

	td := taskdata.New(domain.ConnectorKind, m.conn.RepositoryURL, "")
	if err := m.conn.InitializeNewTaskData(ctx, td, server.DemoBugTrackerID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	op, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
	if !ok {
		t.Fatalf("missing status operation")
	}
	if opts := op.Options(); len(opts) != 1 || opts[0].Label != "New" {
		t.Fatalf("expected New as the only initial status, got %+v", opts)
	}
	op.SetValue(strconv.Itoa(server.DemoStatusNew))
	td.CreateAttribute(taskdata.Summary).SetValue("Dark mode ignores high contrast")

	res, err := m.conn.PostTaskData(ctx, td)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	id, err := domain.ParseTaskID(res.TaskID)
	if err != nil {
		t.Fatalf("parse created id %q: %v", res.TaskID, err)
	}
	if res.Kind != connector.PostCreated || id.Project != server.DemoProjectID || id.Tracker != server.DemoBugTrackerID {
		t.Fatalf("unexpected result %+v", res)
	}
	stored, ok := m.fixture.Artifact(id.Artifact)
	if !ok {
		t.Fatalf("artifact %d not created", id.Artifact)
	}
	if title, _ := stored.LiteralOf(server.DemoFieldTitle); title != "Dark mode ignores high contrast" {
		t.Fatalf("unexpected title %q", title)
	}
	if severity, _ := stored.LiteralOf(server.DemoFieldSeverity); severity != "3" {
		t.Fatalf("expected the default severity, got %q", severity)
	}
}

func TestTopLevelPlanningAgainstMock(t *testing.T) {
	m := startMock(t)
	var tasks []*taskdata.TaskData
	_, err := m.conn.PerformQuery(context.Background(), connector.Query{
		Attributes: map[string]string{
			connector.ParamKind:      connector.KindTopLevelPlanning,
			connector.ParamProjectID: strconv.Itoa(server.DemoProjectID),
		},
	}, collectAll(&tasks))
	if err != nil {
		t.Fatalf("perform query: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one planning task, got %d", len(tasks))
	}
	sprint, ok := tasks[0].Attribute(connector.MilestoneEntry(server.DemoSprintID))
	if !ok {
		t.Fatalf("missing sprint entry")
	}
	if got := sprint.ChildValue(connector.PlanningStartDate); got == "" {
		t.Fatalf("expected a start date")
	}
	if _, ok := tasks[0].Attribute(connector.BacklogItemEntry(5001)); !ok {
		t.Fatalf("missing backlog entry")
	}
}
