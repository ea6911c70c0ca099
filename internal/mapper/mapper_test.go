package mapper_test

import (
	"reflect"
	"slices"
	"strconv"
	"testing"
	"time"

	"pgregory.net/rapid"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/mapper"
	"tuleapsync/internal/taskdata"
)

const (
	fieldTitle       = 1
	fieldStatus      = 2
	fieldAssigned    = 3
	fieldEffort      = 4
	fieldDetails     = 5
	fieldPlatforms   = 6
	fieldFiles       = 7
	fieldSubmittedOn = 8
	fieldArtifactID  = 9
	fieldLastUpdate  = 12
	fieldSubmittedBy = 13

	statusOpen   = 10
	statusClosed = 11
)

func newTracker(t testing.TB, transitions ...domain.Transition) *domain.Tracker {
	t.Helper()
	tr := domain.NewTracker(42, "Bugs")
	tr.ItemName = "bug"
	tr.Project = domain.Ref{ID: 3, URI: "projects/3"}
	fields := []domain.Field{
		&domain.StringField{FieldBase: domain.FieldBase{ID: fieldTitle, Name: "summary", Label: "Summary", Role: domain.RoleTitle}},
		&domain.SelectBoxField{
			FieldBase:  domain.FieldBase{ID: fieldStatus, Name: "status", Label: "Status", Role: domain.RoleStatus},
			Items:      []domain.SelectItem{{ID: statusOpen, Label: "Open"}, {ID: statusClosed, Label: "Closed"}},
			Workflow:   domain.Workflow{Transitions: transitions},
			OpenStatus: []int{statusOpen},
		},
		&domain.MultiSelectBoxField{
			FieldBase: domain.FieldBase{ID: fieldAssigned, Name: "assigned_to", Label: "Assigned to", Role: domain.RoleContributor},
			Items:     []domain.SelectItem{{ID: 101, Label: "jdoe"}, {ID: 102, Label: "asmith"}},
		},
		&domain.IntegerField{FieldBase: domain.FieldBase{ID: fieldEffort, Name: "effort", Label: "Effort"}},
		&domain.StringField{FieldBase: domain.FieldBase{ID: fieldDetails, Name: "details", Label: "Details"}},
		&domain.MultiSelectBoxField{
			FieldBase: domain.FieldBase{ID: fieldPlatforms, Name: "platforms", Label: "Platforms"},
			Items:     []domain.SelectItem{{ID: 61, Label: "Linux"}, {ID: 62, Label: "macOS"}, {ID: 63, Label: "Windows"}},
		},
		&domain.FileUploadField{FieldBase: domain.FieldBase{ID: fieldFiles, Name: "attachments", Label: "Attachments"}},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: fieldSubmittedOn, Name: "open_date"}, Kind: domain.DynamicSubmittedOn},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: fieldArtifactID, Name: "aid"}, Kind: domain.DynamicArtifactID},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: fieldLastUpdate, Name: "last_update"}, Kind: domain.DynamicLastUpdateDate},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: fieldSubmittedBy, Name: "submitted_by"}, Kind: domain.DynamicSubmittedBy},
	}
	for _, f := range fields {
		if err := tr.AddField(f); err != nil {
			t.Fatalf("add field: %v", err)
		}
	}
	return tr
}

func newServer() *domain.Server {
	srv := domain.NewServer("https://tuleap.example.com")
	for i := 1; i <= 5; i++ {
		srv.AddUser(&domain.User{ID: i, Username: "user" + strconv.Itoa(i), RealName: "User " + strconv.Itoa(i), Email: "user" + strconv.Itoa(i) + "@example.com"})
	}
	return srv
}

func sameValue(a, b domain.FieldValue) bool {
	if av, ok := a.(domain.BoundValue); ok {
		bv, ok := b.(domain.BoundValue)
		return ok && av.Field == bv.Field && slices.Equal(av.ValueIDs, bv.ValueIDs)
	}
	return reflect.DeepEqual(a, b)
}

func taskData(id domain.TaskID) *taskdata.TaskData {
	return taskdata.New(domain.ConnectorKind, "https://tuleap.example.com", id.String())
}

func TestEditableValuesSurviveRoundTrip(t *testing.T) {
	srv := newServer()
	tr := newTracker(t, domain.Transition{From: statusOpen, To: statusClosed})
	rapid.Check(t, func(rt *rapid.T) {
		a := domain.NewArtifact(rapid.IntRange(1, 1<<20).Draw(rt, "artifact"), domain.Ref{ID: tr.ID}, tr.Project)
		a.SetValue(domain.LiteralValue{Field: fieldTitle, Value: rapid.String().Draw(rt, "title")})
		a.SetValue(domain.BoundValue{Field: fieldStatus, ValueIDs: rapid.SliceOfN(rapid.SampledFrom([]int{statusOpen, statusClosed}), 0, 1).Draw(rt, "status")})
		a.SetValue(domain.BoundValue{Field: fieldAssigned, ValueIDs: rapid.SliceOfN(rapid.SampledFrom([]int{101, 102}), 0, 2).Draw(rt, "assigned")})
		a.SetValue(domain.LiteralValue{Field: fieldEffort, Value: strconv.Itoa(rapid.Int().Draw(rt, "effort"))})
		a.SetValue(domain.LiteralValue{Field: fieldDetails, Value: rapid.String().Draw(rt, "details")})
		a.SetValue(domain.BoundValue{Field: fieldPlatforms, ValueIDs: rapid.SliceOfN(rapid.SampledFrom([]int{61, 62, 63}), 0, 3).Draw(rt, "platforms")})
		files := domain.AttachmentValue{Field: fieldFiles}
		for i, n := 0, rapid.IntRange(1, 3).Draw(rt, "files"); i < n; i++ {
			submitter, _ := srv.User(rapid.IntRange(1, 5).Draw(rt, "submitter"))
			files.Attachments = append(files.Attachments, domain.Attachment{
				ID:          rapid.IntRange(1, 1<<20).Draw(rt, "file id"),
				Filename:    rapid.StringMatching(`[a-z]{1,8}\.txt`).Draw(rt, "filename"),
				Submitter:   *submitter,
				Size:        rapid.Int64Range(0, 1<<40).Draw(rt, "size"),
				Description: rapid.String().Draw(rt, "description"),
				ContentType: rapid.SampledFrom([]string{"text/plain", "image/png"}).Draw(rt, "content type"),
			})
		}
		a.SetValue(files)
		a.SetValue(domain.LiteralValue{Field: fieldLastUpdate, Value: "1384000000000"})

		m := mapper.New(tr)
		m.Users = srv
		td := taskData(domain.ForArtifact(tr.Project.ID, tr.ID, a.ID))
		m.ToGenericAttributes(td, a)
		back := m.ToArtifact(td)

		if back.ID != a.ID || back.Tracker.ID != tr.ID {
			rt.Fatalf("identity lost: %d/%d", back.ID, back.Tracker.ID)
		}
		for _, f := range tr.Fields() {
			id := domain.Base(f).ID
			want, _ := a.Value(id)
			got, ok := back.Value(id)
			if _, dynamic := f.(*domain.DynamicField); dynamic {
				if ok {
					rt.Fatalf("dynamic field %d produced a value %+v", id, got)
				}
				continue
			}
			if !ok || !sameValue(want, got) {
				rt.Fatalf("field %d: got %+v want %+v", id, got, want)
			}
		}
	})
}

func TestSemanticFieldsUseGenericAttributes(t *testing.T) {
	tr := newTracker(t)
	a := domain.NewArtifact(7, domain.Ref{ID: tr.ID}, tr.Project)
	a.SetValue(domain.LiteralValue{Field: fieldTitle, Value: "Crash on start"})
	a.SetValue(domain.BoundValue{Field: fieldStatus, ValueIDs: []int{statusOpen}})
	a.SetValue(domain.BoundValue{Field: fieldAssigned, ValueIDs: []int{101}})
	td := taskData(domain.ForArtifact(3, tr.ID, 7))
	mapper.New(tr).ToGenericAttributes(td, a)

	if td.Value(taskdata.Summary) != "Crash on start" {
		t.Fatalf("summary: %q", td.Value(taskdata.Summary))
	}
	if td.Value(taskdata.Status) != strconv.Itoa(statusOpen) {
		t.Fatalf("status: %q", td.Value(taskdata.Status))
	}
	assigned, ok := td.Attribute(taskdata.UserAssigned)
	if !ok || assigned.Value() != "101" || assigned.Meta.Kind != taskdata.KindPeople {
		t.Fatalf("assignee: %+v", assigned)
	}
	if label, _ := assigned.OptionLabel("101"); label != "jdoe" {
		t.Fatalf("assignee option label %q", label)
	}
	for _, id := range []int{fieldTitle, fieldStatus, fieldAssigned} {
		if _, ok := td.Attribute(strconv.Itoa(id)); ok {
			t.Fatalf("semantic field %d also has its own attribute", id)
		}
	}
	if td.Value(taskdata.TaskKind) != "bug" || td.Value(taskdata.TaskKey) != "7" {
		t.Fatalf("kind %q key %q", td.Value(taskdata.TaskKind), td.Value(taskdata.TaskKey))
	}
}

func TestExcludedFieldsHaveNoAttribute(t *testing.T) {
	tr := newTracker(t)
	submitted := time.Date(2013, 11, 4, 9, 30, 0, 0, time.UTC)
	a := domain.NewArtifact(7, domain.Ref{ID: tr.ID}, tr.Project)
	a.SubmittedOn = submitted
	a.LastModified = submitted.Add(time.Hour)
	a.SubmittedBy = 2
	a.SetValue(domain.AttachmentValue{Field: fieldFiles, Attachments: []domain.Attachment{{ID: 5, Filename: "log.txt"}}})
	td := taskData(domain.ForArtifact(3, tr.ID, 7))
	m := mapper.New(tr)
	m.Users = newServer()
	m.ToGenericAttributes(td, a)

	for _, id := range []int{fieldFiles, fieldSubmittedOn, fieldArtifactID, fieldLastUpdate, fieldSubmittedBy} {
		if _, ok := td.Attribute(strconv.Itoa(id)); ok {
			t.Fatalf("field %d must not be materialized", id)
		}
	}
	if td.Value(taskdata.DateCreation) != strconv.FormatInt(submitted.UnixMilli(), 10) {
		t.Fatalf("creation date %q", td.Value(taskdata.DateCreation))
	}
	reporter, ok := td.Attribute(taskdata.UserReporter)
	if !ok || reporter.Value() != "2" {
		t.Fatalf("reporter %+v", reporter)
	}
	if label, _ := reporter.OptionLabel("2"); label != "User 2" {
		t.Fatalf("reporter label %q", label)
	}
	att, ok := td.Attribute(taskdata.PrefixAttachment + "1")
	if !ok || att.ChildValue(taskdata.AttachmentFilename) != "log.txt" {
		t.Fatalf("attachment attribute %+v", att)
	}
}

func operationKeys(td *taskdata.TaskData) []string {
	attr, ok := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
	if !ok {
		return nil
	}
	var keys []string
	for _, o := range attr.Options() {
		keys = append(keys, o.Key)
	}
	return keys
}

func statusTask(t *testing.T, tr *domain.Tracker, status int) *taskdata.TaskData {
	t.Helper()
	a := domain.NewArtifact(7, domain.Ref{ID: tr.ID}, tr.Project)
	a.SetValue(domain.BoundValue{Field: fieldStatus, ValueIDs: []int{status}})
	td := taskData(domain.ForArtifact(3, tr.ID, 7))
	mapper.New(tr).ToGenericAttributes(td, a)
	return td
}

func TestStatusOperationsFollowWorkflow(t *testing.T) {
	tr := newTracker(t, domain.Transition{From: statusOpen, To: statusClosed})

	if got := operationKeys(statusTask(t, tr, statusOpen)); !slices.Equal(got, []string{"11"}) {
		t.Fatalf("from Open: %v", got)
	}
	if got := operationKeys(statusTask(t, tr, statusClosed)); len(got) != 0 {
		t.Fatalf("from Closed: %v", got)
	}
	op, ok := statusTask(t, tr, statusOpen).Attribute(taskdata.PrefixOperation + taskdata.Status)
	if !ok || op.Meta.Label != "Mark as" || op.Meta.Kind != taskdata.KindOperation {
		t.Fatalf("operation attribute %+v", op)
	}
}

// A tracker whose workflow declares no transition offers every status. This
// keeps unconfigured workflows usable even though it can hide a missing
// configuration.
func TestStatusOperationsWithoutTransitionsOfferEveryStatus(t *testing.T) {
	tr := newTracker(t)
	for _, status := range []int{statusOpen, statusClosed} {
		if got := operationKeys(statusTask(t, tr, status)); !slices.Equal(got, []string{"10", "11"}) {
			t.Fatalf("from %d: %v", status, got)
		}
	}
}

func TestRoleOnWrongVariantFallsBackToPlainAttribute(t *testing.T) {
	tr := domain.NewTracker(50, "Odd")
	if err := tr.AddField(&domain.IntegerField{FieldBase: domain.FieldBase{ID: 20, Label: "Points", Role: domain.RoleStatus}}); err != nil {
		t.Fatalf("add field: %v", err)
	}
	a := domain.NewArtifact(1, domain.Ref{ID: 50}, domain.Ref{ID: 3})
	a.SetValue(domain.LiteralValue{Field: 20, Value: "8"})
	td := taskData(domain.ForArtifact(3, 50, 1))
	m := mapper.New(tr)
	m.ToGenericAttributes(td, a)

	if td.Value("20") != "8" {
		t.Fatalf("expected plain attribute, got %q", td.Value("20"))
	}
	if _, ok := td.Attribute(taskdata.Status); ok {
		t.Fatalf("integer field must not fill the status")
	}
	if ops := operationKeys(td); ops != nil {
		t.Fatalf("unexpected operations %v", ops)
	}
	if lit, ok := m.ToArtifact(td).LiteralOf(20); !ok || lit != "8" {
		t.Fatalf("reverse mapping lost the value: %q", lit)
	}
}

func TestMissingConfigurationYieldsDefaults(t *testing.T) {
	m := mapper.New(nil)
	td := taskData(domain.ForArtifact(3, 4, 5))
	m.ToGenericAttributes(td, nil)
	if _, ok := td.Attribute(taskdata.CommentNew); !ok {
		t.Fatalf("expected the common attributes")
	}
	td.CreateAttribute(taskdata.CommentNew).SetValue("  hello  ")
	td.CreateAttribute("77").SetValue("free text")
	a := m.ToArtifact(td)
	if a.ID != 5 || a.Tracker.ID != 4 || a.Project.ID != 3 {
		t.Fatalf("unexpected identity %+v", a)
	}
	if a.NewComment != "hello" {
		t.Fatalf("new comment %q", a.NewComment)
	}
	if lit, ok := a.LiteralOf(77); !ok || lit != "free text" {
		t.Fatalf("literal %q", lit)
	}
	if m.Completed(td) {
		t.Fatalf("a task without status field is never completed")
	}
}

func TestToArtifactSkipsInternalAttributesAndUsesOperation(t *testing.T) {
	tr := newTracker(t, domain.Transition{From: statusOpen, To: statusClosed})
	td := statusTask(t, tr, statusOpen)
	td.CreateAttribute(taskdata.TaskURL).SetValue("https://tuleap.example.com/x")
	td.CreateAttribute(taskdata.AttachmentFilename).SetValue("x.txt")
	op, _ := td.Attribute(taskdata.PrefixOperation + taskdata.Status)
	op.SetValue(strconv.Itoa(statusClosed))

	a := mapper.New(tr).ToArtifact(td)
	if ids, _ := a.BoundOf(fieldStatus); !slices.Equal(ids, []int{statusClosed}) {
		t.Fatalf("status %v", ids)
	}
	for _, v := range a.Values() {
		if v.FieldID() <= 0 {
			t.Fatalf("internal attribute turned into value %+v", v)
		}
	}
}

func TestInitializeNew(t *testing.T) {
	tr := newTracker(t,
		domain.Transition{From: 0, To: statusOpen},
		domain.Transition{From: statusOpen, To: statusClosed},
	)
	effort, _ := tr.Field(fieldEffort)
	domain.Base(effort).Defaults = []string{"3"}
	td := taskdata.New(domain.ConnectorKind, "https://tuleap.example.com", "")
	mapper.New(tr).InitializeNew(td)

	if td.Value(strconv.Itoa(fieldEffort)) != "3" {
		t.Fatalf("default effort %q", td.Value(strconv.Itoa(fieldEffort)))
	}
	if _, ok := td.Attribute(taskdata.Summary); !ok {
		t.Fatalf("summary attribute missing")
	}
	if got := operationKeys(td); !slices.Equal(got, []string{"10"}) {
		t.Fatalf("creation operations %v", got)
	}
	if _, ok := td.Attribute(taskdata.TaskKey); ok {
		t.Fatalf("a new task has no key")
	}
}

func TestCompletedUsesOpenStatuses(t *testing.T) {
	tr := newTracker(t)
	m := mapper.New(tr)
	if m.Completed(statusTask(t, tr, statusOpen)) {
		t.Fatalf("open status reported completed")
	}
	closed := statusTask(t, tr, statusClosed)
	if !m.Completed(closed) {
		t.Fatalf("closed status not completed")
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	tr := newTracker(t)
	srv := newServer()
	u, _ := srv.User(4)
	date := time.UnixMilli(1384000000000)
	a := domain.NewArtifact(7, domain.Ref{ID: tr.ID}, tr.Project)
	a.Comments = []domain.Comment{
		{Author: *u, Date: date, Body: "first"},
		{Author: domain.Anonymous, Date: date.Add(time.Minute), Body: "second"},
	}
	m := mapper.New(tr)
	m.Users = srv
	td := taskData(domain.ForArtifact(3, tr.ID, 7))
	m.ToGenericAttributes(td, a)

	c2, ok := td.Attribute(taskdata.PrefixComment + "2")
	if !ok || c2.ChildValue(taskdata.CommentText) != "second" || c2.ChildValue(taskdata.CommentNumber) != "2" {
		t.Fatalf("comment attribute %+v", c2)
	}
	back := m.ToArtifact(td)
	if !reflect.DeepEqual(back.Comments, a.Comments) {
		t.Fatalf("comments: got %+v want %+v", back.Comments, a.Comments)
	}
}
