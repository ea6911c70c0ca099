package codec_test

import (
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"pgregory.net/rapid"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
)

func TestDateRoundTripKeepsInstant(t *testing.T) {
	paris := time.FixedZone("CEST", 2*3600)
	reg := codec.New(paris)
	rapid.Check(t, func(rt *rapid.T) {
		sec := rapid.Int64Range(0, 4102444800).Draw(rt, "sec")
		withMillis := rapid.Bool().Draw(rt, "millis")
		zulu := rapid.Bool().Draw(rt, "zulu")
		offsetMin := rapid.IntRange(-12*60, 14*60).Draw(rt, "offset")

		ms := 0
		if withMillis {
			ms = rapid.IntRange(0, 999).Draw(rt, "ms")
		}
		loc := time.UTC
		if !zulu {
			loc = time.FixedZone("", offsetMin*60)
		}
		when := time.Unix(sec, int64(ms)*int64(time.Millisecond)).In(loc)
		s := when.Format("2006-01-02T15:04:05")
		if withMillis {
			s += fmt.Sprintf(".%03d", ms)
		}
		if zulu {
			s += "Z"
		} else {
			s += when.Format("-07:00")
		}

		parsed, err := reg.ParseDate(s)
		if err != nil {
			rt.Fatalf("parse %q: %v", s, err)
		}
		again, err := reg.ParseDate(reg.FormatDate(parsed))
		if err != nil {
			rt.Fatalf("reparse %q: %v", reg.FormatDate(parsed), err)
		}
		if !again.Equal(when) {
			rt.Fatalf("%q: got %v want %v", s, again, when)
		}
	})
}

func TestFormatDateUsesColonOffset(t *testing.T) {
	reg := codec.New(time.FixedZone("", 2*3600))
	got := reg.FormatDate(time.Date(2013, 11, 22, 10, 25, 30, 0, time.UTC))
	if got != "2013-11-22T12:25:30+02:00" {
		t.Fatalf("unexpected date %q", got)
	}
	utc := codec.New(time.UTC).FormatDate(time.Date(2013, 11, 22, 10, 25, 30, 0, time.UTC))
	if !regexp.MustCompile(`[+-]\d\d:\d\d$`).MatchString(utc) {
		t.Fatalf("expected colon offset for UTC, got %q", utc)
	}
}

func TestParseDateAcceptsCompactOffset(t *testing.T) {
	reg := codec.New(time.UTC)
	got, err := reg.ParseDate("2013-11-22T12:25:30.123+0200")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2013, 11, 22, 10, 25, 30, 123*int(time.Millisecond), time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, err := reg.ParseDate("22/11/2013"); err == nil {
		t.Fatalf("expected error for non ISO date")
	}
}

const trackerFixture = `{
  "id": 10, "uri": "trackers/10", "label": "Bugs", "item_name": "bug",
  "project": {"id": 3, "uri": "projects/3"},
  "parent": {"id": 9, "uri": "trackers/9"},
  "fields": [
    {"field_id": 1, "name": "summary", "label": "Summary", "type": "string", "required": true, "permissions": ["read","update","submit"]},
    {"field_id": 2, "name": "status", "label": "Status", "type": "sb", "values": [{"id": 21, "label": "Open"}, {"id": 22, "label": "Closed"}]},
    {"field_id": 3, "name": "assigned_to", "label": "Assigned to", "type": "msb", "values": [{"id": 31, "label": "jdoe"}]},
    {"field_id": 4, "name": "effort", "label": "Effort", "type": "int", "default_value": "3"},
    {"field_id": 5, "name": "files", "label": "Files", "type": "file"},
    {"field_id": 6, "name": "aid", "label": "Id", "type": "aid"},
    {"field_id": 7, "name": "links", "label": "Links", "type": "art_link"}
  ],
  "semantics": {"title": {"field_id": 1}, "status": {"field_id": 2, "value_ids": [21]}, "contributor": {"field_id": 3}},
  "workflow": {"field_id": 2, "is_used": "1", "transitions": [{"from_id": null, "to_id": 21}, {"from_id": 21, "to_id": 22}]}
}`

func TestDecodeTracker(t *testing.T) {
	tr, err := codec.New(time.UTC).DecodeTracker([]byte(trackerFixture))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.ParentID != 9 || tr.Project.ID != 3 || tr.ItemName != "bug" {
		t.Fatalf("unexpected tracker header %+v", tr)
	}
	if n := len(tr.Fields()); n != 6 {
		t.Fatalf("expected unknown field types to be skipped, got %d fields", n)
	}
	title, ok := tr.TitleField()
	if !ok || title.ID != 1 || !title.Required {
		t.Fatalf("unexpected title field %+v", title)
	}
	status, ok := tr.StatusField()
	if !ok {
		t.Fatalf("missing status field")
	}
	if len(status.Items) != 2 || status.OpenStatus[0] != 21 {
		t.Fatalf("unexpected status field %+v", status)
	}
	if got := status.Workflow.Reachable(0); len(got) != 1 || got[0] != 21 {
		t.Fatalf("unexpected creation transitions %v", got)
	}
	if got := status.Workflow.Reachable(21); len(got) != 1 || got[0] != 22 {
		t.Fatalf("unexpected transitions from Open %v", got)
	}
	if _, ok := tr.ContributorField(); !ok {
		t.Fatalf("missing contributor field")
	}
	effort, _ := tr.Field(4)
	if d := domain.Base(effort).Defaults; len(d) != 1 || d[0] != "3" {
		t.Fatalf("unexpected default %v", d)
	}
	if _, ok := tr.AttachmentField(); !ok {
		t.Fatalf("missing attachment field")
	}
}

func TestTrackerEncodingDecodesBack(t *testing.T) {
	reg := codec.New(time.UTC)
	tr, err := reg.DecodeTracker([]byte(trackerFixture))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, err := json.Marshal(reg.TrackerJSON(tr))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := reg.DecodeTracker(data)
	if err != nil {
		t.Fatalf("decode back: %v", err)
	}
	if len(back.Fields()) != len(tr.Fields()) {
		t.Fatalf("field count changed: %d vs %d", len(back.Fields()), len(tr.Fields()))
	}
	status, _ := back.StatusField()
	if len(status.Workflow.Transitions) != 2 || status.Workflow.Transitions[0].From != 0 {
		t.Fatalf("workflow lost: %+v", status.Workflow)
	}
}

func TestDecodeArtifactValues(t *testing.T) {
	data := `{
	  "id": 42, "uri": "artifacts/42", "tracker": {"id": 10}, "project": {"id": 3},
	  "submitted_by": 7, "submitted_on": "2013-11-22T12:25:30+02:00", "last_modified_date": "2013-11-23T08:00:00Z",
	  "values": [
	    {"field_id": 1, "type": "string", "value": "Crash on save"},
	    {"field_id": 2, "type": "sb", "bind_value_id": 21},
	    {"field_id": 3, "type": "msb", "bind_value_ids": [31, 32]},
	    {"field_id": 4, "type": "int", "value": 5},
	    {"field_id": 5, "type": "file", "file_descriptions": [{"id": 900, "submitted_by": 7, "name": "log.txt", "size": 12, "type": "text/plain", "description": "trace"}]}
	  ]
	}`
	a, err := codec.New(time.UTC).DecodeArtifact([]byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.ID != 42 || a.Tracker.ID != 10 || a.Project.ID != 3 || a.SubmittedBy != 7 {
		t.Fatalf("unexpected artifact %+v", a)
	}
	if !a.SubmittedOn.Equal(time.Date(2013, 11, 22, 10, 25, 30, 0, time.UTC)) {
		t.Fatalf("unexpected submitted_on %v", a.SubmittedOn)
	}
	if v, ok := a.LiteralOf(1); !ok || v != "Crash on save" {
		t.Fatalf("unexpected summary %q", v)
	}
	if ids, ok := a.BoundOf(2); !ok || len(ids) != 1 || ids[0] != 21 {
		t.Fatalf("unexpected status %v", ids)
	}
	if ids, ok := a.BoundOf(3); !ok || len(ids) != 2 {
		t.Fatalf("unexpected contributors %v", ids)
	}
	if v, ok := a.LiteralOf(4); !ok || v != "5" {
		t.Fatalf("unexpected numeric literal %q", v)
	}
	v, _ := a.Value(5)
	att, ok := v.(domain.AttachmentValue)
	if !ok || len(att.Attachments) != 1 || att.Attachments[0].Filename != "log.txt" || att.Attachments[0].ID != 900 {
		t.Fatalf("unexpected attachments %+v", v)
	}
}

func TestEncodeArtifact(t *testing.T) {
	a := domain.NewArtifact(42, domain.Ref{ID: 10}, domain.Ref{ID: 3})
	a.SetValue(domain.LiteralValue{Field: 1, Value: "Crash"})
	a.SetValue(domain.BoundValue{Field: 2, ValueIDs: []int{21}})
	a.SetValue(domain.BoundValue{Field: 3, ValueIDs: []int{31, 32}})
	a.SetValue(domain.AttachmentValue{Field: 5, Attachments: []domain.Attachment{{ID: 900, Filename: "log.txt", Size: 12, ContentType: "text/plain", Submitter: domain.User{ID: 7}}}})
	a.NewComment = "done"
	data, err := codec.New(time.UTC).EncodeArtifact(a)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var body struct {
		ID      int              `json:"id"`
		Values  []map[string]any `json:"values"`
		Comment struct {
			Body   string `json:"body"`
			Format string `json:"format"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.ID != 42 || len(body.Values) != 4 {
		t.Fatalf("unexpected body %s", data)
	}
	if _, ok := body.Values[0]["value"]; !ok {
		t.Fatalf("literal must use value: %v", body.Values[0])
	}
	if _, ok := body.Values[1]["bind_value_id"]; !ok {
		t.Fatalf("single selection must use bind_value_id: %v", body.Values[1])
	}
	if ids, ok := body.Values[2]["bind_value_ids"].([]any); !ok || len(ids) != 2 {
		t.Fatalf("multi selection must use bind_value_ids: %v", body.Values[2])
	}
	files, ok := body.Values[3]["file_descriptions"].([]any)
	if !ok || len(files) != 1 || files[0].(map[string]any)["file_id"].(float64) != 900 {
		t.Fatalf("unexpected file descriptions: %v", body.Values[3])
	}
	if body.Comment.Body != "done" || body.Comment.Format != "text" {
		t.Fatalf("unexpected comment %+v", body.Comment)
	}

	empty, err := codec.New(time.UTC).EncodeArtifact(domain.NewArtifact(0, domain.Ref{ID: 10}, domain.Ref{ID: 3}))
	if err != nil {
		t.Fatalf("encode empty: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(empty, &raw)
	if _, ok := raw["values"]; ok {
		t.Fatalf("values must be omitted when empty: %s", empty)
	}
	if _, ok := raw["id"]; ok {
		t.Fatalf("id must be omitted for new artifacts: %s", empty)
	}
}

func TestEncodeBacklogItem(t *testing.T) {
	effort := 2.5
	data, err := codec.New(time.UTC).EncodeBacklogItem(domain.BacklogItem{ID: 5, Label: "Story", Status: "Open", TypeID: 12, InitialEffort: &effort})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["backlog_item_type_id"].(float64) != 12 || raw["initial_effort"].(float64) != 2.5 {
		t.Fatalf("unexpected backlog item %s", data)
	}
}

func TestDecodeCommentsSkipsEmptyChangesets(t *testing.T) {
	data := `[
	  {"id": 1, "submitted_by": 7, "submitted_by_details": {"id": 7, "username": "jdoe", "real_name": "John Doe", "email": "jdoe@example.com"}, "submitted_on": "2013-11-22T12:25:30+02:00", "last_comment": {"body": "first", "format": "text"}},
	  {"id": 2, "submitted_by": 7, "submitted_on": "2013-11-22T12:26:30+02:00", "last_comment": {"body": "", "format": "text"}},
	  {"id": 3, "submitted_by": 0, "email": "ghost@example.com", "submitted_on": "2013-11-22T12:27:30+02:00", "last_comment": {"body": "anon", "format": "text"}}
	]`
	comments, err := codec.New(time.UTC).DecodeComments([]byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].Author.RealName != "John Doe" || comments[0].Body != "first" {
		t.Fatalf("unexpected first comment %+v", comments[0])
	}
	if comments[1].Author.Username != domain.Anonymous.Username || comments[1].Author.Email != "ghost@example.com" {
		t.Fatalf("unexpected anonymous comment %+v", comments[1])
	}
}

func TestParseError(t *testing.T) {
	env, ok := codec.ParseError([]byte(`{"error":{"code":403,"message":"Forbidden"},"debug":{"source":"Tracker.class.php:12"}}`))
	if !ok || env.Error.Code != 403 || env.Debug == nil || env.Debug.Source != "Tracker.class.php:12" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, ok := codec.ParseError([]byte("<html>oops</html>")); ok {
		t.Fatalf("html must not parse as an envelope")
	}
	if _, ok := codec.ParseError([]byte(`{"items":[]}`)); ok {
		t.Fatalf("unrelated json must not parse as an envelope")
	}
}
