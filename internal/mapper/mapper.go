package mapper

import (
	"strconv"
	"strings"
	"time"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/taskdata"
)

const (
	labelStatus       = "Status"
	labelAssignedTo   = "Assigned to"
	labelReporter     = "Submitted by"
	labelCreated      = "Creation date"
	labelModified     = "Last modification date"
	labelCompleted    = "Completion date"
	labelNewComment   = "New comment"
	labelMarkAs       = "Mark as"
	labelTaskKey      = "Artifact id"
	statusOperationID = taskdata.PrefixOperation + taskdata.Status
)

// UserDirectory resolves user ids sent by the server.
type UserDirectory interface {
	User(id int) (*domain.User, bool)
}

// Mapper translates between the artifacts of one tracker and task data. A
// nil Tracker is allowed: only the tracker independent attributes are
// produced then. The mapper never fails; values it can not interpret are
// left out.
type Mapper struct {
	Tracker *domain.Tracker
	Users   UserDirectory
	Now     func() time.Time
}

func New(tracker *domain.Tracker) *Mapper {
	return &Mapper{Tracker: tracker}
}

func (m *Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mapper) fields() []domain.Field {
	if m.Tracker == nil {
		return nil
	}
	return m.Tracker.Fields()
}

// Materialized reports whether a field gets an attribute of its own. File
// uploads and server computed fields are surfaced through the dedicated
// attachment, date and reporter attributes instead.
func Materialized(f domain.Field) bool {
	switch f.(type) {
	case *domain.FileUploadField, *domain.DynamicField:
		return false
	default:
		return true
	}
}

func isTitle(f domain.Field) bool {
	_, ok := f.(*domain.StringField)
	return ok && domain.Base(f).Role == domain.RoleTitle
}

func isStatus(f domain.Field) bool {
	_, ok := f.(*domain.SelectBoxField)
	return ok && domain.Base(f).Role == domain.RoleStatus
}

func isContributor(f domain.Field) bool {
	switch f.(type) {
	case *domain.SelectBoxField, *domain.MultiSelectBoxField:
		return domain.Base(f).Role == domain.RoleContributor
	default:
		return false
	}
}

// AttributeID is the id of the attribute holding the value of f.
func AttributeID(f domain.Field) string {
	switch {
	case isTitle(f):
		return taskdata.Summary
	case isStatus(f):
		return taskdata.Status
	case isContributor(f):
		return taskdata.UserAssigned
	default:
		return strconv.Itoa(domain.Base(f).ID)
	}
}

// InitializeNew fills td with the attributes of a task about to be created:
// every materialized field with its default value and the statuses reachable
// from the creation of an artifact.
func (m *Mapper) InitializeNew(td *taskdata.TaskData) {
	m.commonAttributes(td)
	for _, f := range m.fields() {
		if !Materialized(f) {
			continue
		}
		attr := m.fieldAttribute(td, f, true)
		attr.SetValues(domain.DefaultValue(f, m.now()))
	}
	if status, ok := m.statusField(); ok {
		m.statusOperations(td, status, 0)
	}
}

// ToGenericAttributes fills td from a.
func (m *Mapper) ToGenericAttributes(td *taskdata.TaskData, a *domain.Artifact) {
	m.commonAttributes(td)
	if a == nil {
		return
	}
	if !a.IsNew() {
		key := td.CreateAttribute(taskdata.TaskKey)
		key.Meta = taskdata.Metadata{Label: labelTaskKey, Type: taskdata.TypeInteger, ReadOnly: true}
		key.SetValue(strconv.Itoa(a.ID))
	}
	if v := millis(a.SubmittedOn); v != "" {
		attr, _ := td.Attribute(taskdata.DateCreation)
		attr.SetValue(v)
	}
	if v := millis(a.LastModified); v != "" {
		attr, _ := td.Attribute(taskdata.DateModification)
		attr.SetValue(v)
	}
	if a.SubmittedBy != 0 {
		m.userAttribute(td.CreateAttribute(taskdata.UserReporter), a.SubmittedBy, labelReporter)
	}

	current := 0
	for _, f := range m.fields() {
		v, hasValue := a.Value(domain.Base(f).ID)
		if !Materialized(f) {
			if av, ok := v.(domain.AttachmentValue); ok {
				m.attachmentAttributes(td, av)
			}
			continue
		}
		attr := m.fieldAttribute(td, f, false)
		if !hasValue {
			attr.SetValues(domain.DefaultValue(f, m.now()))
			continue
		}
		switch v := v.(type) {
		case domain.LiteralValue:
			attr.SetValue(v.Value)
		case domain.BoundValue:
			attr.SetValues(idStrings(v.ValueIDs))
			if isStatus(f) && len(v.ValueIDs) > 0 {
				current = v.ValueIDs[0]
			}
		}
	}
	if status, ok := m.statusField(); ok {
		m.statusOperations(td, status, current)
		if current != 0 && !status.IsOpen(current) {
			if v := millis(a.LastModified); v != "" {
				attr := td.CreateAttribute(taskdata.DateCompletion)
				attr.Meta = taskdata.Metadata{Label: labelCompleted, Type: taskdata.TypeDate, ReadOnly: true}
				attr.SetValue(v)
			}
		}
	}
	for i, c := range a.Comments {
		m.commentAttribute(td, i+1, c)
	}
}

// ToArtifact builds the artifact described by td. Attributes reserved by the
// host are not field values; the new comment attribute becomes the comment
// submitted with the artifact.
func (m *Mapper) ToArtifact(td *taskdata.TaskData) *domain.Artifact {
	a := domain.NewArtifact(0, domain.Ref{}, domain.Ref{})
	if id, err := domain.ParseTaskID(td.TaskID); err == nil {
		if id.HasArtifact() {
			a.ID = id.Artifact
		}
		if id.HasTracker() {
			a.Tracker.ID = id.Tracker
		}
		a.Project.ID = id.Project
	}
	if m.Tracker != nil {
		a.Tracker = domain.Ref{ID: m.Tracker.ID, URI: m.Tracker.URI}
		if m.Tracker.Project.ID != 0 {
			a.Project = m.Tracker.Project
		}
	}
	a.NewComment = strings.TrimSpace(td.Value(taskdata.CommentNew))
	a.SubmittedOn = fromMillis(td.Value(taskdata.DateCreation))
	a.LastModified = fromMillis(td.Value(taskdata.DateModification))
	if id, err := strconv.Atoi(td.Value(taskdata.UserReporter)); err == nil {
		a.SubmittedBy = id
	}

	for _, attr := range td.Attributes() {
		id := attr.ID
		switch {
		case id == taskdata.Summary:
			if f, ok := m.titleField(); ok {
				a.SetValue(domain.LiteralValue{Field: f.ID, Value: attr.Value()})
			}
		case id == taskdata.Status:
			if f, ok := m.statusField(); ok {
				a.SetValue(domain.BoundValue{Field: f.ID, ValueIDs: m.selectedStatus(td, attr)})
			}
		case id == taskdata.UserAssigned:
			if f, ok := m.contributorField(); ok {
				a.SetValue(domain.BoundValue{Field: domain.Base(f).ID, ValueIDs: parseIDs(attr.Values())})
			}
		case strings.HasPrefix(id, taskdata.PrefixComment):
			if c, ok := m.comment(attr); ok {
				a.Comments = append(a.Comments, c)
			}
		case strings.HasPrefix(id, taskdata.PrefixAttachment):
			m.addAttachment(a, attr)
		case taskdata.IsInternal(id):
		default:
			if v, ok := m.fieldValue(attr); ok {
				a.SetValue(v)
			}
		}
	}
	return a
}

// Completed reports whether the status held by td is not an open status.
func (m *Mapper) Completed(td *taskdata.TaskData) bool {
	status, ok := m.statusField()
	if !ok {
		return false
	}
	id, err := strconv.Atoi(td.Value(taskdata.Status))
	if err != nil {
		return false
	}
	return !status.IsOpen(id)
}

func (m *Mapper) commonAttributes(td *taskdata.TaskData) {
	kind := td.CreateAttribute(taskdata.TaskKind)
	kind.Meta = taskdata.Metadata{Type: taskdata.TypeShortText, ReadOnly: true}
	if m.Tracker != nil {
		kind.SetValue(m.Tracker.ItemName)
		if m.Tracker.ItemName == "" {
			kind.SetValue(m.Tracker.Label)
		}
	}
	created := td.CreateAttribute(taskdata.DateCreation)
	created.Meta = taskdata.Metadata{Label: labelCreated, Type: taskdata.TypeDate, ReadOnly: true}
	modified := td.CreateAttribute(taskdata.DateModification)
	modified.Meta = taskdata.Metadata{Label: labelModified, Type: taskdata.TypeDate, ReadOnly: true}
	comment := td.CreateAttribute(taskdata.CommentNew)
	comment.Meta = taskdata.Metadata{Label: labelNewComment, Type: taskdata.TypeLongRichText}
}

func (m *Mapper) fieldAttribute(td *taskdata.TaskData, f domain.Field, creating bool) *taskdata.Attribute {
	b := domain.Base(f)
	attr := td.CreateAttribute(AttributeID(f))
	attr.Meta = taskdata.Metadata{
		Label:    b.Label,
		Type:     domain.MetadataType(f),
		Kind:     domain.MetadataKind(f),
		ReadOnly: domain.IsReadOnly(f, creating),
	}
	switch {
	case isTitle(f):
		attr.Meta.Kind = ""
	case isStatus(f):
		attr.Meta.Label = labelStatus
		attr.Meta.Kind = ""
	case isContributor(f):
		attr.Meta.Label = labelAssignedTo
		attr.Meta.Kind = taskdata.KindPeople
		if _, single := f.(*domain.SelectBoxField); single {
			attr.Meta.Type = taskdata.TypePerson
		}
	}
	for _, item := range items(f) {
		attr.PutOption(strconv.Itoa(item.ID), item.Label)
	}
	return attr
}

// statusOperations offers the statuses reachable from current, in the order
// the workflow declares them.
func (m *Mapper) statusOperations(td *taskdata.TaskData, status *domain.SelectBoxField, current int) {
	op := td.CreateAttribute(taskdata.Operation)
	op.Meta = taskdata.Metadata{Type: taskdata.TypeOperation}
	op.SetValue(taskdata.Status)

	choice := td.CreateAttribute(statusOperationID)
	choice.Meta = taskdata.Metadata{Label: labelMarkAs, Type: taskdata.TypeSingleSelect, Kind: taskdata.KindOperation}
	for _, item := range status.AllowedStatuses(current) {
		choice.PutOption(strconv.Itoa(item.ID), item.Label)
	}
}

// selectedStatus prefers a status picked through the "mark as" operation
// over the value of the status attribute.
func (m *Mapper) selectedStatus(td *taskdata.TaskData, attr *taskdata.Attribute) []int {
	if op, ok := td.Attribute(statusOperationID); ok && op.Value() != "" {
		if id, err := strconv.Atoi(op.Value()); err == nil {
			return []int{id}
		}
	}
	return parseIDs(attr.Values())
}

func (m *Mapper) fieldValue(attr *taskdata.Attribute) (domain.FieldValue, bool) {
	id, err := strconv.Atoi(attr.ID)
	if err != nil {
		return nil, false
	}
	bound := attr.Meta.Type == taskdata.TypeSingleSelect || attr.Meta.Type == taskdata.TypeMultiSelect
	if m.Tracker != nil {
		f, ok := m.Tracker.Field(id)
		if !ok || !Materialized(f) {
			return nil, false
		}
		switch f.(type) {
		case *domain.SelectBoxField, *domain.MultiSelectBoxField:
			bound = true
		default:
			bound = false
		}
	}
	if bound {
		return domain.BoundValue{Field: id, ValueIDs: parseIDs(attr.Values())}, true
	}
	return domain.LiteralValue{Field: id, Value: attr.Value()}, true
}

func (m *Mapper) userAttribute(attr *taskdata.Attribute, userID int, label string) {
	attr.Meta = taskdata.Metadata{Label: label, Type: taskdata.TypePerson, Kind: taskdata.KindPeople, ReadOnly: true}
	key := strconv.Itoa(userID)
	attr.SetValue(key)
	if u, ok := m.user(userID); ok {
		attr.PutOption(key, u.DisplayName())
	}
}

func (m *Mapper) user(id int) (domain.User, bool) {
	if m.Users == nil {
		return domain.User{}, false
	}
	u, ok := m.Users.User(id)
	if !ok || u == nil {
		return domain.User{}, false
	}
	return *u, true
}

func (m *Mapper) resolveUser(raw string) domain.User {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return domain.User{}
	}
	if u, ok := m.user(id); ok {
		return u
	}
	return domain.User{ID: id}
}

func (m *Mapper) titleField() (*domain.StringField, bool) {
	if m.Tracker == nil {
		return nil, false
	}
	return m.Tracker.TitleField()
}

func (m *Mapper) statusField() (*domain.SelectBoxField, bool) {
	if m.Tracker == nil {
		return nil, false
	}
	return m.Tracker.StatusField()
}

func (m *Mapper) contributorField() (domain.Field, bool) {
	if m.Tracker == nil {
		return nil, false
	}
	return m.Tracker.ContributorField()
}

func items(f domain.Field) []domain.SelectItem {
	switch v := f.(type) {
	case *domain.SelectBoxField:
		return v.Items
	case *domain.MultiSelectBoxField:
		return v.Items
	default:
		return nil
	}
}

func idStrings(ids []int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.Itoa(id))
	}
	return out
}

func parseIDs(values []string) []int {
	var out []int
	for _, v := range values {
		if id, err := strconv.Atoi(v); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func millis(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
