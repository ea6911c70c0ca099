package taskdata

import (
	"encoding/json"
	"strings"
)

// Attribute types understood by the host editor.
const (
	TypeShortText     = "shortText"
	TypeShortRichText = "shortRichText"
	TypeLongRichText  = "longRichText"
	TypeInteger       = "integer"
	TypeDouble        = "double"
	TypeDate          = "date"
	TypeDateTime      = "dateTime"
	TypeSingleSelect  = "singleSelect"
	TypeMultiSelect   = "multiSelect"
	TypePerson        = "person"
	TypeAttachment    = "attachment"
	TypeComment       = "comment"
	TypeOperation     = "operation"
	TypeURL           = "url"
	TypeContainer     = "container"
)

// Attribute kinds decide where the host renders an attribute.
const (
	KindDefault   = "task.common.kind.default"
	KindPeople    = "task.common.kind.people"
	KindOperation = "task.common.kind.operation"
)

// Reserved attribute ids.
const (
	Summary          = "task.common.summary"
	Status           = "task.common.status"
	UserAssigned     = "task.common.user.assigned"
	UserReporter     = "task.common.user.reporter"
	DateCreation     = "task.common.date.created"
	DateModification = "task.common.date.modified"
	DateCompletion   = "task.common.date.completed"
	CommentNew       = "task.common.comment.new"
	TaskKind         = "task.common.kind"
	TaskKey          = "task.common.key"
	TaskURL          = "task.common.url"
	Operation        = "task.common.operation"

	PrefixOperation  = "task.common.operation-"
	PrefixComment    = "task.common.comment-"
	PrefixAttachment = "task.common.attachment-"
	PrefixPlanning   = "tuleap.planning-"

	// TrackerID and ProjectID locate a task that has no id yet.
	TrackerID = "tuleap.tracker.id"
	ProjectID = "tuleap.project.id"

	CommentAuthor = "task.common.comment.author"
	CommentDate   = "task.common.comment.date"
	CommentText   = "task.common.comment.text"
	CommentNumber = "task.common.comment.number"

	AttachmentID          = "task.common.attachment.id"
	AttachmentFilename    = "filename"
	AttachmentSize        = "task.common.attachment.size"
	AttachmentDescription = "desc"
	AttachmentContentType = "task.common.attachment.ctype"
	AttachmentAuthor      = "task.common.attachment.author"
	AttachmentField       = "tuleap.attachment.field"
)

// IsInternal reports whether id is reserved by the host or the connector
// rather than naming a tracker field.
func IsInternal(id string) bool {
	return strings.HasPrefix(id, "task.common.") || strings.HasPrefix(id, "tuleap.") ||
		id == AttachmentFilename || id == AttachmentDescription
}

// Metadata describes how an attribute is presented.
type Metadata struct {
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Option is a selectable value of an attribute.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Attribute is a node of the task data tree. Values and options keep
// insertion order.
type Attribute struct {
	ID   string
	Meta Metadata

	values   []string
	options  []Option
	children []*Attribute
}

func newAttribute(id string) *Attribute {
	return &Attribute{ID: id}
}

func (a *Attribute) Value() string {
	if len(a.values) == 0 {
		return ""
	}
	return a.values[0]
}

func (a *Attribute) SetValue(v string) {
	a.values = []string{v}
}

func (a *Attribute) Values() []string {
	return append([]string(nil), a.values...)
}

func (a *Attribute) SetValues(vs []string) {
	a.values = append([]string(nil), vs...)
}

func (a *Attribute) AddValue(v string) {
	a.values = append(a.values, v)
}

func (a *Attribute) ClearValues() {
	a.values = nil
}

// PutOption adds an option or relabels an existing one.
func (a *Attribute) PutOption(key, label string) {
	for i := range a.options {
		if a.options[i].Key == key {
			a.options[i].Label = label
			return
		}
	}
	a.options = append(a.options, Option{Key: key, Label: label})
}

func (a *Attribute) Options() []Option {
	return append([]Option(nil), a.options...)
}

func (a *Attribute) OptionLabel(key string) (string, bool) {
	for _, o := range a.options {
		if o.Key == key {
			return o.Label, true
		}
	}
	return "", false
}

func (a *Attribute) ClearOptions() {
	a.options = nil
}

// CreateChild adds a child attribute, replacing any child with the same id.
func (a *Attribute) CreateChild(id string) *Attribute {
	child := newAttribute(id)
	for i, c := range a.children {
		if c.ID == id {
			a.children[i] = child
			return child
		}
	}
	a.children = append(a.children, child)
	return child
}

func (a *Attribute) Child(id string) (*Attribute, bool) {
	for _, c := range a.children {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (a *Attribute) Children() []*Attribute {
	return append([]*Attribute(nil), a.children...)
}

func (a *Attribute) RemoveChild(id string) {
	for i, c := range a.children {
		if c.ID == id {
			a.children = append(a.children[:i], a.children[i+1:]...)
			return
		}
	}
}

// ChildValue returns the first value of a child, or "" when absent.
func (a *Attribute) ChildValue(id string) string {
	if c, ok := a.Child(id); ok {
		return c.Value()
	}
	return ""
}

// TaskData is the generic representation of one task exchanged with the host.
// An empty TaskID marks a task that does not exist on the server yet.
type TaskData struct {
	ConnectorKind string
	RepositoryURL string
	TaskID        string

	root *Attribute
}

func New(connectorKind, repositoryURL, taskID string) *TaskData {
	return &TaskData{
		ConnectorKind: connectorKind,
		RepositoryURL: repositoryURL,
		TaskID:        taskID,
		root:          newAttribute("root"),
	}
}

func (d *TaskData) IsNew() bool { return d.TaskID == "" }

func (d *TaskData) Root() *Attribute {
	if d.root == nil {
		d.root = newAttribute("root")
	}
	return d.root
}

func (d *TaskData) Attribute(id string) (*Attribute, bool) {
	return d.Root().Child(id)
}

func (d *TaskData) CreateAttribute(id string) *Attribute {
	return d.Root().CreateChild(id)
}

// Attributes lists the top-level attributes in insertion order.
func (d *TaskData) Attributes() []*Attribute {
	return d.Root().Children()
}

// Value returns the first value of a top-level attribute, or "".
func (d *TaskData) Value(id string) string {
	return d.Root().ChildValue(id)
}

type attributeJSON struct {
	ID       string          `json:"id"`
	Meta     Metadata        `json:"meta"`
	Values   []string        `json:"values,omitempty"`
	Options  []Option        `json:"options,omitempty"`
	Children []attributeJSON `json:"children,omitempty"`
}

type taskDataJSON struct {
	ConnectorKind string          `json:"connector_kind"`
	RepositoryURL string          `json:"repository_url"`
	TaskID        string          `json:"task_id,omitempty"`
	Attributes    []attributeJSON `json:"attributes"`
}

func toJSON(a *Attribute) attributeJSON {
	out := attributeJSON{ID: a.ID, Meta: a.Meta, Values: a.values, Options: a.options}
	for _, c := range a.children {
		out.Children = append(out.Children, toJSON(c))
	}
	return out
}

func fromJSON(in attributeJSON) *Attribute {
	a := &Attribute{ID: in.ID, Meta: in.Meta, values: in.Values, options: in.Options}
	for _, c := range in.Children {
		a.children = append(a.children, fromJSON(c))
	}
	return a
}

func (d *TaskData) MarshalJSON() ([]byte, error) {
	out := taskDataJSON{
		ConnectorKind: d.ConnectorKind,
		RepositoryURL: d.RepositoryURL,
		TaskID:        d.TaskID,
		Attributes:    []attributeJSON{},
	}
	for _, c := range d.Root().children {
		out.Attributes = append(out.Attributes, toJSON(c))
	}
	return json.Marshal(out)
}

func (d *TaskData) UnmarshalJSON(data []byte) error {
	var in taskDataJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.ConnectorKind = in.ConnectorKind
	d.RepositoryURL = in.RepositoryURL
	d.TaskID = in.TaskID
	d.root = newAttribute("root")
	for _, c := range in.Attributes {
		d.root.children = append(d.root.children, fromJSON(c))
	}
	return nil
}
