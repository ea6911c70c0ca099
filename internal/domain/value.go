package domain

import "time"

// FieldValue is one of LiteralValue, BoundValue or AttachmentValue, keyed by
// the id of the field it belongs to.
type FieldValue interface {
	FieldID() int
}

type LiteralValue struct {
	Field int
	Value string
}

func (v LiteralValue) FieldID() int { return v.Field }

// BoundValue references option ids of a select box (one id) or a
// multi-select box (any number).
type BoundValue struct {
	Field    int
	ValueIDs []int
}

func (v BoundValue) FieldID() int { return v.Field }

type Attachment struct {
	ID          int
	Filename    string
	Submitter   User
	Size        int64
	Description string
	ContentType string
}

type AttachmentValue struct {
	Field       int
	Attachments []Attachment
}

func (v AttachmentValue) FieldID() int { return v.Field }

type Comment struct {
	Author User
	Date   time.Time
	Body   string
}

// Ref points at a server resource.
type Ref struct {
	ID  int
	URI string
}

// Artifact is an instance of a tracker's schema. ID is 0 until the server
// created it.
type Artifact struct {
	ID           int
	Tracker      Ref
	Project      Ref
	Label        string
	URI          string
	HTMLURL      string
	SubmittedBy  int
	SubmittedOn  time.Time
	LastModified time.Time
	Comments     []Comment
	// NewComment is submitted with the next update.
	NewComment string

	values []FieldValue
}

func NewArtifact(id int, tracker, project Ref) *Artifact {
	return &Artifact{ID: id, Tracker: tracker, Project: project}
}

func (a *Artifact) IsNew() bool { return a.ID == 0 }

// Clone copies a, sharing nothing mutable with it.
func (a *Artifact) Clone() *Artifact {
	cp := *a
	cp.Comments = append([]Comment(nil), a.Comments...)
	cp.values = append([]FieldValue(nil), a.values...)
	return &cp
}

// SetValue stores v, replacing the value already held for the same field.
func (a *Artifact) SetValue(v FieldValue) {
	for i, cur := range a.values {
		if cur.FieldID() == v.FieldID() {
			a.values[i] = v
			return
		}
	}
	a.values = append(a.values, v)
}

func (a *Artifact) Value(fieldID int) (FieldValue, bool) {
	for _, v := range a.values {
		if v.FieldID() == fieldID {
			return v, true
		}
	}
	return nil, false
}

// Values lists the field values in the order they were set.
func (a *Artifact) Values() []FieldValue {
	return append([]FieldValue(nil), a.values...)
}

func (a *Artifact) RemoveValue(fieldID int) {
	for i, v := range a.values {
		if v.FieldID() == fieldID {
			a.values = append(a.values[:i], a.values[i+1:]...)
			return
		}
	}
}

// LiteralOf returns the literal held for a field.
func (a *Artifact) LiteralOf(fieldID int) (string, bool) {
	v, ok := a.Value(fieldID)
	if !ok {
		return "", false
	}
	lit, ok := v.(LiteralValue)
	return lit.Value, ok
}

// BoundOf returns the option ids held for a field.
func (a *Artifact) BoundOf(fieldID int) ([]int, bool) {
	v, ok := a.Value(fieldID)
	if !ok {
		return nil, false
	}
	b, ok := v.(BoundValue)
	return b.ValueIDs, ok
}
