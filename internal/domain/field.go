package domain

import (
	"strconv"
	"time"

	"tuleapsync/internal/taskdata"
)

// Role tags a field as carrying a generic concept regardless of its name.
type Role int

const (
	RoleNone Role = iota
	RoleTitle
	RoleStatus
	RoleContributor
)

func (r Role) String() string {
	switch r {
	case RoleTitle:
		return "title"
	case RoleStatus:
		return "status"
	case RoleContributor:
		return "contributor"
	default:
		return "none"
	}
}

// DynamicKind identifies a server-computed field.
type DynamicKind int

const (
	DynamicSubmittedOn DynamicKind = iota
	DynamicSubmittedBy
	DynamicLastUpdateDate
	DynamicArtifactID
)

// Permission grants of the current user on a field.
const (
	PermRead   = "read"
	PermUpdate = "update"
	PermSubmit = "submit"
)

type Permissions []string

func (p Permissions) Has(perm string) bool {
	for _, v := range p {
		if v == perm {
			return true
		}
	}
	return false
}

// FieldBase holds what every field variant carries.
type FieldBase struct {
	ID          int
	Name        string
	Label       string
	Description string
	Required    bool
	Permissions Permissions
	Role        Role
	// Defaults overrides the variant default value when non-empty.
	Defaults []string
}

func (b *FieldBase) base() *FieldBase { return b }

// Field is one of *StringField, *IntegerField, *SelectBoxField,
// *MultiSelectBoxField, *FileUploadField or *DynamicField.
type Field interface {
	base() *FieldBase
}

// Base exposes the common part of a field.
func Base(f Field) *FieldBase { return f.base() }

type StringField struct {
	FieldBase
	MaxSize int
}

type IntegerField struct {
	FieldBase
}

// SelectItem is one option of a bound field.
type SelectItem struct {
	ID    int
	Label string
}

type Transition struct {
	// From is 0 for the creation of an artifact.
	From int
	To   int
}

type Workflow struct {
	Transitions []Transition
}

// Reachable returns the destinations of the transitions leaving from, in
// declaration order and without duplicates.
func (w Workflow) Reachable(from int) []int {
	var out []int
	seen := map[int]bool{}
	for _, t := range w.Transitions {
		if t.From != from || seen[t.To] {
			continue
		}
		seen[t.To] = true
		out = append(out, t.To)
	}
	return out
}

type SelectBoxField struct {
	FieldBase
	Items    []SelectItem
	Workflow Workflow
	// OpenStatus lists the item ids considered open when the field carries
	// the status role.
	OpenStatus []int
}

func (f *SelectBoxField) Item(id int) (SelectItem, bool) {
	return findItem(f.Items, id)
}

// IsOpen reports whether the item id is an open status. A field without open
// statuses treats every item as open.
func (f *SelectBoxField) IsOpen(id int) bool {
	if len(f.OpenStatus) == 0 {
		return true
	}
	for _, v := range f.OpenStatus {
		if v == id {
			return true
		}
	}
	return false
}

// AllowedStatuses returns the items a status may move to from current. A
// workflow without any transition allows every item.
func (f *SelectBoxField) AllowedStatuses(current int) []SelectItem {
	if len(f.Workflow.Transitions) == 0 {
		return append([]SelectItem(nil), f.Items...)
	}
	var out []SelectItem
	for _, id := range f.Workflow.Reachable(current) {
		if item, ok := f.Item(id); ok {
			out = append(out, item)
		}
	}
	return out
}

type MultiSelectBoxField struct {
	FieldBase
	Items []SelectItem
}

func (f *MultiSelectBoxField) Item(id int) (SelectItem, bool) {
	return findItem(f.Items, id)
}

type FileUploadField struct {
	FieldBase
}

type DynamicField struct {
	FieldBase
	Kind DynamicKind
}

func findItem(items []SelectItem, id int) (SelectItem, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return SelectItem{}, false
}

// MetadataKind is the attribute kind a field is rendered with.
func MetadataKind(f Field) string {
	switch v := f.(type) {
	case *SelectBoxField, *MultiSelectBoxField:
		if v.base().Role == RoleContributor {
			return taskdata.KindPeople
		}
		return taskdata.KindDefault
	case *DynamicField:
		if v.Kind == DynamicSubmittedBy {
			return taskdata.KindPeople
		}
		return taskdata.KindDefault
	default:
		return taskdata.KindDefault
	}
}

// MetadataType is the attribute type a field value is serialized as.
func MetadataType(f Field) string {
	switch v := f.(type) {
	case *StringField:
		return taskdata.TypeShortRichText
	case *IntegerField:
		return taskdata.TypeInteger
	case *SelectBoxField:
		return taskdata.TypeSingleSelect
	case *MultiSelectBoxField:
		return taskdata.TypeMultiSelect
	case *FileUploadField:
		return taskdata.TypeAttachment
	case *DynamicField:
		switch v.Kind {
		case DynamicSubmittedOn, DynamicLastUpdateDate:
			return taskdata.TypeDate
		case DynamicSubmittedBy:
			return taskdata.TypePerson
		default:
			return taskdata.TypeInteger
		}
	default:
		return taskdata.TypeShortText
	}
}

// DefaultValue returns the values a field holds on an artifact that has none.
func DefaultValue(f Field, now time.Time) []string {
	if d := f.base().Defaults; len(d) > 0 {
		return append([]string(nil), d...)
	}
	switch v := f.(type) {
	case *StringField:
		return []string{""}
	case *IntegerField:
		return []string{"0"}
	case *DynamicField:
		if v.Kind == DynamicLastUpdateDate {
			return []string{strconv.FormatInt(now.UnixMilli(), 10)}
		}
		return nil
	default:
		return nil
	}
}

// IsReadOnly reports whether a field can not be edited locally. Dynamic
// fields never can; other fields follow the current user's permissions when
// the server sent any.
func IsReadOnly(f Field, creating bool) bool {
	if _, ok := f.(*DynamicField); ok {
		return true
	}
	perms := f.base().Permissions
	if len(perms) == 0 {
		return false
	}
	if creating {
		return !perms.Has(PermSubmit)
	}
	return !perms.Has(PermUpdate)
}
