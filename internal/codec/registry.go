package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tuleapsync/internal/domain"
)

// Registry converts between Tuleap JSON and the domain model. Each client
// owns its registry; dates are rendered in the registry location.
type Registry struct {
	loc *time.Location
}

// New returns a registry rendering dates in loc, or in the local time zone
// when loc is nil.
func New(loc *time.Location) *Registry {
	return &Registry{loc: loc}
}

func (r *Registry) location() *time.Location {
	if r == nil || r.loc == nil {
		return time.Local
	}
	return r.loc
}

// Tracker field type codes.
const (
	TypeString      = "string"
	TypeText        = "text"
	TypeInt         = "int"
	TypeFloat       = "float"
	TypeDate        = "date"
	TypeSelectBox   = "sb"
	TypeRadio       = "rb"
	TypeMultiSelect = "msb"
	TypeCheckbox    = "cb"
	TypeFile        = "file"
	TypeArtifactID  = "aid"
	TypeLastUpdate  = "lud"
	TypeSubmittedBy = "subby"
	TypeSubmittedOn = "subon"
)

// ParseError reads the error envelope. The second result is false when the
// body is not an envelope.
func ParseError(data []byte) (ErrorEnvelopeJSON, bool) {
	var env ErrorEnvelopeJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return env, false
	}
	if env.Error.Code == 0 && env.Error.Message == "" {
		return env, false
	}
	return env, true
}

func (r *Registry) DecodeProjects(data []byte) ([]*domain.Project, error) {
	var items []ProjectJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	out := make([]*domain.Project, 0, len(items))
	for _, it := range items {
		p := domain.NewProject(it.ID, it.Label)
		p.URI = it.URI
		p.ShortName = it.ShortName
		for _, res := range it.Resources {
			p.Resources = append(p.Resources, domain.Resource{Type: res.Type, URI: res.URI})
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Registry) DecodeTrackers(data []byte) ([]*domain.Tracker, error) {
	var items []TrackerJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode trackers: %w", err)
	}
	out := make([]*domain.Tracker, 0, len(items))
	for _, it := range items {
		t, err := r.tracker(it)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Registry) DecodeTracker(data []byte) (*domain.Tracker, error) {
	var it TrackerJSON
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode tracker: %w", err)
	}
	return r.tracker(it)
}

func (r *Registry) tracker(in TrackerJSON) (*domain.Tracker, error) {
	t := domain.NewTracker(in.ID, in.Label)
	t.URI = in.URI
	t.HTMLURL = in.HTMLURL
	t.Description = in.Description
	t.ItemName = in.ItemName
	t.Project = domain.Ref{ID: in.Project.ID, URI: in.Project.URI}
	if in.Parent != nil {
		t.ParentID = in.Parent.ID
	}
	roles := map[int]domain.Role{}
	var openStatus []int
	if s := in.Semantics.Title; s != nil {
		roles[s.FieldID] = domain.RoleTitle
	}
	if s := in.Semantics.Status; s != nil {
		roles[s.FieldID] = domain.RoleStatus
		openStatus = s.ValueIDs
	}
	if s := in.Semantics.Contributor; s != nil {
		roles[s.FieldID] = domain.RoleContributor
	}
	for _, fj := range in.Fields {
		f, ok := field(fj)
		if !ok {
			continue
		}
		b := domain.Base(f)
		b.Role = roles[b.ID]
		if sb, ok := f.(*domain.SelectBoxField); ok {
			if b.Role == domain.RoleStatus {
				sb.OpenStatus = openStatus
			}
			if wf := in.Workflow; wf != nil && wf.FieldID == b.ID && wf.IsUsed == "1" {
				for _, tr := range wf.Transitions {
					from := 0
					if tr.FromID != nil {
						from = *tr.FromID
					}
					sb.Workflow.Transitions = append(sb.Workflow.Transitions, domain.Transition{From: from, To: tr.ToID})
				}
			}
		}
		if err := t.AddField(f); err != nil {
			return nil, fmt.Errorf("decode tracker %d: %w", in.ID, err)
		}
	}
	return t, nil
}

func field(in FieldJSON) (domain.Field, bool) {
	base := domain.FieldBase{
		ID:          in.FieldID,
		Name:        in.Name,
		Label:       in.Label,
		Description: in.Description,
		Required:    in.Required,
		Permissions: domain.Permissions(in.Permissions),
		Defaults:    defaults(in.DefaultValue),
	}
	items := make([]domain.SelectItem, 0, len(in.Values))
	for _, v := range in.Values {
		items = append(items, domain.SelectItem{ID: v.ID, Label: v.Label})
	}
	switch in.Type {
	case TypeString, TypeText, TypeFloat, TypeDate:
		return &domain.StringField{FieldBase: base, MaxSize: in.Size}, true
	case TypeInt:
		return &domain.IntegerField{FieldBase: base}, true
	case TypeSelectBox, TypeRadio:
		return &domain.SelectBoxField{FieldBase: base, Items: items}, true
	case TypeMultiSelect, TypeCheckbox:
		return &domain.MultiSelectBoxField{FieldBase: base, Items: items}, true
	case TypeFile:
		return &domain.FileUploadField{FieldBase: base}, true
	case TypeArtifactID:
		return &domain.DynamicField{FieldBase: base, Kind: domain.DynamicArtifactID}, true
	case TypeLastUpdate:
		return &domain.DynamicField{FieldBase: base, Kind: domain.DynamicLastUpdateDate}, true
	case TypeSubmittedBy:
		return &domain.DynamicField{FieldBase: base, Kind: domain.DynamicSubmittedBy}, true
	case TypeSubmittedOn:
		return &domain.DynamicField{FieldBase: base, Kind: domain.DynamicSubmittedOn}, true
	default:
		return nil, false
	}
}

func defaults(raw json.RawMessage) []string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err == nil {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, strconv.Itoa(id))
		}
		return out
	}
	return []string{string(raw)}
}

func (r *Registry) DecodeArtifact(data []byte) (*domain.Artifact, error) {
	var in ArtifactJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return r.artifact(in)
}

func (r *Registry) DecodeArtifacts(data []byte) ([]*domain.Artifact, error) {
	var items []ArtifactJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	out := make([]*domain.Artifact, 0, len(items))
	for _, it := range items {
		a, err := r.artifact(it)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Registry) artifact(in ArtifactJSON) (*domain.Artifact, error) {
	a := domain.NewArtifact(in.ID,
		domain.Ref{ID: in.Tracker.ID, URI: in.Tracker.URI},
		domain.Ref{ID: in.Project.ID, URI: in.Project.URI})
	a.URI = in.URI
	a.Label = in.Label
	a.HTMLURL = in.HTMLURL
	a.SubmittedBy = in.SubmittedBy
	var err error
	if a.SubmittedOn, err = r.ParseDate(in.SubmittedOn); err != nil {
		return nil, fmt.Errorf("artifact %d submitted_on: %w", in.ID, err)
	}
	if a.LastModified, err = r.ParseDate(in.LastModifiedDate); err != nil {
		return nil, fmt.Errorf("artifact %d last_modified_date: %w", in.ID, err)
	}
	for _, v := range in.Values {
		a.SetValue(fieldValue(v))
	}
	return a, nil
}

// DecodeArtifactPayload reads the body written by EncodeArtifact.
func (r *Registry) DecodeArtifactPayload(data []byte) (*domain.Artifact, error) {
	var in ArtifactPayloadJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode artifact payload: %w", err)
	}
	a := domain.NewArtifact(in.ID, domain.Ref{ID: in.Tracker.ID, URI: in.Tracker.URI}, domain.Ref{})
	for _, v := range in.Values {
		a.SetValue(fieldValue(v))
	}
	if in.Comment != nil {
		a.NewComment = in.Comment.Body
	}
	return a, nil
}

func fieldValue(in ArtifactValueJSON) domain.FieldValue {
	switch {
	case in.FileDescriptions != nil:
		atts := make([]domain.Attachment, 0, len(in.FileDescriptions))
		for _, fd := range in.FileDescriptions {
			id := fd.ID
			if id == 0 {
				id = fd.FileID
			}
			atts = append(atts, domain.Attachment{
				ID:          id,
				Filename:    fd.Name,
				Submitter:   domain.User{ID: fd.SubmittedBy},
				Size:        fd.Size,
				Description: fd.Description,
				ContentType: fd.Type,
			})
		}
		return domain.AttachmentValue{Field: in.FieldID, Attachments: atts}
	case in.BindValueIDs != nil:
		return domain.BoundValue{Field: in.FieldID, ValueIDs: append([]int(nil), in.BindValueIDs...)}
	case in.BindValueID != nil:
		return domain.BoundValue{Field: in.FieldID, ValueIDs: []int{*in.BindValueID}}
	default:
		return domain.LiteralValue{Field: in.FieldID, Value: literal(in.Value)}
	}
}

// literal returns a JSON string unquoted and any other scalar verbatim.
func literal(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (r *Registry) DecodeComments(data []byte) ([]domain.Comment, error) {
	var items []ChangesetJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	out := make([]domain.Comment, 0, len(items))
	for _, it := range items {
		if it.LastComment.Body == "" {
			continue
		}
		date, err := r.ParseDate(it.SubmittedOn)
		if err != nil {
			return nil, fmt.Errorf("changeset %d: %w", it.ID, err)
		}
		author := domain.Anonymous
		switch {
		case it.SubmittedByDetails != nil:
			author = user(*it.SubmittedByDetails)
		case it.SubmittedBy != 0:
			author = domain.User{ID: it.SubmittedBy, Email: it.Email}
		case it.Email != "":
			author.Email = it.Email
		}
		out = append(out, domain.Comment{Author: author, Date: date, Body: it.LastComment.Body})
	}
	return out, nil
}

func user(in UserJSON) domain.User {
	return domain.User{ID: in.ID, Username: in.Username, RealName: in.RealName, Email: in.Email, LdapID: in.LdapID}
}

func (r *Registry) DecodeUsers(data []byte) ([]*domain.User, error) {
	var items []UserJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]*domain.User, 0, len(items))
	for _, it := range items {
		u := user(it)
		out = append(out, &u)
	}
	return out, nil
}

func (r *Registry) DecodeUserGroups(data []byte) ([]*domain.UserGroup, error) {
	var items []UserGroupJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode user groups: %w", err)
	}
	out := make([]*domain.UserGroup, 0, len(items))
	for _, it := range items {
		out = append(out, &domain.UserGroup{ID: it.ID, Label: it.Label, Key: it.Key})
	}
	return out, nil
}

func (r *Registry) DecodePlannings(data []byte) ([]domain.Planning, error) {
	var items []PlanningJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode plannings: %w", err)
	}
	out := make([]domain.Planning, 0, len(items))
	for _, it := range items {
		pl := domain.Planning{
			ID:               it.ID,
			Label:            it.Label,
			URI:              it.URI,
			Project:          ref(it.Project),
			MilestoneTracker: ref(it.MilestoneTracker),
			MilestonesURI:    it.MilestonesURI,
			CardwallURI:      it.CardwallURI,
		}
		for _, bt := range it.BacklogTrackers {
			pl.BacklogTrackers = append(pl.BacklogTrackers, ref(bt))
		}
		out = append(out, pl)
	}
	return out, nil
}

func ref(in RefJSON) domain.Ref {
	return domain.Ref{ID: in.ID, URI: in.URI}
}

func artifactRef(in ArtifactRefJSON) domain.ArtifactRef {
	return domain.ArtifactRef{ID: in.ID, URI: in.URI, Tracker: ref(in.Tracker)}
}

// DecodeRefs reads a list of {id, uri} such as backlog item types.
func (r *Registry) DecodeRefs(data []byte) ([]domain.Ref, error) {
	var items []RefJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode refs: %w", err)
	}
	out := make([]domain.Ref, 0, len(items))
	for _, it := range items {
		out = append(out, ref(it))
	}
	return out, nil
}

func (r *Registry) DecodeTopPlanningIDs(data []byte) ([]int, error) {
	var items []TopPlanningJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode top plannings: %w", err)
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out, nil
}

func (r *Registry) DecodeMilestone(data []byte) (domain.Milestone, error) {
	var in MilestoneJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return domain.Milestone{}, fmt.Errorf("decode milestone: %w", err)
	}
	return r.milestone(in)
}

func (r *Registry) DecodeMilestones(data []byte) ([]domain.Milestone, error) {
	var items []MilestoneJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	out := make([]domain.Milestone, 0, len(items))
	for _, it := range items {
		m, err := r.milestone(it)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Registry) milestone(in MilestoneJSON) (domain.Milestone, error) {
	m := domain.Milestone{
		ID:          in.ID,
		Label:       in.Label,
		URI:         in.URI,
		HTMLURL:     in.HTMLURL,
		Status:      in.StatusValue,
		Artifact:    artifactRef(in.Artifact),
		Project:     ref(in.Project),
		Planning:    ref(in.Planning),
		Capacity:    in.Capacity,
		SubmittedBy: in.SubmittedBy,
	}
	if in.Parent != nil {
		p := ref(*in.Parent)
		m.Parent = &p
	}
	dates := []struct {
		raw string
		dst *time.Time
	}{
		{in.StartDate, &m.StartDate},
		{in.EndDate, &m.EndDate},
		{in.SubmittedOn, &m.SubmittedOn},
		{in.LastModifiedDate, &m.LastModified},
	}
	for _, d := range dates {
		t, err := r.ParseDate(d.raw)
		if err != nil {
			return domain.Milestone{}, fmt.Errorf("milestone %d: %w", in.ID, err)
		}
		*d.dst = t
	}
	return m, nil
}

func (r *Registry) DecodeBacklogItems(data []byte) ([]domain.BacklogItem, error) {
	var items []BacklogItemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode backlog items: %w", err)
	}
	out := make([]domain.BacklogItem, 0, len(items))
	for _, it := range items {
		bi := domain.BacklogItem{
			ID:            it.ID,
			Label:         it.Label,
			URI:           it.URI,
			HTMLURL:       it.HTMLURL,
			Status:        it.Status,
			Type:          it.Type,
			Artifact:      artifactRef(it.Artifact),
			Project:       ref(it.Project),
			InitialEffort: it.InitialEffort,
		}
		if it.Parent != nil {
			p := artifactRef(*it.Parent)
			bi.Parent = &p
		}
		out = append(out, bi)
	}
	return out, nil
}

func (r *Registry) DecodeReports(data []byte) ([]domain.TrackerReport, error) {
	var items []TrackerReportJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	out := make([]domain.TrackerReport, 0, len(items))
	for _, it := range items {
		out = append(out, domain.TrackerReport{ID: it.ID, URI: it.URI, Label: it.Label})
	}
	return out, nil
}

func (r *Registry) DecodeToken(data []byte) (TokenJSON, error) {
	var tok TokenJSON
	if err := json.Unmarshal(data, &tok); err != nil {
		return tok, fmt.Errorf("decode token: %w", err)
	}
	if tok.Token == "" {
		return tok, fmt.Errorf("decode token: empty token")
	}
	return tok, nil
}
