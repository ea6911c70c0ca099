package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"tuleapsync/internal/domain"
)

// EncodeArtifact renders the create/update payload of an artifact. Values
// are only sent when there are some, and a pending comment is attached in
// text format.
func (r *Registry) EncodeArtifact(a *domain.Artifact) ([]byte, error) {
	body := map[string]any{
		"tracker": RefJSON{ID: a.Tracker.ID, URI: a.Tracker.URI},
	}
	if !a.IsNew() {
		body["id"] = a.ID
	}
	if a.Label != "" {
		body["label"] = a.Label
	}
	if a.URI != "" {
		body["uri"] = a.URI
	}
	if a.HTMLURL != "" {
		body["html_url"] = a.HTMLURL
	}
	if values := a.Values(); len(values) > 0 {
		items := make([]map[string]any, 0, len(values))
		for _, v := range values {
			items = append(items, encodeValue(v))
		}
		body["values"] = items
	}
	if a.NewComment != "" {
		body["comment"] = CommentBodyJSON{Body: a.NewComment, Format: "text"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode artifact %d: %w", a.ID, err)
	}
	return data, nil
}

func encodeValue(v domain.FieldValue) map[string]any {
	out := map[string]any{"field_id": v.FieldID()}
	switch val := v.(type) {
	case domain.LiteralValue:
		out["value"] = val.Value
	case domain.BoundValue:
		if len(val.ValueIDs) == 1 {
			out["bind_value_id"] = val.ValueIDs[0]
		} else {
			ids := val.ValueIDs
			if ids == nil {
				ids = []int{}
			}
			out["bind_value_ids"] = ids
		}
	case domain.AttachmentValue:
		files := make([]FileDescriptionJSON, 0, len(val.Attachments))
		for _, att := range val.Attachments {
			files = append(files, FileDescriptionJSON{
				FileID:      att.ID,
				SubmittedBy: att.Submitter.ID,
				Description: att.Description,
				Name:        att.Filename,
				Size:        att.Size,
				Type:        att.ContentType,
			})
		}
		out["file_descriptions"] = files
	}
	return out
}

// EncodeBacklogItem renders a backlog item together with the tracker used
// to create it and its initial effort.
func (r *Registry) EncodeBacklogItem(b domain.BacklogItem) ([]byte, error) {
	body := map[string]any{
		"id":                   b.ID,
		"label":                b.Label,
		"status":               b.Status,
		"backlog_item_type_id": b.TypeID,
	}
	if b.InitialEffort != nil {
		body["initial_effort"] = *b.InitialEffort
	}
	return json.Marshal(body)
}

func (r *Registry) EncodeCredentials(username, password string) ([]byte, error) {
	return json.Marshal(CredentialsJSON{Username: username, Password: password})
}

// EncodeCriteria renders an ad-hoc query keyed by field name. Criteria are
// written in name order so identical queries encode identically.
func (r *Registry) EncodeCriteria(criteria map[string][]string) ([]byte, error) {
	names := make([]string, 0, len(criteria))
	for name := range criteria {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]CriterionJSON, len(criteria))
	for _, name := range names {
		values := criteria[name]
		c := CriterionJSON{Value: values}
		if len(values) > 1 {
			c.Operator = "contains"
		}
		out[name] = c
	}
	return json.Marshal(out)
}

// The following build wire values out of domain values. The mock server
// uses them to answer like a Tuleap instance would.

func (r *Registry) ProjectJSON(p *domain.Project) ProjectJSON {
	out := ProjectJSON{ID: p.ID, URI: p.URI, Label: p.Label, ShortName: p.ShortName, Resources: []ResourceJSON{}}
	for _, res := range p.Resources {
		out.Resources = append(out.Resources, ResourceJSON{Type: res.Type, URI: res.URI})
	}
	return out
}

func (r *Registry) TrackerJSON(t *domain.Tracker) TrackerJSON {
	out := TrackerJSON{
		ID:          t.ID,
		URI:         t.URI,
		HTMLURL:     t.HTMLURL,
		Label:       t.Label,
		Description: t.Description,
		ItemName:    t.ItemName,
		Project:     RefJSON{ID: t.Project.ID, URI: t.Project.URI},
		Fields:      []FieldJSON{},
	}
	if t.ParentID != 0 {
		out.Parent = &RefJSON{ID: t.ParentID, URI: "trackers/" + strconv.Itoa(t.ParentID)}
	}
	for _, f := range t.Fields() {
		b := domain.Base(f)
		fj := FieldJSON{
			FieldID:     b.ID,
			Name:        b.Name,
			Label:       b.Label,
			Description: b.Description,
			Required:    b.Required,
			Permissions: []string(b.Permissions),
			Values:      []ItemJSON{},
		}
		switch v := f.(type) {
		case *domain.StringField:
			fj.Type = TypeString
			fj.Size = v.MaxSize
		case *domain.IntegerField:
			fj.Type = TypeInt
		case *domain.SelectBoxField:
			fj.Type = TypeSelectBox
			fj.Values = items(v.Items)
			if len(v.Workflow.Transitions) > 0 {
				wf := &WorkflowJSON{FieldID: b.ID, IsUsed: "1"}
				for _, tr := range v.Workflow.Transitions {
					tj := TransitionJSON{ToID: tr.To}
					if tr.From != 0 {
						from := tr.From
						tj.FromID = &from
					}
					wf.Transitions = append(wf.Transitions, tj)
				}
				out.Workflow = wf
			}
			if b.Role == domain.RoleStatus {
				out.Semantics.Status = &StatusSemanticJSON{FieldID: b.ID, ValueIDs: v.OpenStatus}
			}
		case *domain.MultiSelectBoxField:
			fj.Type = TypeMultiSelect
			fj.Values = items(v.Items)
		case *domain.FileUploadField:
			fj.Type = TypeFile
		case *domain.DynamicField:
			switch v.Kind {
			case domain.DynamicSubmittedOn:
				fj.Type = TypeSubmittedOn
			case domain.DynamicSubmittedBy:
				fj.Type = TypeSubmittedBy
			case domain.DynamicLastUpdateDate:
				fj.Type = TypeLastUpdate
			case domain.DynamicArtifactID:
				fj.Type = TypeArtifactID
			}
		}
		if len(b.Defaults) > 0 {
			fj.DefaultValue, _ = json.Marshal(b.Defaults[0])
		}
		switch b.Role {
		case domain.RoleTitle:
			out.Semantics.Title = &SemanticFieldJSON{FieldID: b.ID}
		case domain.RoleContributor:
			out.Semantics.Contributor = &SemanticFieldJSON{FieldID: b.ID}
		}
		out.Fields = append(out.Fields, fj)
	}
	return out
}

func items(in []domain.SelectItem) []ItemJSON {
	out := make([]ItemJSON, 0, len(in))
	for _, it := range in {
		out = append(out, ItemJSON{ID: it.ID, Label: it.Label})
	}
	return out
}

func (r *Registry) ArtifactJSON(a *domain.Artifact) ArtifactJSON {
	out := ArtifactJSON{
		ID:               a.ID,
		URI:              a.URI,
		Label:            a.Label,
		HTMLURL:          a.HTMLURL,
		Tracker:          RefJSON{ID: a.Tracker.ID, URI: a.Tracker.URI},
		Project:          RefJSON{ID: a.Project.ID, URI: a.Project.URI},
		SubmittedBy:      a.SubmittedBy,
		SubmittedOn:      r.FormatDate(a.SubmittedOn),
		LastModifiedDate: r.FormatDate(a.LastModified),
		Values:           []ArtifactValueJSON{},
	}
	for _, v := range a.Values() {
		vj := ArtifactValueJSON{FieldID: v.FieldID()}
		switch val := v.(type) {
		case domain.LiteralValue:
			vj.Value, _ = json.Marshal(val.Value)
		case domain.BoundValue:
			ids := append([]int{}, val.ValueIDs...)
			vj.BindValueIDs = ids
		case domain.AttachmentValue:
			vj.FileDescriptions = []FileDescriptionJSON{}
			for _, att := range val.Attachments {
				vj.FileDescriptions = append(vj.FileDescriptions, FileDescriptionJSON{
					ID:          att.ID,
					SubmittedBy: att.Submitter.ID,
					Description: att.Description,
					Name:        att.Filename,
					Size:        att.Size,
					Type:        att.ContentType,
				})
			}
		}
		out.Values = append(out.Values, vj)
	}
	return out
}

func (r *Registry) ChangesetJSON(id int, c domain.Comment) ChangesetJSON {
	u := UserJSON{ID: c.Author.ID, Username: c.Author.Username, RealName: c.Author.RealName, Email: c.Author.Email}
	return ChangesetJSON{
		ID:                 id,
		SubmittedBy:        c.Author.ID,
		SubmittedByDetails: &u,
		SubmittedOn:        r.FormatDate(c.Date),
		LastComment:        CommentBodyJSON{Body: c.Body, Format: "text"},
	}
}

func (r *Registry) MilestoneJSON(m domain.Milestone) MilestoneJSON {
	out := MilestoneJSON{
		ID:               m.ID,
		URI:              m.URI,
		Label:            m.Label,
		HTMLURL:          m.HTMLURL,
		StatusValue:      m.Status,
		SubmittedBy:      m.SubmittedBy,
		SubmittedOn:      r.FormatDate(m.SubmittedOn),
		StartDate:        r.FormatDate(m.StartDate),
		EndDate:          r.FormatDate(m.EndDate),
		Capacity:         m.Capacity,
		LastModifiedDate: r.FormatDate(m.LastModified),
		Planning:         RefJSON{ID: m.Planning.ID, URI: m.Planning.URI},
		Project:          RefJSON{ID: m.Project.ID, URI: m.Project.URI},
		Artifact:         artifactRefJSON(m.Artifact),
	}
	if m.Parent != nil {
		out.Parent = &RefJSON{ID: m.Parent.ID, URI: m.Parent.URI}
	}
	return out
}

func (r *Registry) BacklogItemJSON(b domain.BacklogItem) BacklogItemJSON {
	out := BacklogItemJSON{
		ID:            b.ID,
		URI:           b.URI,
		Label:         b.Label,
		HTMLURL:       b.HTMLURL,
		Status:        b.Status,
		Type:          b.Type,
		InitialEffort: b.InitialEffort,
		Artifact:      artifactRefJSON(b.Artifact),
		Project:       RefJSON{ID: b.Project.ID, URI: b.Project.URI},
	}
	if b.Parent != nil {
		p := artifactRefJSON(*b.Parent)
		out.Parent = &p
	}
	return out
}

func (r *Registry) PlanningJSON(p domain.Planning) PlanningJSON {
	out := PlanningJSON{
		ID:               p.ID,
		URI:              p.URI,
		Label:            p.Label,
		Project:          RefJSON{ID: p.Project.ID, URI: p.Project.URI},
		MilestoneTracker: RefJSON{ID: p.MilestoneTracker.ID, URI: p.MilestoneTracker.URI},
		BacklogTrackers:  []RefJSON{},
		MilestonesURI:    p.MilestonesURI,
		CardwallURI:      p.CardwallURI,
	}
	for _, bt := range p.BacklogTrackers {
		out.BacklogTrackers = append(out.BacklogTrackers, RefJSON{ID: bt.ID, URI: bt.URI})
	}
	return out
}

func artifactRefJSON(a domain.ArtifactRef) ArtifactRefJSON {
	return ArtifactRefJSON{ID: a.ID, URI: a.URI, Tracker: RefJSON{ID: a.Tracker.ID, URI: a.Tracker.URI}}
}
