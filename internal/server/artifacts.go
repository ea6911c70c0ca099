package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
)

type artifactOutput struct {
	Body codec.ArtifactJSON `json:"body"`
}

type createdArtifactOutput struct {
	Body codec.ArtifactRefJSON `json:"body"`
}

func (h *handlers) registerArtifacts(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-report-artifacts",
		Method:      http.MethodGet,
		Path:        "/tracker_reports/{id}/artifacts",
		Summary:     "Run a tracker report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     int    `path:"id"`
		Values string `query:"values"`
		PageParams
	}) (*page[codec.ArtifactJSON], error) {
		artifacts, ok := h.fixture.reportArtifacts(input.ID)
		if !ok {
			return nil, notFound("tracker report %d", input.ID)
		}
		return paginate(h.artifactsJSON(artifacts), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tracker-artifacts",
		Method:      http.MethodGet,
		Path:        "/trackers/{id}/artifacts",
		Summary:     "List or query the artifacts of a tracker",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     int    `path:"id"`
		Values string `query:"values"`
		Query  string `query:"query" doc:"JSON object of criteria keyed by field name"`
		PageParams
	}) (*page[codec.ArtifactJSON], error) {
		tracker, ok := h.fixture.Server().Tracker(input.ID)
		if !ok {
			return nil, notFound("tracker %d", input.ID)
		}
		match := func(*domain.Artifact) bool { return true }
		if strings.TrimSpace(input.Query) != "" {
			criteria, err := parseCriteria(tracker, input.Query)
			if err != nil {
				return nil, badRequest("%v", err)
			}
			match = criteria.match
		}
		var selected []*domain.Artifact
		for _, a := range h.fixture.artifactsOf(input.ID) {
			if match(a) {
				selected = append(selected, a)
			}
		}
		return paginate(h.artifactsJSON(selected), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifacts/{id}",
		Summary:     "Get an artifact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*artifactOutput, error) {
		a, ok := h.fixture.Artifact(input.ID)
		if !ok {
			return nil, notFound("artifact %d", input.ID)
		}
		return &artifactOutput{Body: h.artifactJSON(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artifact-changesets",
		Method:      http.MethodGet,
		Path:        "/artifacts/{id}/changesets",
		Summary:     "List the changesets of an artifact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     int    `path:"id"`
		Fields string `query:"fields"`
		PageParams
	}) (*page[codec.ChangesetJSON], error) {
		comments, ok := h.fixture.commentsOf(input.ID)
		if !ok {
			return nil, notFound("artifact %d", input.ID)
		}
		out := make([]codec.ChangesetJSON, 0, len(comments))
		for i, c := range comments {
			out = append(out, h.codec.ChangesetJSON(i+1, c))
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts",
		Summary:       "Create an artifact",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*createdArtifactOutput, error) {
		a, err := h.codec.DecodeArtifactPayload(input.RawBody)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		tracker, ok := h.fixture.Server().Tracker(a.Tracker.ID)
		if !ok {
			return nil, notFound("tracker %d", a.Tracker.ID)
		}
		if err := checkValues(tracker, nil, a); err != nil {
			return nil, badRequest("%v", err)
		}
		now := h.fixture.now()
		a.Tracker = domain.Ref{ID: tracker.ID, URI: tracker.URI}
		a.Project = tracker.Project
		a.SubmittedBy = userID(ctx)
		a.SubmittedOn = now
		a.LastModified = now
		id := h.fixture.create(a)
		h.logger.Printf("mock: created artifact %d in tracker %d", id, tracker.ID)
		return &createdArtifactOutput{Body: codec.ArtifactRefJSON{
			ID:      id,
			URI:     "artifacts/" + strconv.Itoa(id),
			Tracker: codec.RefJSON{ID: tracker.ID, URI: tracker.URI},
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artifact",
		Method:      http.MethodPut,
		Path:        "/artifacts/{id}",
		Summary:     "Update an artifact and add a comment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      int `path:"id"`
		RawBody []byte
	}) (*struct{}, error) {
		payload, err := h.codec.DecodeArtifactPayload(input.RawBody)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		found, err := h.fixture.update(input.ID, userID(ctx), func(a *domain.Artifact) error {
			tracker, ok := h.fixture.Server().Tracker(a.Tracker.ID)
			if !ok {
				return fmt.Errorf("tracker %d no longer exists", a.Tracker.ID)
			}
			if err := checkValues(tracker, a, payload); err != nil {
				return err
			}
			for _, v := range payload.Values() {
				a.SetValue(v)
			}
			a.NewComment = strings.TrimSpace(payload.NewComment)
			a.LastModified = h.fixture.now()
			return nil
		})
		if !found {
			return nil, notFound("artifact %d", input.ID)
		}
		if err != nil {
			return nil, badRequest("%v", err)
		}
		return &struct{}{}, nil
	})
}

func userID(ctx context.Context) int {
	if p, ok := principalFromContext(ctx); ok {
		return p.UserID
	}
	return 0
}

func (h *handlers) artifactJSON(a *domain.Artifact) codec.ArtifactJSON {
	out := h.codec.ArtifactJSON(a)
	if out.URI == "" {
		out.URI = "artifacts/" + strconv.Itoa(a.ID)
	}
	if out.Project.ID == 0 {
		if t, ok := h.fixture.Server().Tracker(a.Tracker.ID); ok {
			out.Project = codec.RefJSON{ID: t.Project.ID, URI: t.Project.URI}
		}
	}
	return out
}

func (h *handlers) artifactsJSON(artifacts []*domain.Artifact) []codec.ArtifactJSON {
	out := make([]codec.ArtifactJSON, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, h.artifactJSON(a))
	}
	return out
}

// checkValues rejects values the tracker cannot hold. current is nil when
// the artifact is being created.
func checkValues(tracker *domain.Tracker, current, payload *domain.Artifact) error {
	for _, v := range payload.Values() {
		f, ok := tracker.Field(v.FieldID())
		if !ok {
			return fmt.Errorf("field %d does not belong to tracker %d", v.FieldID(), tracker.ID)
		}
		if _, dynamic := f.(*domain.DynamicField); dynamic {
			return fmt.Errorf("field %d is computed by the server", v.FieldID())
		}
		bound, isBound := v.(domain.BoundValue)
		switch field := f.(type) {
		case *domain.SelectBoxField:
			if !isBound {
				return fmt.Errorf("field %d expects bind_value_ids", v.FieldID())
			}
			if len(bound.ValueIDs) > 1 {
				return fmt.Errorf("field %d accepts a single value", v.FieldID())
			}
			for _, id := range bound.ValueIDs {
				if _, ok := field.Item(id); !ok && id != domain.NoneBindingID {
					return fmt.Errorf("value %d is not an option of field %d", id, v.FieldID())
				}
			}
			if field.Role == domain.RoleStatus && len(bound.ValueIDs) == 1 {
				if err := checkTransition(field, current, bound.ValueIDs[0]); err != nil {
					return err
				}
			}
		case *domain.MultiSelectBoxField:
			if !isBound {
				return fmt.Errorf("field %d expects bind_value_ids", v.FieldID())
			}
			for _, id := range bound.ValueIDs {
				if _, ok := field.Item(id); !ok && id != domain.NoneBindingID {
					return fmt.Errorf("value %d is not an option of field %d", id, v.FieldID())
				}
			}
		case *domain.FileUploadField:
			if _, ok := v.(domain.AttachmentValue); !ok {
				return fmt.Errorf("field %d expects file descriptions", v.FieldID())
			}
		case *domain.IntegerField:
			lit, _ := v.(domain.LiteralValue)
			if lit.Value != "" {
				if _, err := strconv.Atoi(lit.Value); err != nil {
					return fmt.Errorf("field %d expects an integer, got %q", v.FieldID(), lit.Value)
				}
			}
		}
	}
	return nil
}

// checkTransition enforces the status workflow. An artifact without a status
// moves from the creation state 0.
func checkTransition(field *domain.SelectBoxField, current *domain.Artifact, to int) error {
	if len(field.Workflow.Transitions) == 0 {
		return nil
	}
	from := 0
	if current != nil {
		if ids, ok := current.BoundOf(field.ID); ok && len(ids) == 1 {
			from = ids[0]
		}
	}
	if from == to {
		return nil
	}
	for _, id := range field.Workflow.Reachable(from) {
		if id == to {
			return nil
		}
	}
	return fmt.Errorf("the transition from %d to %d is not allowed", from, to)
}

// criteria is a parsed ad-hoc tracker query.
type criteria struct {
	tracker *domain.Tracker
	byField map[int]codec.CriterionJSON
}

func parseCriteria(tracker *domain.Tracker, raw string) (*criteria, error) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("query is not a JSON object: %w", err)
	}
	c := &criteria{tracker: tracker, byField: map[int]codec.CriterionJSON{}}
	for name, rawCrit := range in {
		f, ok := tracker.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q in query", name)
		}
		var crit codec.CriterionJSON
		if err := json.Unmarshal(rawCrit, &crit); err != nil {
			// A bare value is the short form of {"value": ...}.
			var single string
			if err := json.Unmarshal(rawCrit, &single); err != nil {
				return nil, fmt.Errorf("criterion %q: %w", name, err)
			}
			crit.Value = []string{single}
		}
		c.byField[domain.Base(f).ID] = crit
	}
	return c, nil
}

// match applies every criterion. Literal values match by case-insensitive
// substring; bound values by option id or label.
func (c *criteria) match(a *domain.Artifact) bool {
	for fieldID, crit := range c.byField {
		if !c.matchOne(a, fieldID, crit) {
			return false
		}
	}
	return true
}

func (c *criteria) matchOne(a *domain.Artifact, fieldID int, crit codec.CriterionJSON) bool {
	v, ok := a.Value(fieldID)
	if !ok {
		return false
	}
	f, _ := c.tracker.Field(fieldID)
	for _, want := range crit.Value {
		switch val := v.(type) {
		case domain.LiteralValue:
			if strings.Contains(strings.ToLower(val.Value), strings.ToLower(want)) {
				return true
			}
		case domain.BoundValue:
			for _, id := range val.ValueIDs {
				if strconv.Itoa(id) == want || strings.EqualFold(itemLabel(f, id), want) {
					return true
				}
			}
		}
	}
	return false
}

func itemLabel(f domain.Field, id int) string {
	switch field := f.(type) {
	case *domain.SelectBoxField:
		it, _ := field.Item(id)
		return it.Label
	case *domain.MultiSelectBoxField:
		it, _ := field.Item(id)
		return it.Label
	}
	return ""
}
