package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
)

func (h *handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		PageParams
	}) (*page[codec.ProjectJSON], error) {
		projects := h.fixture.Server().Projects()
		out := make([]codec.ProjectJSON, 0, len(projects))
		for _, p := range projects {
			out = append(out, h.codec.ProjectJSON(p))
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-trackers",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/trackers",
		Summary:     "List the trackers of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
		PageParams
	}) (*page[codec.TrackerJSON], error) {
		p, ok := h.fixture.Server().Project(input.ID)
		if !ok {
			return nil, notFound("project %d", input.ID)
		}
		trackers := p.Trackers()
		out := make([]codec.TrackerJSON, 0, len(trackers))
		for _, t := range trackers {
			out = append(out, h.codec.TrackerJSON(t))
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tracker",
		Method:      http.MethodGet,
		Path:        "/trackers/{id}",
		Summary:     "Get a tracker with its fields, semantics and workflow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*struct {
		Body codec.TrackerJSON `json:"body"`
	}, error) {
		t, ok := h.fixture.Server().Tracker(input.ID)
		if !ok {
			return nil, notFound("tracker %d", input.ID)
		}
		return &struct {
			Body codec.TrackerJSON `json:"body"`
		}{Body: h.codec.TrackerJSON(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tracker-reports",
		Method:      http.MethodGet,
		Path:        "/trackers/{id}/tracker_reports",
		Summary:     "List the reports of a tracker",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
		PageParams
	}) (*page[codec.TrackerReportJSON], error) {
		if _, ok := h.fixture.Server().Tracker(input.ID); !ok {
			return nil, notFound("tracker %d", input.ID)
		}
		reports := h.fixture.trackerReports(input.ID)
		out := make([]codec.TrackerReportJSON, 0, len(reports))
		for _, r := range reports {
			out = append(out, trackerReportJSON(r))
		}
		return paginate(out, input.PageParams), nil
	})
}

func trackerReportJSON(r domain.TrackerReport) codec.TrackerReportJSON {
	return codec.TrackerReportJSON{ID: r.ID, URI: r.URI, Label: r.Label}
}
