package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
)

type projectPageInput struct {
	ID int `path:"id"`
	PageParams
}

type milestoneOutput struct {
	Body codec.MilestoneJSON `json:"body"`
}

func (h *handlers) registerAgile(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-plannings",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/plannings",
		Summary:     "List the plannings of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.PlanningJSON], error) {
		p, ok := h.fixture.Server().Project(input.ID)
		if !ok {
			return nil, notFound("project %d", input.ID)
		}
		plannings := p.Plannings()
		out := make([]codec.PlanningJSON, 0, len(plannings))
		for _, pl := range plannings {
			out = append(out, h.codec.PlanningJSON(pl))
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-milestones",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/milestones",
		Summary:     "List the top level milestones of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.MilestoneJSON], error) {
		if _, ok := h.fixture.Server().Project(input.ID); !ok {
			return nil, notFound("project %d", input.ID)
		}
		var out []codec.MilestoneJSON
		for _, tp := range h.fixture.topPlanningsOf(input.ID) {
			out = append(out, h.milestonesJSON(tp.Milestones)...)
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-backlog",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/backlog",
		Summary:     "List the backlog items of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.BacklogItemJSON], error) {
		if _, ok := h.fixture.Server().Project(input.ID); !ok {
			return nil, notFound("project %d", input.ID)
		}
		var out []codec.BacklogItemJSON
		for _, tp := range h.fixture.topPlanningsOf(input.ID) {
			out = append(out, h.backlogJSON(tp.BacklogItems)...)
		}
		return paginate(out, input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-backlog-item-types",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/backlog_item_types",
		Summary:     "List the trackers usable in the project backlog",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*listBody[codec.RefJSON], error) {
		p, ok := h.fixture.Server().Project(input.ID)
		if !ok {
			return nil, notFound("project %d", input.ID)
		}
		return &listBody[codec.RefJSON]{Body: refsJSON(p.BacklogItemTypes)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestone-types",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/milestone_types",
		Summary:     "List the milestone trackers of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*listBody[codec.RefJSON], error) {
		p, ok := h.fixture.Server().Project(input.ID)
		if !ok {
			return nil, notFound("project %d", input.ID)
		}
		return &listBody[codec.RefJSON]{Body: refsJSON(p.MilestoneTypes)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-top-plannings",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/top_plannings",
		Summary:     "List the top plannings of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*listBody[codec.TopPlanningJSON], error) {
		if _, ok := h.fixture.Server().Project(input.ID); !ok {
			return nil, notFound("project %d", input.ID)
		}
		tps := h.fixture.topPlanningsOf(input.ID)
		out := make([]codec.TopPlanningJSON, 0, len(tps))
		for _, tp := range tps {
			out = append(out, codec.TopPlanningJSON{ID: tp.ID, URI: "top_plannings/" + strconv.Itoa(tp.ID)})
		}
		return &listBody[codec.TopPlanningJSON]{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-top-planning-milestones",
		Method:      http.MethodGet,
		Path:        "/top_plannings/{id}/milestones",
		Summary:     "List the milestones of a top planning",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.MilestoneJSON], error) {
		tp, ok := h.fixture.topPlanning(input.ID)
		if !ok {
			return nil, notFound("top planning %d", input.ID)
		}
		return paginate(h.milestonesJSON(tp.Milestones), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-top-planning-backlog-items",
		Method:      http.MethodGet,
		Path:        "/top_plannings/{id}/backlog_items",
		Summary:     "List the unassigned backlog items of a top planning",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.BacklogItemJSON], error) {
		tp, ok := h.fixture.topPlanning(input.ID)
		if !ok {
			return nil, notFound("top planning %d", input.ID)
		}
		return paginate(h.backlogJSON(tp.BacklogItems), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-milestone",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}",
		Summary:     "Get a milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*milestoneOutput, error) {
		m, _, _, _, ok := h.fixture.milestoneView(input.ID)
		if !ok {
			return nil, notFound("milestone %d", input.ID)
		}
		return &milestoneOutput{Body: h.codec.MilestoneJSON(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestone-backlog",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}/backlog",
		Summary:     "List the backlog of a milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.BacklogItemJSON], error) {
		_, backlog, _, _, ok := h.fixture.milestoneView(input.ID)
		if !ok {
			return nil, notFound("milestone %d", input.ID)
		}
		return paginate(h.backlogJSON(backlog), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestone-content",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}/content",
		Summary:     "List the content of a milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.BacklogItemJSON], error) {
		_, _, content, _, ok := h.fixture.milestoneView(input.ID)
		if !ok {
			return nil, notFound("milestone %d", input.ID)
		}
		return paginate(h.backlogJSON(content), input.PageParams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sub-milestones",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}/milestones",
		Summary:     "List the sub-milestones of a milestone",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPageInput) (*page[codec.MilestoneJSON], error) {
		_, _, _, subs, ok := h.fixture.milestoneView(input.ID)
		if !ok {
			return nil, notFound("milestone %d", input.ID)
		}
		return paginate(h.milestonesJSON(subs), input.PageParams), nil
	})
}

func (h *handlers) milestonesJSON(ms []domain.Milestone) []codec.MilestoneJSON {
	out := make([]codec.MilestoneJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, h.codec.MilestoneJSON(m))
	}
	return out
}

func (h *handlers) backlogJSON(items []domain.BacklogItem) []codec.BacklogItemJSON {
	out := make([]codec.BacklogItemJSON, 0, len(items))
	for _, b := range items {
		out = append(out, h.codec.BacklogItemJSON(b))
	}
	return out
}

func refsJSON(refs []domain.Ref) []codec.RefJSON {
	out := make([]codec.RefJSON, 0, len(refs))
	for _, r := range refs {
		out = append(out, codec.RefJSON{ID: r.ID, URI: r.URI})
	}
	return out
}
