package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
)

func (h *handlers) registerUserGroups(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-user-groups",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/user_groups",
		Summary:     "List the user groups of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int `path:"id"`
	}) (*listBody[codec.UserGroupJSON], error) {
		p, ok := h.fixture.Server().Project(input.ID)
		if !ok {
			return nil, notFound("project %d", input.ID)
		}
		groups := p.UserGroups()
		out := make([]codec.UserGroupJSON, 0, len(groups))
		for _, g := range groups {
			out = append(out, codec.UserGroupJSON{ID: g.ID, URI: "user_groups/" + g.ID, Label: g.Label, Key: g.Key})
		}
		return &listBody[codec.UserGroupJSON]{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-group-members",
		Method:      http.MethodGet,
		Path:        "/user_groups/{id}/users",
		Summary:     "List the members of a user group",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		PageParams
	}) (*page[codec.UserJSON], error) {
		g, ok := h.userGroup(input.ID)
		if !ok {
			return nil, notFound("user group %s", input.ID)
		}
		members := g.Members()
		out := make([]codec.UserJSON, 0, len(members))
		for _, u := range members {
			out = append(out, codec.UserJSON{
				ID:       u.ID,
				URI:      "users/" + strconv.Itoa(u.ID),
				Username: u.Username,
				RealName: u.RealName,
				Email:    u.Email,
				LdapID:   u.LdapID,
			})
		}
		return paginate(out, input.PageParams), nil
	})
}

func (h *handlers) userGroup(id string) (*domain.UserGroup, bool) {
	for _, p := range h.fixture.Server().Projects() {
		if g, ok := p.UserGroup(id); ok {
			return g, true
		}
	}
	return nil, false
}
