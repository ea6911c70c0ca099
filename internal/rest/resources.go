package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"tuleapsync/internal/domain"
)

// Project resource types.
const (
	ResourcePlannings  = "plannings"
	ResourceUserGroups = "user_groups"
	ResourceBacklog    = "backlog"
	ResourceMilestones = "milestones"
)

func (c *Client) Projects(ctx context.Context) ([]*domain.Project, error) {
	return collect(ctx, c, Get("projects"), c.Codec.DecodeProjects)
}

func (c *Client) ProjectTrackers(ctx context.Context, projectID int) ([]*domain.Tracker, error) {
	return collect(ctx, c, Get(fmt.Sprintf("projects/%d/trackers", projectID)), c.Codec.DecodeTrackers)
}

func (c *Client) Tracker(ctx context.Context, trackerID int) (*domain.Tracker, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("trackers/%d", trackerID)), c.Codec.DecodeTracker)
}

func (c *Client) TrackerReports(ctx context.Context, trackerID int) ([]domain.TrackerReport, error) {
	reports, err := collect(ctx, c, Get(fmt.Sprintf("trackers/%d/tracker_reports", trackerID)), c.Codec.DecodeReports)
	if err != nil {
		return nil, err
	}
	for i := range reports {
		reports[i].Tracker = domain.Ref{ID: trackerID}
	}
	return reports, nil
}

// ReportArtifacts runs a tracker's predefined report.
func (c *Client) ReportArtifacts(ctx context.Context, reportID int) ([]*domain.Artifact, error) {
	req := Get(fmt.Sprintf("tracker_reports/%d/artifacts", reportID), Query("values", "all"))
	return collect(ctx, c, req, c.Codec.DecodeArtifacts)
}

// QueryArtifacts runs an ad-hoc query on a tracker. criteria maps field
// names to the values they must hold.
func (c *Client) QueryArtifacts(ctx context.Context, trackerID int, criteria map[string][]string) ([]*domain.Artifact, error) {
	req := Get(fmt.Sprintf("trackers/%d/artifacts", trackerID), Query("values", "all"))
	if len(criteria) > 0 {
		q, err := c.Codec.EncodeCriteria(criteria)
		if err != nil {
			return nil, err
		}
		req = req.With(Query("query", string(q)))
	}
	return collect(ctx, c, req, c.Codec.DecodeArtifacts)
}

func (c *Client) Artifact(ctx context.Context, artifactID int) (*domain.Artifact, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("artifacts/%d", artifactID)), c.Codec.DecodeArtifact)
}

func (c *Client) ArtifactComments(ctx context.Context, artifactID int) ([]domain.Comment, error) {
	req := Get(fmt.Sprintf("artifacts/%d/changesets", artifactID), Query("fields", "comments"))
	return collect(ctx, c, req, c.Codec.DecodeComments)
}

// CreateArtifact posts a new artifact and returns its id.
func (c *Client) CreateArtifact(ctx context.Context, a *domain.Artifact) (int, error) {
	body, err := c.Codec.EncodeArtifact(a)
	if err != nil {
		return 0, err
	}
	resp, err := c.CheckedRun(ctx, NewRequest(http.MethodPost, "artifacts", Body(body)))
	if err != nil {
		return 0, err
	}
	var created struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return 0, fmt.Errorf("decode created artifact: %w", err)
	}
	return created.ID, nil
}

func (c *Client) UpdateArtifact(ctx context.Context, a *domain.Artifact) error {
	body, err := c.Codec.EncodeArtifact(a)
	if err != nil {
		return err
	}
	_, err = c.CheckedRun(ctx, NewRequest(http.MethodPut, fmt.Sprintf("artifacts/%d", a.ID), Body(body)))
	return err
}

func (c *Client) Plannings(ctx context.Context, projectID int) ([]domain.Planning, error) {
	return collect(ctx, c, Get(fmt.Sprintf("projects/%d/plannings", projectID)), c.Codec.DecodePlannings)
}

func (c *Client) ProjectMilestones(ctx context.Context, projectID int) ([]domain.Milestone, error) {
	return collect(ctx, c, Get(fmt.Sprintf("projects/%d/milestones", projectID)), c.Codec.DecodeMilestones)
}

func (c *Client) ProjectBacklog(ctx context.Context, projectID int) ([]domain.BacklogItem, error) {
	return collect(ctx, c, Get(fmt.Sprintf("projects/%d/backlog", projectID)), c.Codec.DecodeBacklogItems)
}

func (c *Client) BacklogItemTypes(ctx context.Context, projectID int) ([]domain.Ref, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("projects/%d/backlog_item_types", projectID)), c.Codec.DecodeRefs)
}

func (c *Client) MilestoneTypes(ctx context.Context, projectID int) ([]domain.Ref, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("projects/%d/milestone_types", projectID)), c.Codec.DecodeRefs)
}

func (c *Client) Milestone(ctx context.Context, milestoneID int) (domain.Milestone, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("milestones/%d", milestoneID)), c.Codec.DecodeMilestone)
}

func (c *Client) MilestoneBacklog(ctx context.Context, milestoneID int) ([]domain.BacklogItem, error) {
	return collect(ctx, c, Get(fmt.Sprintf("milestones/%d/backlog", milestoneID)), c.Codec.DecodeBacklogItems)
}

func (c *Client) MilestoneContent(ctx context.Context, milestoneID int) ([]domain.BacklogItem, error) {
	return collect(ctx, c, Get(fmt.Sprintf("milestones/%d/content", milestoneID)), c.Codec.DecodeBacklogItems)
}

func (c *Client) SubMilestones(ctx context.Context, milestoneID int) ([]domain.Milestone, error) {
	return collect(ctx, c, Get(fmt.Sprintf("milestones/%d/milestones", milestoneID)), c.Codec.DecodeMilestones)
}

// TopPlannings assembles each top planning of a project from its milestones
// and backlog items. The first failure aborts the whole traversal.
func (c *Client) TopPlannings(ctx context.Context, projectID int) ([]domain.TopPlanning, error) {
	ids, err := getOne(ctx, c, Get(fmt.Sprintf("projects/%d/top_plannings", projectID)), c.Codec.DecodeTopPlanningIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TopPlanning, 0, len(ids))
	for _, id := range ids {
		milestones, err := collect(ctx, c, Get(fmt.Sprintf("top_plannings/%d/milestones", id)), c.Codec.DecodeMilestones)
		if err != nil {
			return nil, fmt.Errorf("top planning %d milestones: %w", id, err)
		}
		items, err := collect(ctx, c, Get(fmt.Sprintf("top_plannings/%d/backlog_items", id)), c.Codec.DecodeBacklogItems)
		if err != nil {
			return nil, fmt.Errorf("top planning %d backlog items: %w", id, err)
		}
		out = append(out, domain.TopPlanning{ID: id, Milestones: milestones, BacklogItems: items})
	}
	return out, nil
}

func (c *Client) UserGroups(ctx context.Context, projectID int) ([]*domain.UserGroup, error) {
	return getOne(ctx, c, Get(fmt.Sprintf("projects/%d/user_groups", projectID)), c.Codec.DecodeUserGroups)
}

func (c *Client) UserGroupMembers(ctx context.Context, groupID string) ([]*domain.User, error) {
	return collect(ctx, c, Get("user_groups/"+url.PathEscape(groupID)+"/users"), c.Codec.DecodeUsers)
}

// Validate logs in when credentials are configured and reads one project.
func (c *Client) Validate(ctx context.Context) error {
	if c.Auth != nil {
		if err := c.Auth.Login(ctx); err != nil {
			return fmt.Errorf("validate connection: %w", err)
		}
	}
	if _, err := c.CheckedRun(ctx, Get("projects", Query("limit", "1"))); err != nil {
		return fmt.Errorf("validate connection: %w", err)
	}
	return nil
}

// LoadServer reads the configuration of every project exposing trackers:
// trackers with their parent links, plannings, user groups and members.
func (c *Client) LoadServer(ctx context.Context, serverURL string) (*domain.Server, error) {
	srv := domain.NewServer(serverURL)
	projects, err := c.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	for _, p := range projects {
		srv.AddProject(p)
		if !p.HasResource(domain.ResourceTrackers) {
			continue
		}
		trackers, err := c.ProjectTrackers(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load trackers of project %d: %w", p.ID, err)
		}
		for _, t := range trackers {
			p.AddTracker(t)
		}
		if p.HasResource(ResourcePlannings) {
			plannings, err := c.Plannings(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("load plannings of project %d: %w", p.ID, err)
			}
			for _, pl := range plannings {
				p.AddPlanning(pl)
			}
		}
		if p.HasResource(ResourceUserGroups) {
			groups, err := c.UserGroups(ctx, p.ID)
			if err != nil {
				return nil, fmt.Errorf("load user groups of project %d: %w", p.ID, err)
			}
			for _, g := range groups {
				members, err := c.UserGroupMembers(ctx, g.ID)
				if err != nil {
					return nil, fmt.Errorf("load members of group %s: %w", g.ID, err)
				}
				p.AddUserGroup(g)
				for _, u := range members {
					srv.AddUser(u)
					g.AddMember(u)
				}
			}
		}
	}
	srv.LinkParents()
	return srv, nil
}
