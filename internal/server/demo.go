package server

import (
	"time"

	"tuleapsync/internal/domain"
)

// Ids of the demo content.
const (
	DemoProjectID      = 101
	DemoBugTrackerID   = 1001
	DemoStoryTrackerID = 1002
	DemoSprintTracker  = 1003
	DemoReportID       = 501
	DemoTopPlanningID  = 301
	DemoSprintID       = 4001

	DemoFieldTitle      = 10
	DemoFieldStatus     = 11
	DemoFieldAssignedTo = 12
	DemoFieldSeverity   = 13
	DemoFieldDetails    = 14
	DemoFieldFiles      = 15
	DemoFieldArtifactID = 16
	DemoFieldLastUpdate = 17

	DemoStatusNew     = 200
	DemoStatusOngoing = 201
	DemoStatusDone    = 202
)

// DemoFixture returns a project with a bug tracker under workflow, a
// planning and a few artifacts. Every user logs in with the password
// "secret".
func DemoFixture() *Fixture {
	srv := domain.NewServer("http://localhost")
	users := []*domain.User{
		{ID: 101, Username: "admin", RealName: "Site Administrator", Email: "admin@example.com"},
		{ID: 102, Username: "jdoe", RealName: "John Doe", Email: "jdoe@example.com"},
		{ID: 103, Username: "asmith", RealName: "Alice Smith", Email: "asmith@example.com"},
	}
	for _, u := range users {
		srv.AddUser(u)
	}

	p := domain.NewProject(DemoProjectID, "Demo")
	p.ShortName = "demo"
	p.URI = "projects/101"
	p.Resources = []domain.Resource{
		{Type: domain.ResourceTrackers, URI: "projects/101/trackers"},
		{Type: "plannings", URI: "projects/101/plannings"},
		{Type: "user_groups", URI: "projects/101/user_groups"},
	}
	p.BacklogItemTypes = []domain.Ref{{ID: DemoStoryTrackerID, URI: "trackers/1002"}}
	p.MilestoneTypes = []domain.Ref{{ID: DemoSprintTracker, URI: "trackers/1003"}}

	bugs := domain.NewTracker(DemoBugTrackerID, "Bugs")
	bugs.ItemName = "bug"
	bugs.URI = "trackers/1001"
	bugs.Description = "Defects reported against the product"
	for _, f := range []domain.Field{
		&domain.StringField{FieldBase: domain.FieldBase{ID: DemoFieldTitle, Name: "summary", Label: "Summary", Required: true, Role: domain.RoleTitle, Permissions: rw()}, MaxSize: 255},
		&domain.SelectBoxField{
			FieldBase: domain.FieldBase{ID: DemoFieldStatus, Name: "status", Label: "Status", Role: domain.RoleStatus, Permissions: rw()},
			Items: []domain.SelectItem{
				{ID: DemoStatusNew, Label: "New"},
				{ID: DemoStatusOngoing, Label: "On going"},
				{ID: DemoStatusDone, Label: "Done"},
			},
			Workflow: domain.Workflow{Transitions: []domain.Transition{
				{From: 0, To: DemoStatusNew},
				{From: DemoStatusNew, To: DemoStatusOngoing},
				{From: DemoStatusOngoing, To: DemoStatusDone},
				{From: DemoStatusDone, To: DemoStatusOngoing},
			}},
			OpenStatus: []int{DemoStatusNew, DemoStatusOngoing},
		},
		&domain.SelectBoxField{
			FieldBase: domain.FieldBase{ID: DemoFieldAssignedTo, Name: "assigned_to", Label: "Assigned to", Role: domain.RoleContributor, Permissions: rw()},
			Items:     []domain.SelectItem{{ID: 102, Label: "John Doe"}, {ID: 103, Label: "Alice Smith"}},
		},
		&domain.IntegerField{FieldBase: domain.FieldBase{ID: DemoFieldSeverity, Name: "severity", Label: "Severity", Permissions: rw(), Defaults: []string{"3"}}},
		&domain.StringField{FieldBase: domain.FieldBase{ID: DemoFieldDetails, Name: "details", Label: "Original Submission", Permissions: rw()}},
		&domain.FileUploadField{FieldBase: domain.FieldBase{ID: DemoFieldFiles, Name: "attachment", Label: "Attachments", Permissions: rw()}},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: DemoFieldArtifactID, Name: "artifact_id", Label: "Artifact ID", Permissions: domain.Permissions{domain.PermRead}}, Kind: domain.DynamicArtifactID},
		&domain.DynamicField{FieldBase: domain.FieldBase{ID: DemoFieldLastUpdate, Name: "last_update_date", Label: "Last Update Date", Permissions: domain.Permissions{domain.PermRead}}, Kind: domain.DynamicLastUpdateDate},
	} {
		// The field set has a single field per role.
		_ = bugs.AddField(f)
	}
	p.AddTracker(bugs)

	stories := domain.NewTracker(DemoStoryTrackerID, "User Stories")
	stories.ItemName = "story"
	stories.URI = "trackers/1002"
	_ = stories.AddField(&domain.StringField{FieldBase: domain.FieldBase{ID: 30, Name: "i_want_to", Label: "I want to", Role: domain.RoleTitle, Permissions: rw()}})
	p.AddTracker(stories)

	sprints := domain.NewTracker(DemoSprintTracker, "Sprints")
	sprints.ItemName = "sprint"
	sprints.URI = "trackers/1003"
	_ = sprints.AddField(&domain.StringField{FieldBase: domain.FieldBase{ID: 40, Name: "name", Label: "Name", Role: domain.RoleTitle, Permissions: rw()}})
	p.AddTracker(sprints)

	p.AddPlanning(domain.Planning{
		ID:               21,
		Label:            "Sprint Planning",
		URI:              "plannings/21",
		Project:          domain.Ref{ID: DemoProjectID, URI: p.URI},
		MilestoneTracker: domain.Ref{ID: DemoSprintTracker, URI: sprints.URI},
		BacklogTrackers:  []domain.Ref{{ID: DemoStoryTrackerID, URI: stories.URI}},
		MilestonesURI:    "plannings/21/milestones",
		CardwallURI:      "plannings/21/cardwall",
	})

	members := &domain.UserGroup{ID: "101_3", Label: "Project members", Key: "ugroup_project_members_name_key"}
	for _, u := range users[1:] {
		p.AddUserToUserGroup(members, u)
	}
	admins := &domain.UserGroup{ID: "101_4", Label: "Project administrators", Key: "ugroup_project_admins_name_key"}
	p.AddUserToUserGroup(admins, users[0])
	srv.AddProject(p)
	srv.LinkParents()

	f := NewFixture(srv)
	for _, u := range users {
		f.SetPassword(u.Username, "secret")
	}

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	bug := func(title string, status, assignee int, modified time.Time) *domain.Artifact {
		a := domain.NewArtifact(0, domain.Ref{ID: DemoBugTrackerID, URI: bugs.URI}, bugs.Project)
		a.SubmittedBy = 102
		a.SubmittedOn = start
		a.LastModified = modified
		a.SetValue(domain.LiteralValue{Field: DemoFieldTitle, Value: title})
		a.SetValue(domain.BoundValue{Field: DemoFieldStatus, ValueIDs: []int{status}})
		a.SetValue(domain.BoundValue{Field: DemoFieldAssignedTo, ValueIDs: []int{assignee}})
		a.SetValue(domain.LiteralValue{Field: DemoFieldSeverity, Value: "2"})
		return a
	}
	login := f.AddArtifact(bug("Login page rejects valid passwords", DemoStatusNew, 102, start.Add(time.Hour)))
	export := f.AddArtifact(bug("CSV export drops the last line", DemoStatusOngoing, 103, start.Add(26*time.Hour)))
	crash := bug("Crash when the tracker has no fields", DemoStatusDone, 102, start.Add(50*time.Hour))
	crash.SetValue(domain.AttachmentValue{Field: DemoFieldFiles, Attachments: []domain.Attachment{{
		ID: 9001, Filename: "stacktrace.txt", Submitter: *users[2], Size: 2048, Description: "Server log", ContentType: "text/plain",
	}}})
	done := f.AddArtifact(crash)
	f.AddComment(export, domain.Comment{Author: *users[2], Date: start.Add(25 * time.Hour), Body: "Reproduced with 10k lines."})

	f.AddReport(domain.TrackerReport{ID: DemoReportID, URI: "tracker_reports/501", Label: "Open bugs", Tracker: domain.Ref{ID: DemoBugTrackerID, URI: bugs.URI}}, login, export)
	f.AddReport(domain.TrackerReport{ID: DemoReportID + 1, URI: "tracker_reports/502", Label: "All bugs", Tracker: domain.Ref{ID: DemoBugTrackerID, URI: bugs.URI}}, login, export, done)

	capacity := 20.0
	effort := 5.0
	sprint := domain.Milestone{
		ID:        DemoSprintID,
		Label:     "Sprint 1",
		URI:       "milestones/4001",
		Status:    "Open",
		Artifact:  domain.ArtifactRef{ID: 4001, URI: "artifacts/4001", Tracker: domain.Ref{ID: DemoSprintTracker, URI: sprints.URI}},
		Project:   domain.Ref{ID: DemoProjectID, URI: p.URI},
		Planning:  domain.Ref{ID: 21, URI: "plannings/21"},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 14),
		Capacity:  &capacity,
	}
	story := domain.BacklogItem{
		ID:            5001,
		Label:         "As a user I want to reset my password",
		URI:           "backlog_items/5001",
		Status:        "Open",
		Type:          "User Stories",
		Artifact:      domain.ArtifactRef{ID: 5001, URI: "artifacts/5001", Tracker: domain.Ref{ID: DemoStoryTrackerID, URI: stories.URI}},
		Project:       domain.Ref{ID: DemoProjectID, URI: p.URI},
		InitialEffort: &effort,
	}
	f.AddTopPlanning(DemoProjectID, domain.TopPlanning{ID: DemoTopPlanningID, Milestones: []domain.Milestone{sprint}, BacklogItems: []domain.BacklogItem{story}})
	f.SetMilestoneContent(DemoSprintID, []domain.BacklogItem{story})
	return f
}

func rw() domain.Permissions {
	return domain.Permissions{domain.PermRead, domain.PermUpdate, domain.PermSubmit}
}
