package server

import (
	"sort"
	"sync"
	"time"

	"tuleapsync/internal/domain"
)

// Fixture is the content served by the mock API. It is safe for concurrent
// use by the handlers and the test driving them.
type Fixture struct {
	mu sync.Mutex

	server    *domain.Server
	passwords map[string]string
	artifacts map[int]*domain.Artifact
	comments  map[int][]domain.Comment
	reports   map[int]report

	topPlannings     map[int][]domain.TopPlanning
	milestoneBacklog map[int][]domain.BacklogItem
	milestoneContent map[int][]domain.BacklogItem
	subMilestones    map[int][]domain.Milestone

	nextArtifactID int
	now            func() time.Time
}

type report struct {
	def       domain.TrackerReport
	artifacts []int
}

// NewFixture serves srv, or an empty server when srv is nil.
func NewFixture(srv *domain.Server) *Fixture {
	if srv == nil {
		srv = domain.NewServer("")
	}
	return &Fixture{
		server:           srv,
		passwords:        map[string]string{},
		artifacts:        map[int]*domain.Artifact{},
		comments:         map[int][]domain.Comment{},
		reports:          map[int]report{},
		topPlannings:     map[int][]domain.TopPlanning{},
		milestoneBacklog: map[int][]domain.BacklogItem{},
		milestoneContent: map[int][]domain.BacklogItem{},
		subMilestones:    map[int][]domain.Milestone{},
		nextArtifactID:   1,
		now:              time.Now,
	}
}

func (f *Fixture) Server() *domain.Server { return f.server }

// SetPassword lets username log in with password.
func (f *Fixture) SetPassword(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[username] = password
}

// AddArtifact stores a, giving it the next free id when it has none, and
// returns its id.
func (f *Fixture) AddArtifact(a *domain.Artifact) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addArtifactLocked(a)
}

func (f *Fixture) addArtifactLocked(a *domain.Artifact) int {
	if a.ID == 0 {
		a.ID = f.nextArtifactID
	}
	if a.ID >= f.nextArtifactID {
		f.nextArtifactID = a.ID + 1
	}
	f.artifacts[a.ID] = a
	return a.ID
}

// Artifact returns the stored artifact with the comments added to it.
func (f *Fixture) Artifact(id int) (*domain.Artifact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[id]
	if !ok {
		return nil, false
	}
	cp := a.Clone()
	cp.Comments = append([]domain.Comment(nil), f.comments[id]...)
	return cp, true
}

func (f *Fixture) AddComment(artifactID int, c domain.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[artifactID] = append(f.comments[artifactID], c)
}

// AddReport registers a tracker report returning the given artifacts.
func (f *Fixture) AddReport(r domain.TrackerReport, artifactIDs ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[r.ID] = report{def: r, artifacts: artifactIDs}
}

func (f *Fixture) AddTopPlanning(projectID int, tp domain.TopPlanning) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topPlannings[projectID] = append(f.topPlannings[projectID], tp)
}

func (f *Fixture) SetMilestoneBacklog(milestoneID int, items []domain.BacklogItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.milestoneBacklog[milestoneID] = items
}

func (f *Fixture) SetMilestoneContent(milestoneID int, items []domain.BacklogItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.milestoneContent[milestoneID] = items
}

func (f *Fixture) AddSubMilestone(parentID int, m domain.Milestone) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subMilestones[parentID] = append(f.subMilestones[parentID], m)
}

// userByName finds a user known to the server by username.
func (f *Fixture) userByName(username string) (*domain.User, bool) {
	for _, u := range f.server.Users() {
		if u.Username == username {
			return u, true
		}
	}
	return nil, false
}

func (f *Fixture) checkPassword(username, password string) (*domain.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.passwords[username]
	if !ok || want != password {
		return nil, false
	}
	return f.userByName(username)
}

// trackerArtifacts lists the artifacts of a tracker by id.
func (f *Fixture) trackerArtifacts(trackerID int) []*domain.Artifact {
	var out []*domain.Artifact
	for _, a := range f.artifacts {
		if a.Tracker.ID == trackerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Fixture) milestone(id int) (domain.Milestone, bool) {
	for _, tps := range f.topPlannings {
		for _, tp := range tps {
			for _, m := range tp.Milestones {
				if m.ID == id {
					return m, true
				}
			}
		}
	}
	for _, subs := range f.subMilestones {
		for _, m := range subs {
			if m.ID == id {
				return m, true
			}
		}
	}
	return domain.Milestone{}, false
}

func (f *Fixture) trackerReports(trackerID int) []domain.TrackerReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TrackerReport
	for _, r := range f.reports {
		if r.def.Tracker.ID == trackerID {
			out = append(out, r.def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// reportArtifacts returns the artifacts a report selects that still exist.
func (f *Fixture) reportArtifacts(reportID int) ([]*domain.Artifact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[reportID]
	if !ok {
		return nil, false
	}
	out := make([]*domain.Artifact, 0, len(r.artifacts))
	for _, id := range r.artifacts {
		if a, ok := f.artifacts[id]; ok {
			out = append(out, a)
		}
	}
	return out, true
}

func (f *Fixture) artifactsOf(trackerID int) []*domain.Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackerArtifacts(trackerID)
}

func (f *Fixture) commentsOf(artifactID int) ([]domain.Comment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.artifacts[artifactID]; !ok {
		return nil, false
	}
	return append([]domain.Comment(nil), f.comments[artifactID]...), true
}

// update runs fn on a copy of the stored artifact under the fixture lock and
// stores the copy when fn succeeds. by is the user making the change.
func (f *Fixture) update(artifactID, by int, fn func(a *domain.Artifact) error) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.artifacts[artifactID]
	if !ok {
		return false, nil
	}
	cp := a.Clone()
	if err := fn(cp); err != nil {
		return true, err
	}
	if cp.NewComment != "" {
		f.comments[artifactID] = append(f.comments[artifactID], domain.Comment{Body: cp.NewComment, Date: cp.LastModified, Author: f.author(by)})
		cp.NewComment = ""
	}
	f.artifacts[artifactID] = cp
	return true, nil
}

func (f *Fixture) create(a *domain.Artifact) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = 0
	id := f.addArtifactLocked(a)
	if a.NewComment != "" {
		f.comments[id] = append(f.comments[id], domain.Comment{Body: a.NewComment, Date: a.SubmittedOn, Author: f.author(a.SubmittedBy)})
		a.NewComment = ""
	}
	return id
}

func (f *Fixture) author(userID int) domain.User {
	if u, ok := f.server.User(userID); ok {
		return *u
	}
	return domain.Anonymous
}

func (f *Fixture) topPlanningsOf(projectID int) []domain.TopPlanning {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TopPlanning(nil), f.topPlannings[projectID]...)
}

func (f *Fixture) topPlanning(id int) (domain.TopPlanning, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tps := range f.topPlannings {
		for _, tp := range tps {
			if tp.ID == id {
				return tp, true
			}
		}
	}
	return domain.TopPlanning{}, false
}

// milestoneView returns a milestone with its backlog, content and children.
func (f *Fixture) milestoneView(id int) (m domain.Milestone, backlog, content []domain.BacklogItem, subs []domain.Milestone, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok = f.milestone(id)
	if !ok {
		return m, nil, nil, nil, false
	}
	return m, f.milestoneBacklog[id], f.milestoneContent[id], f.subMilestones[id], true
}
