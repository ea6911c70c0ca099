package domain

import (
	"errors"
	"fmt"
	"sort"
)

const (
	ConnectorKind = "tuleap"
	// NoneBindingID is the option id Tuleap uses for "None" in select boxes.
	NoneBindingID = 100
	// ResourceTrackers marks projects that expose trackers.
	ResourceTrackers = "trackers"
)

var ErrDuplicateRole = errors.New("duplicate semantic role")

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	LdapID   string `json:"ldap_id,omitempty"`
}

// Anonymous stands for comments and attachments without a known author.
var Anonymous = User{ID: 0, Username: "anonymous", RealName: "Anonymous User", Email: "anonymous@tuleap.net"}

// DisplayName prefers the real name.
func (u User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Username
}

type UserGroup struct {
	ID      string
	Label   string
	Key     string
	members []*User
}

func (g *UserGroup) AddMember(u *User) {
	for i, m := range g.members {
		if m.ID == u.ID {
			g.members[i] = u
			return
		}
	}
	g.members = append(g.members, u)
}

func (g *UserGroup) Members() []*User {
	return append([]*User(nil), g.members...)
}

type Resource struct {
	Type string
	URI  string
}

type Tracker struct {
	ID          int
	URI         string
	HTMLURL     string
	Label       string
	ItemName    string
	Description string
	Project     Ref
	// ParentID is the parent tracker id as sent by the server, resolved into
	// Parent by Server.LinkParents.
	ParentID int
	Parent   *Tracker

	fields []Field
}

func NewTracker(id int, label string) *Tracker {
	return &Tracker{ID: id, Label: label}
}

// AddField appends f, replacing a field with the same id. A second field
// claiming a semantic role already taken is rejected.
func (t *Tracker) AddField(f Field) error {
	b := f.base()
	if b.Role != RoleNone {
		if other, ok := t.FieldWithRole(b.Role); ok && other.base().ID != b.ID {
			return fmt.Errorf("tracker %d field %d: %w %s", t.ID, b.ID, ErrDuplicateRole, b.Role)
		}
	}
	for i, cur := range t.fields {
		if cur.base().ID == b.ID {
			t.fields[i] = f
			return nil
		}
	}
	t.fields = append(t.fields, f)
	return nil
}

func (t *Tracker) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

func (t *Tracker) Field(id int) (Field, bool) {
	for _, f := range t.fields {
		if f.base().ID == id {
			return f, true
		}
	}
	return nil, false
}

func (t *Tracker) FieldByName(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.base().Name == name {
			return f, true
		}
	}
	return nil, false
}

func (t *Tracker) FieldWithRole(r Role) (Field, bool) {
	for _, f := range t.fields {
		if f.base().Role == r {
			return f, true
		}
	}
	return nil, false
}

// TitleField returns the title field when it is a string field.
func (t *Tracker) TitleField() (*StringField, bool) {
	f, ok := t.FieldWithRole(RoleTitle)
	if !ok {
		return nil, false
	}
	s, ok := f.(*StringField)
	return s, ok
}

// StatusField returns the status field when it is a select box.
func (t *Tracker) StatusField() (*SelectBoxField, bool) {
	f, ok := t.FieldWithRole(RoleStatus)
	if !ok {
		return nil, false
	}
	sb, ok := f.(*SelectBoxField)
	return sb, ok
}

// ContributorField returns the contributor field when it is a bound field.
func (t *Tracker) ContributorField() (Field, bool) {
	f, ok := t.FieldWithRole(RoleContributor)
	if !ok {
		return nil, false
	}
	switch f.(type) {
	case *SelectBoxField, *MultiSelectBoxField:
		return f, true
	default:
		return nil, false
	}
}

// AttachmentField returns the first file upload field.
func (t *Tracker) AttachmentField() (*FileUploadField, bool) {
	for _, f := range t.fields {
		if fu, ok := f.(*FileUploadField); ok {
			return fu, true
		}
	}
	return nil, false
}

type Planning struct {
	ID               int
	Label            string
	URI              string
	Project          Ref
	MilestoneTracker Ref
	BacklogTrackers  []Ref
	MilestonesURI    string
	// CardwallURI is empty when the planning has no cardwall.
	CardwallURI string
}

type Project struct {
	ID               int
	Label            string
	ShortName        string
	URI              string
	Resources        []Resource
	BacklogItemTypes []Ref
	MilestoneTypes   []Ref

	trackers  []*Tracker
	plannings []Planning
	groups    []*UserGroup
}

func NewProject(id int, label string) *Project {
	return &Project{ID: id, Label: label}
}

func (p *Project) HasResource(resourceType string) bool {
	for _, r := range p.Resources {
		if r.Type == resourceType {
			return true
		}
	}
	return false
}

func (p *Project) AddTracker(t *Tracker) {
	t.Project = Ref{ID: p.ID, URI: p.URI}
	for i, cur := range p.trackers {
		if cur.ID == t.ID {
			p.trackers[i] = t
			return
		}
	}
	p.trackers = append(p.trackers, t)
}

func (p *Project) Tracker(id int) (*Tracker, bool) {
	for _, t := range p.trackers {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (p *Project) Trackers() []*Tracker {
	return append([]*Tracker(nil), p.trackers...)
}

func (p *Project) AddPlanning(pl Planning) {
	for i, cur := range p.plannings {
		if cur.ID == pl.ID {
			p.plannings[i] = pl
			return
		}
	}
	p.plannings = append(p.plannings, pl)
}

func (p *Project) Plannings() []Planning {
	return append([]Planning(nil), p.plannings...)
}

func (p *Project) IsMilestoneTracker(trackerID int) bool {
	for _, pl := range p.plannings {
		if pl.MilestoneTracker.ID == trackerID {
			return true
		}
	}
	return false
}

func (p *Project) IsBacklogTracker(trackerID int) bool {
	for _, pl := range p.plannings {
		for _, bt := range pl.BacklogTrackers {
			if bt.ID == trackerID {
				return true
			}
		}
	}
	return false
}

// IsCardwallActive reports whether the planning whose milestone tracker is
// trackerID has a cardwall.
func (p *Project) IsCardwallActive(trackerID int) bool {
	for _, pl := range p.plannings {
		if pl.MilestoneTracker.ID == trackerID && pl.CardwallURI != "" {
			return true
		}
	}
	return false
}

func (p *Project) AddUserGroup(g *UserGroup) {
	for i, cur := range p.groups {
		if cur.ID == g.ID {
			p.groups[i] = g
			return
		}
	}
	p.groups = append(p.groups, g)
}

func (p *Project) UserGroup(id string) (*UserGroup, bool) {
	for _, g := range p.groups {
		if g.ID == id {
			return g, true
		}
	}
	return nil, false
}

func (p *Project) UserGroups() []*UserGroup {
	return append([]*UserGroup(nil), p.groups...)
}

// AddUserToUserGroup registers u as a member of g, adding g to the project
// when needed.
func (p *Project) AddUserToUserGroup(g *UserGroup, u *User) {
	if _, ok := p.UserGroup(g.ID); !ok {
		p.AddUserGroup(g)
	}
	g.AddMember(u)
}

// Server is the configuration of one Tuleap instance.
type Server struct {
	URL string

	projects []*Project
	users    map[int]*User
}

func NewServer(url string) *Server {
	return &Server{URL: url, users: map[int]*User{}}
}

func (s *Server) AddProject(p *Project) {
	for i, cur := range s.projects {
		if cur.ID == p.ID {
			s.projects[i] = p
			return
		}
	}
	s.projects = append(s.projects, p)
}

func (s *Server) Project(id int) (*Project, bool) {
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (s *Server) Projects() []*Project {
	return append([]*Project(nil), s.projects...)
}

// ProjectsWithTrackers lists the projects exposing the trackers resource.
func (s *Server) ProjectsWithTrackers() []*Project {
	var out []*Project
	for _, p := range s.projects {
		if p.HasResource(ResourceTrackers) {
			out = append(out, p)
		}
	}
	return out
}

// Tracker looks a tracker up across all projects.
func (s *Server) Tracker(id int) (*Tracker, bool) {
	for _, p := range s.projects {
		if t, ok := p.Tracker(id); ok {
			return t, true
		}
	}
	return nil, false
}

// LinkParents resolves every tracker's ParentID into Parent.
func (s *Server) LinkParents() {
	for _, p := range s.projects {
		for _, t := range p.trackers {
			t.Parent = nil
			if t.ParentID == 0 {
				continue
			}
			if parent, ok := s.Tracker(t.ParentID); ok {
				t.Parent = parent
			}
		}
	}
}

func (s *Server) AddUser(u *User) {
	if s.users == nil {
		s.users = map[int]*User{}
	}
	s.users[u.ID] = u
}

func (s *Server) User(id int) (*User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Users returns the registered users ordered by id.
func (s *Server) Users() []*User {
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
