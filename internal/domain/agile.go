package domain

import "time"

// BacklogItem is an artifact planned in a project or milestone backlog.
type BacklogItem struct {
	ID            int
	Label         string
	URI           string
	HTMLURL       string
	Status        string
	Type          string
	Artifact      ArtifactRef
	Project       Ref
	Parent        *ArtifactRef
	InitialEffort *float64
	// TypeID is the tracker used when the item is created from a backlog.
	TypeID int
}

// ArtifactRef points at an artifact and its tracker.
type ArtifactRef struct {
	ID      int
	URI     string
	Tracker Ref
}

type Milestone struct {
	ID           int
	Label        string
	URI          string
	HTMLURL      string
	Status       string
	Artifact     ArtifactRef
	Project      Ref
	Planning     Ref
	Parent       *Ref
	StartDate    time.Time
	EndDate      time.Time
	Capacity     *float64
	SubmittedBy  int
	SubmittedOn  time.Time
	LastModified time.Time
}

// TopPlanning gathers a project's top level milestones and the backlog items
// not assigned to any of them.
type TopPlanning struct {
	ID           int
	Milestones   []Milestone
	BacklogItems []BacklogItem
}

// TrackerReport is a predefined query of a tracker.
type TrackerReport struct {
	ID      int
	URI     string
	Label   string
	Tracker Ref
}
