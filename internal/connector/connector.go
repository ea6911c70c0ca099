package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"tuleapsync/internal/codec"
	"tuleapsync/internal/domain"
	"tuleapsync/internal/mapper"
	"tuleapsync/internal/taskdata"
)

var (
	ErrUnknownQueryKind = errors.New("unknown query kind")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrUnknownTracker   = errors.New("unknown tracker")
)

// API is the part of the REST client the connector drives.
type API interface {
	Tracker(ctx context.Context, trackerID int) (*domain.Tracker, error)
	Artifact(ctx context.Context, artifactID int) (*domain.Artifact, error)
	ArtifactComments(ctx context.Context, artifactID int) ([]domain.Comment, error)
	ReportArtifacts(ctx context.Context, reportID int) ([]*domain.Artifact, error)
	QueryArtifacts(ctx context.Context, trackerID int, criteria map[string][]string) ([]*domain.Artifact, error)
	TopPlannings(ctx context.Context, projectID int) ([]domain.TopPlanning, error)
	CreateArtifact(ctx context.Context, a *domain.Artifact) (int, error)
	UpdateArtifact(ctx context.Context, a *domain.Artifact) error
}

// Handler is what a host task framework needs to create, publish and convert
// tasks.
type Handler interface {
	InitializeNewTaskData(ctx context.Context, td *taskdata.TaskData, trackerID int) error
	PostTaskData(ctx context.Context, td *taskdata.TaskData) (PostResult, error)
	MapToGeneric(ctx context.Context, td *taskdata.TaskData, a *domain.Artifact) error
	MapFromGeneric(ctx context.Context, td *taskdata.TaskData) (*domain.Artifact, error)
}

type PostKind string

const (
	PostCreated PostKind = "created"
	PostUpdated PostKind = "updated"
)

type PostResult struct {
	TaskID string
	Kind   PostKind
}

// Connector implements Handler and the query operations on top of API. It
// holds no state between operations.
type Connector struct {
	RepositoryURL string
	API           API
	// Users resolves the authors of comments and attachments. Optional.
	Users mapper.UserDirectory
	// Codec renders the dates of planning entries; nil renders them in the
	// local time zone.
	Codec  *codec.Registry
	Logger *log.Logger
	Now    func() time.Time
}

var _ Handler = (*Connector)(nil)

func New(repositoryURL string, api API) *Connector {
	return &Connector{RepositoryURL: repositoryURL, API: api, Now: time.Now}
}

func (c *Connector) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// trackers remembers the trackers refreshed during one operation.
type trackers struct {
	api  API
	byID map[int]*domain.Tracker
}

func (c *Connector) newTrackers() *trackers {
	return &trackers{api: c.API, byID: map[int]*domain.Tracker{}}
}

func (t *trackers) get(ctx context.Context, id int) (*domain.Tracker, error) {
	if tr, ok := t.byID[id]; ok {
		return tr, nil
	}
	tr, err := t.api.Tracker(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("refresh tracker %d: %w", id, err)
	}
	t.byID[id] = tr
	return tr, nil
}

func (c *Connector) mapper(tr *domain.Tracker) *mapper.Mapper {
	m := mapper.New(tr)
	m.Users = c.Users
	m.Now = c.Now
	return m
}

func (c *Connector) newTaskData(id string) *taskdata.TaskData {
	return taskdata.New(domain.ConnectorKind, c.RepositoryURL, id)
}

// GetTaskData downloads an artifact with its comments and converts it.
func (c *Connector) GetTaskData(ctx context.Context, taskID string) (*taskdata.TaskData, error) {
	id, err := domain.ParseTaskID(taskID)
	if err != nil {
		return nil, err
	}
	if !id.HasArtifact() {
		return nil, fmt.Errorf("%w: %s does not address an artifact", domain.ErrInvalidTaskID, taskID)
	}
	a, err := c.API.Artifact(ctx, id.Artifact)
	if err != nil {
		return nil, fmt.Errorf("get artifact %d: %w", id.Artifact, err)
	}
	comments, err := c.API.ArtifactComments(ctx, id.Artifact)
	if err != nil {
		return nil, fmt.Errorf("get comments of artifact %d: %w", id.Artifact, err)
	}
	a.Comments = comments
	if a.Project.ID == 0 {
		a.Project.ID = id.Project
	}
	td := c.newTaskData(taskID)
	if _, err := c.mapToGeneric(ctx, c.newTrackers(), td, a); err != nil {
		return nil, err
	}
	return td, nil
}

// InitializeNewTaskData prepares td for the creation of an artifact in the
// given tracker.
func (c *Connector) InitializeNewTaskData(ctx context.Context, td *taskdata.TaskData, trackerID int) error {
	tr, err := c.newTrackers().get(ctx, trackerID)
	if err != nil {
		return err
	}
	c.mapper(tr).InitializeNew(td)
	locate(td, tr)
	return nil
}

func (c *Connector) MapToGeneric(ctx context.Context, td *taskdata.TaskData, a *domain.Artifact) error {
	_, err := c.mapToGeneric(ctx, c.newTrackers(), td, a)
	return err
}

// mapToGeneric fills td from a and returns the id of the task.
func (c *Connector) mapToGeneric(ctx context.Context, cache *trackers, td *taskdata.TaskData, a *domain.Artifact) (domain.TaskID, error) {
	tr, err := cache.get(ctx, a.Tracker.ID)
	if err != nil {
		return domain.TaskID{}, err
	}
	c.mapper(tr).ToGenericAttributes(td, a)
	locate(td, tr)
	project := a.Project.ID
	if project == 0 {
		project = tr.Project.ID
	}
	id := domain.ForArtifact(project, tr.ID, a.ID)
	if !a.IsNew() {
		u := td.CreateAttribute(taskdata.TaskURL)
		u.Meta = taskdata.Metadata{Type: taskdata.TypeURL, ReadOnly: true}
		u.SetValue(TaskURL(c.RepositoryURL, id))
	}
	return id, nil
}

func (c *Connector) MapFromGeneric(ctx context.Context, td *taskdata.TaskData) (*domain.Artifact, error) {
	trackerID, err := trackerOf(td)
	if err != nil {
		return nil, err
	}
	tr, err := c.newTrackers().get(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	return c.mapper(tr).ToArtifact(td), nil
}

// PostTaskData creates the artifact of a new task or updates an existing one.
func (c *Connector) PostTaskData(ctx context.Context, td *taskdata.TaskData) (PostResult, error) {
	a, err := c.MapFromGeneric(ctx, td)
	if err != nil {
		return PostResult{}, err
	}
	if td.IsNew() || a.IsNew() {
		id, err := c.API.CreateArtifact(ctx, a)
		if err != nil {
			return PostResult{}, fmt.Errorf("create artifact in tracker %d: %w", a.Tracker.ID, err)
		}
		return PostResult{TaskID: domain.ForArtifact(a.Project.ID, a.Tracker.ID, id).String(), Kind: PostCreated}, nil
	}
	if err := c.API.UpdateArtifact(ctx, a); err != nil {
		return PostResult{}, fmt.Errorf("update artifact %d: %w", a.ID, err)
	}
	return PostResult{TaskID: td.TaskID, Kind: PostUpdated}, nil
}

func locate(td *taskdata.TaskData, tr *domain.Tracker) {
	td.CreateAttribute(taskdata.TrackerID).SetValue(strconv.Itoa(tr.ID))
	td.CreateAttribute(taskdata.ProjectID).SetValue(strconv.Itoa(tr.Project.ID))
}

// trackerOf finds the tracker of a task from its id, or from the location
// recorded when it was initialized.
func trackerOf(td *taskdata.TaskData) (int, error) {
	if id, err := domain.ParseTaskID(td.TaskID); err == nil && id.HasTracker() {
		return id.Tracker, nil
	}
	if id, err := strconv.Atoi(td.Value(taskdata.TrackerID)); err == nil {
		return id, nil
	}
	return 0, fmt.Errorf("%w for task %q", ErrUnknownTracker, td.TaskID)
}
