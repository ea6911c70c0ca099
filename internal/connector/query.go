package connector

import (
	"context"
	"fmt"
	"strconv"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/rest"
	"tuleapsync/internal/taskdata"
)

// Query kinds.
const (
	KindReport           = "REPORT"
	KindCustom           = "CUSTOM"
	KindTopLevelPlanning = "TOP_LEVEL_PLANNING"
)

// Query attribute keys.
const (
	ParamKind      = "QUERY_KIND"
	ParamTrackerID = "QUERY_TRACKER_ID"
	ParamReportID  = "QUERY_REPORT_ID"
	ParamProjectID = "QUERY_PROJECT_ID"
)

// Query is a saved search. Attributes carry the kind and its parameters;
// Criteria applies to CUSTOM queries only.
type Query struct {
	Title      string
	Attributes map[string]string
	Criteria   map[string][]string
}

func (q Query) Kind() string { return q.Attributes[ParamKind] }

func (q Query) intParam(key string) (int, error) {
	raw, ok := q.Attributes[key]
	if !ok {
		return 0, fmt.Errorf("%w %q: missing %s", ErrInvalidQuery, q.Title, key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %s=%q", ErrInvalidQuery, q.Title, key, raw)
	}
	return n, nil
}

// Collector receives the tasks of a query as they are converted.
type Collector interface {
	Accept(td *taskdata.TaskData)
}

type CollectorFunc func(td *taskdata.TaskData)

func (f CollectorFunc) Accept(td *taskdata.TaskData) { f(td) }

// Failure is a result left out of a query because it could not be converted.
type Failure struct {
	ArtifactID int
	Err        error
}

type QueryResult struct {
	Collected int
	Failures  []Failure
}

// PerformQuery runs q and hands every converted task to collector. A result
// that fails to convert is logged and recorded in the returned QueryResult;
// only a failed fetch or a cancellation makes the query fail.
func (c *Connector) PerformQuery(ctx context.Context, q Query, collector Collector) (QueryResult, error) {
	switch q.Kind() {
	case KindReport:
		reportID, err := q.intParam(ParamReportID)
		if err != nil {
			return QueryResult{}, err
		}
		artifacts, err := c.API.ReportArtifacts(ctx, reportID)
		if err != nil {
			return QueryResult{}, fmt.Errorf("run report %d: %w", reportID, err)
		}
		return c.collect(ctx, artifacts, collector)
	case KindCustom:
		trackerID, err := q.intParam(ParamTrackerID)
		if err != nil {
			return QueryResult{}, err
		}
		artifacts, err := c.API.QueryArtifacts(ctx, trackerID, q.Criteria)
		if err != nil {
			return QueryResult{}, fmt.Errorf("query tracker %d: %w", trackerID, err)
		}
		for _, a := range artifacts {
			comments, err := c.API.ArtifactComments(ctx, a.ID)
			if err != nil {
				return QueryResult{}, fmt.Errorf("get comments of artifact %d: %w", a.ID, err)
			}
			a.Comments = comments
		}
		return c.collect(ctx, artifacts, collector)
	case KindTopLevelPlanning:
		projectID, err := q.intParam(ParamProjectID)
		if err != nil {
			return QueryResult{}, err
		}
		tps, err := c.API.TopPlannings(ctx, projectID)
		if err != nil {
			return QueryResult{}, fmt.Errorf("top plannings of project %d: %w", projectID, err)
		}
		collector.Accept(c.planningTask(projectID, tps))
		return QueryResult{Collected: 1}, nil
	default:
		return QueryResult{}, fmt.Errorf("%w %q", ErrUnknownQueryKind, q.Kind())
	}
}

func (c *Connector) collect(ctx context.Context, artifacts []*domain.Artifact, collector Collector) (QueryResult, error) {
	return c.collectWith(ctx, c.newTrackers(), artifacts, collector)
}

func (c *Connector) collectWith(ctx context.Context, cache *trackers, artifacts []*domain.Artifact, collector Collector) (QueryResult, error) {
	var res QueryResult
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return res, &rest.CanceledError{Err: err}
		}
		td := c.newTaskData("")
		id, err := c.mapToGeneric(ctx, cache, td, a)
		if err != nil {
			if ctx.Err() != nil {
				return res, &rest.CanceledError{Err: ctx.Err()}
			}
			c.logger().Printf("query: skipped artifact %d: %v", a.ID, err)
			res.Failures = append(res.Failures, Failure{ArtifactID: a.ID, Err: err})
			continue
		}
		td.TaskID = id.String()
		collector.Accept(td)
		res.Collected++
	}
	return res, nil
}
