package connector

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/mapper"
	"tuleapsync/internal/taskdata"
)

const trackerPath = "/plugins/tracker/"

// TaskURL is the web page of an artifact.
func TaskURL(repositoryURL string, id domain.TaskID) string {
	return fmt.Sprintf("%s%s?group_id=%d&tracker=%d&aid=%d",
		strings.TrimRight(repositoryURL, "/"), trackerPath, id.Project, id.Tracker, id.Artifact)
}

// TaskIDFromURL reads the task id out of an artifact web page address.
func TaskIDFromURL(taskURL string) (domain.TaskID, error) {
	u, err := url.Parse(taskURL)
	if err != nil {
		return domain.TaskID{}, fmt.Errorf("%w: %v", domain.ErrInvalidTaskID, err)
	}
	if !strings.Contains(u.Path, trackerPath) {
		return domain.TaskID{}, fmt.Errorf("%w: %s is not an artifact url", domain.ErrInvalidTaskID, taskURL)
	}
	q := u.Query()
	var parts [3]int
	for i, key := range []string{"group_id", "tracker", "aid"} {
		raw := q.Get(key)
		if raw == "" {
			parts[i] = domain.IrrelevantID
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.TaskID{}, fmt.Errorf("%w: %s=%q", domain.ErrInvalidTaskID, key, raw)
		}
		parts[i] = n
	}
	if parts[2] == domain.IrrelevantID {
		return domain.TaskID{}, fmt.Errorf("%w: %s has no artifact", domain.ErrInvalidTaskID, taskURL)
	}
	return domain.ForArtifact(parts[0], parts[1], parts[2]), nil
}

// RepositoryURLFromTaskURL returns the part of an artifact address before
// the tracker plugin path, or "" when taskURL is not one.
func RepositoryURLFromTaskURL(taskURL string) string {
	i := strings.Index(taskURL, trackerPath)
	if i < 0 {
		return ""
	}
	return taskURL[:i]
}

// HasTaskChanged reports whether td was modified at another time than the
// one known locally. Task data without a modification date always counts as
// changed.
func HasTaskChanged(known time.Time, td *taskdata.TaskData) bool {
	raw := td.Value(taskdata.DateModification)
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return known.UnixMilli() != ms
}

// TaskSummary is the overview of a task kept by a host task list.
type TaskSummary struct {
	TaskID    string
	Key       string
	Summary   string
	Status    string
	Kind      string
	URL       string
	Completed bool
	Modified  time.Time
}

// Summarize extracts the overview of td. tracker decides completion from its
// open statuses and may be nil.
func Summarize(tracker *domain.Tracker, td *taskdata.TaskData) TaskSummary {
	s := TaskSummary{
		TaskID:  td.TaskID,
		Key:     td.Value(taskdata.TaskKey),
		Summary: td.Value(taskdata.Summary),
		Status:  td.Value(taskdata.Status),
		Kind:    td.Value(taskdata.TaskKind),
		URL:     td.Value(taskdata.TaskURL),
	}
	if attr, ok := td.Attribute(taskdata.Status); ok {
		if label, ok := attr.OptionLabel(s.Status); ok {
			s.Status = label
		}
	}
	if ms, err := strconv.ParseInt(td.Value(taskdata.DateModification), 10, 64); err == nil {
		s.Modified = time.UnixMilli(ms)
	}
	s.Completed = mapper.New(tracker).Completed(td)
	return s
}
