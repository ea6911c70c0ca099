package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// IrrelevantID fills the parts of a task id that do not apply, such as the
// tracker and artifact of a project-level planning task.
const IrrelevantID = -1

var ErrInvalidTaskID = errors.New("invalid task id")

// TaskID addresses an artifact of a tracker of a project. Its string form is
// "project:tracker#artifact".
type TaskID struct {
	Project  int
	Tracker  int
	Artifact int
}

func ForArtifact(projectID, trackerID, artifactID int) TaskID {
	return TaskID{Project: projectID, Tracker: trackerID, Artifact: artifactID}
}

// ForProject identifies a pseudo task bound to a project only.
func ForProject(projectID int) TaskID {
	return TaskID{Project: projectID, Tracker: IrrelevantID, Artifact: IrrelevantID}
}

func (id TaskID) String() string {
	return fmt.Sprintf("%d:%d#%d", id.Project, id.Tracker, id.Artifact)
}

func (id TaskID) HasTracker() bool  { return id.Tracker != IrrelevantID }
func (id TaskID) HasArtifact() bool { return id.Artifact != IrrelevantID }

func ParseTaskID(s string) (TaskID, error) {
	projectPart, rest, ok := strings.Cut(s, ":")
	if !ok {
		return TaskID{}, fmt.Errorf("%w %q", ErrInvalidTaskID, s)
	}
	trackerPart, artifactPart, ok := strings.Cut(rest, "#")
	if !ok {
		return TaskID{}, fmt.Errorf("%w %q", ErrInvalidTaskID, s)
	}
	var parts [3]int
	for i, raw := range []string{projectPart, trackerPart, artifactPart} {
		if strings.HasPrefix(raw, "+") {
			return TaskID{}, fmt.Errorf("%w %q", ErrInvalidTaskID, s)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return TaskID{}, fmt.Errorf("%w %q: %v", ErrInvalidTaskID, s, err)
		}
		parts[i] = n
	}
	return TaskID{Project: parts[0], Tracker: parts[1], Artifact: parts[2]}, nil
}
