package connector

import (
	"strconv"

	"tuleapsync/internal/domain"
	"tuleapsync/internal/taskdata"
)

// Children of the planning entries of a top level planning task.
const (
	PlanningLabel       = "label"
	PlanningStatus      = "status"
	PlanningTopPlanning = "top_planning"
	PlanningURI         = "uri"
	PlanningStartDate   = "start_date"
	PlanningEndDate     = "end_date"
	PlanningCapacity    = "capacity"
	PlanningType        = "type"
	PlanningEffort      = "initial_effort"
	PlanningArtifact    = "artifact"
)

// MilestoneEntry and BacklogItemEntry are the ids of the attributes holding
// a milestone and a backlog item in a top level planning task.
func MilestoneEntry(id int) string   { return taskdata.PrefixPlanning + "milestone-" + strconv.Itoa(id) }
func BacklogItemEntry(id int) string { return taskdata.PrefixPlanning + "backlog-" + strconv.Itoa(id) }

// planningTask flattens the top plannings of a project into the single task
// standing for the project.
func (c *Connector) planningTask(projectID int, tps []domain.TopPlanning) *taskdata.TaskData {
	td := c.newTaskData(domain.ForProject(projectID).String())
	kind := td.CreateAttribute(taskdata.TaskKind)
	kind.Meta = taskdata.Metadata{Type: taskdata.TypeShortText, ReadOnly: true}
	kind.SetValue("planning")
	summary := td.CreateAttribute(taskdata.Summary)
	summary.Meta = taskdata.Metadata{Type: taskdata.TypeShortRichText, ReadOnly: true}
	summary.SetValue("Top planning of project " + strconv.Itoa(projectID))
	td.CreateAttribute(taskdata.ProjectID).SetValue(strconv.Itoa(projectID))

	for _, tp := range tps {
		for _, m := range tp.Milestones {
			attr := td.CreateAttribute(MilestoneEntry(m.ID))
			attr.Meta = taskdata.Metadata{Label: m.Label, Type: taskdata.TypeContainer, ReadOnly: true}
			attr.CreateChild(PlanningLabel).SetValue(m.Label)
			attr.CreateChild(PlanningStatus).SetValue(m.Status)
			attr.CreateChild(PlanningTopPlanning).SetValue(strconv.Itoa(tp.ID))
			attr.CreateChild(PlanningURI).SetValue(m.URI)
			attr.CreateChild(PlanningStartDate).SetValue(c.Codec.FormatDate(m.StartDate))
			attr.CreateChild(PlanningEndDate).SetValue(c.Codec.FormatDate(m.EndDate))
			if m.Capacity != nil {
				attr.CreateChild(PlanningCapacity).SetValue(strconv.FormatFloat(*m.Capacity, 'f', -1, 64))
			}
		}
		for _, b := range tp.BacklogItems {
			attr := td.CreateAttribute(BacklogItemEntry(b.ID))
			attr.Meta = taskdata.Metadata{Label: b.Label, Type: taskdata.TypeContainer, ReadOnly: true}
			attr.CreateChild(PlanningLabel).SetValue(b.Label)
			attr.CreateChild(PlanningStatus).SetValue(b.Status)
			attr.CreateChild(PlanningTopPlanning).SetValue(strconv.Itoa(tp.ID))
			attr.CreateChild(PlanningURI).SetValue(b.URI)
			attr.CreateChild(PlanningType).SetValue(b.Type)
			if b.Artifact.ID != 0 {
				attr.CreateChild(PlanningArtifact).SetValue(domain.ForArtifact(projectID, b.Artifact.Tracker.ID, b.Artifact.ID).String())
			}
			if b.InitialEffort != nil {
				attr.CreateChild(PlanningEffort).SetValue(strconv.FormatFloat(*b.InitialEffort, 'f', -1, 64))
			}
		}
	}
	return td
}
