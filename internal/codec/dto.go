package codec

import "encoding/json"

// Wire representations of the Tuleap REST API resources.

type RefJSON struct {
	ID  int    `json:"id"`
	URI string `json:"uri,omitempty"`
}

type ResourceJSON struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type ProjectJSON struct {
	ID        int            `json:"id"`
	URI       string         `json:"uri"`
	Label     string         `json:"label"`
	ShortName string         `json:"shortname,omitempty"`
	Resources []ResourceJSON `json:"resources"`
}

type ItemJSON struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type BindingsJSON struct {
	Type string `json:"type"`
}

type FieldJSON struct {
	FieldID     int           `json:"field_id"`
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Values      []ItemJSON    `json:"values"`
	Required    bool          `json:"required"`
	Permissions []string      `json:"permissions"`
	Bindings    *BindingsJSON `json:"bindings,omitempty"`
	Size        int           `json:"size,omitempty"`
	// DefaultValue is a literal string or a list of option ids.
	DefaultValue json.RawMessage `json:"default_value,omitempty"`
}

type SemanticFieldJSON struct {
	FieldID int `json:"field_id"`
}

type StatusSemanticJSON struct {
	FieldID  int   `json:"field_id"`
	ValueIDs []int `json:"value_ids"`
}

type SemanticsJSON struct {
	Title       *SemanticFieldJSON  `json:"title,omitempty"`
	Status      *StatusSemanticJSON `json:"status,omitempty"`
	Contributor *SemanticFieldJSON  `json:"contributor,omitempty"`
}

type TransitionJSON struct {
	// FromID is null for transitions creating an artifact.
	FromID *int `json:"from_id"`
	ToID   int  `json:"to_id"`
}

type WorkflowJSON struct {
	FieldID     int              `json:"field_id"`
	IsUsed      string           `json:"is_used"`
	Transitions []TransitionJSON `json:"transitions"`
}

type TrackerJSON struct {
	ID          int           `json:"id"`
	URI         string        `json:"uri"`
	HTMLURL     string        `json:"html_url,omitempty"`
	Label       string        `json:"label"`
	Description string        `json:"description,omitempty"`
	ItemName    string        `json:"item_name,omitempty"`
	Project     RefJSON       `json:"project"`
	Fields      []FieldJSON   `json:"fields"`
	Semantics   SemanticsJSON `json:"semantics"`
	Workflow    *WorkflowJSON `json:"workflow,omitempty"`
	Parent      *RefJSON      `json:"parent"`
}

type FileDescriptionJSON struct {
	ID          int    `json:"id,omitempty"`
	FileID      int    `json:"file_id,omitempty"`
	SubmittedBy int    `json:"submitted_by"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
}

type ArtifactValueJSON struct {
	FieldID int    `json:"field_id"`
	Type    string `json:"type,omitempty"`
	Label   string `json:"label,omitempty"`
	// Value is a string or a number for literal fields.
	Value            json.RawMessage       `json:"value,omitempty"`
	BindValueID      *int                  `json:"bind_value_id,omitempty"`
	BindValueIDs     []int                 `json:"bind_value_ids"`
	FileDescriptions []FileDescriptionJSON `json:"file_descriptions"`
}

type ArtifactJSON struct {
	ID               int                 `json:"id"`
	URI              string              `json:"uri"`
	Label            string              `json:"label,omitempty"`
	HTMLURL          string              `json:"html_url,omitempty"`
	Tracker          RefJSON             `json:"tracker"`
	Project          RefJSON             `json:"project"`
	SubmittedBy      int                 `json:"submitted_by"`
	SubmittedOn      string              `json:"submitted_on,omitempty"`
	LastModifiedDate string              `json:"last_modified_date,omitempty"`
	Values           []ArtifactValueJSON `json:"values"`
}

type CommentBodyJSON struct {
	Body   string `json:"body"`
	Format string `json:"format"`
}

type UserJSON struct {
	ID       int    `json:"id"`
	URI      string `json:"uri,omitempty"`
	Username string `json:"username"`
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	LdapID   string `json:"ldap_id,omitempty"`
}

type ChangesetJSON struct {
	ID                 int             `json:"id"`
	SubmittedBy        int             `json:"submitted_by"`
	SubmittedByDetails *UserJSON       `json:"submitted_by_details,omitempty"`
	SubmittedOn        string          `json:"submitted_on"`
	Email              string          `json:"email,omitempty"`
	LastComment        CommentBodyJSON `json:"last_comment"`
}

type ArtifactRefJSON struct {
	ID      int     `json:"id"`
	URI     string  `json:"uri"`
	Tracker RefJSON `json:"tracker"`
}

type MilestoneJSON struct {
	ID               int             `json:"id"`
	URI              string          `json:"uri"`
	Label            string          `json:"label"`
	HTMLURL          string          `json:"html_url,omitempty"`
	StatusValue      string          `json:"status_value,omitempty"`
	SubmittedBy      int             `json:"submitted_by"`
	SubmittedOn      string          `json:"submitted_on,omitempty"`
	StartDate        string          `json:"start_date,omitempty"`
	EndDate          string          `json:"end_date,omitempty"`
	Capacity         *float64        `json:"capacity,omitempty"`
	LastModifiedDate string          `json:"last_modified_date,omitempty"`
	Planning         RefJSON         `json:"planning"`
	Project          RefJSON         `json:"project"`
	Artifact         ArtifactRefJSON `json:"artifact"`
	Parent           *RefJSON        `json:"parent"`
}

type BacklogItemJSON struct {
	ID            int              `json:"id"`
	URI           string           `json:"uri,omitempty"`
	Label         string           `json:"label"`
	HTMLURL       string           `json:"html_url,omitempty"`
	Status        string           `json:"status"`
	Type          string           `json:"type,omitempty"`
	InitialEffort *float64         `json:"initial_effort"`
	Artifact      ArtifactRefJSON  `json:"artifact"`
	Project       RefJSON          `json:"project"`
	Parent        *ArtifactRefJSON `json:"parent"`
}

type PlanningJSON struct {
	ID               int       `json:"id"`
	URI              string    `json:"uri"`
	Label            string    `json:"label"`
	Project          RefJSON   `json:"project"`
	MilestoneTracker RefJSON   `json:"milestone_tracker"`
	BacklogTrackers  []RefJSON `json:"backlog_trackers"`
	MilestonesURI    string    `json:"milestones_uri,omitempty"`
	CardwallURI      string    `json:"cardwall_configuration_uri,omitempty"`
}

type TopPlanningJSON struct {
	ID  int    `json:"id"`
	URI string `json:"uri,omitempty"`
}

type UserGroupJSON struct {
	ID    string `json:"id"`
	URI   string `json:"uri"`
	Label string `json:"label"`
	Key   string `json:"key"`
}

type TrackerReportJSON struct {
	ID    int    `json:"id"`
	URI   string `json:"uri"`
	Label string `json:"label"`
}

type TokenJSON struct {
	UserID int    `json:"user_id"`
	Token  string `json:"token"`
	URI    string `json:"uri,omitempty"`
}

type CredentialsJSON struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ErrorBodyJSON struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type DebugJSON struct {
	Source string `json:"source"`
}

// ErrorEnvelopeJSON is the body Tuleap sends with non-2xx responses.
type ErrorEnvelopeJSON struct {
	Error ErrorBodyJSON `json:"error"`
	Debug *DebugJSON    `json:"debug,omitempty"`
}

// CriterionJSON is one criterion of an ad-hoc tracker query.
type CriterionJSON struct {
	Operator string   `json:"operator,omitempty"`
	Value    []string `json:"value"`
}

// ArtifactPayloadJSON is the body of an artifact creation or update.
type ArtifactPayloadJSON struct {
	ID      int                 `json:"id,omitempty"`
	Tracker RefJSON             `json:"tracker"`
	Values  []ArtifactValueJSON `json:"values,omitempty"`
	Comment *CommentBodyJSON    `json:"comment,omitempty"`
}
