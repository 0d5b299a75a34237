// Package taskworkflow implements C7: the RFTP -> proposal -> approval ->
// execution -> completion state machine, its append-only event history,
// and the telemetry dashboard described in spec.md §4.7.
package taskworkflow

import "time"

// RFTPStatus is the linear RFTP lifecycle: draft -> submitted ->
// under_review -> (approved|rejected).
type RFTPStatus string

const (
	RFTPDraft       RFTPStatus = "draft"
	RFTPSubmitted   RFTPStatus = "submitted"
	RFTPUnderReview RFTPStatus = "under_review"
	RFTPApproved    RFTPStatus = "approved"
	RFTPRejected    RFTPStatus = "rejected"
)

// TaskStatus is the task lifecycle enumeration from spec.md §3.
type TaskStatus string

const (
	TaskDraft      TaskStatus = "draft"
	TaskProposed   TaskStatus = "proposed"
	TaskAccepted   TaskStatus = "accepted"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskTerminated TaskStatus = "terminated"
	TaskRejected   TaskStatus = "rejected"
)

// HistoryEntry is one append-only record in a task's workflow_history
// (§3 Task record invariant: "every status change has a corresponding
// history entry").
type HistoryEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// WorkflowEvent is pushed into the process-wide rolling buffer (capacity
// 200) consumed by the telemetry dashboard, and surfaced to the
// observability layer (§4.7 Event log).
type WorkflowEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Event      string                 `json:"event"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// RFTP is a Request-for-Task-Proposal intake record.
type RFTP struct {
	ID             string         `json:"rftp_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	TaskType       string         `json:"task_type"`
	Jurisdiction   string         `json:"jurisdiction"`
	EstimatedHours int            `json:"estimated_hours"`
	BudgetCeiling  float64        `json:"budget_ceiling"`
	RequestedBy    string         `json:"requested_by"`
	Priority       string         `json:"priority"`
	DueDate        string         `json:"due_date,omitempty"`
	Status         RFTPStatus     `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	History        []HistoryEntry `json:"history"`
}

// Proposal references an RFTP and carries the terms a task is created
// from on acceptance.
type Proposal struct {
	ID                 string            `json:"proposal_id"`
	RFTPID             string            `json:"rftp_id"`
	TaskID             string            `json:"task_id"`
	ProposedHours      int               `json:"proposed_hours"`
	ProposedBudget     float64           `json:"proposed_budget"`
	ProposedDeliverables []string        `json:"proposed_deliverables"`
	ProposedTimeline   map[string]string `json:"proposed_timeline"`
	TechnicalApproach  string            `json:"technical_approach"`
	Assumptions        []string          `json:"assumptions,omitempty"`
	Risks              []string          `json:"risks,omitempty"`
	CreatedBy          string            `json:"created_by"`
	CreatedAt          time.Time         `json:"created_at"`
	Status             string            `json:"status"`
}

// Task is the workflow-owned record mutated only through Engine methods,
// each of which also appends a history entry and emits a workflow event
// (§3 Task record).
type Task struct {
	ID                 string            `json:"task_id"`
	ProposalID         string            `json:"proposal_id"`
	RFTPID             string            `json:"rftp_id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	TaskType           string            `json:"task_type"`
	Jurisdiction       string            `json:"jurisdiction"`
	Status             TaskStatus        `json:"status"`
	AssignedTo         string            `json:"assigned_to,omitempty"`
	Budget             float64           `json:"budget"`
	Hours              int               `json:"hours"`
	SpentBudget        float64           `json:"spent_budget"`
	SpentHours         float64           `json:"spent_hours"`
	Deliverables       []string          `json:"deliverables"`
	Timeline           map[string]string `json:"timeline"`
	ProgressPercentage int               `json:"progress_percentage"`
	Artifacts          []interface{}     `json:"artifacts,omitempty"`
	CreatedBy          string            `json:"created_by"`
	CreatedAt          time.Time         `json:"created_at"`
	DueDate            string            `json:"due_date,omitempty"`
	ApprovedAt         *time.Time        `json:"approved_at,omitempty"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	WorkflowHistory    []HistoryEntry    `json:"workflow_history"`
}

// budgetUtilization returns spent/approved budget, or 0 when no budget is
// set (avoids a division by zero the way the original dashboard guards).
func (t *Task) budgetUtilization() float64 {
	if t.Budget <= 0 {
		return 0
	}
	return t.SpentBudget / t.Budget
}

// atRisk implements the GLOSSARY's "at-risk task": in-progress or accepted
// with spent budget over 90% of approved budget.
func (t *Task) atRisk() bool {
	if t.Status != TaskAccepted && t.Status != TaskInProgress {
		return false
	}
	return t.Budget > 0 && t.SpentBudget > t.Budget*0.9
}
