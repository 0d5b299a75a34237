package taskworkflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/logging"
)

// eventBufferCapacity is the process-wide rolling buffer size (§4.7).
const eventBufferCapacity = 200

// RFTPInput is the payload for CreateRFTP.
type RFTPInput struct {
	Title          string
	Description    string
	TaskType       string
	Jurisdiction   string
	EstimatedHours int
	BudgetCeiling  float64
	RequestedBy    string
	Priority       string
	DueDate        string
}

// ProposalInput is the payload for CreateProposal.
type ProposalInput struct {
	ID                   string
	RFTPID               string
	ProposedHours        int
	ProposedBudget       float64
	ProposedDeliverables []string
	ProposedTimeline     map[string]string
	TechnicalApproach    string
	Assumptions          []string
	Risks                []string
	CreatedBy            string
}

// ApprovalInput is the payload for ApproveTask.
type ApprovalInput struct {
	ApprovedBy     string
	ApprovedBudget float64
	ApprovedHours  int
}

// ProgressInput is the payload for UpdateProgress; zero-valued pointer
// fields are left unchanged, matching the original's "only apply fields
// present in the payload" semantics.
type ProgressInput struct {
	ProgressPercentage *int
	SpentHours         *float64
	SpentBudget        *float64
}

// Engine owns the task/RFTP/proposal tables with single-writer discipline
// per id, enforced here by one mutex guarding all three tables plus the
// rolling event buffer (§5 Shared-resource policy).
type Engine struct {
	logger *logging.Logger

	mu        sync.Mutex
	rftps     map[string]*RFTP
	proposals map[string]*Proposal
	tasks     map[string]*Task

	events []WorkflowEvent
}

// New builds an empty in-memory Engine.
func New(logger *logging.Logger) *Engine {
	return &Engine{
		logger:    logger,
		rftps:     make(map[string]*RFTP),
		proposals: make(map[string]*Proposal),
		tasks:     make(map[string]*Task),
	}
}

func (e *Engine) emit(entityType, entityID, event string, metadata map[string]interface{}) {
	ev := WorkflowEvent{
		Timestamp:  time.Now().UTC(),
		EntityType: entityType,
		EntityID:   entityID,
		Event:      event,
		Metadata:   metadata,
	}
	e.events = append(e.events, ev)
	if len(e.events) > eventBufferCapacity {
		e.events = e.events[len(e.events)-eventBufferCapacity:]
	}
	if e.logger != nil {
		e.logger.Info(context.Background(), "workflow event", map[string]interface{}{
			"entity_type": entityType,
			"entity_id":   entityID,
			"event":       event,
		})
	}
}

// appendTaskHistory appends a history entry to task and emits the
// corresponding workflow event. Caller must hold e.mu.
func (e *Engine) appendTaskHistory(task *Task, event string, metadata map[string]interface{}) {
	entry := HistoryEntry{Timestamp: time.Now().UTC(), Event: event, Metadata: metadata}
	task.WorkflowHistory = append(task.WorkflowHistory, entry)
	e.emit("task", task.ID, event, metadata)
}

func (e *Engine) appendRFTPHistory(rftp *RFTP, event string, metadata map[string]interface{}) {
	entry := HistoryEntry{Timestamp: time.Now().UTC(), Event: event, Metadata: metadata}
	rftp.History = append(rftp.History, entry)
	e.emit("rftp", rftp.ID, event, metadata)
}

func (e *Engine) setRFTPStatus(rftp *RFTP, status RFTPStatus, metadata map[string]interface{}) {
	rftp.Status = status
	rftp.UpdatedAt = time.Now().UTC()
	e.appendRFTPHistory(rftp, "rftp_"+string(status), metadata)
}

func (e *Engine) setTaskStatus(task *Task, status TaskStatus, metadata map[string]interface{}) {
	task.Status = status
	e.appendTaskHistory(task, "task_status_"+string(status), metadata)
}

// CreateRFTP creates a draft RFTP and immediately submits it, matching the
// original intake flow (§4.7 RFTP state machine: linear draft->submitted
// on creation, then under_review on proposal submission).
func (e *Engine) CreateRFTP(ctx context.Context, in RFTPInput) (*RFTP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	rftp := &RFTP{
		ID:             uuid.NewString(),
		Title:          in.Title,
		Description:    in.Description,
		TaskType:       in.TaskType,
		Jurisdiction:   in.Jurisdiction,
		EstimatedHours: in.EstimatedHours,
		BudgetCeiling:  in.BudgetCeiling,
		RequestedBy:    in.RequestedBy,
		Priority:       in.Priority,
		DueDate:        in.DueDate,
		Status:         RFTPDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e.rftps[rftp.ID] = rftp
	e.setRFTPStatus(rftp, RFTPSubmitted, map[string]interface{}{
		"requested_by": in.RequestedBy,
		"task_type":    in.TaskType,
	})
	return rftp, nil
}

// GetRFTP returns an RFTP by id.
func (e *Engine) GetRFTP(ctx context.Context, id string) (*RFTP, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rftps[id]
	if !ok {
		return nil, accesserrors.NotFound("rftp", id)
	}
	return r, nil
}

// ListRFTPs lists RFTPs, optionally filtered by status and/or task type.
func (e *Engine) ListRFTPs(ctx context.Context, status, taskType string) []*RFTP {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*RFTP, 0, len(e.rftps))
	for _, r := range e.rftps {
		if status != "" && string(r.Status) != status {
			continue
		}
		if taskType != "" && r.TaskType != taskType {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CreateProposal creates a proposal against an existing RFTP, instantiates
// the associated Task in status "proposed", and moves the RFTP to
// under_review (§4.7, E2E-6).
func (e *Engine) CreateProposal(ctx context.Context, in ProposalInput) (*Proposal, *Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in.RFTPID == "" {
		return nil, nil, accesserrors.MissingParameter("rftp_id")
	}
	if in.ID != "" {
		if _, exists := e.proposals[in.ID]; exists {
			return nil, nil, accesserrors.AlreadyExists("proposal", in.ID)
		}
	}
	rftp, ok := e.rftps[in.RFTPID]
	if !ok {
		return nil, nil, accesserrors.NotFound("rftp", in.RFTPID)
	}

	proposalID := in.ID
	if proposalID == "" {
		proposalID = uuid.NewString()
	}
	now := time.Now().UTC()
	taskID := uuid.NewString()

	task := &Task{
		ID:           taskID,
		ProposalID:   proposalID,
		RFTPID:       in.RFTPID,
		Title:        rftp.Title,
		Description:  rftp.Description,
		TaskType:     rftp.TaskType,
		Jurisdiction: rftp.Jurisdiction,
		Status:       TaskDraft,
		Budget:       in.ProposedBudget,
		Hours:        in.ProposedHours,
		Deliverables: in.ProposedDeliverables,
		Timeline:     in.ProposedTimeline,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		DueDate:      rftp.DueDate,
	}
	e.tasks[taskID] = task
	e.appendTaskHistory(task, "task_created", map[string]interface{}{
		"proposal_id": proposalID,
		"task_type":   task.TaskType,
	})
	e.setTaskStatus(task, TaskProposed, map[string]interface{}{"proposal_id": proposalID})

	proposal := &Proposal{
		ID:                   proposalID,
		RFTPID:               in.RFTPID,
		TaskID:               taskID,
		ProposedHours:        in.ProposedHours,
		ProposedBudget:       in.ProposedBudget,
		ProposedDeliverables: in.ProposedDeliverables,
		ProposedTimeline:     in.ProposedTimeline,
		TechnicalApproach:    in.TechnicalApproach,
		Assumptions:          in.Assumptions,
		Risks:                in.Risks,
		CreatedBy:            in.CreatedBy,
		CreatedAt:            now,
		Status:               "submitted",
	}
	e.proposals[proposalID] = proposal
	e.emit("proposal", proposalID, "proposal_submitted", map[string]interface{}{
		"task_id": taskID,
		"rftp_id": in.RFTPID,
	})

	e.setRFTPStatus(rftp, RFTPUnderReview, map[string]interface{}{"proposal_id": proposalID})

	return proposal, task, nil
}

// GetProposal returns a proposal by id.
func (e *Engine) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.proposals[id]
	if !ok {
		return nil, accesserrors.NotFound("proposal", id)
	}
	return p, nil
}

// GetTask returns a task by id.
func (e *Engine) GetTask(ctx context.Context, id string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[id]
	if !ok {
		return nil, accesserrors.NotFound("task", id)
	}
	return t, nil
}

// ListTasks lists tasks, optionally filtered by status/task type/assignee.
func (e *Engine) ListTasks(ctx context.Context, status, taskType, assignedTo string) []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		if status != "" && string(t.Status) != status {
			continue
		}
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		if assignedTo != "" && t.AssignedTo != assignedTo {
			continue
		}
		out = append(out, t)
	}
	return out
}

func illegalTransition(message string) error {
	return accesserrors.New(accesserrors.ValidationError, message, 400)
}

// ApproveTask implements the `approve` trigger: proposed -> accepted.
// Approving also advances the associated RFTP to approved (§4.7).
func (e *Engine) ApproveTask(ctx context.Context, taskID string, in ApprovalInput) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, accesserrors.NotFound("task", taskID)
	}
	if task.Status != TaskProposed && task.Status != TaskDraft {
		return nil, illegalTransition("task cannot be approved from current status")
	}

	task.Budget = in.ApprovedBudget
	task.Hours = in.ApprovedHours
	now := time.Now().UTC()
	task.ApprovedAt = &now

	if proposal, ok := e.proposals[task.ProposalID]; ok {
		proposal.Status = "approved"
	}
	if rftp, ok := e.rftps[task.RFTPID]; ok {
		e.setRFTPStatus(rftp, RFTPApproved, map[string]interface{}{"task_id": taskID})
	}

	e.setTaskStatus(task, TaskAccepted, map[string]interface{}{"approved_by": in.ApprovedBy})
	return task, nil
}

// StartTask implements the `start` trigger: accepted -> in_progress,
// requires an assignee.
func (e *Engine) StartTask(ctx context.Context, taskID, assignedTo string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, accesserrors.NotFound("task", taskID)
	}
	if task.Status != TaskAccepted {
		return nil, illegalTransition("task must be accepted before starting")
	}
	if assignedTo == "" {
		return nil, accesserrors.MissingParameter("assigned_to")
	}

	now := time.Now().UTC()
	task.AssignedTo = assignedTo
	task.StartedAt = &now

	e.setTaskStatus(task, TaskInProgress, map[string]interface{}{"assigned_to": assignedTo})
	return task, nil
}

// UpdateProgress implements the `progress` trigger: in_progress-only field
// updates. A budget-utilization alert fires once spent exceeds 90% of
// approved budget (GLOSSARY "at-risk task"), appended to history after the
// progress-updated entry, matching E2E-6's expected order.
func (e *Engine) UpdateProgress(ctx context.Context, taskID string, in ProgressInput) (*Task, map[string]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, nil, accesserrors.NotFound("task", taskID)
	}
	if task.Status != TaskInProgress {
		return nil, nil, illegalTransition("task must be in progress to update")
	}

	updated := map[string]interface{}{}
	if in.ProgressPercentage != nil {
		pct := *in.ProgressPercentage
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		task.ProgressPercentage = pct
		updated["progress_percentage"] = pct
	}
	if in.SpentHours != nil {
		hours := *in.SpentHours
		if hours < 0 {
			hours = 0
		}
		task.SpentHours = hours
		updated["spent_hours"] = hours
	}
	if in.SpentBudget != nil {
		budget := *in.SpentBudget
		if budget < 0 {
			budget = 0
		}
		task.SpentBudget = budget
		updated["spent_budget"] = budget
	}

	e.appendTaskHistory(task, "task_progress_updated", updated)

	if task.atRisk() {
		if e.logger != nil {
			e.logger.Warn(ctx, "budget utilization alert", map[string]interface{}{
				"task_id": taskID,
				"spent":   task.SpentBudget,
				"budget":  task.Budget,
			})
		}
		e.appendTaskHistory(task, "task_budget_alert", map[string]interface{}{
			"spent_budget": task.SpentBudget,
			"budget":       task.Budget,
		})
	}

	return task, updated, nil
}

// CompleteTask implements the `complete` trigger: in_progress -> completed.
func (e *Engine) CompleteTask(ctx context.Context, taskID string, artifacts []interface{}) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, accesserrors.NotFound("task", taskID)
	}
	if task.Status != TaskInProgress {
		return nil, illegalTransition("task must be in progress to complete")
	}

	now := time.Now().UTC()
	task.CompletedAt = &now
	task.ProgressPercentage = 100
	task.Artifacts = artifacts

	e.appendTaskHistory(task, "task_completed", map[string]interface{}{"artifact_count": len(artifacts)})
	e.setTaskStatus(task, TaskCompleted, map[string]interface{}{"complete": true})
	return task, nil
}

// CancelTask implements the `cancel` trigger from accepted.
func (e *Engine) CancelTask(ctx context.Context, taskID, reason string) (*Task, error) {
	return e.terminalTransition(taskID, TaskAccepted, TaskCancelled, reason)
}

// TerminateTask implements the `terminate` trigger from in_progress.
func (e *Engine) TerminateTask(ctx context.Context, taskID, reason string) (*Task, error) {
	return e.terminalTransition(taskID, TaskInProgress, TaskTerminated, reason)
}

// RejectTask implements the `reject` trigger from proposed.
func (e *Engine) RejectTask(ctx context.Context, taskID, reason string) (*Task, error) {
	return e.terminalTransition(taskID, TaskProposed, TaskRejected, reason)
}

func (e *Engine) terminalTransition(taskID string, from, to TaskStatus, reason string) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return nil, accesserrors.NotFound("task", taskID)
	}
	if task.Status != from {
		return nil, illegalTransition("task cannot transition to " + string(to) + " from current status")
	}
	e.setTaskStatus(task, to, map[string]interface{}{"reason": reason})
	return task, nil
}

// RecentEvents returns the most recent n events from the rolling buffer
// (n<=0 returns all retained events, up to eventBufferCapacity).
func (e *Engine) RecentEvents(n int) []WorkflowEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n >= len(e.events) {
		out := make([]WorkflowEvent, len(e.events))
		copy(out, e.events)
		return out
	}
	out := make([]WorkflowEvent, n)
	copy(out, e.events[len(e.events)-n:])
	return out
}
