package taskworkflow

import "sort"

// Dashboard is the aggregated payload for GET /telemetry/dashboard (§4.7,
// §12 supplemented feature grounded on service_task_manager's
// /telemetry/dashboard endpoint).
type Dashboard struct {
	Summary          Summary            `json:"summary"`
	StatusDistribution map[string]int   `json:"status_distribution"`
	BudgetByType     map[string]Budget  `json:"budget_by_type"`
	WorkflowFunnel   []FunnelStage      `json:"workflow_funnel"`
	RecentEvents     []WorkflowEvent    `json:"recent_events"`
	AtRiskTaskIDs    []string           `json:"at_risk_task_ids"`
}

// Summary holds the headline portfolio figures.
type Summary struct {
	TotalTasks       int     `json:"total_tasks"`
	TotalRFTPs       int     `json:"total_rftps"`
	CompletedTasks   int     `json:"completed_tasks"`
	CompletionRate   float64 `json:"completion_rate"`
	TotalBudget      float64 `json:"total_budget"`
	TotalSpent       float64 `json:"total_spent"`
	BudgetUtilization float64 `json:"budget_utilization"`
}

// Budget is the per-task-type budget rollup.
type Budget struct {
	Approved float64 `json:"approved"`
	Spent    float64 `json:"spent"`
	Count    int     `json:"count"`
}

// FunnelStage is one stage of the RFTP->task workflow funnel, counting
// entities that have reached at least that stage.
type FunnelStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// funnelOrder mirrors the original dashboard's fixed funnel stage order.
var funnelOrder = []TaskStatus{TaskProposed, TaskAccepted, TaskInProgress, TaskCompleted}

// Dashboard computes the telemetry aggregation over the current in-memory
// state. It holds the engine mutex only for the snapshot copy, then aggregates
// without holding the engine mutex.
func (e *Engine) Dashboard(recentEventLimit int) Dashboard {
	e.mu.Lock()
	tasks := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	rftpCount := len(e.rftps)
	e.mu.Unlock()

	d := Dashboard{
		StatusDistribution: make(map[string]int),
		BudgetByType:       make(map[string]Budget),
	}

	var totalBudget, totalSpent float64
	completed := 0
	funnelCounts := make(map[TaskStatus]int)

	for _, t := range tasks {
		d.StatusDistribution[string(t.Status)]++
		totalBudget += t.Budget
		totalSpent += t.SpentBudget

		b := d.BudgetByType[t.TaskType]
		b.Approved += t.Budget
		b.Spent += t.SpentBudget
		b.Count++
		d.BudgetByType[t.TaskType] = b

		if t.Status == TaskCompleted {
			completed++
		}
		if t.atRisk() {
			d.AtRiskTaskIDs = append(d.AtRiskTaskIDs, t.ID)
		}

		reached := reachedStage(t.Status)
		for _, stage := range reached {
			funnelCounts[stage]++
		}
	}

	d.WorkflowFunnel = append(d.WorkflowFunnel, FunnelStage{Stage: "rftps", Count: rftpCount})
	for _, stage := range funnelOrder {
		d.WorkflowFunnel = append(d.WorkflowFunnel, FunnelStage{
			Stage: string(stage),
			Count: funnelCounts[stage],
		})
	}

	sort.Strings(d.AtRiskTaskIDs)

	d.Summary = Summary{
		TotalTasks:     len(tasks),
		TotalRFTPs:     rftpCount,
		CompletedTasks: completed,
		TotalBudget:    totalBudget,
		TotalSpent:     totalSpent,
	}
	if len(tasks) > 0 {
		d.Summary.CompletionRate = float64(completed) / float64(len(tasks))
	}
	if totalBudget > 0 {
		d.Summary.BudgetUtilization = totalSpent / totalBudget
	}

	d.RecentEvents = e.RecentEvents(recentEventLimit)
	return d
}

// reachedStage returns every funnel stage a task's current status has
// progressed through or past, so a completed task counts toward
// proposed/accepted/in_progress/completed alike.
func reachedStage(status TaskStatus) []TaskStatus {
	idx := -1
	for i, s := range funnelOrder {
		if s == status {
			idx = i
			break
		}
	}
	if idx == -1 {
		// terminal statuses outside the happy path (cancelled/terminated/
		// rejected) still count toward whatever stage they reached before
		// branching off; without that information here we count them as
		// having reached only the stages implied by nothing further.
		return nil
	}
	return funnelOrder[:idx+1]
}
