package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/security"
	"github.com/quantedge/access-layer/internal/taskworkflow"
)

func writeGinError(c *gin.Context, status int, code, message string) {
	// §4.5: 5xx responses never leak internal detail back to the caller.
	if status >= 500 {
		message = security.SanitizeString(message)
	}
	c.JSON(status, gin.H{
		"trace_id": c.Writer.Header().Get("X-Request-Id"),
		"code":     code,
		"message":  message,
		"details":  gin.H{},
	})
}

func writeHTTPErrorGin(c *gin.Context, err error) {
	if svcErr := accesserrors.GetServiceError(err); svcErr != nil {
		writeGinError(c, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message)
		return
	}
	writeGinError(c, http.StatusInternalServerError, string(accesserrors.InternalError), "internal server error")
}

type createRFTPRequest struct {
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description"`
	TaskType       string  `json:"task_type" binding:"required"`
	Jurisdiction   string  `json:"jurisdiction"`
	EstimatedHours int     `json:"estimated_hours"`
	BudgetCeiling  float64 `json:"budget_ceiling"`
	Priority       string  `json:"priority"`
	DueDate        string  `json:"due_date"`
}

func (s *server) createRFTP(c *gin.Context) {
	var req createRFTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGinError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	requestedBy := ""
	if info := userInfoFromContext(c); info != nil {
		requestedBy = info.Subject
	}

	rftp, err := s.engine.CreateRFTP(c.Request.Context(), taskworkflow.RFTPInput{
		Title:          req.Title,
		Description:    req.Description,
		TaskType:       req.TaskType,
		Jurisdiction:   req.Jurisdiction,
		EstimatedHours: req.EstimatedHours,
		BudgetCeiling:  req.BudgetCeiling,
		RequestedBy:    requestedBy,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
	})
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusCreated, rftp)
}

func (s *server) getRFTP(c *gin.Context) {
	rftp, err := s.engine.GetRFTP(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, rftp)
}

func (s *server) listRFTPs(c *gin.Context) {
	rftps := s.engine.ListRFTPs(c.Request.Context(), c.Query("status"), c.Query("task_type"))
	c.JSON(http.StatusOK, gin.H{"rftps": rftps, "count": len(rftps)})
}

type createProposalRequest struct {
	ID                   string            `json:"proposal_id"`
	RFTPID               string            `json:"rftp_id" binding:"required"`
	ProposedHours        int               `json:"proposed_hours"`
	ProposedBudget       float64           `json:"proposed_budget"`
	ProposedDeliverables []string          `json:"proposed_deliverables"`
	ProposedTimeline     map[string]string `json:"proposed_timeline"`
	TechnicalApproach    string            `json:"technical_approach"`
	Assumptions          []string          `json:"assumptions"`
	Risks                []string          `json:"risks"`
}

func (s *server) createProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGinError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	createdBy := ""
	if info := userInfoFromContext(c); info != nil {
		createdBy = info.Subject
	}

	proposal, task, err := s.engine.CreateProposal(c.Request.Context(), taskworkflow.ProposalInput{
		ID:                   req.ID,
		RFTPID:               req.RFTPID,
		ProposedHours:        req.ProposedHours,
		ProposedBudget:       req.ProposedBudget,
		ProposedDeliverables: req.ProposedDeliverables,
		ProposedTimeline:     req.ProposedTimeline,
		TechnicalApproach:    req.TechnicalApproach,
		Assumptions:          req.Assumptions,
		Risks:                req.Risks,
		CreatedBy:            createdBy,
	})
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"proposal": proposal, "task": task})
}

func (s *server) getProposal(c *gin.Context) {
	proposal, err := s.engine.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

func (s *server) listTasks(c *gin.Context) {
	tasks := s.engine.ListTasks(c.Request.Context(), c.Query("status"), c.Query("task_type"), c.Query("assigned_to"))
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *server) getTask(c *gin.Context) {
	task, err := s.engine.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type approveTaskRequest struct {
	ApprovedBudget float64 `json:"approved_budget" binding:"required"`
	ApprovedHours  int     `json:"approved_hours" binding:"required"`
}

func (s *server) approveTask(c *gin.Context) {
	var req approveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGinError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	approvedBy := ""
	if info := userInfoFromContext(c); info != nil {
		approvedBy = info.Subject
	}

	task, err := s.engine.ApproveTask(c.Request.Context(), c.Param("id"), taskworkflow.ApprovalInput{
		ApprovedBy:     approvedBy,
		ApprovedBudget: req.ApprovedBudget,
		ApprovedHours:  req.ApprovedHours,
	})
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type startTaskRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

func (s *server) startTask(c *gin.Context) {
	var req startTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGinError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	task, err := s.engine.StartTask(c.Request.Context(), c.Param("id"), req.AssignedTo)
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type progressRequest struct {
	ProgressPercentage *int     `json:"progress_percentage"`
	SpentHours         *float64 `json:"spent_hours"`
	SpentBudget        *float64 `json:"spent_budget"`
}

func (s *server) updateProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeGinError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	task, updated, err := s.engine.UpdateProgress(c.Request.Context(), c.Param("id"), taskworkflow.ProgressInput{
		ProgressPercentage: req.ProgressPercentage,
		SpentHours:         req.SpentHours,
		SpentBudget:        req.SpentBudget,
	})
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "updated": updated})
}

type completeTaskRequest struct {
	Artifacts []interface{} `json:"artifacts"`
}

func (s *server) completeTask(c *gin.Context) {
	var req completeTaskRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.engine.CompleteTask(c.Request.Context(), c.Param("id"), req.Artifacts)
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *server) cancelTask(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.engine.CancelTask(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *server) terminateTask(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.engine.TerminateTask(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *server) rejectTask(c *gin.Context) {
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	task, err := s.engine.RejectTask(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeHTTPErrorGin(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *server) dashboard(c *gin.Context) {
	d := s.engine.Dashboard(s.cfg.DashboardRecentEvents)
	c.JSON(http.StatusOK, d)
}
