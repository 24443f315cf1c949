package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/repair-center/internal/domain/entity"
)

// DecisionRequest is the optional body of approve and reject
type DecisionRequest struct {
	Reason string `json:"reason"`
}

// ListApprovals handles GET /api/v1/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	limit, offset, valid := h.page(c)
	if !valid {
		return
	}

	filter := entity.ApprovalFilter{
		BranchID: c.Query("branchId"),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("status"); raw != "" {
		status := entity.ApprovalStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			badRequest(c, "unknown approval status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}
	if raw := c.Query("instanceId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid instanceId")
			return
		}
		filter.AssignmentID = id
	}

	requests, err := h.services.Approvals.List(c.Request.Context(), filter, h.actor(c))
	if err != nil {
		h.writeError(c, "List approvals", err)
		return
	}
	if requests == nil {
		requests = []*entity.ApprovalRequest{}
	}
	respond(c, http.StatusOK, requests)
}

// GetApproval handles GET /api/v1/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	req, err := h.services.Approvals.Get(c.Request.Context(), id, h.actor(c))
	if err != nil {
		h.writeError(c, "Get approval", err)
		return
	}
	respond(c, http.StatusOK, req)
}

// ApproveRequest handles POST /api/v1/approvals/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	h.decide(c, entity.DecisionApprove)
}

// RejectRequest handles POST /api/v1/approvals/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	h.decide(c, entity.DecisionReject)
}

func (h *Handlers) decide(c *gin.Context, decision entity.Decision) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	var body DecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	outcome, err := h.services.Approvals.Resolve(c.Request.Context(), id, decision, body.Reason, h.actor(c))
	if err != nil {
		h.writeError(c, "Resolve approval", err)
		return
	}
	respond(c, http.StatusOK, outcome)
}
