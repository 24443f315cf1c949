package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// TransitionRequest is the body of POST /workflow/:id/transition
type TransitionRequest struct {
	Action  string           `json:"action" binding:"required"`
	Payload workflow.Payload `json:"payload"`
	Version *int64           `json:"version,omitempty"`
}

// ReceiveMachine handles POST /api/v1/workflow
func (h *Handlers) ReceiveMachine(c *gin.Context) {
	var in entity.ReceiveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	outcome, err := h.services.Workflow.Receive(c.Request.Context(), in, h.actor(c))
	if err != nil {
		h.writeError(c, "Receive machine", err)
		return
	}
	respond(c, http.StatusCreated, outcome)
}

// ListInstances handles GET /api/v1/workflow
func (h *Handlers) ListInstances(c *gin.Context) {
	limit, offset, valid := h.page(c)
	if !valid {
		return
	}

	filter := entity.InstanceFilter{
		BranchID: c.Query("branchId"),
		Serial:   c.Query("serial"),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("status"); raw != "" {
		state, err := domainwf.ParseState(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Status = state
	}

	instances, err := h.services.Workflow.ListInstances(c.Request.Context(), filter, h.actor(c))
	if err != nil {
		h.writeError(c, "List instances", err)
		return
	}
	if instances == nil {
		instances = []*entity.WorkflowInstance{}
	}
	respond(c, http.StatusOK, instances)
}

// GetInstance handles GET /api/v1/workflow/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	inst, err := h.services.Workflow.GetInstance(c.Request.Context(), id, h.actor(c))
	if err != nil {
		h.writeError(c, "Get instance", err)
		return
	}
	respond(c, http.StatusOK, inst)
}

// GetLog handles GET /api/v1/workflow/:id/log
func (h *Handlers) GetLog(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	entries, err := h.services.Workflow.GetLog(c.Request.Context(), id, h.actor(c))
	if err != nil {
		h.writeError(c, "Get transition log", err)
		return
	}
	if entries == nil {
		entries = []*entity.TransitionLogEntry{}
	}
	respond(c, http.StatusOK, entries)
}

// Transition handles POST /api/v1/workflow/:id/transition
func (h *Handlers) Transition(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	cmd := workflow.Command{
		InstanceID:      id,
		Action:          domainwf.Action(strings.ToUpper(strings.TrimSpace(req.Action))),
		Payload:         req.Payload,
		Actor:           h.actor(c),
		ExpectedVersion: req.Version,
	}

	outcome, err := h.services.Workflow.Transition(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, "Transition", err)
		return
	}
	respond(c, http.StatusOK, outcome)
}
