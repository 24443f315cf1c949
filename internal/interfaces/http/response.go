package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

const kindUnauthorized = "Unauthorized"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	From      string `json:"from,omitempty"`
	Action    string `json:"action,omitempty"`
}

var kindStatus = map[domainwf.Kind]int{
	domainwf.KindInvalidTransition:        http.StatusConflict,
	domainwf.KindApprovalPending:          http.StatusConflict,
	domainwf.KindDuplicatePendingApproval: http.StatusConflict,
	domainwf.KindAlreadyResolved:          http.StatusConflict,
	domainwf.KindAlreadySettled:           http.StatusConflict,
	domainwf.KindConcurrentModification:   http.StatusConflict,
	domainwf.KindReceiptNumberConflict:    http.StatusConflict,
	domainwf.KindMachineAlreadyActive:     http.StatusConflict,
	domainwf.KindNotFound:                 http.StatusNotFound,
	domainwf.KindValidation:               http.StatusBadRequest,
	domainwf.KindForbidden:                http.StatusForbidden,
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind domainwf.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func abortWith(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &ErrorBody{Kind: kind, Message: message},
	})
}

// writeError renders a service error. Internal errors are logged and not echoed.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	kind := domainwf.KindOf(err)
	status := StatusForKind(kind)

	body := &ErrorBody{
		Kind:      string(kind),
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}
	var te *domainwf.TransitionError
	if errors.As(err, &te) {
		body.From = string(te.From)
		body.Action = string(te.Action)
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err, "request_id", c.GetString(ctxRequestID))
		body.Message = "internal error"
	}

	c.JSON(status, Response{Success: false, Error: body})
}
