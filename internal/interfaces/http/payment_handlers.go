package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// SettleRequest is the body of PUT /payments/:id/settle
type SettleRequest struct {
	ReceiptNumber string `json:"receiptNumber" binding:"required"`
	PaymentPlace  string `json:"paymentPlace" binding:"required"`
}

// ListPayments handles GET /api/v1/payments
func (h *Handlers) ListPayments(c *gin.Context) {
	limit, offset, valid := h.page(c)
	if !valid {
		return
	}

	filter := entity.PaymentFilter{
		BranchID: c.Query("branchId"),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("status"); raw != "" {
		status := entity.PaymentStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			badRequest(c, "unknown payment status "+strconv.Quote(raw))
			return
		}
		filter.Status = status
	}
	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			badRequest(c, "invalid "+param+" "+strconv.Quote(raw))
			return
		}
		*dst = &t
	}

	payments, err := h.services.Ledger.List(c.Request.Context(), filter, h.actor(c))
	if err != nil {
		h.writeError(c, "List payments", err)
		return
	}
	if payments == nil {
		payments = []*entity.PendingPayment{}
	}
	respond(c, http.StatusOK, payments)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	payment, err := h.services.Ledger.Get(c.Request.Context(), id, h.actor(c))
	if err != nil {
		h.writeError(c, "Get payment", err)
		return
	}
	respond(c, http.StatusOK, payment)
}

// SettlePayment handles PUT /api/v1/payments/:id/settle.
// Replaying a settlement with the same receipt answers 200 with the stored payment.
func (h *Handlers) SettlePayment(c *gin.Context) {
	id, valid := h.paramID(c)
	if !valid {
		return
	}

	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	place := entity.PaymentPlace(strings.ToUpper(strings.TrimSpace(req.PaymentPlace)))
	payment, err := h.services.Ledger.Settle(c.Request.Context(), id, req.ReceiptNumber, place, h.actor(c))
	if err != nil {
		if errors.Is(err, domainwf.ErrAlreadySettled) && payment != nil {
			respond(c, http.StatusOK, payment)
			return
		}
		h.writeError(c, "Settle payment", err)
		return
	}
	respond(c, http.StatusOK, payment)
}

// PaymentSummary handles GET /api/v1/payments/summary
func (h *Handlers) PaymentSummary(c *gin.Context) {
	scope := entity.Scope(c.DefaultQuery("scope", entity.ScopeAll))

	period, err := entity.ParsePeriod(c.DefaultQuery("period", string(entity.PeriodMonth)))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var at time.Time
	if raw := c.Query("at"); raw != "" {
		if at, err = parseTime(raw); err != nil {
			badRequest(c, "invalid at "+strconv.Quote(raw))
			return
		}
	}

	summary, err := h.services.Ledger.Summary(c.Request.Context(), scope, period, at, h.actor(c))
	if err != nil {
		h.writeError(c, "Payment summary", err)
		return
	}
	respond(c, http.StatusOK, summary)
}
