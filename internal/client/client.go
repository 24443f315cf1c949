// Package client is a typed REST client for the repair center API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/garyjia/repair-center/internal/application/service"
	"github.com/garyjia/repair-center/internal/application/workflow"
	"github.com/garyjia/repair-center/internal/domain/entity"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
)

// ErrUnauthorized is returned when the server rejects the bearer token
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a failed API call. errors.Is matches the sentinel of its kind.
type APIError struct {
	Status    int
	Kind      domainwf.Kind
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// Is maps the remote error kind back onto the domain sentinels
func (e *APIError) Is(target error) bool {
	if e.Kind == "Unauthorized" {
		return target == ErrUnauthorized
	}
	sentinel := domainwf.ErrorForKind(e.Kind)
	return sentinel != nil && sentinel == target
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

// Config holds client settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
}

// Client calls the repair center API
type Client struct {
	http *resty.Client
}

// New creates a client. Requests that lose an optimistic-concurrency race are
// retried up to cfg.Retries times.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL+"/api/v1").
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err == nil && resp.StatusCode() == http.StatusConflict && isRetryable(resp)
		})
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	return &Client{http: rc}
}

func isRetryable(resp *resty.Response) bool {
	var env envelope[any]
	if err := json.Unmarshal(resp.Body(), &env); err != nil || env.Error == nil {
		return false
	}
	return env.Error.Retryable
}

// do sends a request and decodes the envelope's data into T
func do[T any](ctx context.Context, c *Client, method, path string, body interface{}, query map[string]string) (T, error) {
	var zero T
	var env envelope[T]

	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return zero, fmt.Errorf("%s %s: unexpected response (%d): %w", method, path, resp.StatusCode(), err)
	}

	if !env.Success || resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode(), Kind: domainwf.KindInternal, Message: resp.Status()}
		if env.Error != nil {
			apiErr.Kind = domainwf.Kind(env.Error.Kind)
			apiErr.Message = env.Error.Message
			apiErr.Retryable = env.Error.Retryable
		}
		return env.Data, apiErr
	}
	return env.Data, nil
}

// TransitionRequest mirrors the server's transition body
type TransitionRequest struct {
	Action  domainwf.Action  `json:"action"`
	Payload workflow.Payload `json:"payload"`
	Version *int64           `json:"version,omitempty"`
}

// Receive registers a machine arriving at the center
func (c *Client) Receive(ctx context.Context, in entity.ReceiveInput) (*service.Outcome, error) {
	return do[*service.Outcome](ctx, c, http.MethodPost, "/workflow", in, nil)
}

// Transition applies an action to an instance
func (c *Client) Transition(ctx context.Context, instanceID int64, req TransitionRequest) (*service.Outcome, error) {
	return do[*service.Outcome](ctx, c, http.MethodPost, "/workflow/"+id(instanceID)+"/transition", req, nil)
}

// GetInstance fetches one instance
func (c *Client) GetInstance(ctx context.Context, instanceID int64) (*entity.WorkflowInstance, error) {
	return do[*entity.WorkflowInstance](ctx, c, http.MethodGet, "/workflow/"+id(instanceID), nil, nil)
}

// ListInstances lists instances visible to the caller
func (c *Client) ListInstances(ctx context.Context, filter entity.InstanceFilter) ([]*entity.WorkflowInstance, error) {
	q := pageQuery(filter.Limit, filter.Offset)
	setIf(q, "status", string(filter.Status))
	setIf(q, "branchId", filter.BranchID)
	setIf(q, "serial", filter.Serial)
	return do[[]*entity.WorkflowInstance](ctx, c, http.MethodGet, "/workflow", nil, q)
}

// GetLog fetches an instance's transition log
func (c *Client) GetLog(ctx context.Context, instanceID int64) ([]*entity.TransitionLogEntry, error) {
	return do[[]*entity.TransitionLogEntry](ctx, c, http.MethodGet, "/workflow/"+id(instanceID)+"/log", nil, nil)
}

// Approve accepts a pending cost approval
func (c *Client) Approve(ctx context.Context, approvalID int64) (*service.Outcome, error) {
	return do[*service.Outcome](ctx, c, http.MethodPost, "/approvals/"+id(approvalID)+"/approve", nil, nil)
}

// Reject declines a pending cost approval
func (c *Client) Reject(ctx context.Context, approvalID int64, reason string) (*service.Outcome, error) {
	body := map[string]string{"reason": reason}
	return do[*service.Outcome](ctx, c, http.MethodPost, "/approvals/"+id(approvalID)+"/reject", body, nil)
}

// GetApproval fetches one approval request
func (c *Client) GetApproval(ctx context.Context, approvalID int64) (*entity.ApprovalRequest, error) {
	return do[*entity.ApprovalRequest](ctx, c, http.MethodGet, "/approvals/"+id(approvalID), nil, nil)
}

// ListApprovals lists approval requests visible to the caller
func (c *Client) ListApprovals(ctx context.Context, filter entity.ApprovalFilter) ([]*entity.ApprovalRequest, error) {
	q := pageQuery(filter.Limit, filter.Offset)
	setIf(q, "status", string(filter.Status))
	setIf(q, "branchId", filter.BranchID)
	if filter.AssignmentID != 0 {
		q["instanceId"] = id(filter.AssignmentID)
	}
	return do[[]*entity.ApprovalRequest](ctx, c, http.MethodGet, "/approvals", nil, q)
}

// Settle records the payment of a pending payment
func (c *Client) Settle(ctx context.Context, paymentID int64, receiptNumber string, place entity.PaymentPlace) (*entity.PendingPayment, error) {
	body := map[string]string{"receiptNumber": receiptNumber, "paymentPlace": string(place)}
	return do[*entity.PendingPayment](ctx, c, http.MethodPut, "/payments/"+id(paymentID)+"/settle", body, nil)
}

// GetPayment fetches one payment
func (c *Client) GetPayment(ctx context.Context, paymentID int64) (*entity.PendingPayment, error) {
	return do[*entity.PendingPayment](ctx, c, http.MethodGet, "/payments/"+id(paymentID), nil, nil)
}

// ListPayments lists payments visible to the caller
func (c *Client) ListPayments(ctx context.Context, filter entity.PaymentFilter) ([]*entity.PendingPayment, error) {
	q := pageQuery(filter.Limit, filter.Offset)
	setIf(q, "status", string(filter.Status))
	setIf(q, "branchId", filter.BranchID)
	if filter.From != nil {
		q["from"] = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		q["to"] = filter.To.UTC().Format(time.RFC3339)
	}
	return do[[]*entity.PendingPayment](ctx, c, http.MethodGet, "/payments", nil, q)
}

// Summary fetches payment totals for a scope and period. A zero at means now.
func (c *Client) Summary(ctx context.Context, scope entity.Scope, period entity.Period, at time.Time) (*entity.Summary, error) {
	q := map[string]string{}
	setIf(q, "scope", string(scope))
	setIf(q, "period", string(period))
	if !at.IsZero() {
		q["at"] = at.UTC().Format(time.RFC3339)
	}
	return do[*entity.Summary](ctx, c, http.MethodGet, "/payments/summary", nil, q)
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func pageQuery(limit, offset int) map[string]string {
	q := map[string]string{}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	if offset > 0 {
		q["offset"] = strconv.Itoa(offset)
	}
	return q
}

func setIf(q map[string]string, key, value string) {
	if value != "" {
		q[key] = value
	}
}
