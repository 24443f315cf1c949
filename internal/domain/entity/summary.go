package entity

import (
	"strings"
	"time"
)

// Period is the reporting window used by payment summaries
type Period string

const (
	PeriodDay     Period = "day"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

// ParsePeriod parses a period name, case-insensitively
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PeriodDay, PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	default:
		return "", validationError("unknown period %q", s)
	}
}

// Window returns the half-open [start, end) range of the period containing at
func (p Period) Window(at time.Time) (time.Time, time.Time) {
	loc := at.Location()
	y, m, d := at.Date()

	switch p {
	case PeriodDay:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case PeriodQuarter:
		first := time.Month((int(m)-1)/3*3 + 1)
		start := time.Date(y, first, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 3, 0)
	default:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
}

// ScopeAll selects payments of every branch
const ScopeAll = "all"

// Scope selects the payments a summary covers: all, or those touching one branch
type Scope string

// Matches reports whether a payment falls inside the scope
func (s Scope) Matches(p *PendingPayment) bool {
	if s == "" || s == ScopeAll {
		return true
	}
	return p.BelongsTo(string(s))
}

// StatusTotals is the count and amount of payments in one status
type StatusTotals struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// Summary is the ledger view for a scope and period
type Summary struct {
	Scope   Scope        `json:"scope"`
	Period  Period       `json:"period"`
	From    time.Time    `json:"from"`
	To      time.Time    `json:"to"`
	Pending StatusTotals `json:"pending"`
	Paid    StatusTotals `json:"paid"`
	Total   StatusTotals `json:"total"`
}

// Summarize folds payments created inside the period window into per-status totals.
// It has no side effects and ignores payments outside the scope or window.
func Summarize(payments []*PendingPayment, scope Scope, period Period, at time.Time) Summary {
	from, to := period.Window(at)
	sum := Summary{Scope: scope, Period: period, From: from, To: to}

	for _, p := range payments {
		if !scope.Matches(p) {
			continue
		}
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}

		switch p.Status {
		case PaymentStatusPaid:
			sum.Paid.Count++
			sum.Paid.Amount += p.Amount
		default:
			sum.Pending.Count++
			sum.Pending.Amount += p.Amount
		}
		sum.Total.Count++
		sum.Total.Amount += p.Amount
	}

	return sum
}
