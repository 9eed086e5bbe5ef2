/**
 * @description
 * Domain models for the billing analytics endpoint: the validated query
 * schema, the computed report, and the authenticated identity that scopes
 * cache entries.
 */

package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Roles resolved by the authentication middleware.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleTenant  = "TENANT"
)

// Identity is the result of authenticating a request: who is asking, and in
// what role. Every authenticated handler receives one from the middleware.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Analytics query enumerations.
const (
	DateRangeLast30Days = "last_30_days"
	DateRangeLast90Days = "last_90_days"
	DateRangeYearToDate = "year_to_date"
	DateRangeCustom     = "custom"

	GroupByMonth       = "month"
	GroupByProperty    = "property"
	GroupByPaymentType = "payment_type"

	MetricTotalCollected = "total_collected"
	MetricPaymentCount   = "payment_count"
	MetricFailedCount    = "failed_count"
	MetricPendingAmount  = "pending_amount"
)

var (
	ErrInvalidDateRange   = errors.New("invalid date_range")
	ErrInvalidGroupBy     = errors.New("invalid group_by")
	ErrInvalidMetric      = errors.New("invalid metric")
	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidPropertyID  = errors.New("invalid property_id")
	ErrMissingCustomDates = errors.New("custom date_range requires start_date and end_date")
)

// AnalyticsQuery is the validated parameter set for the analytics endpoint.
// Dates use the YYYY-MM-DD wire format.
type AnalyticsQuery struct {
	DateRange  string   `json:"date_range,omitempty"`
	StartDate  string   `json:"start_date,omitempty"`
	EndDate    string   `json:"end_date,omitempty"`
	PropertyID string   `json:"property_id,omitempty"`
	GroupBy    string   `json:"group_by,omitempty"`
	Metrics    []string `json:"metrics,omitempty"`
}

const dateLayout = "2006-01-02"

// Normalize applies defaults and puts the query into canonical form so that
// equivalent queries serialize identically for cache keying.
func (q AnalyticsQuery) Normalize() AnalyticsQuery {
	if q.DateRange == "" {
		q.DateRange = DateRangeLast30Days
	}
	if q.GroupBy == "" {
		q.GroupBy = GroupByMonth
	}
	if len(q.Metrics) == 0 {
		q.Metrics = []string{MetricTotalCollected, MetricPaymentCount}
	}
	metrics := append([]string(nil), q.Metrics...)
	sort.Strings(metrics)
	q.Metrics = metrics
	return q
}

// Validate checks every field against its enumerated schema. It expects a
// normalized query.
func (q AnalyticsQuery) Validate() error {
	switch q.DateRange {
	case DateRangeLast30Days, DateRangeLast90Days, DateRangeYearToDate:
	case DateRangeCustom:
		if q.StartDate == "" || q.EndDate == "" {
			return ErrMissingCustomDates
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDateRange, q.DateRange)
	}

	for _, d := range []string{q.StartDate, q.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, d)
		}
	}

	if q.PropertyID != "" {
		if _, err := uuid.Parse(q.PropertyID); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPropertyID, q.PropertyID)
		}
	}

	switch q.GroupBy {
	case GroupByMonth, GroupByProperty, GroupByPaymentType:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGroupBy, q.GroupBy)
	}

	for _, m := range q.Metrics {
		switch m {
		case MetricTotalCollected, MetricPaymentCount, MetricFailedCount, MetricPendingAmount:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMetric, m)
		}
	}

	return nil
}

// Window resolves the query's date range into a concrete [from, to) interval.
func (q AnalyticsQuery) Window(now time.Time) (time.Time, time.Time, error) {
	switch q.DateRange {
	case DateRangeLast30Days:
		return now.AddDate(0, 0, -30), now, nil
	case DateRangeLast90Days:
		return now.AddDate(0, 0, -90), now, nil
	case DateRangeYearToDate:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), now, nil
	case DateRangeCustom:
		from, err := time.Parse(dateLayout, q.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, q.StartDate)
		}
		to, err := time.Parse(dateLayout, q.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, q.EndDate)
		}
		// End date is inclusive on the wire.
		return from, to.AddDate(0, 0, 1), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateRange, q.DateRange)
}

// AnalyticsGroup is one aggregation bucket of the report.
type AnalyticsGroup struct {
	Key            string `json:"key"`
	TotalCollected int64  `json:"total_collected"`
	PaymentCount   int64  `json:"payment_count"`
	FailedCount    int64  `json:"failed_count"`
	PendingAmount  int64  `json:"pending_amount"`
}

// AnalyticsReport is the computed aggregate returned by the analytics
// endpoint and stored in the result cache.
type AnalyticsReport struct {
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	GroupBy    string           `json:"group_by"`
	Groups     []AnalyticsGroup `json:"groups"`
	ComputedAt time.Time        `json:"computed_at"`
}
