package stats

import (
	"time"

	"taskboard/internal/models"
)

// AnalyticsStatus tags whether an analytics series carries real data.
type AnalyticsStatus string

const (
	AnalyticsOK             AnalyticsStatus = "ok"
	AnalyticsNotImplemented AnalyticsStatus = "not_implemented"
)

// AnalyticsTrend is a completion-rate series over an arbitrary range.
type AnalyticsTrend struct {
	Status    AnalyticsStatus `json:"status"`
	RangeDays int             `json:"range_days"`
	From      models.Date     `json:"from"`
	To        models.Date     `json:"to"`
	Points    []float64       `json:"points"`
	Reason    string          `json:"reason,omitempty"`
}

// CompletionTrend would chart completion rate over the last days days.
// Task records carry no history beyond their current state, so the series
// cannot be derived; the result is tagged not_implemented and has no points.
func CompletionTrend(_ []models.Task, now time.Time, days int) AnalyticsTrend {
	if days <= 0 {
		days = TrendDays
	}
	today := models.DateOf(now)
	return AnalyticsTrend{
		Status:    AnalyticsNotImplemented,
		RangeDays: days,
		From:      today.AddDays(-(days - 1)),
		To:        today,
		Reason:    "completion history is not recorded",
	}
}
