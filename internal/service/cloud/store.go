// Package cloud is the per-user realtime store for metrics and
// questionnaire submissions.
package cloud

import (
	"context"
	"errors"
	"strings"

	"github.com/helpyourself/companion/backend/internal/model/metric"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoMetrics        = errors.New("no metrics recorded")
)

// Store keeps each user's records ordered by timestamp (milliseconds).
type Store interface {
	// SaveMetric appends m. Several metrics may share a timestamp.
	SaveMetric(ctx context.Context, m metric.Metric) error
	// MetricsBetween returns metrics with start <= timestamp <= end,
	// oldest first.
	MetricsBetween(ctx context.Context, userID string, start, end int64) ([]metric.Metric, error)
	LatestMetric(ctx context.Context, userID string) (metric.Metric, error)
	// DeleteMetric removes every metric recorded at timestamp.
	DeleteMetric(ctx context.Context, userID string, timestamp int64) error
	SaveSubmission(ctx context.Context, userID string, sub metric.Submission) error
	// Submissions returns a user's submissions of one type, oldest first.
	Submissions(ctx context.Context, userID, assessmentType string) ([]metric.Submission, error)
	Ping(ctx context.Context) error
	Close() error
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// record wraps a stored metric with an id so equal metrics stay distinct.
type record struct {
	ID string `json:"id"`
	metric.Metric
}
