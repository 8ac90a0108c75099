// Package history records answered questions for later inspection.
package history

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("history: not found")
	ErrInvalidID = errors.New("history: invalid query id")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

type Entry struct {
	ID             string    `json:"query_id"`
	Question       string    `json:"question"`
	RequestedChart string    `json:"requested_chart"`
	ChartType      string    `json:"chart_type"`
	SQL            string    `json:"sql,omitempty"`
	Success        bool      `json:"success"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	RowCount       int       `json:"row_count"`
	DurationMS     int64     `json:"duration_ms"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	Caller         string    `json:"caller,omitempty"`
	Cached         bool      `json:"cached"`
	Corrections    int       `json:"corrections"`
	CreatedAt      time.Time `json:"created_at"`
}

type ListFilter struct {
	Caller string
	Limit  int
}

// NormalizedLimit clamps Limit to (0, MaxListLimit], defaulting to DefaultListLimit.
func (f ListFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

type Store interface {
	HealthCheck(ctx context.Context) error
	Record(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
}
