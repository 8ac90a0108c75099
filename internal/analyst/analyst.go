// Package analyst answers natural-language questions: it asks the agent for
// SQL, runs the statement against the warehouse and shapes the rows for a
// chart.
package analyst

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlsight/sqlsight/internal/cache"
	"github.com/sqlsight/sqlsight/internal/chart"
	"github.com/sqlsight/sqlsight/internal/events"
	"github.com/sqlsight/sqlsight/internal/history"
	"github.com/sqlsight/sqlsight/internal/insights"
	"github.com/sqlsight/sqlsight/internal/nl2sql"
	"github.com/sqlsight/sqlsight/internal/warehouse"
)

var (
	ErrQuestionRequired = errors.New("question is required")
	ErrInvalidChartType = errors.New("invalid chart type")
	ErrHistoryDisabled  = errors.New("query history is not enabled")
)

const (
	MessageSuccess         = "Query executed successfully"
	MessageNoData          = "Query executed successfully but returned no data"
	MessageTranslateFailed = "Failed to generate SQL query"
	MessageNotAllowed      = "Only read-only SELECT queries on the allowed tables are permitted"
	MessageExecuteFailed   = "Failed to execute query"

	schemaUnavailable = "Schema information not available"
)

type Question struct {
	Text      string
	ChartType string
	// Caller identifies the principal asking, recorded in history.
	Caller string
}

// Answer is the chart-ready response to one question.
type Answer struct {
	Success    bool          `json:"success"`
	Data       chart.Payload `json:"data"`
	ChartType  chart.Type    `json:"chart_type"`
	Insights   string        `json:"insights,omitempty"`
	Message    string        `json:"message"`
	Error      string        `json:"error,omitempty"`
	SQL        string        `json:"sql,omitempty"`
	QueryID    string        `json:"query_id,omitempty"`
	RowCount   int           `json:"row_count"`
	Truncated  bool          `json:"truncated"`
	Cached     bool          `json:"cached"`
	DurationMS int64         `json:"duration_ms"`
}

type DatabaseInfo struct {
	Tables       []string          `json:"tables"`
	TableSchemas map[string]string `json:"table_schemas"`
}

type Translation struct {
	SQL            string `json:"sql"`
	SuggestedChart string `json:"suggested_chart,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

type Dependencies struct {
	Warehouse  warehouse.Warehouse
	Translator nl2sql.Translator
	// Insights may be nil; answers then carry the statistical fallback text.
	Insights *insights.Generator
	Cache    cache.Cache
	History  history.Store
	Events   events.Publisher
	Logger   *slog.Logger
}

type Options struct {
	AllowedTables   []string
	RowLimit        int
	MaxCorrections  int
	SampleRows      int
	SchemaFanout    int
	AnswerTTL       time.Duration
	SchemaTTL       time.Duration
	InsightsEnabled bool
	// AnswerTimeout bounds schema lookup, translation, execution and
	// corrections for one question. Zero leaves the caller's deadline alone.
	AnswerTimeout time.Duration
	// TableNotes adds domain hints per table to the agent's schema context.
	TableNotes map[string]string
}

type Service struct {
	warehouse  warehouse.Warehouse
	translator nl2sql.Translator
	insights   *insights.Generator
	cache      cache.Cache
	history    history.Store
	events     events.Publisher
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

func New(deps Dependencies, opts Options) (*Service, error) {
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("warehouse is required")
	}
	if deps.Translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Events == nil {
		deps.Events = events.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = 1000
	}
	if opts.MaxCorrections < 0 {
		opts.MaxCorrections = 0
	}
	if opts.SchemaFanout <= 0 {
		opts.SchemaFanout = 4
	}
	if opts.TableNotes == nil {
		opts.TableNotes = DefaultTableNotes()
	}
	allowed := make([]string, 0, len(opts.AllowedTables))
	for _, table := range opts.AllowedTables {
		if table = strings.TrimSpace(table); table != "" {
			allowed = append(allowed, table)
		}
	}
	opts.AllowedTables = allowed

	return &Service{
		warehouse:  deps.Warehouse,
		translator: deps.Translator,
		insights:   deps.Insights,
		cache:      deps.Cache,
		history:    deps.History,
		events:     deps.Events,
		logger:     deps.Logger,
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Dialect is the SQL dialect of the configured warehouse.
func (s *Service) Dialect() string {
	return s.warehouse.Dialect()
}
