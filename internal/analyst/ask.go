package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sqlsight/sqlsight/internal/cache"
	"github.com/sqlsight/sqlsight/internal/chart"
	"github.com/sqlsight/sqlsight/internal/events"
	"github.com/sqlsight/sqlsight/internal/history"
	"github.com/sqlsight/sqlsight/internal/insights"
	"github.com/sqlsight/sqlsight/internal/nl2sql"
	"github.com/sqlsight/sqlsight/internal/observability"
	"github.com/sqlsight/sqlsight/internal/sqlguard"
	"github.com/sqlsight/sqlsight/internal/warehouse"
)

const (
	outcomeAnswered = "answered"
	outcomeEmpty    = "empty"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
	outcomeCached   = "cached"
)

type run struct {
	answer      Answer
	outcome     string
	provider    string
	model       string
	corrections int
}

// Ask answers one question. Declined or failed questions are reported in the
// Answer with Success=false; the error is reserved for invalid input.
func (s *Service) Ask(ctx context.Context, q Question) (Answer, error) {
	start := s.now()
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Answer{}, ErrQuestionRequired
	}
	requested, err := chart.ParseType(q.ChartType)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrInvalidChartType, err)
	}

	key := cache.AnswerKey(text, string(requested), s.opts.AllowedTables)
	var r run
	if cached, ok := s.cachedAnswer(ctx, key); ok {
		r = run{answer: cached, outcome: outcomeCached}
	} else {
		answerCtx, cancel := s.answerContext(ctx)
		r = s.answer(answerCtx, text, requested)
		cancel()
		if r.answer.Success {
			if err := s.cache.Set(ctx, key, r.answer, s.opts.AnswerTTL); err != nil {
				s.logger.WarnContext(ctx, "answer cache write failed", slog.Any("error", err))
			}
		}
	}

	r.answer.QueryID = uuid.NewString()
	r.answer.DurationMS = s.now().Sub(start).Milliseconds()
	observability.ObserveQuestion(r.outcome)
	if r.answer.Success {
		observability.ObserveChartServed(string(r.answer.ChartType))
	}
	s.logger.InfoContext(ctx, "question answered",
		slog.String("query_id", r.answer.QueryID),
		slog.String("outcome", r.outcome),
		slog.String("chart_type", string(r.answer.ChartType)),
		slog.Int("row_count", r.answer.RowCount),
		slog.Int("corrections", r.corrections),
		slog.Int64("duration_ms", r.answer.DurationMS),
	)
	s.record(ctx, q, text, requested, r)
	return r.answer, nil
}

func (s *Service) answerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.AnswerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.AnswerTimeout)
}

// Translate returns the agent's SQL for a question without running it.
func (s *Service) Translate(ctx context.Context, question, chartHint string) (Translation, error) {
	text := strings.TrimSpace(question)
	if text == "" {
		return Translation{}, ErrQuestionRequired
	}
	requested, err := chart.ParseType(chartHint)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %v", ErrInvalidChartType, err)
	}
	tables, err := s.schemaContext(ctx)
	if err != nil {
		return Translation{}, err
	}
	res, err := s.translator.Translate(ctx, nl2sql.Request{
		Question:  text,
		ChartHint: string(requested),
		Dialect:   s.warehouse.Dialect(),
		Tables:    tables,
	})
	if err != nil {
		return Translation{}, err
	}
	return Translation{
		SQL:            res.SQL,
		SuggestedChart: res.SuggestedChart,
		Reasoning:      res.Reasoning,
		Provider:       res.Provider,
		Model:          res.Model,
	}, nil
}

func (s *Service) cachedAnswer(ctx context.Context, key string) (Answer, bool) {
	var cached Answer
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "answer cache read failed", slog.Any("error", err))
		found = false
	}
	observability.ObserveCacheLookup("answer", found)
	if !found {
		return Answer{}, false
	}
	cached.Cached = true
	cached.Data.Type = cached.ChartType
	return cached, true
}

func (s *Service) answer(ctx context.Context, question string, requested chart.Type) run {
	tables, err := s.schemaContext(ctx)
	if err != nil {
		return failed(MessageTranslateFailed, err)
	}

	req := nl2sql.Request{
		Question:  question,
		ChartHint: string(requested),
		Dialect:   s.warehouse.Dialect(),
		Tables:    tables,
	}
	res, err := s.translator.Translate(ctx, req)
	if err != nil {
		return failed(MessageTranslateFailed, err)
	}
	r := run{provider: res.Provider, model: res.Model}
	policy := sqlguard.Policy{AllowedTables: s.opts.AllowedTables, Dialect: s.warehouse.Dialect()}

	var result warehouse.Result
	for {
		if err := sqlguard.Validate(res.SQL, policy); err != nil {
			r.outcome = outcomeRejected
			r.answer = Answer{ChartType: chart.TypeTable, Message: MessageNotAllowed, Error: err.Error(), SQL: res.SQL}
			return r
		}
		result, err = s.warehouse.Execute(ctx, warehouse.Request{SQL: res.SQL, RowLimit: s.opts.RowLimit})
		if err == nil {
			break
		}
		if r.corrections >= s.opts.MaxCorrections || ctx.Err() != nil {
			r.outcome = outcomeFailed
			r.answer = Answer{ChartType: chart.TypeTable, Message: MessageExecuteFailed, Error: err.Error(), SQL: res.SQL}
			return r
		}

		r.corrections++
		observability.IncrementSQLCorrection()
		s.logger.InfoContext(ctx, "asking agent to correct sql", slog.Int("attempt", r.corrections), slog.Any("error", err))
		req.PreviousSQL = res.SQL
		req.PreviousError = err.Error()
		corrected, terr := s.translator.Translate(ctx, req)
		if terr != nil {
			r.outcome = outcomeFailed
			r.answer = Answer{ChartType: chart.TypeTable, Message: MessageExecuteFailed, Error: err.Error(), SQL: res.SQL}
			return r
		}
		res = corrected
	}

	rs := chart.ResultSet{Columns: result.Columns, Rows: result.Rows}
	if len(rs.Rows) == 0 {
		r.outcome = outcomeEmpty
		r.answer = Answer{
			Success:   true,
			ChartType: chart.TypeTable,
			Insights:  insights.NoDataMessage,
			Message:   MessageNoData,
			SQL:       res.SQL,
		}
		return r
	}

	chartType := requested
	if chartType == chart.TypeAuto {
		suggested, _ := chart.ParseType(res.SuggestedChart)
		chartType = chart.DetectOr(question, len(rs.Rows), suggested)
	}
	message := MessageSuccess
	payload, err := chart.Format(rs, chartType)
	if err != nil {
		message = fmt.Sprintf("%s (shown as a table: %v)", MessageSuccess, err)
		chartType = chart.TypeTable
		payload, _ = chart.Format(rs, chart.TypeTable)
	}

	text := insights.Fallback(len(rs.Rows), chartType)
	if s.opts.InsightsEnabled {
		text = s.insights.Generate(ctx, question, chartType, rs)
	}

	r.outcome = outcomeAnswered
	r.answer = Answer{
		Success:   true,
		Data:      payload,
		ChartType: chartType,
		Insights:  text,
		Message:   message,
		SQL:       res.SQL,
		RowCount:  len(rs.Rows),
		Truncated: result.Truncated,
	}
	return r
}

func failed(message string, err error) run {
	return run{
		outcome: outcomeFailed,
		answer:  Answer{ChartType: chart.TypeTable, Message: message, Error: err.Error()},
	}
}

func (s *Service) record(ctx context.Context, q Question, text string, requested chart.Type, r run) {
	if s.history != nil {
		_, err := s.history.Record(ctx, history.Entry{
			ID:             r.answer.QueryID,
			Question:       text,
			RequestedChart: string(requested),
			ChartType:      string(r.answer.ChartType),
			SQL:            r.answer.SQL,
			Success:        r.answer.Success,
			Message:        r.answer.Message,
			Error:          r.answer.Error,
			RowCount:       r.answer.RowCount,
			DurationMS:     r.answer.DurationMS,
			Provider:       r.provider,
			Model:          r.model,
			Caller:         q.Caller,
			Cached:         r.answer.Cached,
			Corrections:    r.corrections,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "record query history failed", slog.String("query_id", r.answer.QueryID), slog.Any("error", err))
		}
	}

	err := s.events.PublishAnswered(ctx, events.QuestionAnswered{
		QueryID:    r.answer.QueryID,
		Question:   text,
		ChartType:  string(r.answer.ChartType),
		Success:    r.answer.Success,
		RowCount:   r.answer.RowCount,
		Cached:     r.answer.Cached,
		DurationMS: r.answer.DurationMS,
		Caller:     q.Caller,
		OccurredAt: s.now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "publish answered event failed", slog.String("query_id", r.answer.QueryID), slog.Any("error", err))
	}
}

// History lists recorded questions, newest first.
func (s *Service) History(ctx context.Context, filter history.ListFilter) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, filter)
}

func (s *Service) HistoryEntry(ctx context.Context, id string) (history.Entry, error) {
	if s.history == nil {
		return history.Entry{}, ErrHistoryDisabled
	}
	return s.history.Get(ctx, id)
}
