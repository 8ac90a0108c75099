// Package insights writes a short narrative about a query result, backed by
// a statistical summary so something useful is returned when the LLM is
// unavailable.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sqlsight/sqlsight/internal/chart"
	"github.com/sqlsight/sqlsight/internal/llm"
)

const NoDataMessage = "No data found matching your query criteria."

type ColumnStats struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

type Summary struct {
	Records    int           `json:"records"`
	Columns    int           `json:"columns"`
	Numeric    []ColumnStats `json:"numeric"`
	TopLabel   string        `json:"top_label,omitempty"`
	TopValue   float64       `json:"top_value,omitempty"`
	LabelField string        `json:"label_field,omitempty"`
}

// Summarize computes totals and extremes for numeric columns, and the label
// of the row holding the largest value of the first numeric column.
func Summarize(rs chart.ResultSet) Summary {
	summary := Summary{Records: len(rs.Rows), Columns: len(rs.Columns)}
	numericCols := make([]int, 0)
	textCol := -1
	for i := range rs.Columns {
		if isNumericColumn(rs, i) {
			numericCols = append(numericCols, i)
		} else if textCol < 0 {
			textCol = i
		}
	}

	for _, col := range numericCols {
		stats := ColumnStats{Name: rs.Columns[col], Max: math.Inf(-1), Min: math.Inf(1)}
		count := 0
		for _, row := range rs.Rows {
			v, ok := toNumber(row, col)
			if !ok {
				continue
			}
			count++
			stats.Total += v
			stats.Max = math.Max(stats.Max, v)
			stats.Min = math.Min(stats.Min, v)
		}
		if count == 0 {
			continue
		}
		stats.Avg = stats.Total / float64(count)
		summary.Numeric = append(summary.Numeric, stats)
	}

	if textCol >= 0 && len(numericCols) > 0 && len(rs.Rows) > 1 {
		best := math.Inf(-1)
		for _, row := range rs.Rows {
			v, ok := toNumber(row, numericCols[0])
			if !ok || v <= best {
				continue
			}
			best = v
			summary.TopLabel = fmt.Sprint(cellString(row, textCol))
			summary.TopValue = v
			summary.LabelField = rs.Columns[textCol]
		}
	}
	return summary
}

// Text renders the summary the way it is handed to the model.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data contains %d records with %d columns. ", s.Records, s.Columns)
	for _, stats := range s.Numeric {
		fmt.Fprintf(&b, "%s: Total=%s, Average=%.1f, Max=%s, Min=%s. ",
			stats.Name, formatWhole(stats.Total), stats.Avg, formatWhole(stats.Max), formatWhole(stats.Min))
	}
	if s.TopLabel != "" {
		fmt.Fprintf(&b, "Highest value: %s with %s. ", s.TopLabel, formatWhole(s.TopValue))
	}
	return strings.TrimSpace(b.String())
}

// Fallback is the insight used when the model cannot be reached.
func Fallback(records int, chartType chart.Type) string {
	return fmt.Sprintf("Data shows %d records. Chart type '%s' is suitable for visualizing this data distribution.", records, chartType)
}

type Generator struct {
	completer llm.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGenerator returns a generator; a nil completer always yields the
// fallback text.
func NewGenerator(completer llm.Completer, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, timeout: timeout, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, question string, chartType chart.Type, rs chart.ResultSet) string {
	if len(rs.Rows) == 0 {
		return NoDataMessage
	}
	if g == nil || g.completer == nil {
		return Fallback(len(rs.Rows), chartType)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	completion, err := g.completer.Complete(ctx, llm.Prompt{User: buildPrompt(question, chartType, rs)})
	if err != nil {
		g.logger.WarnContext(ctx, "insight generation failed", slog.Any("error", err))
		return Fallback(len(rs.Rows), chartType)
	}
	return strings.TrimSpace(completion.Text)
}

func buildPrompt(question string, chartType chart.Type, rs chart.ResultSet) string {
	var sample strings.Builder
	sample.WriteString(strings.Join(rs.Columns, " | "))
	sample.WriteByte('\n')
	for i, row := range rs.Rows {
		if i == 3 {
			break
		}
		cells := make([]string, len(row))
		for j := range row {
			cells[j] = fmt.Sprint(cellString(row, j))
		}
		sample.WriteString(strings.Join(cells, " | "))
		sample.WriteByte('\n')
	}

	return fmt.Sprintf(`Based on the commercial licensing data analysis, provide concise and meaningful insights about the results:

Question Asked: %s
Chart Type: %s
Data Summary: %s

Sample Data (first 3 rows):
%s
Provide insights that include key findings, notable patterns or trends, business implications and how to read the chart.
Keep the response concise (2-3 sentences) and focus on actionable insights. Use both Arabic and English terms when appropriate.`,
		strings.TrimSpace(question), chartType, Summarize(rs).Text(), sample.String())
}

func formatWhole(v float64) string {
	negative := v < 0
	digits := fmt.Sprintf("%.0f", math.Abs(v))
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
