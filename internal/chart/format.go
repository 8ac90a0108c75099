package chart

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const nullLabel = "N/A"

var timeColumnNames = map[string]struct{}{
	"date": {}, "time": {}, "timestamp": {}, "created_at": {}, "updated_at": {},
	"day": {}, "month": {}, "year": {}, "period": {},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// Format reshapes rs for the given chart type. TypeAuto is treated as a bar
// chart; callers are expected to resolve it with Detect first. The input is
// never modified.
func Format(rs ResultSet, chartType Type) (Payload, error) {
	if chartType == TypeTable {
		return Payload{Type: TypeTable, Table: formatTable(rs)}, nil
	}
	if len(rs.Columns) < 2 {
		return Payload{}, fmt.Errorf("%w: got %d", ErrTooFewColumns, len(rs.Columns))
	}
	if chartType == TypeAuto {
		chartType = TypeBar
	}
	if chartType == TypeLine {
		if series, ok := formatSeries(rs); ok {
			return Payload{Type: TypeLine, Series: series}, nil
		}
	}
	return Payload{Type: chartType, Points: formatPoints(rs)}, nil
}

func formatTable(rs ResultSet) *TableData {
	columns := append([]string(nil), rs.Columns...)
	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out := make([]any, len(row))
		for j, cell := range row {
			out[j] = jsonCell(cell)
		}
		rows[i] = out
	}
	return &TableData{Columns: columns, Rows: rows}
}

func formatSeries(rs ResultSet) ([]TimeSeriesPoint, bool) {
	timeCol := -1
	for i, name := range rs.Columns {
		if isTimeColumn(name) {
			timeCol = i
			break
		}
	}
	if timeCol < 0 {
		for i := range rs.Columns {
			if columnIsTime(rs, i) {
				timeCol = i
				break
			}
		}
	}
	if timeCol < 0 {
		return nil, false
	}
	valueCol := -1
	for i := range rs.Columns {
		if i != timeCol && columnIsNumeric(rs, i) {
			valueCol = i
			break
		}
	}
	if valueCol < 0 {
		return nil, false
	}

	metric := rs.Columns[valueCol]
	series := make([]TimeSeriesPoint, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		ts, ok := toTime(cell(row, timeCol))
		if !ok {
			continue
		}
		value, _ := toFloat(cell(row, valueCol))
		series = append(series, TimeSeriesPoint{Timestamp: ts, Value: value, Metric: metric})
	}
	if len(series) == 0 && len(rs.Rows) > 0 {
		return nil, false
	}
	return series, true
}

func formatPoints(rs ResultSet) []DataPoint {
	valueCol := 1
	for i := 1; i < len(rs.Columns); i++ {
		if columnIsNumeric(rs, i) {
			valueCol = i
			break
		}
	}
	points := make([]DataPoint, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		label := labelOf(cell(row, 0))
		value, _ := toFloat(cell(row, valueCol))
		points = append(points, DataPoint{Label: label, Value: value, Category: label})
	}
	return points
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func isTimeColumn(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if _, ok := timeColumnNames[lower]; ok {
		return true
	}
	return strings.HasSuffix(lower, "_date") || strings.HasSuffix(lower, "_at")
}

// columnIsNumeric reports whether every non-null value in column i converts
// to a number, with at least one such value.
func columnIsNumeric(rs ResultSet, i int) bool {
	seen := false
	for _, row := range rs.Rows {
		v := cell(row, i)
		if v == nil {
			continue
		}
		if _, ok := toFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func columnIsTime(rs ResultSet, i int) bool {
	for _, row := range rs.Rows {
		v := cell(row, i)
		if v == nil {
			continue
		}
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// toFloat converts driver values to float64. Drivers return NUMERIC and
// DECIMAL columns as text, so numeric strings count as numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *big.Int:
		if n == nil {
			return 0, false
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	case []byte:
		return parseFloat(string(n))
	case string:
		return parseFloat(n)
	case fmt.Stringer:
		return parseFloat(n.String())
	default:
		return 0, false
	}
}

func parseFloat(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	case int64:
		if t >= 1000 && t <= 9999 {
			return time.Date(int(t), time.January, 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseTime(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func labelOf(v any) string {
	switch t := v.(type) {
	case nil:
		return nullLabel
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// jsonCell makes a driver value safe for encoding/json.
func jsonCell(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case float64:
		if f, ok := finite(t); ok {
			return f
		}
		return nil
	case float32:
		if f, ok := finite(float64(t)); ok {
			return f
		}
		return nil
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	default:
		return v
	}
}

// Number converts a driver value to float64 using the same rules as chart
// formatting.
func Number(v any) (float64, bool) {
	return toFloat(v)
}

// NumericColumn reports whether column i holds only numeric values.
func NumericColumn(rs ResultSet, i int) bool {
	return columnIsNumeric(rs, i)
}
