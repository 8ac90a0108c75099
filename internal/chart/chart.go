// Package chart turns tabular query results into payloads a charting library
// can render directly.
package chart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	TypeAuto  Type = "auto"
	TypeBar   Type = "bar"
	TypeLine  Type = "line"
	TypePie   Type = "pie"
	TypeTable Type = "table"
)

var ErrTooFewColumns = errors.New("chart requires at least two columns")

// ParseType accepts the chart types clients may request. An empty value means
// auto detection.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return TypeAuto, nil
	case TypeAuto, TypeBar, TypeLine, TypePie, TypeTable:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported chart type %q: use auto, bar, line, pie or table", raw)
	}
}

// Types lists the chart types in the order clients should present them.
func Types() []Type {
	return []Type{TypeAuto, TypeBar, TypeLine, TypePie, TypeTable}
}

// ResultSet is the tabular input to formatting.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

type DataPoint struct {
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	Category string  `json:"category,omitempty"`
}

type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Metric    string    `json:"metric"`
}

type TableData struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Payload holds exactly one of Points, Series or Table. It encodes to the
// bare list or table object so clients can hand it to a chart as is.
type Payload struct {
	Type   Type
	Points []DataPoint
	Series []TimeSeriesPoint
	Table  *TableData
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch {
	case p.Table != nil:
		return json.Marshal(p.Table)
	case p.Series != nil:
		return json.Marshal(p.Series)
	case p.Points != nil:
		return json.Marshal(p.Points)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON restores a payload encoded by MarshalJSON. Type is left
// unset; callers carry the chart type alongside the data.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = Payload{}
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '{':
		var table TableData
		if err := json.Unmarshal(trimmed, &table); err != nil {
			return err
		}
		p.Table = &table
		return nil
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	if len(items) > 0 {
		if _, ok := items[0]["timestamp"]; ok {
			return json.Unmarshal(trimmed, &p.Series)
		}
	}
	return json.Unmarshal(trimmed, &p.Points)
}

// Len is the number of rows or points in the payload.
func (p Payload) Len() int {
	switch {
	case p.Table != nil:
		return len(p.Table.Rows)
	case p.Series != nil:
		return len(p.Series)
	default:
		return len(p.Points)
	}
}
