package importer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

type Kind string

const (
	KindText      Kind = "text"
	KindInteger   Kind = "integer"
	KindFloat     Kind = "float"
	KindTimestamp Kind = "timestamp"
	KindBoolean   Kind = "boolean"
)

// numericShare is the fraction of non-null cells that parsing numbers must
// exceed for a column to become numeric.
const numericShare = 0.8

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	timeLayouts   = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"2006/01/02",
		"01-02-06",
		"01/02/2006",
		"1/2/2006",
		"02/01/2006 15:04",
		"2006-01-02 15:04",
	}
)

type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Dataset is a cleaned frame. Cells hold nil, string, int64, float64,
// time.Time or bool according to the column kind.
type Dataset struct {
	Columns []Column
	Rows    [][]any
}

// CleanColumnNames turns raw headers into unique SQL-friendly identifiers.
// "id" is renamed to original_id since the loaded table has its own id.
func CleanColumnNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		name = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
				return r
			}
			return -1
		}, name)
		name = whitespaceRun.ReplaceAllString(name, "_")
		name = strings.ToLower(name)
		name = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
				return r
			}
			return -1
		}, name)
		if name == "" || name == "nan" {
			name = fmt.Sprintf("column_%d", len(out))
		}
		if name == "id" {
			name = "original_id"
		}

		base := name
		for n := 1; ; n++ {
			if _, dup := seen[name]; !dup {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Clean normalizes headers, drops empty and duplicate rows and infers a kind
// per column.
func Clean(frame Frame) Dataset {
	names := CleanColumnNames(frame.Columns)
	width := len(names)

	cells := make([][]*string, 0, len(frame.Rows))
	seen := make(map[string]struct{}, len(frame.Rows))
	for _, raw := range frame.Rows {
		row := make([]*string, width)
		empty := true
		for i := 0; i < width && i < len(raw); i++ {
			v := strings.TrimSpace(raw[i])
			if v == "" || strings.EqualFold(v, "nan") {
				continue
			}
			row[i] = &v
			empty = false
		}
		if empty {
			continue
		}
		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cells = append(cells, row)
	}

	ds := Dataset{Columns: make([]Column, width), Rows: make([][]any, len(cells))}
	for i := range ds.Rows {
		ds.Rows[i] = make([]any, width)
	}
	for col, name := range names {
		kind, convert := inferKind(name, cells, col)
		ds.Columns[col] = Column{Name: name, Kind: kind}
		for r, row := range cells {
			if row[col] != nil {
				ds.Rows[r][col] = convert(*row[col])
			}
		}
	}
	return ds
}

func rowKey(row []*string) string {
	var b strings.Builder
	for _, cell := range row {
		if cell == nil {
			b.WriteString("\x00")
		} else {
			b.WriteString(*cell)
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

func inferKind(name string, cells [][]*string, col int) (Kind, func(string) any) {
	var nonNull, numeric, integral, boolean, temporal int
	for _, row := range cells {
		v := row[col]
		if v == nil {
			continue
		}
		nonNull++
		if f, ok := parseNumber(*v); ok {
			numeric++
			if f == math.Trunc(f) && math.Abs(f) < 1<<53 && !strings.ContainsAny(*v, ".eE") {
				integral++
			}
		}
		if _, ok := parseBool(*v); ok {
			boolean++
		}
		if _, ok := parseTimestamp(*v); ok {
			temporal++
		}
	}
	if nonNull == 0 {
		return KindText, textValue
	}

	if numeric > 0 && float64(numeric)/float64(nonNull) > numericShare {
		if integral == numeric {
			return KindInteger, func(v string) any {
				f, ok := parseNumber(v)
				if !ok {
					return nil
				}
				return int64(f)
			}
		}
		return KindFloat, func(v string) any {
			f, ok := parseNumber(v)
			if !ok {
				return nil
			}
			return f
		}
	}
	lower := strings.ToLower(name)
	if temporal > 0 && (strings.Contains(lower, "date") || strings.Contains(lower, "time")) {
		return KindTimestamp, func(v string) any {
			t, ok := parseTimestamp(v)
			if !ok {
				return nil
			}
			return t
		}
	}
	if boolean == nonNull {
		return KindBoolean, func(v string) any {
			b, _ := parseBool(v)
			return b
		}
	}
	return KindText, textValue
}

func textValue(v string) any { return v }

func parseNumber(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func parseTimestamp(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
