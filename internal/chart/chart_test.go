package chart

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseType(t *testing.T) {
	tests := map[string]Type{"": TypeAuto, "AUTO": TypeAuto, " bar ": TypeBar, "Line": TypeLine, "pie": TypePie, "table": TypeTable}
	for in, want := range tests {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Fatalf("ParseType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseType("scatter"); err == nil {
		t.Fatal("ParseType(scatter) expected error")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		question string
		rows     int
		want     Type
	}{
		{name: "trend", question: "Show the monthly trend of new licenses", rows: 50, want: TypeLine},
		{name: "trend beats share", question: "share of licenses over time", rows: 5, want: TypeLine},
		{name: "arabic trend", question: "ما هو تطور عدد التراخيص", rows: 12, want: TypeLine},
		{name: "share small", question: "What is the distribution of license status?", rows: 4, want: TypePie},
		{name: "share too many slices", question: "Distribution of licenses by district", rows: 25, want: TypeTable},
		{name: "arabic share", question: "نسبة التراخيص حسب الحالة", rows: 3, want: TypePie},
		{name: "compare", question: "Top 5 activities by fee", rows: 5, want: TypeBar},
		{name: "compare many rows", question: "Compare regions", rows: 40, want: TypeBar},
		{name: "arabic compare", question: "أعلى المناطق في الرسوم", rows: 8, want: TypeBar},
		{name: "large result", question: "list licenses", rows: 21, want: TypeTable},
		{name: "default", question: "licenses per region", rows: 20, want: TypeBar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.question, tt.rows); got != tt.want {
				t.Fatalf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectOrUsesFallbackOnlyForDefault(t *testing.T) {
	tests := []struct {
		name     string
		question string
		rows     int
		fallback Type
		want     Type
	}{
		{name: "rule wins", question: "monthly licenses", rows: 5, fallback: TypePie, want: TypeLine},
		{name: "default takes fallback", question: "licenses per region", rows: 5, fallback: TypePie, want: TypePie},
		{name: "pie fallback too many slices", question: "licenses per region", rows: 15, fallback: TypePie, want: TypeBar},
		{name: "auto fallback", question: "licenses per region", rows: 5, fallback: TypeAuto, want: TypeBar},
		{name: "unknown fallback", question: "licenses per region", rows: 5, fallback: Type("scatter"), want: TypeBar},
		{name: "large result is a rule", question: "list licenses", rows: 50, fallback: TypeLine, want: TypeTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectOr(tt.question, tt.rows, tt.fallback); got != tt.want {
				t.Fatalf("DetectOr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTable(t *testing.T) {
	in := ResultSet{
		Columns: []string{"name", "fee", "ratio"},
		Rows:    [][]any{{[]byte("a"), int64(10), math.NaN()}, {"b", nil, 0.5}},
	}
	got, err := Format(in, TypeTable)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := &TableData{
		Columns: []string{"name", "fee", "ratio"},
		Rows:    [][]any{{"a", int64(10), nil}, {"b", nil, 0.5}},
	}
	if diff := cmp.Diff(want, got.Table); diff != "" {
		t.Fatalf("Format() table mismatch (-want +got):\n%s", diff)
	}
	if _, ok := in.Rows[0][0].([]byte); !ok {
		t.Fatal("Format() mutated its input")
	}
	if _, err := json.Marshal(got); err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
}

func TestFormatTableAllowsSingleColumn(t *testing.T) {
	got, err := Format(ResultSet{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}}, TypeTable)
	if err != nil || got.Len() != 1 {
		t.Fatalf("Format() = %+v, %v", got, err)
	}
}

func TestFormatRequiresTwoColumnsForCharts(t *testing.T) {
	_, err := Format(ResultSet{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}}, TypeBar)
	if !errors.Is(err, ErrTooFewColumns) {
		t.Fatalf("Format() error = %v, want ErrTooFewColumns", err)
	}
}

func TestFormatPointsPicksFirstNumericColumn(t *testing.T) {
	in := ResultSet{
		Columns: []string{"region", "manager", "total_fee", "licenses"},
		Rows: [][]any{
			{"North", "Amal", "1200.50", int64(3)},
			{"South", "Omar", []byte("800"), int64(2)},
			{nil, "Lina", nil, int64(1)},
		},
	}
	got, err := Format(in, TypePie)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := []DataPoint{
		{Label: "North", Value: 1200.5, Category: "North"},
		{Label: "South", Value: 800, Category: "South"},
		{Label: "N/A", Value: 0, Category: "N/A"},
	}
	if diff := cmp.Diff(want, got.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
	if got.Type != TypePie {
		t.Fatalf("Type = %q", got.Type)
	}
}

func TestFormatPointsFallsBackToSecondColumn(t *testing.T) {
	in := ResultSet{
		Columns: []string{"region", "status"},
		Rows:    [][]any{{"North", "active"}},
	}
	got, err := Format(in, TypeBar)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if diff := cmp.Diff([]DataPoint{{Label: "North", Value: 0, Category: "North"}}, got.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatLineProducesTimeSeries(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := ResultSet{
		Columns: []string{"month", "licenses"},
		Rows: [][]any{
			{"2024-01", int64(4)},
			{"not a month", int64(5)},
			{"2024-02", int64(7)},
		},
	}
	got, err := Format(in, TypeLine)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := []TimeSeriesPoint{
		{Timestamp: jan, Value: 4, Metric: "licenses"},
		{Timestamp: jan.AddDate(0, 1, 0), Value: 7, Metric: "licenses"},
	}
	if diff := cmp.Diff(want, got.Series); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatLineDetectsTimeValues(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	in := ResultSet{
		Columns: []string{"issued", "total"},
		Rows:    [][]any{{day, 2.5}},
	}
	got, err := Format(in, TypeLine)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if len(got.Series) != 1 || !got.Series[0].Timestamp.Equal(day) || got.Series[0].Value != 2.5 {
		t.Fatalf("Series = %+v", got.Series)
	}
}

func TestFormatLineWithoutTimeColumnFallsBackToPoints(t *testing.T) {
	in := ResultSet{
		Columns: []string{"region", "total"},
		Rows:    [][]any{{"North", int64(3)}},
	}
	got, err := Format(in, TypeLine)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got.Series != nil || len(got.Points) != 1 || got.Type != TypeLine {
		t.Fatalf("Format() = %+v", got)
	}
}

func TestPayloadMarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
	}{
		{name: "points", payload: Payload{Points: []DataPoint{{Label: "a", Value: 1}}}, want: `[{"label":"a","value":1}]`},
		{name: "table", payload: Payload{Table: &TableData{Columns: []string{"c"}, Rows: [][]any{{1}}}}, want: `{"columns":["c"],"rows":[[1]]}`},
		{name: "empty", payload: Payload{}, want: `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.payload)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			if string(raw) != tt.want {
				t.Fatalf("json.Marshal() = %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestPayloadUnmarshalJSONRestoresShape(t *testing.T) {
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   Payload
	}{
		{name: "points", in: Payload{Points: []DataPoint{{Label: "Riyadh", Value: 12, Category: "Riyadh"}}}},
		{name: "series", in: Payload{Series: []TimeSeriesPoint{{Timestamp: at, Value: 3, Metric: "licenses"}}}},
		{name: "table", in: Payload{Table: &TableData{Columns: []string{"region"}, Rows: [][]any{{"Riyadh"}}}}},
		{name: "null", in: Payload{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			var got Payload
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			if diff := cmp.Diff(tt.in, got); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
