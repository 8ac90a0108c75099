package nl2sql

import (
	"context"
	"errors"
)

var ErrNoSQL = errors.New("agent reply did not contain a SQL statement")

type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

type TableContext struct {
	TableName  string       `json:"table_name"`
	Columns    []ColumnInfo `json:"columns"`
	SampleRows [][]any      `json:"sample_rows,omitempty"`
	Notes      string       `json:"notes,omitempty"`
}

type Request struct {
	Question  string         `json:"question"`
	ChartHint string         `json:"chart_hint"`
	Dialect   string         `json:"dialect"`
	Tables    []TableContext `json:"tables"`
	// PreviousSQL and PreviousError are set when asking the agent to repair
	// a statement the database rejected.
	PreviousSQL   string `json:"previous_sql,omitempty"`
	PreviousError string `json:"previous_error,omitempty"`
}

type Result struct {
	SQL            string `json:"sql"`
	SuggestedChart string `json:"suggested_chart,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
