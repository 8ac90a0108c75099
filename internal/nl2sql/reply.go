package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sqlsight/sqlsight/internal/sqlguard"
)

const replySchemaJSON = `{
  "type": "object",
  "required": ["sql"],
  "properties": {
    "sql": {"type": "string", "minLength": 1},
    "chart_type": {"type": "string", "enum": ["bar", "line", "pie", "table", "auto", ""]},
    "reasoning": {"type": "string"}
  }
}`

var (
	replySchemaOnce sync.Once
	replySchema     *gojsonschema.Schema
	replySchemaErr  error
)

type agentReply struct {
	SQL       string `json:"sql"`
	ChartType string `json:"chart_type"`
	Reasoning string `json:"reasoning"`
}

// parseReply reads the agent's structured reply. Replies that are not a
// valid JSON object fall back to extracting SQL from free text.
func parseReply(text string) (agentReply, error) {
	body := sqlguard.StripFences(text)
	if strings.HasPrefix(body, "{") {
		if reply, err := decodeStructured(body); err == nil {
			return reply, nil
		}
	}
	sql, ok := sqlguard.Extract(text)
	if !ok {
		return agentReply{}, ErrNoSQL
	}
	return agentReply{SQL: sql}, nil
}

func decodeStructured(body string) (agentReply, error) {
	replySchemaOnce.Do(func() {
		replySchema, replySchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(replySchemaJSON))
	})
	if replySchemaErr != nil {
		return agentReply{}, fmt.Errorf("compile reply schema: %w", replySchemaErr)
	}

	result, err := replySchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return agentReply{}, fmt.Errorf("validate reply: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return agentReply{}, fmt.Errorf("reply does not match schema: %v", errs)
	}

	var reply agentReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return agentReply{}, fmt.Errorf("decode reply: %w", err)
	}
	reply.SQL = sqlguard.Normalize(reply.SQL)
	if reply.SQL == "" {
		return agentReply{}, ErrNoSQL
	}
	return reply, nil
}
