package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a senior data analyst who writes SQL for business questions about commercial licensing data.
Questions may be asked in English or Arabic.

Rules:
- Write exactly one read-only SELECT statement (a WITH clause is allowed). Never modify data.
- Use only the tables and columns listed in the schema context.
- Return at least two columns whenever the result is meant for a chart: a label column first, then the measure.
- Use meaningful column aliases, aggregate with GROUP BY where needed, and ORDER BY the measure or time logically.
- For counts, include the category labels, not just numbers.
- For trends, group by a date or period column and order by it.
- Add LIMIT 100 when listing raw rows.
- Follow the SQL dialect given in the request.

Reply with a JSON object only:
{"sql": "<statement>", "chart_type": "bar|line|pie|table|auto", "reasoning": "<one sentence>"}`

func buildPrompt(req Request) (string, string, error) {
	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return "", "", fmt.Errorf("marshal table context: %w", err)
	}
	dialect := strings.TrimSpace(req.Dialect)
	if dialect == "" {
		dialect = "postgres"
	}
	hint := strings.TrimSpace(req.ChartHint)
	if hint == "" {
		hint = "auto"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SQL dialect: %s\n", dialect)
	fmt.Fprintf(&b, "Schema and sample rows (JSON):\n%s\n\n", tablesJSON)
	fmt.Fprintf(&b, "Requested chart type: %s\n", hint)
	fmt.Fprintf(&b, "Question:\n%s\n", strings.TrimSpace(req.Question))
	if strings.TrimSpace(req.PreviousSQL) != "" {
		fmt.Fprintf(&b, "\nYour previous statement failed.\nStatement:\n%s\nDatabase error:\n%s\nReturn a corrected statement.\n",
			strings.TrimSpace(req.PreviousSQL), strings.TrimSpace(req.PreviousError))
	}
	return systemPrompt, b.String(), nil
}
