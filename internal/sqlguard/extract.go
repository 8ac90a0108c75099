package sqlguard

import (
	"regexp"
	"strings"
)

var (
	fencedSQL     = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	fencedAny     = regexp.MustCompile("(?is)```\\s*((?:select|with)\\b.*?)```")
	labelledSQL   = regexp.MustCompile(`(?is)(?:^|\n)\s*(?:sql|query)\s*:\s*((?:select|with)\b.*?)(?:\n\s*\n|$)`)
	statementLine = regexp.MustCompile(`(?is)(?:^|\n)\s*((?:select|with)\b.*?)(?:;|\n\s*\n|$)`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Extract finds the SQL statement in a free-text agent reply. It tries, in
// order: a ```sql fence, an unlabelled fence holding a SELECT/WITH, a
// "SQL:" or "Query:" label, and finally the first line that starts a
// SELECT/WITH statement.
func Extract(text string) (string, bool) {
	for _, pattern := range []*regexp.Regexp{fencedSQL, fencedAny, labelledSQL, statementLine} {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		sql := Normalize(whitespace.ReplaceAllString(strings.TrimSpace(match[1]), " "))
		if sql != "" {
			return sql, true
		}
	}
	return "", false
}
