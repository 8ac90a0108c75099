// Package sqlguard decides whether SQL produced by the agent may run against
// the warehouse, and recovers SQL from free-text agent replies.
package sqlguard

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmpty              = errors.New("sql is empty")
	ErrNotReadOnly        = errors.New("only SELECT or WITH statements are allowed")
	ErrMultipleStatements = errors.New("only a single statement is allowed")
	ErrForbiddenKeyword   = errors.New("statement contains a forbidden keyword")
	ErrTableNotAllowed    = errors.New("statement does not reference an allowed table")
	ErrForbiddenFunction  = errors.New("statement calls a forbidden function")
	ErrTableFunction      = errors.New("statement reads from a table function or file")
)

var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"truncate": {}, "create": {}, "grant": {}, "revoke": {}, "copy": {},
	"merge": {}, "call": {}, "exec": {}, "execute": {}, "vacuum": {},
	"attach": {}, "detach": {}, "pragma": {}, "install": {}, "load": {},
}

// forbiddenFunctions read server files, change state or hold connections.
// Names are matched on the call, whatever the dialect.
var forbiddenFunctions = map[string]struct{}{
	"setval": {}, "nextval": {}, "set_config": {}, "pg_sleep": {},
	"pg_terminate_backend": {}, "pg_cancel_backend": {}, "pg_reload_conf": {},
	"pg_read_file": {}, "pg_read_binary_file": {}, "pg_ls_dir": {}, "pg_stat_file": {},
	"lo_import": {}, "lo_export": {}, "lo_unlink": {}, "lo_create": {}, "lo_put": {},
	"dblink": {}, "dblink_exec": {}, "load_file": {}, "sleep": {}, "benchmark": {},
	"get_lock": {}, "getenv": {}, "glob": {}, "sniff_csv": {}, "query": {}, "query_table": {},
}

// forbiddenFunctionPrefixes and suffixes cover the duckdb file readers
// (read_csv_auto, parquet_scan, iceberg_scan ...) and catalog helpers.
var (
	forbiddenFunctionPrefixes = []string{"read_", "pragma_", "duckdb_", "iceberg_", "delta_", "parquet_"}
	forbiddenFunctionSuffixes = []string{"_scan"}
)

// fromClauseEnd are the keywords that close a FROM list.
var fromClauseEnd = map[string]struct{}{
	"select": {}, "where": {}, "group": {}, "order": {}, "having": {}, "limit": {},
	"union": {}, "intersect": {}, "except": {}, "on": {}, "using": {}, "qualify": {},
	"window": {}, "offset": {}, "fetch": {},
}

// fromTableFunctions may appear in FROM position; they only generate rows.
var fromTableFunctions = map[string]struct{}{
	"values": {}, "unnest": {}, "generate_series": {}, "range": {},
}

// Policy restricts what the agent's SQL may touch. An empty AllowedTables
// list allows any table. With Dialect "duckdb", anything read in FROM
// position must be a plain relation name.
type Policy struct {
	AllowedTables []string
	Dialect       string
}

// Validate returns nil when sql is a single read-only statement that satisfies
// the policy. Returned errors wrap one of the package sentinels.
func Validate(sql string, policy Policy) error {
	normalized := Normalize(sql)
	if normalized == "" {
		return ErrEmpty
	}
	scan := scanSQL(normalized)
	if len(scan.words) == 0 {
		return ErrEmpty
	}
	if first := scan.words[0]; first != "select" && first != "with" {
		return fmt.Errorf("%w: statement starts with %q", ErrNotReadOnly, first)
	}
	if scan.semicolons > 0 {
		return ErrMultipleStatements
	}
	for _, word := range scan.words {
		if _, bad := forbiddenKeywords[word]; bad {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, strings.ToUpper(word))
		}
	}
	for _, call := range scan.calls {
		if isForbiddenFunction(call) {
			return fmt.Errorf("%w: %s", ErrForbiddenFunction, call)
		}
	}
	if strings.EqualFold(policy.Dialect, "duckdb") {
		if source, ok := tableFunctionSource(scan.tokens); ok {
			return fmt.Errorf("%w: %s", ErrTableFunction, source)
		}
	}
	if len(policy.AllowedTables) == 0 {
		return nil
	}
	referenced := make(map[string]struct{}, len(scan.words))
	for _, word := range scan.words {
		referenced[word] = struct{}{}
	}
	for _, table := range policy.AllowedTables {
		if _, ok := referenced[strings.ToLower(strings.TrimSpace(table))]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: allowed tables are %s", ErrTableNotAllowed, strings.Join(policy.AllowedTables, ", "))
}

// Normalize trims whitespace, markdown fences and trailing semicolons.
func Normalize(sql string) string {
	trimmed := StripFences(sql)
	for {
		next := strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
		if next == trimmed {
			return trimmed
		}
		trimmed = next
	}
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag.
func StripFences(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		tag := strings.TrimSpace(trimmed[:newline])
		if lower := strings.ToLower(tag); tag == "" || (isWord(tag) && lower != "select" && lower != "with") {
			trimmed = trimmed[newline+1:]
		}
	} else {
		trimmed = strings.TrimPrefix(trimmed, "sql")
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenString
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
}

type scanResult struct {
	tokens     []token
	words      []string
	calls      []string
	semicolons int
}

// scanSQL tokenizes a statement, skipping comments. Words are lower-cased;
// double-quoted identifiers count as words. calls lists every word directly
// followed by an opening parenthesis.
func scanSQL(sql string) scanResult {
	var out scanResult
	runes := []rune(sql)
	n := len(runes)
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			out.tokens = append(out.tokens, token{kind: tokenWord, text: strings.ToLower(word.String())})
			word.Reset()
		}
	}

	for i := 0; i < n; i++ {
		r := runes[i]
		switch {
		case r == '\'':
			flush()
			i++
			start := i
			for i < n {
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
			out.tokens = append(out.tokens, token{kind: tokenString, text: string(runes[start:min(i, n)])})
		case r == '"' || r == '`':
			flush()
			closing := r
			i++
			start := i
			for i < n && runes[i] != closing {
				i++
			}
			if ident := string(runes[start:min(i, n)]); ident != "" {
				out.tokens = append(out.tokens, token{kind: tokenQuoted, text: strings.ToLower(ident)})
			}
		case r == '-' && i+1 < n && runes[i+1] == '-':
			flush()
			for i < n && runes[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < n && runes[i+1] == '*':
			flush()
			i += 2
			for i+1 < n && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
		case r == ';':
			flush()
			out.semicolons++
		case isWordRune(r):
			word.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			out.tokens = append(out.tokens, token{kind: tokenPunct, text: string(r)})
		}
	}
	flush()

	for i, tok := range out.tokens {
		if tok.kind != tokenWord && tok.kind != tokenQuoted {
			continue
		}
		out.words = append(out.words, tok.text)
		if i+1 < len(out.tokens) && out.tokens[i+1].kind == tokenPunct && out.tokens[i+1].text == "(" {
			out.calls = append(out.calls, tok.text)
		}
	}
	return out
}

func isForbiddenFunction(name string) bool {
	if _, ok := forbiddenFunctions[name]; ok {
		return true
	}
	for _, prefix := range forbiddenFunctionPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, suffix := range forbiddenFunctionSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// tableFunctionSource reports the first item of a FROM or JOIN list that is
// a function call or a string literal (duckdb reads 'file.csv' as a table).
func tableFunctionSource(tokens []token) (string, bool) {
	inFrom := false
	for i, tok := range tokens {
		switch {
		case tok.kind == tokenWord && (tok.text == "from" || tok.text == "join"):
			inFrom = true
			continue
		case tok.kind == tokenWord:
			if _, ok := fromClauseEnd[tok.text]; ok {
				inFrom = false
				continue
			}
		}
		if !inFrom || !startsFromItem(tokens, i) {
			continue
		}
		if tok.kind == tokenString {
			return "'" + tok.text + "'", true
		}
		if _, ok := fromTableFunctions[tok.text]; ok && tok.kind == tokenWord {
			continue
		}
		if (tok.kind == tokenWord || tok.kind == tokenQuoted) && followedByCall(tokens, i) {
			return tok.text + "(...)", true
		}
	}
	return "", false
}

// startsFromItem reports whether tokens[i] begins an item of a FROM list,
// allowing for schema-qualified names (main.read_text).
func startsFromItem(tokens []token, i int) bool {
	for i > 0 && tokens[i-1].kind == tokenPunct && tokens[i-1].text == "." && i >= 2 {
		i -= 2
	}
	if i == 0 {
		return false
	}
	prev := tokens[i-1]
	switch {
	case prev.kind == tokenWord && (prev.text == "from" || prev.text == "join" || prev.text == "lateral"):
		return true
	case prev.kind == tokenPunct && (prev.text == "," || prev.text == "("):
		return true
	}
	return false
}

func followedByCall(tokens []token, i int) bool {
	for i+2 < len(tokens) && tokens[i+1].kind == tokenPunct && tokens[i+1].text == "." {
		i += 2
	}
	return i+1 < len(tokens) && tokens[i+1].kind == tokenPunct && tokens[i+1].text == "("
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127
}

func isWord(value string) bool {
	for _, r := range value {
		if !isWordRune(r) {
			return false
		}
	}
	return value != ""
}
