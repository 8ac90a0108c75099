// Package sqlsightctl is the command line client for the sqlsight API.
package sqlsightctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures after the command line was accepted.
type requestError struct {
	err error
}

func (e requestError) Error() string { return e.err.Error() }

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	stdout  io.Writer
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request fails and 2 for usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	c := &client{stdout: stdout}

	root := &cobra.Command{
		Use:           "sqlsightctl",
		Short:         "Ask the sqlsight API questions about your data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
			c.apiKey = strings.TrimSpace(apiKey)
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required")
		},
	}
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "sqlsight API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		getCommand(c, "health", "Service health and database connectivity", "/v1/health"),
		getCommand(c, "ready", "Dependency readiness", "/v1/ready"),
		getCommand(c, "tables", "List queryable tables", "/v1/database/tables"),
		getCommand(c, "info", "Show table schemas", "/v1/database/info"),
		getCommand(c, "examples", "Show example questions", "/v1/examples"),
		askCommand(c),
		translateCommand(c),
		historyCommand(c),
	)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reqErr requestError
	if errors.As(err, &reqErr) {
		_, _ = fmt.Fprintln(stderr, reqErr.Error())
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

func getCommand(c *client, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd.Context(), http.MethodGet, path, nil)
		},
	}
}

func askCommand(c *client) *cobra.Command {
	var chartType string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with a chart payload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), http.MethodPost, "/v1/query", questionBody(args, chartType))
		},
	}
	cmd.Flags().StringVar(&chartType, "chart", "auto", "chart type: auto, bar, line, pie or table")
	return cmd
}

func translateCommand(c *client) *cobra.Command {
	var chartType string
	cmd := &cobra.Command{
		Use:   "translate <question>",
		Short: "Show the SQL generated for a question without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(cmd.Context(), http.MethodPost, "/v1/query/translate", questionBody(args, chartType))
		},
	}
	cmd.Flags().StringVar(&chartType, "chart", "auto", "chart type hint")
	return cmd
}

func historyCommand(c *client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [query-id]",
		Short: "List recent questions, or show one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return c.do(cmd.Context(), http.MethodGet, "/v1/history/"+url.PathEscape(args[0]), nil)
			}
			path := "/v1/history"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			return c.do(cmd.Context(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	return cmd
}

func questionBody(args []string, chartType string) map[string]string {
	return map[string]string{
		"question":   strings.Join(args, " "),
		"chart_type": strings.TrimSpace(chartType),
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return requestError{fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return requestError{fmt.Errorf("request failed: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return requestError{fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return requestError{fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return requestError{fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))}
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(responseBody))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
