package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sqlsight/sqlsight/internal/cli/sqlsightctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("SQLSIGHT_CLI_TIMEOUT")), 90*time.Second)
	options := sqlsightctl.Options{
		BaseURL: envOr("SQLSIGHT_API_URL", "http://localhost:8000"),
		APIKey:  strings.TrimSpace(os.Getenv("SQLSIGHT_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := sqlsightctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid SQLSIGHT_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
