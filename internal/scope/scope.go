// Package scope enforces project isolation: every request is scoped to
// exactly one project identifier, case-normalized and validated before
// any other component sees it, and carried through request handling via
// context so downstream code cannot silently cross projects.
package scope

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ateam/orchestrator/internal/apierr"
)

type contextKey int

const projectIDKey contextKey = 0

var idPattern = regexp.MustCompile(`^[a-z0-9_-]{1,100}$`)

var lowercaser = cases.Lower(language.Und)

// Normalize lowercases and validates a raw project identifier against
// the fixed charset [a-z0-9_-] and a length of 1 to 100.
func Normalize(raw string) (string, error) {
	id := lowercaser.String(raw)
	if !idPattern.MatchString(id) {
		return "", apierr.WithDetails(apierr.CodeValidation,
			fmt.Sprintf("invalid project id %q", raw),
			map[string]any{"field": "projectId"})
	}
	return id, nil
}

// WithProjectID returns a context carrying the normalized project
// identifier for the remainder of a request's lifetime.
func WithProjectID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, projectIDKey, id)
}

// ProjectID extracts the project identifier a context was scoped to. The
// second return is false if the context was never scoped, which callers
// should treat as a programming error, not a client error.
func ProjectID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(projectIDKey).(string)
	return id, ok
}
