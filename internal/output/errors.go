package output

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fatih/color"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/session"
)

// Exit code constants
const (
	ExitSuccess     = 0
	ExitGeneral     = 1
	ExitUsageError  = 2
	ExitAPIError    = 3
	ExitConfigError = 4
	ExitAuthError   = 5
)

// CLIError is a structured error with user-facing context
type CLIError struct {
	Summary    string
	Detail     string
	Suggestion string
	ExitCode   int
}

// Error implements the error interface, returning the summary
func (e *CLIError) Error() string {
	return e.Summary
}

// FromError turns a command failure into a CLIError.
func FromError(err error) *CLIError {
	var (
		cliErr        *CLIError
		validationErr *domain.ValidationError
		apiErr        *domain.APIError
	)
	switch {
	case errors.As(err, &cliErr):
		return cliErr
	case errors.As(err, &validationErr):
		return &CLIError{
			Summary:  "Some fields are invalid",
			Detail:   fieldList(validationErr.Fields),
			ExitCode: ExitUsageError,
		}
	case errors.Is(err, session.ErrNotAuthenticated):
		return &CLIError{
			Summary:    "You are not logged in",
			Suggestion: "run 'postraft-facade login'",
			ExitCode:   ExitAuthError,
		}
	case errors.As(err, &apiErr):
		return fromAPIError(apiErr)
	}
	return &CLIError{Summary: err.Error(), ExitCode: ExitGeneral}
}

func fromAPIError(apiErr *domain.APIError) *CLIError {
	e := &CLIError{Summary: apiErr.Message, ExitCode: ExitAPIError}
	if e.Summary == "" {
		e.Summary = apiErr.Kind.String()
	}
	if len(apiErr.Fields) > 0 {
		e.Detail = fieldList(apiErr.Fields)
	}
	switch apiErr.Kind {
	case domain.KindAuth:
		e.Suggestion = "run 'postraft-facade login'"
		e.ExitCode = ExitAuthError
	case domain.KindNetwork:
		e.Suggestion = "check API_BASE_URL and that the API is running"
	case domain.KindConflict:
		if apiErr.RetryAfter > 0 {
			e.Suggestion = fmt.Sprintf("retry in %s", apiErr.RetryAfter)
		}
	}
	if apiErr.RequestID != "" && e.Detail == "" {
		e.Detail = "request id " + apiErr.RequestID
	}
	return e
}

func fieldList(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out string
	for i, k := range keys {
		if i > 0 {
			out += "; "
		}
		out += k + ": " + fields[k]
	}
	return out
}

// FormatError prints a structured error message to stderr
func (p *Printer) FormatError(e *CLIError) {
	if p.useColors {
		color.New(color.FgRed, color.Bold).Fprintf(p.err, "Error: %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			color.New(color.FgCyan).Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	} else {
		fmt.Fprintf(p.err, "[ERROR] %s\n", e.Summary)
		if e.Detail != "" {
			fmt.Fprintf(p.err, "  Cause: %s\n", e.Detail)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(p.err, "  Suggestion: %s\n", e.Suggestion)
		}
	}
}
