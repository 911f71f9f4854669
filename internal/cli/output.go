package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Sync rejected, stalled or otherwise failed
	ExitCommandError = 2 // Bad flags, config or storage
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// printer writes command results as text or JSON.
type printer struct {
	format string
	w      io.Writer
}

func (p printer) json() bool { return p.format == "json" }

func (p printer) emit(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table prints rows keyed by row id with one column per field.
func (p printer) table(name string, rows map[string]map[string]any) error {
	if p.json() {
		return p.emit(map[string]any{"table": name, "rows": rows})
	}

	ids := make([]string, 0, len(rows))
	columnSet := map[string]bool{}
	for id, row := range rows {
		ids = append(ids, id)
		for col := range row {
			columnSet[col] = true
		}
	}
	sort.Strings(ids)
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	fmt.Fprintf(p.w, "%s (%d rows)\n", name, len(ids))
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", strings.ToUpper(strings.Join(columns, "\t")))
	for _, id := range ids {
		cells := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rows[id][col]; ok {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", id, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
