package jobs

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/jobctl/internal/domain/job"
)

// printResponse prints the response and fails unless it is OK.
func printResponse(w io.Writer, resp *job.Response) error {
	if resp.Message == "" {
		_, _ = fmt.Fprintln(w, resp.Code)
	} else {
		_, _ = fmt.Fprintf(w, "%s: %s\n", resp.Code, resp.Message)
	}

	if !resp.OK() {
		return fmt.Errorf("%w: %s", ErrNotOK, resp.Code)
	}

	return nil
}

// printOutcome prints an update outcome and fails unless it is OK.
func printOutcome(w io.Writer, outcome job.Outcome) error {
	_, _ = fmt.Fprintln(w, outcome.String())

	if outcome.Code != job.ResponseOK {
		return fmt.Errorf("%w: %s", ErrNotOK, outcome.Code)
	}

	return nil
}

// printTasks prints the tasks as a YAML list.
func printTasks(w io.Writer, tasks []job.Task) error {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(w, "no tasks")
		return nil
	}

	return printYAML(w, tasks)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	return nil
}
