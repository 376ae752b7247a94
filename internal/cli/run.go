package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/google/uuid"
)

// RunOptions configures a one-off run.
type RunOptions struct {
	TaskFile  string
	MessageID string
	Validate  bool
}

// RunOutput is what a one-off run prints.
type RunOutput struct {
	MessageID string           `json:"message_id"`
	Result    map[string]any   `json:"result"`
	Reports   []map[string]any `json:"reports,omitempty"`
}

// RunTask processes the task stored in opts.TaskFile without a broker and
// writes the result to out.
func RunTask(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts RunOptions, out io.Writer) error {
	raw, err := os.ReadFile(opts.TaskFile)
	if err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse task %s: %w", opts.TaskFile, err)
	}
	if opts.Validate {
		v, err := schema.NewValidator()
		if err != nil {
			return err
		}
		if err := v.Validate(data); err != nil {
			return err
		}
	}

	c, err := Build(cfg, logger, false)
	if err != nil {
		return err
	}
	id := opts.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	result, reports, err := c.Run(ctx, id, data)
	if err != nil {
		return err
	}

	output := RunOutput{MessageID: result.ID, Result: result.Body}
	for _, r := range reports {
		output.Reports = append(output.Reports, r.Body)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// ValidateWorkflows loads every workflow document and crawls it for problems.
func ValidateWorkflows(cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	c, err := Build(cfg, logger, true)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	for _, doc := range c.Documents() {
		fmt.Fprintf(out, "ok  %s (%s)\n", doc.Source, doc.Root.Tag)
	}
	return nil
}
