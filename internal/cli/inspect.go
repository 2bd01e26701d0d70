package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/history"
)

// ShowTools connects like a run would and prints the merged catalog
func ShowTools(ctx context.Context, cfg *config.Config, out io.Writer) error {
	catalog, closeCatalog, err := BuildCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("NAME", "DESCRIPTION")
	for _, def := range catalog.Definitions() {
		table.AddRow(def.Name, truncateForDisplay(def.Description, 200))
	}

	fmt.Fprintln(out, table)
	color.New(color.FgHiBlack).Fprintf(out, "\n%d tools\n", catalog.Len())
	return nil
}

// ShowHistory prints the most recent runs
func ShowHistory(store history.Store, out io.Writer, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("RUN", "STARTED", "STATUS", "STEPS", "TASK")
	for _, run := range runs {
		table.AddRow(
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			statusText(run.Status),
			run.Steps,
			truncateForDisplay(run.Task, 60),
		)
	}

	fmt.Fprintln(out, table)
	return nil
}

// ShowRun prints one run with its tool calls
func ShowRun(store history.Store, out io.Writer, runID string) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	calls, err := store.ToolCalls(runID)
	if err != nil {
		return err
	}

	summary := uitable.New()
	summary.MaxColWidth = 100
	summary.Wrap = true
	summary.AddRow("Run:", run.ID)
	summary.AddRow("Task:", run.Task)
	summary.AddRow("Model:", run.Model)
	summary.AddRow("Status:", statusText(run.Status))
	summary.AddRow("Steps:", run.Steps)
	summary.AddRow("Started:", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		summary.AddRow("Duration:", run.Duration().Round(time.Millisecond))
	}
	fmt.Fprintln(out, summary)

	if len(calls) > 0 {
		fmt.Fprintln(out)
		table := uitable.New()
		table.MaxColWidth = 60
		table.AddRow("STEP", "TOOL", "ARGUMENTS", "RESULT")
		for _, call := range calls {
			table.AddRow(call.Step, call.Name, truncateForDisplay(call.Arguments, 60), truncateForDisplay(call.Result, 60))
		}
		fmt.Fprintln(out, table)
	}

	if run.Answer != "" {
		fmt.Fprintln(out)
		color.New(color.FgBlue, color.Bold).Fprintln(out, "Answer:")
		fmt.Fprintln(out, run.Answer)
	}
	return nil
}

func statusText(status history.Status) string {
	switch status {
	case history.StatusCompleted:
		return color.GreenString(string(status))
	case history.StatusFailed:
		return color.RedString(string(status))
	case history.StatusStepLimit:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
