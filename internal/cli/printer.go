package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/hession/pwtpilot/internal/agent"
	"github.com/hession/pwtpilot/internal/tools"
)

// printer renders run progress to the terminal
type printer struct {
	out    io.Writer
	title  *color.Color
	tool   *color.Color
	ok     *color.Color
	fail   *color.Color
	muted  *color.Color
	answer *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		title:  color.New(color.FgCyan, color.Bold),
		tool:   color.New(color.FgYellow),
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		muted:  color.New(color.FgHiBlack),
		answer: color.New(color.FgBlue, color.Bold),
	}
}

func (p *printer) header(task, model string, toolCount int) {
	p.title.Fprintf(p.out, "pwtpilot v%s\n", Version)
	p.muted.Fprintf(p.out, "model %s, %d tools\n", model, toolCount)
	fmt.Fprintf(p.out, "Task: %s\n\n", task)
}

func (p *printer) warn(format string, args ...any) {
	p.tool.Fprintf(p.out, "warning: "+format+"\n", args...)
}

// stream writes model text as it arrives
func (p *printer) stream(content string) {
	fmt.Fprint(p.out, content)
}

// toolCall reports one dispatched tool call and its outcome
func (p *printer) toolCall(name string, args map[string]any, result string, err error) {
	p.tool.Fprintf(p.out, "\n> %s", name)
	if len(args) > 0 {
		p.muted.Fprintf(p.out, " %s", truncateForDisplay(formatArgs(args), 100))
	}
	fmt.Fprintln(p.out)

	status, failed := toolStatus(result, err)
	if failed {
		p.fail.Fprintf(p.out, "  failed: %s\n", truncateForDisplay(status, 200))
		return
	}
	p.ok.Fprint(p.out, "  ok")
	if status != "" {
		p.muted.Fprintf(p.out, " %s", truncateForDisplay(status, 100))
	}
	fmt.Fprintln(p.out)
}

// result prints the final answer; a streamed answer is already on screen
func (p *printer) result(result *agent.Result, streamed bool) {
	fmt.Fprintln(p.out)
	if result.StepLimitReached {
		p.fail.Fprintf(p.out, "Step limit reached after %d steps; showing the last answer.\n", result.Steps)
	}
	if !streamed || result.StepLimitReached {
		p.answer.Fprintln(p.out, "Answer:")
		fmt.Fprintln(p.out, result.Answer)
	}
	p.muted.Fprintf(p.out, "\n%d steps, %d tool calls", result.Steps, result.ToolCalls)
	if result.RunID != "" {
		p.muted.Fprintf(p.out, ", run %s", result.RunID)
	}
	fmt.Fprintln(p.out)
}

// toolStatus summarizes a tool result. Local results are JSON envelopes;
// anything else is shown as its first line.
func toolStatus(result string, err error) (string, bool) {
	if err != nil {
		return err.Error(), true
	}

	trimmed := strings.TrimSpace(result)
	if env, decodeErr := tools.DecodeEnvelope(trimmed); strings.HasPrefix(trimmed, "{") && decodeErr == nil {
		switch {
		case env.Success:
			return "", false
		case env.Message != "":
			return env.Message, true
		case env.Error != "":
			return env.Error, true
		}
	}

	line, _, _ := strings.Cut(trimmed, "\n")
	return line, false
}

// formatArgs renders arguments as key=value pairs in key order
func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, " ")
}
