package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/logger"
)

// MessageTestsFailed marks a run where the runner executed the suite and some tests failed
const MessageTestsFailed = "tests executed but some failed"

// RunPwtTool runs a Playwright spec file through the configured test runner
type RunPwtTool struct {
	command []string
	workDir string
	timeout time.Duration
}

// NewRunPwtTool creates a new run_pwt tool
func NewRunPwtTool(cfg config.RunnerConfig) *RunPwtTool {
	command := cfg.Command
	if len(command) == 0 {
		command = []string{"npx", "playwright"}
	}
	return &RunPwtTool{
		command: command,
		workDir: cfg.WorkDir,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func (t *RunPwtTool) Name() string {
	return "run_pwt"
}

func (t *RunPwtTool) Description() string {
	return "Run a Playwright test file with the Playwright test runner and return its output. Use it to check that a written spec passes."
}

func (t *RunPwtTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "specFile",
			Type:        "string",
			Description: "Path of the spec file to run, e.g. tests/login.spec.ts",
			Required:    true,
		},
	}
}

func (t *RunPwtTool) Schema() map[string]any {
	return BuildParameterSchema(t.Parameters())
}

// CommandLine returns the argv used for specFile
func (t *RunPwtTool) CommandLine(specFile string) []string {
	argv := make([]string, 0, len(t.command)+2)
	argv = append(argv, t.command...)
	return append(argv, "test", specFile)
}

func (t *RunPwtTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if err := ValidateArgs(t.Parameters(), args); err != nil {
		return (&Envelope{Error: err.Error(), Stdout: ptr(""), Stderr: ptr("")}).String(), nil
	}
	specFile := stringArg(args, "specFile", "")
	if specFile == "" {
		return (&Envelope{Error: "missing required parameter: specFile", Stdout: ptr(""), Stderr: ptr("")}).String(), nil
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	argv := t.CommandLine(specFile)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.workDir
	// Children of the runner may keep the output pipes open after it is killed
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("run_pwt: %s", strings.Join(argv, " "))
	err := cmd.Run()

	if err == nil {
		return (&Envelope{
			Stdout:  ptr(stdout.String()),
			Stderr:  ptr(stderr.String()),
			Success: true,
		}).String(), nil
	}

	// A killed runner may have printed progress; that is not a test result
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("test runner timeout (%v)", t.timeout)
		logger.Warn("run_pwt: %s: %s", specFile, msg)
		return (&Envelope{
			Error:  msg,
			Stdout: ptr(stdout.String()),
			Stderr: ptr(stderr.String()),
		}).String(), nil
	}

	// The suite ran and reported failures
	if stdout.Len() > 0 {
		logger.Info("run_pwt: %s finished with failures: %v", specFile, err)
		return (&Envelope{
			Stdout:  ptr(stdout.String()),
			Stderr:  ptr(stderr.String()),
			Message: MessageTestsFailed,
		}).String(), nil
	}

	// The runner could not run at all
	msg := err.Error()
	if detail := strings.TrimSpace(stderr.String()); detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	logger.Warn("run_pwt: %s failed to run: %s", specFile, msg)
	return (&Envelope{Error: msg, Stdout: ptr(""), Stderr: ptr("")}).String(), nil
}
