// Package agent drives the bounded tool-calling loop between the model and the tool catalog.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/hession/pwtpilot/internal/history"
	"github.com/hession/pwtpilot/internal/llm"
	"github.com/hession/pwtpilot/internal/logger"
)

var (
	// ErrNoModel is returned when a loop is built without a model
	ErrNoModel = errors.New("agent: no model configured")
	// ErrNoCatalog is returned when a request carries no tool catalog
	ErrNoCatalog = errors.New("agent: request has no tool catalog")
)

// Driver runs one request to completion
type Driver interface {
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Model asks the completion endpoint for the next step. The options carry
// the request's model id and temperature.
type Model interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.CallOption) (*llm.ChatResponse, error)
}

// StreamingModel is a Model that can also stream text as it is generated
type StreamingModel interface {
	Model
	ChatStream(ctx context.Context, messages []llm.Message, tools []llm.Tool, handler llm.StreamHandler, opts ...llm.CallOption) (*llm.ChatResponse, error)
}

// RetryingModel retries failed model calls; attempts counts the first call
type RetryingModel interface {
	ChatWithRetry(ctx context.Context, messages []llm.Message, tools []llm.Tool, attempts int, opts ...llm.CallOption) (*llm.ChatResponse, error)
	ChatStreamWithRetry(ctx context.Context, messages []llm.Message, tools []llm.Tool, handler llm.StreamHandler, attempts int, opts ...llm.CallOption) (*llm.ChatResponse, error)
}

// Recorder receives the run history. Its failures are logged and never abort a run.
type Recorder interface {
	StartRun(task, model string) (string, error)
	RecordToolCall(runID string, step int, name, arguments, result string) error
	FinishRun(runID string, status history.Status, answer string, steps int) error
}

var (
	_ Driver         = (*Loop)(nil)
	_ StreamingModel = (*llm.Client)(nil)
	_ RetryingModel  = (*llm.Client)(nil)
	_ Recorder       = (*history.SQLiteStore)(nil)
)

// Result is the outcome of a run
type Result struct {
	RunID            string // empty without a recorder
	Answer           string
	Steps            int
	ToolCalls        int
	StepLimitReached bool
}

// Loop is the default Driver
type Loop struct {
	model           Model
	modelRetries    int
	recorder        Recorder
	errorPrefix     string
	streamHandler   func(content string)
	toolCallHandler func(name string, args map[string]any, result string, err error)
}

// Option loop configuration option
type Option func(*Loop)

// WithStreamHandler sets the stream output handler
func WithStreamHandler(handler func(content string)) Option {
	return func(l *Loop) {
		l.streamHandler = handler
	}
}

// WithToolCallHandler sets the tool call handler, called after each dispatch
func WithToolCallHandler(handler func(name string, args map[string]any, result string, err error)) Option {
	return func(l *Loop) {
		l.toolCallHandler = handler
	}
}

// WithRecorder records runs and tool calls
func WithRecorder(recorder Recorder) Option {
	return func(l *Loop) {
		l.recorder = recorder
	}
}

// WithModelRetries retries a failed model call up to n more times when the
// model supports it. Tool calls are never retried.
func WithModelRetries(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.modelRetries = n
		}
	}
}

// WithErrorPrefix sets the prefix of tool errors fed back to the model
func WithErrorPrefix(prefix string) Option {
	return func(l *Loop) {
		l.errorPrefix = prefix
	}
}

// NewLoop creates a loop over the given model
func NewLoop(model Model, opts ...Option) (*Loop, error) {
	if model == nil {
		return nil, ErrNoModel
	}

	l := &Loop{
		model:       model,
		errorPrefix: "Error",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run asks the model for the next step until it answers without tool calls
// or the step ceiling is reached. Tool failures are fed back to the model;
// model failures end the run.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.Catalog == nil {
		return nil, ErrNoCatalog
	}

	messages := req.Messages()
	llmTools := req.Tools()
	maxSteps := req.maxSteps()

	result := &Result{RunID: l.startRun(req)}
	logger.Info("[agent] run started: model=%s tools=%d max_steps=%d", req.Model, len(llmTools), maxSteps)

	for step := 1; step <= maxSteps; step++ {
		result.Steps = step

		resp, err := l.ask(ctx, req, messages, llmTools)
		if err != nil {
			l.finishRun(result, history.StatusFailed)
			return nil, fmt.Errorf("step %d: failed to call model: %w", step, err)
		}

		if resp.Content != "" {
			result.Answer = resp.Content
		}

		// No tool calls means the model has answered
		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			l.finishRun(result, history.StatusCompleted)
			logger.Info("[agent] run completed after %d steps, %d tool calls", result.Steps, result.ToolCalls)
			return result, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// One invocation at a time, in the order the model listed them
		for _, toolCall := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				l.finishRun(result, history.StatusFailed)
				return nil, fmt.Errorf("step %d: %w", step, err)
			}

			content := l.dispatch(ctx, req, result.RunID, step, toolCall)
			result.ToolCalls++

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: toolCall.ID,
			})
		}
	}

	result.StepLimitReached = true
	l.finishRun(result, history.StatusStepLimit)
	logger.Warn("[agent] step limit %d reached", maxSteps)
	return result, nil
}

// ask performs one model call, streaming when a handler is set and the model
// supports it, retrying when configured and the model supports it
func (l *Loop) ask(ctx context.Context, req *Request, messages []llm.Message, llmTools []llm.Tool) (*llm.ChatResponse, error) {
	opts := req.callOptions()
	attempts := l.modelRetries + 1
	retrier, canRetry := l.model.(RetryingModel)
	canRetry = canRetry && l.modelRetries > 0

	if l.streamHandler != nil {
		if sm, ok := l.model.(StreamingModel); ok {
			if canRetry {
				return retrier.ChatStreamWithRetry(ctx, messages, llmTools, l.streamHandler, attempts, opts...)
			}
			return sm.ChatStream(ctx, messages, llmTools, l.streamHandler, opts...)
		}
	}
	if canRetry {
		return retrier.ChatWithRetry(ctx, messages, llmTools, attempts, opts...)
	}
	return l.model.Chat(ctx, messages, llmTools, opts...)
}

// dispatch executes one tool call and returns the text fed back to the model
func (l *Loop) dispatch(ctx context.Context, req *Request, runID string, step int, toolCall llm.ToolCall) string {
	name := toolCall.Function.Name

	args, err := parseArguments(toolCall.Function.Arguments)
	var result string
	if err == nil {
		result, err = req.Catalog.Execute(ctx, name, args)
	}

	logger.WithFields(map[string]interface{}{
		"step": step,
		"tool": name,
	}).Debugf("arguments: %s", toolCall.Function.Arguments)

	content := result
	if err != nil {
		logger.Warn("[agent] tool %s failed: %v", name, err)
		content = fmt.Sprintf("%s: %v", l.errorPrefix, err)
	}

	if l.toolCallHandler != nil {
		l.toolCallHandler(name, args, result, err)
	}

	if l.recorder != nil && runID != "" {
		if recErr := l.recorder.RecordToolCall(runID, step, name, toolCall.Function.Arguments, content); recErr != nil {
			logger.Warn("[agent] failed to record tool call: %v", recErr)
		}
	}

	return content
}

// parseArguments decodes the model's JSON arguments; an empty string means no arguments
func parseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := sonic.UnmarshalString(raw, &args); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	return args, nil
}

func (l *Loop) startRun(req *Request) string {
	if l.recorder == nil {
		return ""
	}
	runID, err := l.recorder.StartRun(req.Task, req.Model)
	if err != nil {
		logger.Warn("[agent] failed to record run start: %v", err)
		return ""
	}
	return runID
}

func (l *Loop) finishRun(result *Result, status history.Status) {
	if l.recorder == nil || result.RunID == "" {
		return
	}
	if err := l.recorder.FinishRun(result.RunID, status, result.Answer, result.Steps); err != nil {
		logger.Warn("[agent] failed to record run outcome: %v", err)
	}
}
