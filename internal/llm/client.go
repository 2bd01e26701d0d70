package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Client is a client for OpenAI-compatible chat completion endpoints
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
}

// Options configures a Client
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64 // nil leaves the endpoint default
	MaxTokens   int
	Timeout     time.Duration
}

// CallOption overrides client defaults for a single request
type CallOption func(*callOptions)

type callOptions struct {
	model       string
	temperature *float64
}

// WithModel sends model instead of the client's model; empty keeps the default
func WithModel(model string) CallOption {
	return func(o *callOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTemperature sends temperature instead of the client's; nil keeps the default
func WithTemperature(temperature *float64) CallOption {
	return func(o *callOptions) {
		if temperature != nil {
			o.temperature = temperature
		}
	}
}

// Message message structure
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall tool call structure
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // only set in stream deltas
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall function call details
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse chat response
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// StreamHandler stream response handler
type StreamHandler func(content string)

// Tool tool definition (for Function Calling)
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction tool function definition
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// chatRequest chat request
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// choice is one completion choice
type choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	Delta        Message `json:"delta"`
	FinishReason string  `json:"finish_reason"`
}

// apiError is the error object some endpoints return with status 200
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// chatResponse API response
type chatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

// New creates a new LLM client
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Model returns the model identifier sent with each request
func (c *Client) Model() string {
	return c.model
}

// Chat sends a chat request
func (c *Client) Chat(ctx context.Context, messages []Message, tools []Tool, opts ...CallOption) (*ChatResponse, error) {
	return c.chat(ctx, messages, tools, false, nil, opts)
}

// ChatStream sends a streaming chat request
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []Tool, handler StreamHandler, opts ...CallOption) (*ChatResponse, error) {
	return c.chat(ctx, messages, tools, true, handler, opts)
}

// chat internal chat implementation
func (c *Client) chat(ctx context.Context, messages []Message, tools []Tool, stream bool, handler StreamHandler, opts []CallOption) (*ChatResponse, error) {
	call := callOptions{model: c.model, temperature: c.temperature}
	for _, opt := range opts {
		opt(&call)
	}

	reqBody := chatRequest{
		Model:       call.model,
		Messages:    messages,
		Temperature: call.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}

	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned error (status %d): %s", resp.StatusCode, string(body))
	}

	if stream {
		return c.handleStreamResponse(resp.Body, handler)
	}

	return c.handleResponse(resp.Body)
}

// handleResponse handles normal response
func (c *Client) handleResponse(body io.Reader) (*ChatResponse, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("API returned empty response")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
	}, nil
}

// handleStreamResponse handles streaming response
func (c *Client) handleStreamResponse(body io.Reader, handler StreamHandler) (*ChatResponse, error) {
	reader := bufio.NewReader(body)
	var fullContent strings.Builder
	var finishReason string
	toolCallsMap := make(map[int]*ToolCall) // For merging streaming tool_calls by index

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read streaming response: %w", err)
		}
		done := err == io.EOF

		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}

			var resp chatResponse
			if jsonErr := json.Unmarshal([]byte(data), &resp); jsonErr == nil {
				if resp.Error != nil {
					return nil, fmt.Errorf("API error: %s", resp.Error.Message)
				}
				if len(resp.Choices) > 0 {
					choice := resp.Choices[0]
					if choice.FinishReason != "" {
						finishReason = choice.FinishReason
					}

					// Handle content
					if choice.Delta.Content != "" {
						fullContent.WriteString(choice.Delta.Content)
						if handler != nil {
							handler(choice.Delta.Content)
						}
					}

					// Handle tool_calls
					for pos, tc := range choice.Delta.ToolCalls {
						idx := pos
						if tc.Index != nil {
							idx = *tc.Index
						}
						existing, ok := toolCallsMap[idx]
						if !ok {
							toolCallsMap[idx] = &ToolCall{
								ID:       tc.ID,
								Type:     tc.Type,
								Function: tc.Function,
							}
							continue
						}
						// Append arguments
						if existing.ID == "" {
							existing.ID = tc.ID
						}
						if existing.Function.Name == "" {
							existing.Function.Name = tc.Function.Name
						}
						existing.Function.Arguments += tc.Function.Arguments
					}
				}
			}
		}

		if done {
			break
		}
	}

	// Collect all tool_calls in index order
	indexes := make([]int, 0, len(toolCallsMap))
	for idx := range toolCallsMap {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	toolCalls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		tc := *toolCallsMap[idx]
		if tc.Type == "" {
			tc.Type = "function"
		}
		toolCalls = append(toolCalls, tc)
	}

	return &ChatResponse{
		Content:      fullContent.String(),
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}, nil
}

// ChatWithRetry chat request with retry; maxRetries is the number of attempts
func (c *Client) ChatWithRetry(ctx context.Context, messages []Message, tools []Tool, maxRetries int, opts ...CallOption) (*ChatResponse, error) {
	return withRetry(ctx, maxRetries, func() (*ChatResponse, error) {
		return c.Chat(ctx, messages, tools, opts...)
	})
}

// ChatStreamWithRetry streaming chat request with retry. Text streamed by a
// failed attempt has already reached the handler.
func (c *Client) ChatStreamWithRetry(ctx context.Context, messages []Message, tools []Tool, handler StreamHandler, maxRetries int, opts ...CallOption) (*ChatResponse, error) {
	return withRetry(ctx, maxRetries, func() (*ChatResponse, error) {
		return c.ChatStream(ctx, messages, tools, handler, opts...)
	})
}

// retryBackoff is the wait before retry n (1-based) is n*retryBackoff
var retryBackoff = time.Second

func withRetry(ctx context.Context, maxRetries int, call func() (*ChatResponse, error)) (*ChatResponse, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}
		// Wait before retry
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * retryBackoff):
		}
	}
	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
