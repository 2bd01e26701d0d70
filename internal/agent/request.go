package agent

import (
	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/llm"
	"github.com/hession/pwtpilot/internal/tools"
)

// DefaultMaxSteps is used when a request leaves MaxSteps unset
const DefaultMaxSteps = 20

// Request is one generation request: what to ask, with which tools, for how long
type Request struct {
	Model       string   // model identifier; empty leaves the client default
	Temperature *float64 // nil leaves the client default
	Instruction string   // system message
	Task        string   // user message
	MaxSteps    int
	Catalog     *tools.Registry
}

// NewRequest assembles a request from configuration, the instruction text and the task
func NewRequest(cfg *config.Config, instruction, task string, catalog *tools.Registry) *Request {
	return &Request{
		Model:       cfg.Model.Model,
		Temperature: cfg.Model.Temperature,
		Instruction: instruction,
		Task:        task,
		MaxSteps:    cfg.Agent.MaxSteps,
		Catalog:     catalog,
	}
}

// Messages returns the opening conversation. Instruction and task are never merged.
func (r *Request) Messages() []llm.Message {
	messages := make([]llm.Message, 0, 2)
	if r.Instruction != "" {
		messages = append(messages, llm.Message{Role: "system", Content: r.Instruction})
	}
	return append(messages, llm.Message{Role: "user", Content: r.Task})
}

// Tools converts the catalog to function-calling definitions
func (r *Request) Tools() []llm.Tool {
	if r.Catalog == nil {
		return nil
	}

	defs := r.Catalog.Definitions()
	llmTools := make([]llm.Tool, len(defs))
	for i, def := range defs {
		llmTools[i] = llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Schema,
			},
		}
	}
	return llmTools
}

// callOptions carries the request's model and temperature to each model call
func (r *Request) callOptions() []llm.CallOption {
	return []llm.CallOption{
		llm.WithModel(r.Model),
		llm.WithTemperature(r.Temperature),
	}
}

func (r *Request) maxSteps() int {
	if r.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return r.MaxSteps
}
