package tools

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope is the result of a local tool. Success and Error tell a tool
// that ran and reported a real-world failure apart from a tool that broke.
type Envelope struct {
	Path    *string   `json:"path,omitempty"`
	Files   *[]string `json:"files,omitempty"`
	Content *string   `json:"content,omitempty"`
	Action  string    `json:"action,omitempty"`
	Matches *int      `json:"matches,omitempty"`
	Stdout  *string   `json:"stdout,omitempty"`
	Stderr  *string   `json:"stderr,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Success bool      `json:"success"`
}

func ptr[T any](v T) *T { return &v }

// String encodes the envelope as JSON for the model
func (e *Envelope) String() string {
	out, err := sonic.MarshalString(e)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"success":false}`, err.Error())
	}
	return out
}

// DecodeEnvelope parses a local tool result
func DecodeEnvelope(s string) (*Envelope, error) {
	var env Envelope
	if err := sonic.UnmarshalString(s, &env); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return &env, nil
}

func failure(path string, err error) string {
	env := &Envelope{Error: err.Error()}
	if path != "" {
		env.Path = ptr(path)
	}
	return env.String()
}
