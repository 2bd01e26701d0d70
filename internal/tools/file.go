package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths list_files refuses to read: version control metadata and the dependency cache
var disallowedListPaths = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// CreateDirectoryTool create directory tool
type CreateDirectoryTool struct{}

func NewCreateDirectoryTool() *CreateDirectoryTool {
	return &CreateDirectoryTool{}
}

func (t *CreateDirectoryTool) Name() string {
	return "create_directory"
}

func (t *CreateDirectoryTool) Description() string {
	return "Create a directory at the specified path, including any missing parent directories. Does nothing if it already exists."
}

func (t *CreateDirectoryTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "path",
			Type:        "string",
			Description: "The directory path to create",
			Required:    true,
		},
	}
}

func (t *CreateDirectoryTool) Schema() map[string]any {
	return BuildParameterSchema(t.Parameters())
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path", "")
	if err := ValidateArgs(t.Parameters(), args); err != nil {
		return failure(path, err), nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return failure(path, fmt.Errorf("failed to create directory: %w", err)), nil
	}

	return (&Envelope{Path: ptr(path), Success: true}).String(), nil
}

// ListFilesTool list files tool
type ListFilesTool struct{}

func NewListFilesTool() *ListFilesTool {
	return &ListFilesTool{}
}

func (t *ListFilesTool) Name() string {
	return "list_files"
}

func (t *ListFilesTool) Description() string {
	return "List the names of the files and subdirectories directly inside a directory (not recursive). Listing .git or node_modules is not allowed."
}

func (t *ListFilesTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "path",
			Type:        "string",
			Description: "The directory path to list, defaults to current directory",
			Required:    false,
		},
	}
}

func (t *ListFilesTool) Schema() map[string]any {
	return BuildParameterSchema(t.Parameters())
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path", ".")
	if err := ValidateArgs(t.Parameters(), args); err != nil {
		return failure(path, err), nil
	}

	// Rejected before any filesystem access
	if disallowedListPaths[filepath.Clean(path)] {
		return failure(path, fmt.Errorf("listing %s is not allowed", path)), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return failure(path, fmt.Errorf("failed to read directory: %w", err)), nil
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}

	return (&Envelope{Path: ptr(path), Files: &files, Success: true}).String(), nil
}

// ReadFileTool read file tool
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read the content of a file at the specified path. Used to view the complete content of a file."
}

func (t *ReadFileTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "path",
			Type:        "string",
			Description: "The file path to read (supports absolute and relative paths)",
			Required:    true,
		},
	}
}

func (t *ReadFileTool) Schema() map[string]any {
	return BuildParameterSchema(t.Parameters())
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path", "")
	if err := ValidateArgs(t.Parameters(), args); err != nil {
		return failure(path, err), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return failure(path, fmt.Errorf("failed to read file: %w", err)), nil
	}

	return (&Envelope{Path: ptr(path), Content: ptr(string(content)), Success: true}).String(), nil
}

// EditFileTool edit file tool
type EditFileTool struct{}

func NewEditFileTool() *EditFileTool {
	return &EditFileTool{}
}

func (t *EditFileTool) Name() string {
	return "edit_file"
}

func (t *EditFileTool) Description() string {
	return `Make edits to a text file.
Replaces 'old_str' with 'new_str' in the given file. 'old_str' should match exactly one place in the file; only the first match is replaced.
If 'old_str' is not found in an existing file, the edit is rejected and the file is left unchanged. An empty 'old_str' is rejected too.
If the file does not exist or 'old_str' is null, the file is created (or overwritten) with 'new_str' as its entire content. Parent directories are not created.`
}

func (t *EditFileTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "path",
			Type:        "string",
			Description: "The path to the file",
			Required:    true,
		},
		{
			Name:        "old_str",
			Type:        "string",
			Description: "Text to search for, must match exactly. Null to write the whole file",
			Required:    true,
			Nullable:    true,
		},
		{
			Name:        "new_str",
			Type:        "string",
			Description: "Text to replace old_str with, or the whole file content",
			Required:    true,
		},
	}
}

func (t *EditFileTool) Schema() map[string]any {
	return BuildParameterSchema(t.Parameters())
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path := stringArg(args, "path", "")
	if err := ValidateArgs(t.Parameters(), args); err != nil {
		return failure(path, err), nil
	}

	newStr, _ := args["new_str"].(string)
	oldStr, hasOld := args["old_str"].(string)

	exists, err := fileExists(path)
	if err != nil {
		return failure(path, err), nil
	}

	if !exists || !hasOld {
		if err := os.WriteFile(path, []byte(newStr), 0644); err != nil {
			return failure(path, fmt.Errorf("failed to write file: %w", err)), nil
		}
		return (&Envelope{Path: ptr(path), Action: "create", Success: true}).String(), nil
	}

	if oldStr == "" {
		return failure(path, errors.New("old_str must not be empty; pass null to overwrite the file")), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return failure(path, fmt.Errorf("failed to read file: %w", err)), nil
	}

	matches := strings.Count(string(content), oldStr)
	if matches == 0 {
		return failure(path, errors.New("old_str not found in file")), nil
	}

	updated := strings.Replace(string(content), oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return failure(path, fmt.Errorf("failed to write file: %w", err)), nil
	}

	return (&Envelope{Path: ptr(path), Action: "edit", Matches: ptr(matches), Success: true}).String(), nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat file: %w", err)
}
