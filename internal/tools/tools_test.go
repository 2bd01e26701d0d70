package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hession/pwtpilot/internal/config"
)

func execute(t *testing.T, tool Tool, args map[string]any) *Envelope {
	t.Helper()
	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("%s returned a Go error: %v", tool.Name(), err)
	}
	env, err := DecodeEnvelope(out)
	if err != nil {
		t.Fatalf("%s returned invalid JSON %q: %v", tool.Name(), out, err)
	}
	return env
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	// Test registration
	tool := NewReadFileTool()
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	// Test duplicate registration
	if err := registry.Register(tool); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Duplicate registration should return ErrDuplicateTool, got %v", err)
	}

	// Test get
	got, exists := registry.Get("read_file")
	if !exists {
		t.Fatal("Should be able to get registered tool")
	}
	if got.Name() != "read_file" {
		t.Errorf("Tool name mismatch: expected read_file, got %s", got.Name())
	}

	// Test get non-existent tool
	if _, exists := registry.Get("not_exist"); exists {
		t.Error("Should not get unregistered tool")
	}

	// Test execute non-existent tool
	if _, err := registry.Execute(context.Background(), "not_exist", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestNewCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	catalog, err := NewCatalog(LocalTools(cfg), nil)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	want := []string{"create_directory", "list_files", "read_file", "edit_file", "run_pwt"}
	defs := catalog.Definitions()
	if len(defs) != len(want) || catalog.Len() != len(want) {
		t.Fatalf("Expected %d tools, got %d", len(want), len(defs))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("Tool %d: expected %s, got %s", i, name, defs[i].Name)
		}
		if defs[i].Description == "" {
			t.Errorf("Tool %s has no description", name)
		}
		if defs[i].Schema["type"] != "object" {
			t.Errorf("Tool %s schema is not an object", name)
		}
	}

	// A remote tool may not shadow a local one
	_, err = NewCatalog(LocalTools(cfg), []Tool{NewListFilesTool()})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Expected ErrDuplicateTool, got %v", err)
	}
}

func TestBuildParameterSchema(t *testing.T) {
	schema := NewEditFileTool().Schema()

	if schema["additionalProperties"] != false {
		t.Error("Schema should reject additional properties")
	}

	props := schema["properties"].(map[string]any)
	oldStr := props["old_str"].(map[string]any)
	types, ok := oldStr["type"].([]string)
	if !ok || len(types) != 2 || types[0] != "string" || types[1] != "null" {
		t.Errorf("old_str should be nullable string, got %v", oldStr["type"])
	}
	if props["new_str"].(map[string]any)["type"] != "string" {
		t.Errorf("new_str should be a plain string")
	}

	required := schema["required"].([]string)
	if len(required) != 3 {
		t.Errorf("Expected 3 required parameters, got %v", required)
	}

	if _, ok := NewListFilesTool().Schema()["required"]; ok {
		t.Error("list_files has no required parameters")
	}
}

func TestValidateArgs(t *testing.T) {
	params := NewEditFileTool().Parameters()

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"valid edit", map[string]any{"path": "a", "old_str": "x", "new_str": "y"}, ""},
		{"null old_str", map[string]any{"path": "a", "old_str": nil, "new_str": "y"}, ""},
		{"missing path", map[string]any{"old_str": nil, "new_str": "y"}, "missing required parameter: path"},
		{"missing old_str", map[string]any{"path": "a", "new_str": "y"}, "missing required parameter: old_str"},
		{"null new_str", map[string]any{"path": "a", "old_str": nil, "new_str": nil}, "parameter new_str must not be null"},
		{"wrong type", map[string]any{"path": 42.0, "old_str": nil, "new_str": "y"}, "parameter path must be of type string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(params, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateDirectoryTool(t *testing.T) {
	tmpDir := t.TempDir()
	tool := NewCreateDirectoryTool()

	dir := filepath.Join(tmpDir, "tests", "e2e")
	env := execute(t, tool, map[string]any{"path": dir})
	if !env.Success || env.Path == nil || *env.Path != dir {
		t.Fatalf("Unexpected envelope: %+v", env)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatal("Directory was not created")
	}

	// Already present is not an error
	if env := execute(t, tool, map[string]any{"path": dir}); !env.Success {
		t.Errorf("Creating an existing directory should succeed: %+v", env)
	}

	// A file in the way is
	file := filepath.Join(tmpDir, "file.txt")
	os.WriteFile(file, []byte("x"), 0644)
	env = execute(t, tool, map[string]any{"path": filepath.Join(file, "sub")})
	if env.Success || env.Error == "" {
		t.Errorf("Expected failure envelope, got %+v", env)
	}

	// Missing path
	env = execute(t, tool, map[string]any{})
	if env.Success || !strings.Contains(env.Error, "path") {
		t.Errorf("Expected validation failure, got %+v", env)
	}
}

func TestListFilesTool(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "b.spec.ts"), []byte(""), 0644)
	os.WriteFile(filepath.Join(tmpDir, "a.spec.ts"), []byte(""), 0644)
	os.Mkdir(filepath.Join(tmpDir, "fixtures"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "fixtures", "nested.json"), []byte("{}"), 0644)

	tool := NewListFilesTool()

	env := execute(t, tool, map[string]any{"path": tmpDir})
	if !env.Success || env.Files == nil {
		t.Fatalf("Unexpected envelope: %+v", env)
	}
	files := *env.Files
	want := []string{"a.spec.ts", "b.spec.ts", "fixtures"}
	if len(files) != len(want) {
		t.Fatalf("Expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, files)
			break
		}
	}

	// Empty directory still reports an (empty) list
	empty := filepath.Join(tmpDir, "empty")
	os.Mkdir(empty, 0755)
	out, _ := tool.Execute(context.Background(), map[string]any{"path": empty})
	if !strings.Contains(out, `"files":[]`) {
		t.Errorf("Expected empty files list, got %s", out)
	}

	// Non-existent directory
	env = execute(t, tool, map[string]any{"path": filepath.Join(tmpDir, "missing")})
	if env.Success || env.Error == "" {
		t.Errorf("Expected failure envelope, got %+v", env)
	}
}

func TestListFilesTool_DefaultPath(t *testing.T) {
	env := execute(t, NewListFilesTool(), map[string]any{})
	if !env.Success || env.Path == nil || *env.Path != "." {
		t.Errorf("Expected listing of current directory, got %+v", env)
	}
}

func TestListFilesTool_Disallowed(t *testing.T) {
	// Neither exists in the working directory of the test; rejection must not depend on I/O
	for _, path := range []string{".git", "node_modules", "./.git", ".git/", "node_modules/"} {
		env := execute(t, NewListFilesTool(), map[string]any{"path": path})
		if env.Success || !strings.Contains(env.Error, "not allowed") {
			t.Errorf("%s: expected rejection, got %+v", path, env)
		}
		if env.Path == nil || *env.Path != path {
			t.Errorf("%s: envelope should carry the path", path)
		}
	}
}

func TestReadFileTool(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := "Hello, pwtpilot!\nline two"
	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool()

	// Test normal read
	env := execute(t, tool, map[string]any{"path": testFile})
	if !env.Success || env.Content == nil || *env.Content != testContent {
		t.Errorf("Unexpected envelope: %+v", env)
	}

	// Test reading non-existent file
	env = execute(t, tool, map[string]any{"path": filepath.Join(tmpDir, "not_exist.txt")})
	if env.Success || env.Error == "" {
		t.Errorf("Reading non-existent file should fail, got %+v", env)
	}

	// Test missing parameter
	env = execute(t, tool, map[string]any{})
	if env.Success {
		t.Error("Missing parameter should fail")
	}
}

func TestEditFileTool(t *testing.T) {
	tmpDir := t.TempDir()
	tool := NewEditFileTool()
	path := filepath.Join(tmpDir, "login.spec.ts")

	// Create with null old_str
	env := execute(t, tool, map[string]any{"path": path, "old_str": nil, "new_str": "await page.click('#a');\nawait page.click('#a');\n"})
	if !env.Success || env.Action != "create" {
		t.Fatalf("Expected create, got %+v", env)
	}

	// Replace first occurrence only
	env = execute(t, tool, map[string]any{"path": path, "old_str": "#a", "new_str": "#b"})
	if !env.Success || env.Action != "edit" {
		t.Fatalf("Expected edit, got %+v", env)
	}
	if env.Matches == nil || *env.Matches != 2 {
		t.Errorf("Expected matches=2, got %v", env.Matches)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "await page.click('#b');\nawait page.click('#a');\n" {
		t.Errorf("Unexpected content after edit: %q", content)
	}

	// old_str not found leaves the file untouched
	env = execute(t, tool, map[string]any{"path": path, "old_str": "#zzz", "new_str": "x"})
	if env.Success || !strings.Contains(env.Error, "not found") {
		t.Errorf("Expected not found failure, got %+v", env)
	}
	after, _ := os.ReadFile(path)
	if string(after) != string(content) {
		t.Error("File should be unchanged when old_str is not found")
	}

	// Empty old_str is rejected
	env = execute(t, tool, map[string]any{"path": path, "old_str": "", "new_str": "x"})
	if env.Success {
		t.Error("Empty old_str should be rejected")
	}

	// Null old_str overwrites an existing file
	env = execute(t, tool, map[string]any{"path": path, "old_str": nil, "new_str": "fresh"})
	if !env.Success || env.Action != "create" {
		t.Fatalf("Expected overwrite, got %+v", env)
	}
	content, _ = os.ReadFile(path)
	if string(content) != "fresh" {
		t.Errorf("Expected overwritten content, got %q", content)
	}
}

func TestEditFileTool_DescriptionStatesRejections(t *testing.T) {
	desc := NewEditFileTool().Description()
	for _, want := range []string{"not found", "rejected", "first match"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Description should mention %q:\n%s", want, desc)
		}
	}
}

func TestEditFileTool_MissingFileIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.spec.ts")

	// A non-null old_str on a missing file still writes new_str verbatim
	env := execute(t, NewEditFileTool(), map[string]any{"path": path, "old_str": "anything", "new_str": "test('x', async () => {});"})
	if !env.Success || env.Action != "create" {
		t.Fatalf("Expected create, got %+v", env)
	}

	// Round trip through read_file returns the bytes just written
	read := execute(t, NewReadFileTool(), map[string]any{"path": path})
	if read.Content == nil || *read.Content != "test('x', async () => {});" {
		t.Errorf("Round trip mismatch: %+v", read)
	}
}

func TestEditFileTool_NoParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "a.spec.ts")

	env := execute(t, NewEditFileTool(), map[string]any{"path": path, "old_str": nil, "new_str": "x"})
	if env.Success || env.Error == "" {
		t.Errorf("Expected failure when parent directory is missing, got %+v", env)
	}
}

func newRunner(t *testing.T, command ...string) *RunPwtTool {
	t.Helper()
	return NewRunPwtTool(config.RunnerConfig{
		Command:        command,
		WorkDir:        t.TempDir(),
		TimeoutSeconds: 30,
	})
}

func TestRunPwtTool_CommandLine(t *testing.T) {
	tool := NewRunPwtTool(config.RunnerConfig{})
	got := strings.Join(tool.CommandLine("tests/login.spec.ts"), " ")
	if got != "npx playwright test tests/login.spec.ts" {
		t.Errorf("Unexpected command line: %s", got)
	}
}

func TestRunPwtTool_Passed(t *testing.T) {
	tool := newRunner(t, "sh", "-c", `echo "1 passed ($2)"`, "sh")

	env := execute(t, tool, map[string]any{"specFile": "login.spec.ts"})
	if !env.Success {
		t.Fatalf("Expected success, got %+v", env)
	}
	if env.Stdout == nil || !strings.Contains(*env.Stdout, "1 passed (login.spec.ts)") {
		t.Errorf("Stdout should carry runner output, got %+v", env.Stdout)
	}
	if env.Error != "" || env.Message != "" {
		t.Errorf("Success should carry no error or message: %+v", env)
	}
}

func TestRunPwtTool_TestsFailed(t *testing.T) {
	tool := newRunner(t, "sh", "-c", `echo "1 failed"; echo "trace" >&2; exit 1`, "sh")

	env := execute(t, tool, map[string]any{"specFile": "login.spec.ts"})
	if env.Success {
		t.Fatal("Expected failure")
	}
	if env.Message != MessageTestsFailed {
		t.Errorf("Expected message %q, got %q", MessageTestsFailed, env.Message)
	}
	if env.Stdout == nil || *env.Stdout != "1 failed\n" {
		t.Errorf("Failing output should be preserved verbatim, got %v", env.Stdout)
	}
	if env.Stderr == nil || *env.Stderr != "trace\n" {
		t.Errorf("Stderr should be preserved, got %v", env.Stderr)
	}
	if env.Error != "" {
		t.Errorf("Test failures are not runner errors: %q", env.Error)
	}
}

func TestRunPwtTool_RunnerBroken(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		want    string
	}{
		{"missing binary", []string{"/nonexistent/playwright"}, "/nonexistent/playwright"},
		{"no stdout", []string{"sh", "-c", `echo "cannot find module" >&2; exit 2`, "sh"}, "cannot find module"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := execute(t, newRunner(t, tt.command...), map[string]any{"specFile": "login.spec.ts"})
			if env.Success {
				t.Fatal("Expected failure")
			}
			if !strings.Contains(env.Error, tt.want) {
				t.Errorf("Expected error containing %q, got %q", tt.want, env.Error)
			}
			if env.Stdout == nil || *env.Stdout != "" || env.Stderr == nil || *env.Stderr != "" {
				t.Errorf("Broken runner reports empty streams, got %+v", env)
			}
		})
	}
}

func TestRunPwtTool_Timeout(t *testing.T) {
	tool := NewRunPwtTool(config.RunnerConfig{
		Command:        []string{"sh", "-c", "exec sleep 5", "sh"},
		TimeoutSeconds: 1,
	})

	env := execute(t, tool, map[string]any{"specFile": "slow.spec.ts"})
	if env.Success || !strings.Contains(env.Error, "timeout") {
		t.Errorf("Expected timeout failure, got %+v", env)
	}
}

func TestRunPwtTool_TimeoutAfterOutput(t *testing.T) {
	tool := NewRunPwtTool(config.RunnerConfig{
		Command:        []string{"sh", "-c", "echo 'Running 1 test'; exec sleep 5", "sh"},
		TimeoutSeconds: 1,
	})

	env := execute(t, tool, map[string]any{"specFile": "hangs.spec.ts"})
	if env.Success {
		t.Fatal("Expected failure")
	}
	if env.Message == MessageTestsFailed {
		t.Errorf("A hung runner must not be reported as failing tests: %+v", env)
	}
	if !strings.Contains(env.Error, "timeout") {
		t.Errorf("Expected timeout error, got %q", env.Error)
	}
	if env.Stdout == nil || !strings.Contains(*env.Stdout, "Running 1 test") {
		t.Errorf("Partial output should be kept, got %v", env.Stdout)
	}
}

func TestRunPwtTool_MissingSpecFile(t *testing.T) {
	env := execute(t, newRunner(t, "true"), map[string]any{})
	if env.Success || !strings.Contains(env.Error, "specFile") {
		t.Errorf("Expected validation failure, got %+v", env)
	}
}
