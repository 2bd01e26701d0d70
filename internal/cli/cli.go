package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hession/pwtpilot/internal/agent"
	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/history"
	"github.com/hession/pwtpilot/internal/llm"
	"github.com/hession/pwtpilot/internal/logger"
	"github.com/hession/pwtpilot/internal/remote"
	"github.com/hession/pwtpilot/internal/tools"
)

const Version = "0.1.0"

// ErrEmptyTask is returned when no task was given or entered
var ErrEmptyTask = errors.New("task cannot be empty")

// InitLogger initializes the default logger from configuration
func InitLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.Console,
	})
}

// Run executes one task end to end: catalog, model, loop, answer.
// An empty task is read interactively.
func Run(ctx context.Context, cfg *config.Config, task string, out io.Writer) error {
	p := newPrinter(out)

	if !cfg.IsAPIKeyConfigured() {
		p.warn("API key not configured. Set LLM_API_KEY in %s/.secrets or %s_MODEL_API_KEY in the environment.",
			config.GetConfigDir(), config.EnvPrefix)
	}

	store := openHistory(cfg, p)
	if store != nil {
		defer store.Close()
	}

	task = strings.TrimSpace(task)
	if task == "" {
		var suggestions []string
		if store != nil {
			suggestions, _ = store.RecentTasks(20)
		}
		task = strings.TrimSpace(readTask(suggestions))
	}
	if task == "" {
		return ErrEmptyTask
	}

	promptCfg, err := config.LoadPromptConfig()
	if err != nil {
		return fmt.Errorf("failed to load prompt config: %w", err)
	}

	catalog, closeCatalog, err := BuildCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	opts := []agent.Option{
		agent.WithErrorPrefix(promptCfg.GetErrorPrefix()),
		agent.WithToolCallHandler(p.toolCall),
		agent.WithModelRetries(cfg.Agent.ModelRetries),
	}
	if cfg.Agent.Stream {
		opts = append(opts, agent.WithStreamHandler(p.stream))
	}
	if store != nil {
		opts = append(opts, agent.WithRecorder(store))
	}

	model := NewModel(cfg)
	loop, err := agent.NewLoop(model, opts...)
	if err != nil {
		return err
	}

	p.header(task, model.Model(), catalog.Len())

	req := agent.NewRequest(cfg, promptCfg.GetInstruction(), task, catalog)
	result, err := loop.Run(ctx, req)
	if err != nil {
		logger.Error("run failed: %v", err)
		return fmt.Errorf("run failed: %w", err)
	}

	p.result(result, cfg.Agent.Stream)
	return nil
}

// NewModel builds the completion client from configuration
func NewModel(cfg *config.Config) *llm.Client {
	return llm.New(llm.Options{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		Model:       cfg.Model.Model,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Timeout:     time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
	})
}

// BuildCatalog merges the local tools with the remote catalog when the remote
// server is enabled. The returned func closes the remote connection.
func BuildCatalog(ctx context.Context, cfg *config.Config) (*tools.Registry, func(), error) {
	local := tools.LocalTools(cfg)

	if !cfg.Remote.Enabled {
		logger.Info("remote tool server disabled, using local tools only")
		catalog, err := tools.NewCatalog(local, nil)
		return catalog, func() {}, err
	}

	proxy, err := remote.Connect(ctx, cfg.Remote)
	if err != nil {
		logger.Error("failed to connect remote tool server: %v", err)
		return nil, nil, err
	}

	catalog, err := tools.NewCatalog(local, proxy.Tools())
	if err != nil {
		proxy.Close()
		return nil, nil, fmt.Errorf("failed to build tool catalog (remote %s): %w", proxy.Endpoint(), err)
	}
	logger.Info("tool catalog: %d local, %d from %s", len(local), len(proxy.Tools()), proxy.Endpoint())

	return catalog, func() { proxy.Close() }, nil
}

// OpenHistory opens the run history store, or returns nil when history is disabled
func OpenHistory(cfg *config.Config) (*history.SQLiteStore, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.NewSQLiteStore(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}

// openHistory is OpenHistory for a run: a broken store never blocks the task
func openHistory(cfg *config.Config, p *printer) *history.SQLiteStore {
	store, err := OpenHistory(cfg)
	if err != nil {
		logger.Warn("run history unavailable: %v", err)
		p.warn("%v", err)
		return nil
	}
	return store
}

// truncateForDisplay flattens text to one line of at most maxLen runes
func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
