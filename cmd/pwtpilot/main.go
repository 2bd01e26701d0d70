package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hession/pwtpilot/internal/cli"
	"github.com/hession/pwtpilot/internal/config"
	"github.com/hession/pwtpilot/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags that do not map one-to-one onto config keys
type rootOptions struct {
	configDir string
	noRemote  bool
	v         *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "pwtpilot [task...]",
		Short: "pwtpilot - Playwright test writing agent",
		Long: heredoc.Doc(`
			pwtpilot hands a natural-language task to a chat-completion model together with
			a set of tools, and lets the model explore a web page and write a Playwright test.

			The model can:
			  - drive a browser through a remote MCP tool server (e.g. the Playwright MCP server)
			  - create directories, list, read and edit files
			  - run a spec file with the Playwright test runner

			With no task on the command line, pwtpilot asks for one.`),
		Example: heredoc.Doc(`
			# Write a test for a page
			pwtpilot "Write a test that logs in on https://example.com/login"

			# Use another model and a higher step ceiling
			pwtpilot --model gpt-4o-mini --max-steps 40 "Test the checkout flow"

			# Local tools only
			pwtpilot --no-remote "Fix tests/login.spec.ts so it passes"`),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cli.InitLogger(cfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Close()
			logConfigInfo(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cli.Run(ctx, cfg, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configDir, "config-dir", "", "configuration directory (default ./config)")
	flags.BoolVar(&opts.noRemote, "no-remote", false, "do not connect the remote tool server")
	flags.String("model", "", "model identifier")
	flags.Float64("temperature", 0, "sampling temperature (omitted from requests unless set)")
	flags.Int("max-steps", 0, "maximum number of agent steps")
	flags.String("remote-url", "", "remote tool server URL")
	flags.Bool("stream", false, "stream model output")
	flags.String("workdir", "", "working directory of the test runner")

	bindings := map[string]string{
		config.KeyModel:            "model",
		config.KeyModelTemperature: "temperature",
		config.KeyAgentMaxSteps:    "max-steps",
		config.KeyRemoteURL:        "remote-url",
		config.KeyAgentStream:      "stream",
		config.KeyRunnerWorkDir:    "workdir",
	}
	for key, name := range bindings {
		_ = opts.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newConfigCmd(opts),
		newToolsCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig reads the config file, then applies environment and flag overrides
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configDir != "" {
		config.SetConfigDir(o.configDir)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.noRemote {
		o.v.Set(config.KeyRemoteEnabled, false)
	}
	if err := config.ApplyOverrides(cfg, o.v); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logConfigInfo logs configuration details, without secrets
func logConfigInfo(cfg *config.Config) {
	logger.Info("configuration loaded from %s", config.GetConfigDir())
	logger.Info("model: %s (%s), max steps %d", cfg.Model.Model, cfg.Model.BaseURL, cfg.Agent.MaxSteps)
	if cfg.Remote.Enabled {
		logger.Info("remote tool server: %s %s", cfg.Remote.TransportName(), cfg.Remote.URL)
	} else {
		logger.Info("remote tool server: disabled")
	}
	logger.Info("test runner: %s test <specFile>", strings.Join(cfg.Runner.Command, " "))
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(out, "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Long: heredoc.Doc(`
			Connects to the remote tool server the same way a run does and prints the
			merged catalog. Name collisions between local and remote tools are reported.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cli.InitLogger(cfg); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cli.ShowTools(ctx, cfg, cmd.OutOrStdout())
		},
	}
}

// errHistoryDisabled is returned by the history commands when history.enabled is false
var errHistoryDisabled = errors.New("run history is disabled (history.enabled: false)")

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := cli.OpenHistory(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return errHistoryDisabled
			}
			defer store.Close()

			return cli.ShowHistory(store, cmd.OutOrStdout(), limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its tool calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := cli.OpenHistory(cfg)
			if err != nil {
				return err
			}
			if store == nil {
				return errHistoryDisabled
			}
			defer store.Close()

			return cli.ShowRun(store, cmd.OutOrStdout(), args[0])
		},
	}
	historyCmd.AddCommand(showCmd)

	return historyCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pwtpilot v%s\n", cli.Version)
		},
	}
}

