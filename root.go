package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prompt_json_structurer/config"
	"prompt_json_structurer/structurer"
)

var version = "dev"

type rootOptions struct {
	configPath string
	debug      bool
	mock       bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "structurer",
		Short: "Turn freeform prompts into structured JSON",
		Long: `structurer sends a natural-language prompt to an LLM with a fixed
instruction envelope and renders the reply as a structured document
(task, entities, subtasks, constraints, style, output format, ...).

The API key is read from GROQ_API_KEY (a .env file in the working
directory is loaded automatically) or from the config file.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a .json or .yaml config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.mock, "mock", false, "use the built-in mock model instead of calling an API")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInteractiveCommand(opts))

	return cmd
}

// loadApp reads configuration, sets up logging and builds the completion client.
func loadApp(opts *rootOptions) (config.Config, structurer.LLMClient, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if opts.mock {
		cfg.LLM.Provider = config.ProviderMock
	}
	setupLogging(cfg.LogLevel, opts.debug)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	llm, err := buildLLM(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.Debug("completion client ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return cfg, llm, nil
}

func buildLLM(cfg config.Config) (structurer.LLMClient, error) {
	settings := cfg.Settings()
	switch cfg.LLM.Provider {
	case config.ProviderGroq:
		return structurer.NewGroqClient(settings, nil)
	case config.ProviderOpenAI, config.ProviderDeepSeek:
		// DeepSeek 提供 OpenAI 兼容接口，base_url 由配置给出。
		return structurer.NewOpenAILLMFromConfig(&settings)
	case config.ProviderMock:
		return structurer.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.LLM.Provider)
	}
}

func agentOptions(cfg config.Config) []structurer.AgentOption {
	var opts []structurer.AgentOption
	if cfg.LLM.Model != "" {
		opts = append(opts, structurer.WithModel(cfg.LLM.Model))
	}
	return opts
}

func setupLogging(level string, debug bool) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
