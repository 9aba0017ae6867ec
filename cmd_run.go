package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"prompt_json_structurer/render"
	"prompt_json_structurer/structurer"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
	formatHTML     = "html"
)

type runOptions struct {
	file   string
	format string
	out    string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Structure a single prompt and print the result",
		Long: `Send one prompt to the model and print the structured result.

The prompt is taken from the arguments, or from --file ("-" reads stdin).
A reply that cannot be parsed is still printed, as a degraded result
carrying the error and the raw model response.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			cfg, llm, err := loadApp(root)
			if err != nil {
				return err
			}
			text, err := readPrompt(cmd.InOrStdin(), opts.file, args)
			if err != nil {
				return err
			}
			agent, err := structurer.NewAgent(llm, agentOptions(cfg)...)
			if err != nil {
				return err
			}
			return runOnce(cmd, agent, text, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", `read the prompt from a file ("-" for stdin)`)
	cmd.Flags().StringVar(&opts.format, "format", formatJSON, "output format: json, markdown or html")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write the result to this file instead of stdout")

	return cmd
}

func runOnce(cmd *cobra.Command, agent *structurer.Agent, text string, opts *runOptions) error {
	snap, err := agent.Submit(cmd.Context(), text)
	if err != nil {
		if errors.Is(err, structurer.ErrInvalidInput) {
			return errors.New(structurer.UserMessage(err))
		}
		return err
	}
	if snap.Phase == structurer.PhaseFailed {
		return &RequestFailedError{Message: snap.LastError}
	}
	if structurer.IsDegraded(snap.Result) {
		slog.Warn("model reply could not be structured, printing degraded result")
	}

	data, err := formatResult(snap.Result, opts.format)
	if err != nil {
		return err
	}
	if opts.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", opts.out)
	return nil
}

func formatResult(r structurer.Result, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case formatJSON:
		data, err := render.JSON(r)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case formatMarkdown, "md":
		return []byte(render.Markdown(r)), nil
	case formatHTML:
		html, err := render.HTML(r)
		if err != nil {
			return nil, err
		}
		return []byte(html), nil
	default:
		return nil, checkFormat(format)
	}
}

func checkFormat(format string) error {
	switch strings.ToLower(format) {
	case formatJSON, formatMarkdown, "md", formatHTML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want json, markdown or html)", format)
}

func readPrompt(stdin io.Reader, file string, args []string) (string, error) {
	if file == "" {
		return strings.Join(args, " "), nil
	}
	if len(args) > 0 {
		return "", errors.New("pass the prompt as arguments or with --file, not both")
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
