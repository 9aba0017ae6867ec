package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"prompt_json_structurer/render"
	"prompt_json_structurer/structurer"
)

type action string

const (
	actionEdit    action = "edit"
	actionExpand  action = "expand"
	actionNew     action = "new"
	actionSave    action = "save"
	actionRetry   action = "retry"
	actionDismiss action = "dismiss"
	actionQuit    action = "quit"
)

var actionLabels = map[action]string{
	actionEdit:    "Edit prompt",
	actionExpand:  "Keep typing",
	actionNew:     "New prompt",
	actionSave:    "Save JSON",
	actionRetry:   "Retry",
	actionDismiss: "Dismiss error",
	actionQuit:    "Quit",
}

var (
	readyActions  = []action{actionEdit, actionExpand, actionNew, actionSave, actionQuit}
	failedActions = []action{actionRetry, actionDismiss, actionNew, actionQuit}
)

// errQuit ends an interactive session without an error.
var errQuit = errors.New("quit")

// sessionUI is the terminal side of an interactive session.
type sessionUI interface {
	// EditPrompt asks for prompt text, starting from initial.
	EditPrompt(initial string) (string, error)
	// Choose asks which of the given actions to take next.
	Choose(title string, actions []action) (action, error)
}

type interactiveSession struct {
	agent   *structurer.Agent
	ui      sessionUI
	out     io.Writer
	saveDir string
}

func newInteractiveCommand(root *rootOptions) *cobra.Command {
	var saveDir string
	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Structure prompts interactively",
		Long: `Start an interactive session: type a prompt (or pick an example),
review the structured result, then edit it, keep typing, save the JSON
or start over.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, llm, err := loadApp(root)
			if err != nil {
				return err
			}
			agent, err := structurer.NewAgent(llm, agentOptions(cfg)...)
			if err != nil {
				return err
			}
			s := &interactiveSession{
				agent:   agent,
				ui:      newHuhUI(cmd.InOrStdin(), cmd.OutOrStdout()),
				out:     cmd.OutOrStdout(),
				saveDir: saveDir,
			}
			return s.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&saveDir, "save-dir", ".", "directory for saved JSON results")
	return cmd
}

func (s *interactiveSession) run(ctx context.Context) error {
	for {
		if err := s.step(ctx); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

// step handles one user turn in the session's current phase.
func (s *interactiveSession) step(ctx context.Context) error {
	snap := s.agent.Snapshot()
	switch snap.Phase {
	case structurer.PhaseIdle:
		text, err := s.ui.EditPrompt(snap.PromptText)
		if err != nil {
			return err
		}
		s.agent.SetPromptText(text)
		return s.submit(ctx, text)

	case structurer.PhaseReady:
		fmt.Fprintln(s.out, render.Markdown(snap.Result))
		act, err := s.ui.Choose("What next?", readyActions)
		if err != nil {
			return err
		}
		switch act {
		case actionEdit:
			s.agent.EditPrompt(snap.EditTarget())
		case actionExpand:
			s.agent.Expand()
		case actionNew:
			s.agent.Reset()
		case actionSave:
			path, err := s.save(snap.Result)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "Saved %s\n", path)
			// stays in Ready; the result is shown again
		case actionQuit:
			return errQuit
		}

	case structurer.PhaseFailed:
		fmt.Fprintf(s.out, "Error: %s\n", snap.LastError)
		act, err := s.ui.Choose("The request failed.", failedActions)
		if err != nil {
			return err
		}
		switch act {
		case actionRetry:
			return s.submit(ctx, snap.PromptText)
		case actionDismiss:
			s.agent.DismissError()
		case actionNew:
			s.agent.Reset()
		case actionQuit:
			return errQuit
		}

	default:
		return fmt.Errorf("unexpected session phase %s", snap.Phase)
	}
	return nil
}

func (s *interactiveSession) submit(ctx context.Context, text string) error {
	fmt.Fprintln(s.out, "Optimizing your prompt...")
	_, err := s.agent.Submit(ctx, strings.TrimSpace(text))
	if errors.Is(err, structurer.ErrInvalidInput) {
		fmt.Fprintln(s.out, structurer.UserMessage(err))
		return nil
	}
	return err
}

func (s *interactiveSession) save(r structurer.Result) (string, error) {
	data, err := render.JSON(r)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.saveDir, render.DownloadFilename)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("save result: %w", err)
	}
	return path, nil
}

// --- huh forms ---

type huhUI struct {
	in  io.Reader
	out io.Writer
	// lines is set when input is not a terminal and forms run accessible.
	lines *lineReader
}

func newHuhUI(in io.Reader, out io.Writer) *huhUI {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return &huhUI{in: in, out: out}
	}
	lines := &lineReader{r: bufio.NewReader(in)}
	return &huhUI{in: lines, out: out, lines: lines}
}

func (u *huhUI) EditPrompt(initial string) (string, error) {
	text := initial
	if strings.TrimSpace(text) == "" {
		options := []huh.Option[string]{huh.NewOption("Write my own", "")}
		for _, ex := range structurer.ExamplePrompts {
			options = append(options, huh.NewOption(ex, ex))
		}
		if err := u.run(huh.NewSelect[string]().
			Title("Try an example or write your own").
			Options(options...).
			Value(&text)); err != nil {
			return "", err
		}
	}

	if err := u.run(huh.NewText().
		Title("Your prompt").
		Description("Describe what you want in plain language").
		Placeholder("Write a blog post about...").
		Value(&text)); err != nil {
		return "", err
	}
	return text, nil
}

func (u *huhUI) Choose(title string, actions []action) (action, error) {
	options := make([]huh.Option[action], 0, len(actions))
	for _, a := range actions {
		options = append(options, huh.NewOption(actionLabels[a], a))
	}
	choice := actions[0]
	if err := u.run(huh.NewSelect[action]().
		Title(title).
		Options(options...).
		Value(&choice)); err != nil {
		return "", err
	}
	return choice, nil
}

func (u *huhUI) run(field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(u.in).
		WithOutput(u.out)
	if u.lines != nil {
		return u.runAccessible(form)
	}
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, io.EOF) {
			return errQuit
		}
		return err
	}
	return nil
}

// runAccessible runs form line by line. Accessible fields cannot report end
// of input: they fall back to their default, or panic when a select is left
// on an invalid answer. A field that ran out of input therefore quits.
func (u *huhUI) runAccessible(form *huh.Form) (err error) {
	before := u.lines.count
	defer func() {
		if r := recover(); r != nil {
			if !u.lines.eof {
				panic(r)
			}
			err = errQuit
		}
	}()
	if err := form.WithAccessible(true).Run(); err != nil {
		return err
	}
	if u.lines.eof && u.lines.count == before {
		return errQuit
	}
	return nil
}

// lineReader returns at most one line per Read. Each accessible field scans
// its input with a fresh bufio.Scanner, so a larger read would swallow the
// answers meant for the fields after it.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
	count   int // lines handed out
	eof     bool
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		line, err := l.r.ReadBytes('\n')
		if len(line) == 0 {
			if errors.Is(err, io.EOF) {
				l.eof = true
			}
			return 0, err
		}
		l.count++
		l.pending = line
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}
