package structurer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Agent 驱动一个 Session：构造请求、调用模型、解析回复并提交结果。
type Agent struct {
	llm     LLMClient
	builder EnvelopeBuilder
	session *Session
	logger  *slog.Logger
}

// AgentOption 用于定制 Agent。
type AgentOption func(*Agent)

// WithModel overrides the model identifier placed in every Envelope.
func WithModel(model string) AgentOption {
	return func(a *Agent) { a.builder.Model = model }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = logger }
}

func NewAgent(llm LLMClient, opts ...AgentOption) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{llm: llm, session: NewSession(), logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Submit runs one prompt through the model. Blank text returns
// ErrInvalidInput without touching the session or the network. A call made
// while another submission is in flight is ignored. Transport failures are
// not returned; they leave the session in PhaseFailed with a user-facing
// message, while unusable replies land in PhaseReady as a DegradedResult.
func (a *Agent) Submit(ctx context.Context, text string) (Snapshot, error) {
	env, err := a.builder.Build(text)
	if err != nil {
		return a.session.Snapshot(), err
	}
	ticket, ok := a.session.submit(text)
	if !ok {
		a.logger.Debug("submit ignored, request already in flight")
		return a.session.Snapshot(), nil
	}

	start := time.Now()
	a.logger.Debug("sending completion request", "model", env.Model, "prompt_len", len(text))
	raw, err := a.llm.Complete(ctx, env)
	if err != nil {
		kind, _ := KindOf(err)
		a.logger.Warn("completion failed", "kind", kind, "err", err, "duration", time.Since(start))
		a.session.fail(ticket, UserMessage(err))
		return a.session.Snapshot(), nil
	}

	result := Parse(raw, text)
	if d, ok := result.(DegradedResult); ok {
		a.logger.Warn("model reply degraded", "reason", d.Error, "raw_len", len(raw))
	} else {
		a.logger.Debug("model reply parsed", "duration", time.Since(start))
	}
	if !a.session.succeed(ticket, result) {
		a.logger.Debug("dropping reply for a reset session")
	}
	return a.session.Snapshot(), nil
}

// EditPrompt 回到输入框并预填 text。
func (a *Agent) EditPrompt(text string) bool { return a.session.editPrompt(text) }

// Expand 回到输入框，保留当前文本继续补充。
func (a *Agent) Expand() bool { return a.session.expand() }

// DismissError clears the error banner, keeping the input for a retry.
func (a *Agent) DismissError() bool { return a.session.dismissError() }

// SetPromptText records text typed into the input.
func (a *Agent) SetPromptText(text string) bool { return a.session.setPromptText(text) }

// Reset 清空会话，回到初始状态。
func (a *Agent) Reset() { a.session.reset() }

func (a *Agent) Snapshot() Snapshot { return a.session.Snapshot() }
