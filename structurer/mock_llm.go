package structurer

import (
	"context"
	"encoding/json"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 直接把用户输入回显为最小的结构化文档。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, env Envelope) (string, error) {
	prompt := env.UserPrompt()
	doc := Fields{
		OriginalPrompt: prompt,
		Task:           prompt,
		Entities:       strings.Fields(prompt),
		Style:          "neutral",
		OutputFormat:   "text",
	}.normalized()
	b, err := json.Marshal(doc)
	if err != nil {
		return "", &CompletionError{Kind: KindEmptyResponse, Err: err}
	}
	return string(b), nil
}

// StubLLM returns a fixed reply or error. It records every Envelope it sees.
type StubLLM struct {
	Reply string
	Err   error
	Calls []Envelope
}

func (s *StubLLM) Complete(_ context.Context, env Envelope) (string, error) {
	s.Calls = append(s.Calls, env)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}
