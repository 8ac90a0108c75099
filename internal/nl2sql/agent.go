package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqlsight/sqlsight/internal/llm"
	"github.com/sqlsight/sqlsight/internal/observability"
)

// AgentTranslator delegates translation to an LLM completer.
type AgentTranslator struct {
	completer llm.Completer
}

func NewAgentTranslator(completer llm.Completer) (*AgentTranslator, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	return &AgentTranslator{completer: completer}, nil
}

func (t *AgentTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	system, user, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	completion, err := t.completer.Complete(ctx, llm.Prompt{System: system, User: user, JSON: true})
	provider := completion.Provider
	if provider == "" {
		provider = "unknown"
	}
	observability.ObserveTranslation(provider, time.Since(start), err)
	if err != nil {
		return Result{}, fmt.Errorf("agent completion: %w", err)
	}

	reply, err := parseReply(completion.Text)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:            reply.SQL,
		SuggestedChart: reply.ChartType,
		Reasoning:      reply.Reasoning,
		Provider:       completion.Provider,
		Model:          completion.Model,
	}, nil
}
