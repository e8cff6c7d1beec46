package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/infra/ai/prompt"
)

const DefaultMaxContentChars = 75000

type Service struct {
	client          analysis.Client
	maxContentChars int
}

func NewService(client analysis.Client, maxContentChars int) *Service {
	if maxContentChars <= 0 {
		maxContentChars = DefaultMaxContentChars
	}
	return &Service{client: client, maxContentChars: maxContentChars}
}

// Analyze kirim isi modul ke model sekali, lalu pecah jawabannya per paragraf.
// Quota and transport errors are returned as-is; the caller skips the module.
func (s *Service) Analyze(ctx context.Context, m modules.Module, content string) (*analysis.Analysis, error) {
	text, err := s.client.Generate(ctx, prompt.GetModulePrompt(m, truncate(content, s.maxContentChars)))
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", m.Path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("analyze %s: %w", m.Path, analysis.ErrEmptyResponse)
	}
	a := analysis.ParseSections(m.Path, text)
	return &a, nil
}

// TicketDescription renders an analysis into a ticket body with the model.
func (s *Service) TicketDescription(ctx context.Context, m modules.Module, a *analysis.Analysis) (string, error) {
	text, err := s.client.Generate(ctx, prompt.GetTicketPrompt(m, a))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", analysis.ErrEmptyResponse
	}
	return text, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
