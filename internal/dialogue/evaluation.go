package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/llm"
)

// GenerateQuestions asks the AI for n questions tailored to the candidate.
func (e *Engine) GenerateQuestions(ctx context.Context, p interview.Profile, t interview.Type, n int, loc i18n.Locale) ([]string, error) {
	if e.LLM == nil {
		return nil, fmt.Errorf("no language model configured")
	}
	if n <= 0 {
		n = 5
	}
	out, err := e.LLM.Generate(ctx, systemPrompt(loc), questionsPrompt(p, t, n, loc))
	if err != nil {
		return nil, err
	}
	raw, ok := llm.ExtractJSON(out)
	if !ok {
		return nil, fmt.Errorf("questions are not json: %q", out)
	}
	var parsed struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	qs := make([]string, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
		if len(qs) == n {
			break
		}
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("ai returned no questions")
	}
	return qs, nil
}

// FinalEvaluation scores a completed interview from its transcript.
func (e *Engine) FinalEvaluation(ctx context.Context, s *interview.Session, p interview.Profile) (*interview.Evaluation, error) {
	if e.LLM == nil {
		return nil, fmt.Errorf("no language model configured")
	}
	if len(s.Transcript) == 0 {
		return nil, fmt.Errorf("session %s has an empty transcript", s.ID)
	}
	out, err := e.LLM.Generate(ctx, systemPrompt(s.Language), finalPrompt(s, p))
	if err != nil {
		return nil, err
	}
	raw, ok := llm.ExtractJSON(out)
	if !ok {
		return nil, fmt.Errorf("evaluation is not json: %q", out)
	}
	var ev interview.Evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("decode final evaluation: %w", err)
	}
	ev.OverallScore = clampScore(ev.OverallScore)
	ev.Communication = clampScore(ev.Communication)
	for k, v := range ev.Skills {
		ev.Skills[k] = clampScore(v)
	}
	switch ev.Recommendation = strings.ToLower(strings.TrimSpace(ev.Recommendation)); ev.Recommendation {
	case "hire", "consider", "reject":
	default:
		ev.Recommendation = "consider"
	}
	ev.GeneratedAt = time.Now().UTC()
	return &ev, nil
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
