// Package dialogue decides how the interviewer responds to each candidate turn.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/llm"
)

// Action is what the interviewer does next.
type Action string

const (
	// ActionRedirect answers a candidate question without moving on.
	ActionRedirect Action = "redirect"
	// ActionFollowUp asks a clarifying question about the current one.
	ActionFollowUp Action = "follow_up"
	// ActionRetry apologizes and asks the candidate to elaborate after an AI failure.
	ActionRetry    Action = "retry"
	ActionAdvance  Action = "advance"
	ActionComplete Action = "complete"
)

// Input is one candidate turn in context.
type Input struct {
	Question string
	Answer   string
	Profile  interview.Profile
	Locale   i18n.Locale
	// FollowUps already asked for Question.
	FollowUps int
	// NextQuestion is empty when Question is the last prepared question.
	NextQuestion string
}

// Decision is the interviewer's response to a turn.
type Decision struct {
	Action              Action
	Text                string
	IsCandidateQuestion bool
	FollowUpText        string
	Assessment          string
	ShouldContinue      bool
}

// Category is the transcript category for the AI turn carrying d.Text.
func (d Decision) Category() string {
	switch d.Action {
	case ActionRedirect:
		return interview.CategoryRedirect
	case ActionFollowUp, ActionRetry:
		return interview.CategoryFollowUp
	case ActionComplete:
		return interview.CategoryClosing
	}
	return interview.CategoryQuestion
}

// Engine holds the interviewer's decision policy.
type Engine struct {
	LLM     llm.Generator
	Catalog i18n.Catalog
	// MaxFollowUps per prepared question.
	MaxFollowUps   int
	ShortUtterance int
}

func NewEngine(gen llm.Generator, catalog i18n.Catalog, maxFollowUps int) *Engine {
	if catalog == nil {
		catalog = i18n.Default
	}
	return &Engine{LLM: gen, Catalog: catalog, MaxFollowUps: maxFollowUps}
}

type evaluation struct {
	NeedsFollowUp    bool   `json:"needsFollowUp"`
	FollowUpQuestion string `json:"followUpQuestion"`
	Assessment       string `json:"assessment"`
}

// Evaluate classifies the answer and picks redirect, follow-up, advance or complete.
func (e *Engine) Evaluate(ctx context.Context, in Input) Decision {
	if e.IsCandidateQuestion(ctx, in.Answer, in.Locale) {
		return Decision{
			Action:              ActionRedirect,
			Text:                e.Catalog.Text(in.Locale, i18n.MsgCandidateQuestion),
			IsCandidateQuestion: true,
			ShouldContinue:      true,
		}
	}

	ev, err := e.assess(ctx, in)
	if err != nil {
		log.Printf("[dialogue] evaluation failed, asking to elaborate: %v", err)
		return Decision{
			Action:         ActionRetry,
			Text:           e.Catalog.Text(in.Locale, i18n.MsgEvaluationFallback),
			ShouldContinue: true,
		}
	}

	if ev.NeedsFollowUp && in.FollowUps < e.MaxFollowUps {
		text := strings.TrimSpace(ev.FollowUpQuestion)
		if text == "" {
			text = e.Catalog.Text(in.Locale, i18n.MsgElaborate)
		}
		return Decision{Action: ActionFollowUp, Text: text, FollowUpText: text, Assessment: ev.Assessment, ShouldContinue: true}
	}
	if in.NextQuestion != "" {
		return Decision{Action: ActionAdvance, Text: in.NextQuestion, Assessment: ev.Assessment, ShouldContinue: true}
	}
	return Decision{Action: ActionComplete, Text: e.Catalog.Text(in.Locale, i18n.MsgClosing), Assessment: ev.Assessment}
}

func (e *Engine) assess(ctx context.Context, in Input) (evaluation, error) {
	if e.LLM == nil {
		return evaluation{}, fmt.Errorf("no language model configured")
	}
	out, err := e.LLM.Generate(ctx, systemPrompt(in.Locale), evaluatePrompt(in))
	if err != nil {
		return evaluation{}, err
	}
	raw, ok := llm.ExtractJSON(out)
	if !ok {
		return evaluation{}, fmt.Errorf("evaluation is not json: %q", out)
	}
	var ev evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return ev, nil
}

// Opening is the first interviewer turn of a session.
func (e *Engine) Opening(p interview.Profile, loc i18n.Locale, firstQuestion string) string {
	name := strings.TrimSpace(p.Name)
	greeting := i18n.Textf(e.Catalog, loc, i18n.MsgGreeting, name)
	if name == "" {
		greeting = strings.Replace(greeting, ", !", "!", 1)
	}
	return greeting + " " + firstQuestion
}
