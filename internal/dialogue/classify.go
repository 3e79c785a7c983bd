package dialogue

import (
	"context"
	"log"
	"strings"
	"unicode"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
)

// DefaultShortUtterance is the word count at or below which the keyword
// heuristic classifies an utterance without calling the AI.
const DefaultShortUtterance = 8

// IsCandidateQuestion reports whether the candidate asked the interviewer
// something instead of answering.
func (e *Engine) IsCandidateQuestion(ctx context.Context, text string, loc i18n.Locale) bool {
	words := strings.Fields(text)
	if len(words) == 0 {
		return false
	}
	if len(words) <= e.shortUtterance() || e.LLM == nil {
		return looksLikeQuestion(text, loc)
	}
	out, err := e.LLM.Generate(ctx, systemPrompt(loc), classifyPrompt(text, loc))
	if err != nil {
		log.Printf("[dialogue] question classification fell back to heuristic: %v", err)
		return looksLikeQuestion(text, loc)
	}
	switch yesNo(out) {
	case answerYes:
		return true
	case answerNo:
		return false
	}
	log.Printf("[dialogue] unparseable classification %q, using heuristic", out)
	return looksLikeQuestion(text, loc)
}

func (e *Engine) shortUtterance() int {
	if e.ShortUtterance > 0 {
		return e.ShortUtterance
	}
	return DefaultShortUtterance
}

// looksLikeQuestion is the keyword-prefix heuristic.
func looksLikeQuestion(text string, loc i18n.Locale) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(norm, "?") {
		return true
	}
	norm = strings.TrimFunc(norm, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for _, p := range i18n.QuestionPrefixes(loc) {
		if norm == p || strings.HasPrefix(norm, p+" ") || strings.HasPrefix(norm, p+",") {
			return true
		}
	}
	return false
}

type answer int

const (
	answerUnknown answer = iota
	answerYes
	answerNo
)

func yesNo(s string) answer {
	first := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(first) == 0 {
		return answerUnknown
	}
	switch first[0] {
	case "yes", "да":
		return answerYes
	case "no", "нет":
		return answerNo
	}
	return answerUnknown
}
