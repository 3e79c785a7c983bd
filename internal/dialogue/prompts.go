package dialogue

import (
	"fmt"
	"strings"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

func systemPrompt(loc i18n.Locale) string {
	return fmt.Sprintf("You are a professional, friendly job interviewer conducting a voice interview. "+
		"Keep every reply short enough to be spoken aloud. Always respond in %s.", i18n.LanguageName(loc))
}

func classifyPrompt(text string, loc i18n.Locale) string {
	return fmt.Sprintf("During an interview the candidate said (in %s):\n\"%s\"\n\n"+
		"Is the candidate asking the interviewer a question (about salary, the company, the process and so on) "+
		"instead of answering? Reply with exactly one word: YES or NO.", i18n.LanguageName(loc), text)
}

func profileBlock(p interview.Profile) string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "Candidate: %s\n", p.Name)
	}
	if p.JobTitle != "" {
		fmt.Fprintf(&b, "Position: %s\n", p.JobTitle)
	}
	if p.Summary != "" {
		fmt.Fprintf(&b, "Profile: %s\n", p.Summary)
	}
	return b.String()
}

func evaluatePrompt(in Input) string {
	return fmt.Sprintf("%s\nInterview question: %s\nCandidate answer: %s\n\n"+
		"Decide whether the answer is complete or needs one clarifying follow-up question. "+
		"Respond with JSON only: {\"needsFollowUp\": true|false, \"followUpQuestion\": \"...\", \"assessment\": \"...\"}. "+
		"Write followUpQuestion and assessment in %s.",
		profileBlock(in.Profile), in.Question, in.Answer, i18n.LanguageName(in.Locale))
}

func questionsPrompt(p interview.Profile, t interview.Type, n int, loc i18n.Locale) string {
	return fmt.Sprintf("%s\nPrepare %d %s interview questions for this candidate, ordered from general to specific. "+
		"Respond with JSON only: {\"questions\": [\"...\"]}. Write the questions in %s.",
		profileBlock(p), n, t, i18n.LanguageName(loc))
}

func finalPrompt(s *interview.Session, p interview.Profile) string {
	var b strings.Builder
	b.WriteString(profileBlock(p))
	b.WriteString("\nTranscript:\n")
	for _, t := range s.Transcript {
		role := "Interviewer"
		if t.Speaker == interview.SpeakerCandidate {
			role = "Candidate"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}
	fmt.Fprintf(&b, "\nEvaluate the candidate. Respond with JSON only: "+
		"{\"overallScore\": 0-100, \"skills\": {\"<skill>\": 0-100}, \"communication\": 0-100, "+
		"\"recommendation\": \"hire|consider|reject\", \"summary\": \"...\"}. Write the summary in %s.",
		i18n.LanguageName(s.Language))
	return b.String()
}
