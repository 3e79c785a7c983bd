package interview

import (
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
)

// Candidate is the invitation record that owns a session key. It is created and
// maintained by the candidate management layer; the interview core only reads it.
type Candidate struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Language       i18n.Locale `json:"preferredLanguage"`
	JobTitle       string      `json:"jobTitle,omitempty"`
	ProfileSummary string      `json:"profileSummary,omitempty"`
	SessionKey     string      `json:"-"`
	// InvitationExpiresAt bounds public access for sessions started from this invitation.
	InvitationExpiresAt time.Time `json:"invitationExpiresAt"`
	// Questions prepared by the candidate management layer, if any.
	Questions []string `json:"questions,omitempty"`
	Settings  Settings `json:"settings"`
}

// Profile is the subset of the candidate passed into prompts.
type Profile struct {
	Name     string
	JobTitle string
	Summary  string
	Language i18n.Locale
}

// Profile returns the prompt-facing view of the candidate.
func (c *Candidate) Profile() Profile {
	return Profile{Name: c.Name, JobTitle: c.JobTitle, Summary: c.ProfileSummary, Language: c.Language}
}
