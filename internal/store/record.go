package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

// sessionRow is the column layout shared by the Postgres and Supabase backends.
// Collections are stored as JSONB.
type sessionRow struct {
	ID                   string          `json:"id"`
	SessionKey           string          `json:"session_key"`
	CandidateID          string          `json:"candidate_id"`
	IsPublicAccess       bool            `json:"is_public_access"`
	ExpiresAt            time.Time       `json:"expires_at"`
	SessionType          string          `json:"session_type"`
	Language             string          `json:"language"`
	Status               string          `json:"status"`
	Transcript           json.RawMessage `json:"transcript"`
	Questions            json.RawMessage `json:"questions_generated"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	FollowUps            int             `json:"follow_ups"`
	Settings             json.RawMessage `json:"settings"`
	AccessLog            json.RawMessage `json:"access_log"`
	Evaluation           json.RawMessage `json:"evaluation"`
	ReportURL            *string         `json:"report_url"`
	StartTime            *time.Time      `json:"start_time"`
	EndTime              *time.Time      `json:"end_time"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type candidateRow struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	PreferredLanguage   string          `json:"preferred_language"`
	JobTitle            string          `json:"job_title"`
	ProfileSummary      string          `json:"profile_summary"`
	SessionKey          string          `json:"session_key"`
	InvitationExpiresAt time.Time       `json:"invitation_expires_at"`
	Questions           json.RawMessage `json:"questions"`
	Settings            json.RawMessage `json:"settings"`
}

func marshalJSON(v any, empty string) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return json.RawMessage(empty), nil
	}
	return b, nil
}

func unmarshalJSON(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func toSessionRow(s *interview.Session) (sessionRow, error) {
	r := sessionRow{
		ID:                   s.ID,
		SessionKey:           s.SessionKey,
		CandidateID:          s.CandidateID,
		IsPublicAccess:       s.IsPublicAccess,
		ExpiresAt:            s.ExpiresAt,
		SessionType:          string(s.Type),
		Language:             string(s.Language),
		Status:               string(s.Status),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		FollowUps:            s.FollowUps,
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
	if s.ReportURL != "" {
		u := s.ReportURL
		r.ReportURL = &u
	}
	var err error
	if r.Transcript, err = marshalJSON(s.Transcript, "[]"); err != nil {
		return r, fmt.Errorf("encode transcript: %w", err)
	}
	if r.Questions, err = marshalJSON(s.Questions, "[]"); err != nil {
		return r, fmt.Errorf("encode questions: %w", err)
	}
	if r.Settings, err = marshalJSON(s.Settings, "{}"); err != nil {
		return r, fmt.Errorf("encode settings: %w", err)
	}
	if r.AccessLog, err = marshalJSON(s.AccessLog, "[]"); err != nil {
		return r, fmt.Errorf("encode access log: %w", err)
	}
	if r.Evaluation, err = marshalJSON(s.Evaluation, "null"); err != nil {
		return r, fmt.Errorf("encode evaluation: %w", err)
	}
	return r, nil
}

func (r sessionRow) toSession() (*interview.Session, error) {
	s := &interview.Session{
		ID:                   r.ID,
		SessionKey:           r.SessionKey,
		CandidateID:          r.CandidateID,
		IsPublicAccess:       r.IsPublicAccess,
		ExpiresAt:            r.ExpiresAt,
		Type:                 interview.ParseType(r.SessionType),
		Language:             i18n.ParseLocale(r.Language),
		Status:               interview.Status(r.Status),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		FollowUps:            r.FollowUps,
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.ReportURL != nil {
		s.ReportURL = *r.ReportURL
	}
	if err := unmarshalJSON(r.Transcript, &s.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := unmarshalJSON(r.Questions, &s.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := unmarshalJSON(r.Settings, &s.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := unmarshalJSON(r.AccessLog, &s.AccessLog); err != nil {
		return nil, fmt.Errorf("decode access log: %w", err)
	}
	if len(r.Evaluation) > 0 && string(r.Evaluation) != "null" {
		var ev interview.Evaluation
		if err := json.Unmarshal(r.Evaluation, &ev); err != nil {
			return nil, fmt.Errorf("decode evaluation: %w", err)
		}
		s.Evaluation = &ev
	}
	return s, nil
}

func toCandidateRow(c *interview.Candidate) (candidateRow, error) {
	r := candidateRow{
		ID:                  c.ID,
		Name:                c.Name,
		PreferredLanguage:   string(c.Language),
		JobTitle:            c.JobTitle,
		ProfileSummary:      c.ProfileSummary,
		SessionKey:          c.SessionKey,
		InvitationExpiresAt: c.InvitationExpiresAt,
	}
	var err error
	if r.Questions, err = marshalJSON(c.Questions, "[]"); err != nil {
		return r, err
	}
	if r.Settings, err = marshalJSON(c.Settings, "{}"); err != nil {
		return r, err
	}
	return r, nil
}

func (r candidateRow) toCandidate() (*interview.Candidate, error) {
	c := &interview.Candidate{
		ID:                  r.ID,
		Name:                r.Name,
		Language:            i18n.ParseLocale(r.PreferredLanguage),
		JobTitle:            r.JobTitle,
		ProfileSummary:      r.ProfileSummary,
		SessionKey:          r.SessionKey,
		InvitationExpiresAt: r.InvitationExpiresAt,
	}
	if err := unmarshalJSON(r.Questions, &c.Questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if err := unmarshalJSON(r.Settings, &c.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return c, nil
}
