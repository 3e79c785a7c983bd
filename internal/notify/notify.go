// Package notify tells recruiters when an interview has completed.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

// Nop drops every notice.
type Nop struct{}

func (Nop) InterviewCompleted(context.Context, *interview.Session, *interview.Candidate) error {
	return nil
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMS sends a completion summary by Twilio SMS.
type SMS struct {
	config Config
	api    messageCreator
}

func NewSMS(config Config) *SMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: config.AccountSID,
		Password: config.AuthToken,
	})
	return &SMS{config: config, api: client.Api}
}

func (s *SMS) InterviewCompleted(_ context.Context, sess *interview.Session, c *interview.Candidate) error {
	if s.config.AccountSID == "" || s.config.AuthToken == "" {
		return fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to send SMS")
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.config.To)
	params.SetFrom(s.config.From)
	params.SetBody(Summary(sess, c))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	if msg != nil && msg.Sid != nil {
		log.Printf("[%s] completion SMS sent: %s", sess.ID, *msg.Sid)
	}
	return nil
}

// Summary is the one-line completion notice.
func Summary(sess *interview.Session, c *interview.Candidate) string {
	var b strings.Builder
	b.WriteString("Interview completed")
	if c != nil && c.Name != "" {
		fmt.Fprintf(&b, ": %s", c.Name)
		if c.JobTitle != "" {
			fmt.Fprintf(&b, " (%s)", c.JobTitle)
		}
	}
	fmt.Fprintf(&b, ". %d questions", len(sess.Questions))
	if d := sess.Duration(); d > 0 {
		fmt.Fprintf(&b, " in %d min", int(d.Minutes()+0.5))
	}
	if ev := sess.Evaluation; ev != nil {
		fmt.Fprintf(&b, ", score %.0f, %s", ev.OverallScore, ev.Recommendation)
	}
	fmt.Fprintf(&b, ". Session %s", sess.ID)
	return b.String()
}
