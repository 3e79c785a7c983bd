package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

type fakeMessages struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = p
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func completedSession() *interview.Session {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(12 * time.Minute)
	return &interview.Session{
		ID:         "s1",
		Questions:  []string{"a", "b", "c"},
		StartTime:  &start,
		EndTime:    &end,
		Evaluation: &interview.Evaluation{OverallScore: 72, Recommendation: "hire"},
	}
}

func TestSummary(t *testing.T) {
	c := &interview.Candidate{Name: "Alex", JobTitle: "Backend Engineer"}
	got := Summary(completedSession(), c)
	want := "Interview completed: Alex (Backend Engineer). 3 questions in 12 min, score 72, hire. Session s1"
	if got != want {
		t.Fatalf("summary =\n%q\nwant\n%q", got, want)
	}
	if got := Summary(&interview.Session{ID: "s2"}, nil); got != "Interview completed. 0 questions. Session s2" {
		t.Fatalf("bare summary = %q", got)
	}
}

func TestSMS_Sends(t *testing.T) {
	api := &fakeMessages{}
	s := &SMS{config: Config{AccountSID: "AC1", AuthToken: "tok", From: "+100", To: "+200"}, api: api}
	if err := s.InterviewCompleted(context.Background(), completedSession(), nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	p := api.params
	if p == nil || *p.To != "+200" || *p.From != "+100" || *p.Body == "" {
		t.Fatalf("params = %+v", p)
	}
}

func TestSMS_Errors(t *testing.T) {
	s := &SMS{config: Config{}, api: &fakeMessages{}}
	if err := s.InterviewCompleted(context.Background(), completedSession(), nil); err == nil {
		t.Fatalf("expected credentials error")
	}
	s = &SMS{config: Config{AccountSID: "AC1", AuthToken: "tok"}, api: &fakeMessages{err: errors.New("rate limited")}}
	if err := s.InterviewCompleted(context.Background(), completedSession(), nil); err == nil {
		t.Fatalf("expected api error")
	}
}
