package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Iosefkan/Interviews-sub000/internal/interview"
)

const queryTimeout = 5 * time.Second

// Postgres stores sessions in interview_sessions and reads invitations from candidates.
// Tables are owned and migrated by the persistence layer.
type Postgres struct {
	DB *sql.DB
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

const sessionColumns = `id, session_key, candidate_id, is_public_access, expires_at, session_type, language,
	status, transcript, questions_generated, current_question_index, follow_ups, settings, access_log,
	evaluation, report_url, start_time, end_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(sc rowScanner) (*interview.Session, error) {
	var r sessionRow
	var transcript, questions, settings, accessLog, evaluation []byte
	err := sc.Scan(
		&r.ID, &r.SessionKey, &r.CandidateID, &r.IsPublicAccess, &r.ExpiresAt, &r.SessionType, &r.Language,
		&r.Status, &transcript, &questions, &r.CurrentQuestionIndex, &r.FollowUps, &settings, &accessLog,
		&evaluation, &r.ReportURL, &r.StartTime, &r.EndTime, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Transcript, r.Questions, r.Settings, r.AccessLog, r.Evaluation = transcript, questions, settings, accessLog, evaluation
	return r.toSession()
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*interview.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	s, err := scanSession(p.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM interview_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

func (p *Postgres) LatestSessionByKey(ctx context.Context, key string) (*interview.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	q := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE session_key = $1 ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(p.DB.QueryRowContext(ctx, q, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session for key: %w", ErrNotFound)
	}
	return s, err
}

func (p *Postgres) CreateSession(ctx context.Context, s *interview.Session) error {
	r, err := toSessionRow(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = p.DB.ExecContext(ctx, `INSERT INTO interview_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		r.ID, r.SessionKey, r.CandidateID, r.IsPublicAccess, r.ExpiresAt, r.SessionType, r.Language,
		r.Status, []byte(r.Transcript), []byte(r.Questions), r.CurrentQuestionIndex, r.FollowUps,
		[]byte(r.Settings), []byte(r.AccessLog), nullableJSON(r.Evaluation), r.ReportURL,
		r.StartTime, r.EndTime, r.CreatedAt, r.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("session %s: %w", s.ID, ErrExists)
	}
	return err
}

func (p *Postgres) SaveSession(ctx context.Context, s *interview.Session) error {
	r, err := toSessionRow(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := p.DB.ExecContext(ctx, `UPDATE interview_sessions SET
			status = $2, transcript = $3, questions_generated = $4, current_question_index = $5,
			follow_ups = $6, settings = $7, access_log = $8, evaluation = $9, report_url = $10,
			start_time = $11, end_time = $12, updated_at = $13
		WHERE id = $1`,
		r.ID, r.Status, []byte(r.Transcript), []byte(r.Questions), r.CurrentQuestionIndex,
		r.FollowUps, []byte(r.Settings), []byte(r.AccessLog), nullableJSON(r.Evaluation), r.ReportURL,
		r.StartTime, r.EndTime, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) OpenSessions(ctx context.Context) ([]*interview.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := p.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM interview_sessions WHERE status = ANY($1)`,
		pq.Array([]string{string(interview.StatusPending), string(interview.StatusActive)}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*interview.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) CandidateByKey(ctx context.Context, key string) (*interview.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var r candidateRow
	var questions, settings []byte
	err := p.DB.QueryRowContext(ctx, `SELECT id, name, preferred_language, job_title, profile_summary,
			session_key, invitation_expires_at, questions, settings
		FROM candidates WHERE session_key = $1`, key).Scan(
		&r.ID, &r.Name, &r.PreferredLanguage, &r.JobTitle, &r.ProfileSummary,
		&r.SessionKey, &r.InvitationExpiresAt, &questions, &settings,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate for key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Questions, r.Settings = questions, settings
	return r.toCandidate()
}

func (p *Postgres) PutCandidate(ctx context.Context, c *interview.Candidate) error {
	r, err := toCandidateRow(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = p.DB.ExecContext(ctx, `INSERT INTO candidates
			(id, name, preferred_language, job_title, profile_summary, session_key, invitation_expires_at, questions, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, preferred_language = EXCLUDED.preferred_language,
			job_title = EXCLUDED.job_title, profile_summary = EXCLUDED.profile_summary,
			session_key = EXCLUDED.session_key, invitation_expires_at = EXCLUDED.invitation_expires_at,
			questions = EXCLUDED.questions, settings = EXCLUDED.settings`,
		r.ID, r.Name, r.PreferredLanguage, r.JobTitle, r.ProfileSummary, r.SessionKey,
		r.InvitationExpiresAt, []byte(r.Questions), []byte(r.Settings),
	)
	return err
}

// Close releases the pool.
func (p *Postgres) Close() error { return p.DB.Close() }

func nullableJSON(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
