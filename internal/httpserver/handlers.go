// Package httpserver exposes the interview REST boundary, the realtime route
// and operational endpoints.
package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Iosefkan/Interviews-sub000/internal/agent"
	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/interview"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
	"github.com/Iosefkan/Interviews-sub000/internal/middleware"
)

// MaxUploadBytes caps audio/process uploads.
const MaxUploadBytes = 50 << 20

var audioTypes = map[string]bool{
	"audio/wav": true, "audio/x-wav": true, "audio/wave": true,
	"audio/webm": true, "video/webm": true,
	"audio/mpeg": true, "audio/mp3": true,
	"audio/ogg": true,
	"audio/mp4": true, "audio/m4a": true, "audio/x-m4a": true,
}

var audioExts = map[string]bool{".wav": true, ".webm": true, ".mp3": true, ".ogg": true, ".m4a": true}

// Interviews is the session core behind the REST routes.
type Interviews interface {
	StartPublic(ctx context.Context, req agent.StartRequest) (*agent.StartResult, error)
	ProcessAudio(ctx context.Context, sessionID string, data []byte, ev agent.Events) (*agent.TurnResult, error)
	Terminate(ctx context.Context, sessionID string) (*interview.Session, error)
	Snapshot(ctx context.Context, sessionID string) (*interview.Session, error)
	Sweep(ctx context.Context) (int, error)
	Message(err error, loc i18n.Locale) string
}

type Validator interface {
	ValidateSession(ctx context.Context, sessionID, key string) (*interview.Session, error)
}

// Realtime serves the websocket channel.
type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Count() int
}

type Handlers struct {
	Interviews Interviews
	Validator  Validator
	Realtime   Realtime
	Metrics    *metrics.Metrics
	AdminToken string
	// MediaDir is served under /media when set.
	MediaDir string
	// Providers names the configured backends for /status.
	Providers map[string]string
	Started   time.Time
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/status", h.status)
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()))
	}
	if h.MediaDir != "" {
		e.Static("/media", h.MediaDir)
	}

	api := e.Group("/api")
	api.POST("/interviews/start-public", h.startPublic)
	api.POST("/audio/process", h.processAudio)

	admin := middleware.AdminAuth(func() string { return h.AdminToken })
	api.GET("/interviews/:id", h.snapshot, admin)
	api.POST("/interviews/:id/terminate", h.terminate, admin)
	api.POST("/interviews/sweep", h.sweep, admin)

	if h.Realtime != nil {
		e.GET("/ws/interview", echo.WrapHandler(http.HandlerFunc(h.Realtime.ServeWS)))
	}
}

type startRequest struct {
	SessionKey    string `json:"sessionKey"`
	InterviewType string `json:"interviewType"`
}

type startResponse struct {
	SessionID      string    `json:"sessionId"`
	Status         string    `json:"status"`
	Question       string    `json:"question"`
	Text           string    `json:"text"`
	AudioURL       *string   `json:"audioUrl"`
	QuestionIndex  int       `json:"questionIndex"`
	TotalQuestions int       `json:"totalQuestions"`
	Language       string    `json:"language"`
	Resumed        bool      `json:"resumed"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (h Handlers) startPublic(c echo.Context) error {
	var body startRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
	}
	if strings.TrimSpace(body.SessionKey) == "" {
		return h.fail(c, &invite.Rejection{Reason: invite.ReasonKeyRequired}, requestLocale(c))
	}
	res, err := h.Interviews.StartPublic(c.Request().Context(), agent.StartRequest{
		SessionKey: body.SessionKey,
		Type:       interview.ParseType(body.InterviewType),
		RemoteAddr: c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return h.fail(c, err, requestLocale(c))
	}
	s := res.Session
	return c.JSON(http.StatusOK, startResponse{
		SessionID:      s.ID,
		Status:         string(s.Status),
		Question:       res.Question,
		Text:           res.Text,
		AudioURL:       res.AudioURL,
		QuestionIndex:  s.CurrentQuestionIndex,
		TotalQuestions: len(s.Questions),
		Language:       string(s.Language),
		Resumed:        res.Resumed,
		ExpiresAt:      s.ExpiresAt,
	})
}

type turnResponse struct {
	Transcription       string  `json:"transcription"`
	Text                string  `json:"text"`
	AudioURL            *string `json:"audioUrl"`
	Action              string  `json:"action"`
	IsCandidateQuestion bool    `json:"isCandidateQuestion"`
	ShouldContinue      bool    `json:"shouldContinue"`
	QuestionIndex       int     `json:"questionIndex"`
	Completed           bool    `json:"completed"`
}

// processAudio is the synchronous fallback to the realtime channel: one
// complete recording in, one interviewer reply out.
func (h Handlers) processAudio(c echo.Context) error {
	loc := requestLocale(c)
	sessionID := c.FormValue("sessionId")
	sess, err := h.Validator.ValidateSession(c.Request().Context(), sessionID, c.FormValue("sessionKey"))
	if err != nil {
		return h.fail(c, err, loc)
	}
	loc = sess.Language

	fh, err := c.FormFile("audio")
	if err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindNoAudio, "audio.upload", errors.New("audio file is required")), loc)
	}
	if fh.Size > MaxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "audio file exceeds 50MB"})
	}
	if !acceptedAudio(fh.Header.Get(echo.HeaderContentType), fh.Filename) {
		return c.JSON(http.StatusUnsupportedMediaType, errorBody{Error: "unsupported audio type"})
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, err, loc)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxUploadBytes+1))
	if err != nil {
		return h.fail(c, err, loc)
	}
	if len(data) > MaxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "audio file exceeds 50MB"})
	}

	res, err := h.Interviews.ProcessAudio(c.Request().Context(), sess.ID, data, agent.Events{})
	if err != nil {
		return h.fail(c, err, loc)
	}
	return c.JSON(http.StatusOK, turnResponse{
		Transcription:       res.CandidateText,
		Text:                res.Text,
		AudioURL:            res.AudioURL,
		Action:              string(res.Action),
		IsCandidateQuestion: res.IsCandidateQuestion,
		ShouldContinue:      res.ShouldContinue,
		QuestionIndex:       res.QuestionIndex,
		Completed:           res.Completed,
	})
}

func acceptedAudio(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if audioTypes[ct] {
		return true
	}
	if ct == "" || ct == "application/octet-stream" {
		return audioExts[strings.ToLower(filepath.Ext(filename))]
	}
	return false
}

func (h Handlers) snapshot(c echo.Context) error {
	s, err := h.Interviews.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, requestLocale(c))
	}
	return c.JSON(http.StatusOK, s)
}

func (h Handlers) terminate(c echo.Context) error {
	s, err := h.Interviews.Terminate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err, requestLocale(c))
	}
	return c.JSON(http.StatusOK, map[string]any{"sessionId": s.ID, "status": s.Status, "endTime": s.EndTime})
}

func (h Handlers) sweep(c echo.Context) error {
	n, err := h.Interviews.Sweep(c.Request().Context())
	if err != nil {
		return h.fail(c, err, requestLocale(c))
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": n})
}

func (h Handlers) status(c echo.Context) error {
	conns := 0
	if h.Realtime != nil {
		conns = h.Realtime.Count()
	}
	var uptime float64
	if !h.Started.IsZero() {
		uptime = time.Since(h.Started).Seconds()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"connections":   conns,
		"uptimeSeconds": uptime,
		"providers":     h.Providers,
		"upstream":      h.Metrics.Upstream(),
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) fail(c echo.Context, err error, loc i18n.Locale) error {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: h.Interviews.Message(err, loc)}
	if reason, ok := invite.ReasonOf(err); ok {
		body.Reason = string(reason)
		body.Error = "access rejected: " + string(reason)
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, body)
}

func requestLocale(c echo.Context) i18n.Locale {
	al := c.Request().Header.Get("Accept-Language")
	return i18n.ParseLocale(strings.Split(al, ",")[0])
}
