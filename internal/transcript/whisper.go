package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperClient talks to the self-hosted speech-to-text service.
type WhisperClient struct {
	HTTPClient *http.Client
	BaseURL    string
}

type whisperResponse struct {
	Transcription  string  `json:"transcription"`
	Language       string  `json:"language"`
	Duration       float64 `json:"duration"`
	ProcessingTime float64 `json:"processing_time"`
}

func NewWhisperClient(baseURL string) *WhisperClient {
	return &WhisperClient{
		HTTPClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "answer.wav")
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return Result{}, err
	}
	if opts.Language != "" {
		_ = mw.WriteField("language", string(opts.Language))
	}
	if opts.ModelSize != "" {
		_ = mw.WriteField("model_size", opts.ModelSize)
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transcribe", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, fmt.Errorf("stt service busy: status=%d", resp.StatusCode)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return Result{}, fmt.Errorf("stt service rejected audio size: status=%d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("stt service error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Result{}, fmt.Errorf("decode stt response: %w", err)
	}
	return Result{
		Text:     strings.TrimSpace(wr.Transcription),
		Language: wr.Language,
		Duration: time.Duration(wr.Duration * float64(time.Second)),
	}, nil
}
