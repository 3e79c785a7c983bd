package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AssemblyAIClient transcribes through AssemblyAI's pre-recorded audio API:
// upload the file, create a transcript job, then poll until it settles.
type AssemblyAIClient struct {
	HTTPClient   *http.Client
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
	SpeechModel  string `json:"speech_model,omitempty"`
}

type transcriptResponse struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Text          string   `json:"text"`
	Confidence    *float64 `json:"confidence"`
	LanguageCode  string   `json:"language_code"`
	AudioDuration float64  `json:"audio_duration"`
	Error         string   `json:"error"`
}

func NewAssemblyAIClient(apiKey string) *AssemblyAIClient {
	return &AssemblyAIClient{
		HTTPClient:   &http.Client{},
		APIKey:       apiKey,
		BaseURL:      "https://api.assemblyai.com/v2",
		PollInterval: time.Second,
	}
}

func (c *AssemblyAIClient) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	if c.APIKey == "" {
		return Result{}, fmt.Errorf("assemblyai api key missing")
	}
	var up uploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload", "application/octet-stream", bytes.NewReader(audio), &up); err != nil {
		return Result{}, fmt.Errorf("upload audio: %w", err)
	}

	reqBody, _ := json.Marshal(transcriptRequest{
		AudioURL:     up.UploadURL,
		LanguageCode: string(opts.Language),
		SpeechModel:  speechModel(opts.ModelSize),
	})
	var tr transcriptResponse
	if err := c.do(ctx, http.MethodPost, "/transcript", "application/json", bytes.NewReader(reqBody), &tr); err != nil {
		return Result{}, fmt.Errorf("create transcript: %w", err)
	}

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		switch tr.Status {
		case "completed":
			return Result{
				Text:       strings.TrimSpace(tr.Text),
				Confidence: tr.Confidence,
				Language:   tr.LanguageCode,
				Duration:   time.Duration(tr.AudioDuration * float64(time.Second)),
			}, nil
		case "error":
			return Result{}, fmt.Errorf("assemblyai transcript %s failed: %s", tr.ID, tr.Error)
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
		id := tr.ID
		tr = transcriptResponse{}
		if err := c.do(ctx, http.MethodGet, "/transcript/"+id, "", nil, &tr); err != nil {
			return Result{}, fmt.Errorf("poll transcript: %w", err)
		}
	}
}

// speechModel maps the Whisper-style model size onto AssemblyAI's tiers.
func speechModel(size string) string {
	switch size {
	case "tiny", "base", "small":
		return "nano"
	case "":
		return ""
	}
	return "best"
}

func (c *AssemblyAIClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("assemblyai error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
