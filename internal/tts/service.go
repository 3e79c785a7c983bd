package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServiceClient calls the self-hosted synthesis service, which renders the file
// itself and returns a reference to it.
type ServiceClient struct {
	HTTPClient *http.Client
	BaseURL    string
	// Format is "wav" or "mp3".
	Format string
}

type voiceSettings struct {
	Speaker  string  `json:"speaker,omitempty"`
	Speed    float64 `json:"speed"`
	Emotion  Emotion `json:"emotion"`
	Language string  `json:"language,omitempty"`
}

type generateRequest struct {
	Text          string        `json:"text"`
	Language      string        `json:"language,omitempty"`
	AudioFormat   string        `json:"audio_format"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type generateResponse struct {
	AudioURL string   `json:"audio_url"`
	Duration *float64 `json:"duration"`
	FileSize int64    `json:"file_size"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
}

func NewServiceClient(baseURL string) *ServiceClient {
	return &ServiceClient{
		HTTPClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Format:     "wav",
	}
}

func (c *ServiceClient) Synthesize(ctx context.Context, text string, opts Options) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("tts: empty text")
	}
	lang := string(opts.Language)
	reqBody, _ := json.Marshal(generateRequest{
		Text:        truncate(text),
		Language:    lang,
		AudioFormat: c.Format,
		VoiceSettings: voiceSettings{
			Speaker:  opts.Speaker,
			Speed:    opts.speed(),
			Emotion:  opts.emotion(),
			Language: lang,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generate-speech", bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("tts service error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Result{}, fmt.Errorf("decode tts response: %w", err)
	}
	if gr.AudioURL == "" || (gr.Status != "" && gr.Status != "success") {
		return Result{}, fmt.Errorf("tts service returned no audio: status=%q message=%q", gr.Status, gr.Message)
	}
	audioURL, err := c.resolve(gr.AudioURL)
	if err != nil {
		return Result{}, err
	}
	res := Result{AudioURL: audioURL}
	if gr.Duration != nil {
		res.Duration = time.Duration(*gr.Duration * float64(time.Second))
	}
	return res, nil
}

// resolve makes a service-relative audio path absolute.
func (c *ServiceClient) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("tts audio url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
