package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Supabase uploads objects to a public Supabase Storage bucket.
type Supabase struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
	Client     *http.Client
}

// NewSupabase constructs a new Supabase storage client.
func NewSupabase(baseURL, serviceKey, bucket string) *Supabase {
	return &Supabase{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		Bucket:     bucket,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Put uploads with upsert and returns the object's public URL.
func (s *Supabase) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.BaseURL == "" || s.ServiceKey == "" {
		return "", fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	object := url.PathEscape(s.Bucket) + "/" + escapePath(k)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/storage/v1/object/"+object, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
	req.Header.Set("apikey", s.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "true")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(preview)))
	}
	return s.BaseURL + "/storage/v1/object/public/" + object, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
