package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
)

func TestServiceClient_RequestShapeAndRelativeURL(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"audio_url":"/audio/tts_1.wav","duration":1.5,"file_size":10,"status":"success","message":"ok"}`))
	}))
	defer srv.Close()

	c := NewServiceClient(srv.URL)
	res, err := c.Synthesize(context.Background(), strings.Repeat("я", MaxTextLength+20), Options{Language: i18n.Russian, Speed: 9, Emotion: "angry"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.AudioURL != srv.URL+"/audio/tts_1.wav" {
		t.Fatalf("audio url = %s", res.AudioURL)
	}
	if res.Duration != 1500*time.Millisecond {
		t.Fatalf("duration = %s", res.Duration)
	}
	if len([]rune(got.Text)) != MaxTextLength {
		t.Fatalf("text not truncated: %d", len([]rune(got.Text)))
	}
	if got.Language != "ru" || got.VoiceSettings.Language != "ru" || got.AudioFormat != "wav" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.VoiceSettings.Speed != 2.0 || got.VoiceSettings.Emotion != EmotionNeutral {
		t.Fatalf("voice settings not normalized: %+v", got.VoiceSettings)
	}
}

func TestServiceClient_AbsoluteURLKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"audio_url":"https://cdn.example/a.wav","file_size":1,"status":"success"}`))
	}))
	defer srv.Close()
	res, err := NewServiceClient(srv.URL).Synthesize(context.Background(), "hi", Options{})
	if err != nil || res.AudioURL != "https://cdn.example/a.wav" {
		t.Fatalf("got %+v %v", res, err)
	}
}

func TestServiceClient_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("nope")) }},
		{"no_url", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"status":"error"}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			timed := &Timed{Next: NewServiceClient(srv.URL), Provider: "service", Timeout: time.Second}
			if _, err := timed.Synthesize(context.Background(), "hi", Options{}); !apperr.Is(err, apperr.KindUpstream) {
				t.Fatalf("expected upstream error, got %v", err)
			}
		})
	}
}

type fakeRenderer struct {
	pcm []byte
	err error
}

func (f fakeRenderer) RenderPCM(context.Context, string, Options) ([]byte, error) { return f.pcm, f.err }
func (f fakeRenderer) SampleRate() int                                               { return 48000 }

type fakeStore struct {
	key, contentType string
	data             []byte
}

func (s *fakeStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	s.key, s.contentType, s.data = key, contentType, data
	return "https://media.example/" + key, nil
}

func TestRendered_WrapsPCMInWAV(t *testing.T) {
	store := &fakeStore{}
	r := &Rendered{Renderer: fakeRenderer{pcm: make([]byte, 96000)}, Store: store}
	res, err := r.Synthesize(context.Background(), "hi", Options{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.HasPrefix(store.key, "tts/") || !strings.HasSuffix(store.key, ".wav") || store.contentType != "audio/wav" {
		t.Fatalf("unexpected upload %q %q", store.key, store.contentType)
	}
	if string(store.data[:4]) != "RIFF" || binary.LittleEndian.Uint32(store.data[24:]) != 48000 {
		t.Fatalf("not a 48kHz wav")
	}
	if res.AudioURL != "https://media.example/"+store.key || res.Duration != time.Second {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRendered_ProviderFailure(t *testing.T) {
	r := &Rendered{Renderer: fakeRenderer{err: errors.New("down")}, Store: &fakeStore{}}
	if _, err := r.Synthesize(context.Background(), "hi", Options{}); err == nil {
		t.Fatalf("expected error")
	}
	r = &Rendered{Renderer: fakeRenderer{}, Store: &fakeStore{}}
	if _, err := r.Synthesize(context.Background(), "hi", Options{}); err == nil {
		t.Fatalf("expected error on empty audio")
	}
}

func TestElevenLabs_RequestAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" || r.URL.Query().Get("output_format") != "pcm_48000" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["language_code"] != "ru" {
			t.Errorf("language_code = %v", body["language_code"])
		}
		_, _ = w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	e := NewElevenLabsClient("key", "voice")
	e.HTTPClient = &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
	pcm, err := e.RenderPCM(context.Background(), "привет", Options{Language: i18n.Russian})
	if err != nil || len(pcm) != 4 {
		t.Fatalf("got %v %v", pcm, err)
	}
}

func TestElevenLabs_MissingCredentials(t *testing.T) {
	if _, err := NewElevenLabsClient("", "").RenderPCM(context.Background(), "x", Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
