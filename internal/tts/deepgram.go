package tts

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DeepgramClient renders speech over Deepgram's websocket speak API.
type DeepgramClient struct {
	apiKey     string
	models     map[string]string
	sampleRate int
	// IdleWindow ends a render once audio has started and then paused this long.
	IdleWindow time.Duration
}

// NewDeepgramClient uses model for every language unless overridden with Model.
func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		models:     map[string]string{"": model},
		sampleRate: 48000,
		IdleWindow: 400 * time.Millisecond,
	}
}

// Model sets the voice model for one language.
func (d *DeepgramClient) Model(language, model string) *DeepgramClient {
	d.models[language] = model
	return d
}

func (d *DeepgramClient) SampleRate() int { return d.sampleRate }

func (d *DeepgramClient) modelFor(opts Options) string {
	if m, ok := d.models[string(opts.Language)]; ok {
		return m
	}
	return d.models[""]
}

func (d *DeepgramClient) RenderPCM(ctx context.Context, text string, opts Options) ([]byte, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("deepgram: empty text")
	}

	var (
		mu       sync.Mutex
		pcm      bytes.Buffer
		lastRecv time.Time
	)
	cb := &speakCallback{onBinary: func(data []byte) error {
		mu.Lock()
		pcm.Write(data)
		lastRecv = time.Now()
		mu.Unlock()
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.modelFor(opts),
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("[tts] deepgram flush error: %v", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			mu.Lock()
			done := !lastRecv.IsZero() && time.Since(lastRecv) > d.IdleWindow
			var out []byte
			if done {
				out = append([]byte(nil), pcm.Bytes()...)
			}
			mu.Unlock()
			if done {
				return out, nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(w *msginterfaces.WarningResponse) error {
	log.Printf("[tts] deepgram warning: %+v", w)
	return nil
}
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	log.Printf("[tts] deepgram error: %+v", e)
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil && len(byMsg) > 0 {
		return s.onBinary(byMsg)
	}
	return nil
}
