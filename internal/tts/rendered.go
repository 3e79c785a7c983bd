package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iosefkan/Interviews-sub000/internal/audio"
)

// PCMRenderer returns 16-bit mono little-endian PCM for text.
type PCMRenderer interface {
	RenderPCM(ctx context.Context, text string, opts Options) ([]byte, error)
	SampleRate() int
}

// ObjectStore persists rendered audio and returns a playable URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Rendered adapts a raw PCM provider into a Synthesizer by wrapping the audio
// in a WAV container and uploading it.
type Rendered struct {
	Renderer PCMRenderer
	Store    ObjectStore
	Prefix   string
}

func (r *Rendered) Synthesize(ctx context.Context, text string, opts Options) (Result, error) {
	pcm, err := r.Renderer.RenderPCM(ctx, text, opts)
	if err != nil {
		return Result{}, err
	}
	if len(pcm) == 0 {
		return Result{}, fmt.Errorf("tts: provider returned no audio")
	}
	rate := r.Renderer.SampleRate()
	wav := audio.EncodeWAV(pcm, rate, 1)
	prefix := r.Prefix
	if prefix == "" {
		prefix = "tts"
	}
	key := fmt.Sprintf("%s/%s.wav", prefix, uuid.NewString())
	audioURL, err := r.Store.Put(ctx, key, "audio/wav", wav)
	if err != nil {
		return Result{}, fmt.Errorf("store tts audio: %w", err)
	}
	res := Result{AudioURL: audioURL}
	if rate > 0 {
		// 16-bit mono
		res.Duration = time.Duration(len(pcm)/2) * time.Second / time.Duration(rate)
	}
	return res, nil
}
