// Package transcript turns merged candidate audio into text.
package transcript

import (
	"context"
	"log"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
)

// Options parameterize one transcription.
type Options struct {
	Language  i18n.Locale
	ModelSize string
}

// Result is a transcription. Confidence is nil when the provider reports none.
type Result struct {
	Text       string
	Confidence *float64
	Language   string
	Duration   time.Duration
	Latency    time.Duration
}

// Transcriber is a speech-to-text backend.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error)
}

// Timed bounds every call with Timeout, records latency and converts failures
// into upstream errors.
type Timed struct {
	Next     Transcriber
	Provider string
	Timeout  time.Duration
	Metrics  *metrics.Metrics
}

func (t *Timed) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := t.Next.Transcribe(ctx, audio, opts)
	elapsed := time.Since(start)
	t.Metrics.ObserveUpstream("stt", t.Provider, elapsed, err)
	if err != nil {
		log.Printf("[stt] %s failed after %s: %v", t.Provider, elapsed, err)
		return Result{}, apperr.Upstream("stt", err)
	}
	res.Latency = elapsed
	log.Printf("[stt] %s transcribed %d bytes in %s (%d chars)", t.Provider, len(audio), elapsed, len(res.Text))
	return res, nil
}
