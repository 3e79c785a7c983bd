// Package tts produces playable audio for interviewer turns.
package tts

import (
	"context"
	"log"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/apperr"
	"github.com/Iosefkan/Interviews-sub000/internal/i18n"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
)

// Emotion is a voice style accepted by the synthesis service.
type Emotion string

const (
	EmotionNeutral      Emotion = "neutral"
	EmotionProfessional Emotion = "professional"
	EmotionFriendly     Emotion = "friendly"
	EmotionExcited      Emotion = "excited"
)

func (e Emotion) valid() bool {
	switch e {
	case EmotionNeutral, EmotionProfessional, EmotionFriendly, EmotionExcited:
		return true
	}
	return false
}

// Options parameterize one synthesis.
type Options struct {
	Language i18n.Locale
	Emotion  Emotion
	// Speed is a rate multiplier in [0.5, 2.0]; zero means 1.0.
	Speed   float64
	Speaker string
}

func (o Options) speed() float64 {
	switch {
	case o.Speed == 0:
		return 1.0
	case o.Speed < 0.5:
		return 0.5
	case o.Speed > 2.0:
		return 2.0
	}
	return o.Speed
}

func (o Options) emotion() Emotion {
	if o.Emotion.valid() {
		return o.Emotion
	}
	return EmotionNeutral
}

// Result references synthesized audio.
type Result struct {
	AudioURL string
	Duration time.Duration
}

// Synthesizer is a text-to-speech backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) (Result, error)
}

// MaxTextLength is the longest text the synthesis service accepts, in characters.
const MaxTextLength = 1000

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxTextLength {
		return text
	}
	return string(r[:MaxTextLength])
}

// Timed bounds every call with Timeout, records latency and converts failures
// into upstream errors.
type Timed struct {
	Next     Synthesizer
	Provider string
	Timeout  time.Duration
	Metrics  *metrics.Metrics
}

func (t *Timed) Synthesize(ctx context.Context, text string, opts Options) (Result, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := t.Next.Synthesize(ctx, truncate(text), opts)
	elapsed := time.Since(start)
	t.Metrics.ObserveUpstream("tts", t.Provider, elapsed, err)
	if err != nil {
		log.Printf("[tts] %s failed after %s: %v", t.Provider, elapsed, err)
		return Result{}, apperr.Upstream("tts", err)
	}
	log.Printf("[tts] %s synthesized %d chars in %s", t.Provider, len([]rune(text)), elapsed)
	return res, nil
}
