package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iosefkan/Interviews-sub000/internal/agent"
	"github.com/Iosefkan/Interviews-sub000/internal/audio"
	"github.com/Iosefkan/Interviews-sub000/internal/config"
	"github.com/Iosefkan/Interviews-sub000/internal/dialogue"
	"github.com/Iosefkan/Interviews-sub000/internal/httpserver"
	"github.com/Iosefkan/Interviews-sub000/internal/infra/storage"
	"github.com/Iosefkan/Interviews-sub000/internal/invite"
	"github.com/Iosefkan/Interviews-sub000/internal/llm"
	"github.com/Iosefkan/Interviews-sub000/internal/metrics"
	"github.com/Iosefkan/Interviews-sub000/internal/notify"
	"github.com/Iosefkan/Interviews-sub000/internal/rtc"
	"github.com/Iosefkan/Interviews-sub000/internal/store"
	"github.com/Iosefkan/Interviews-sub000/internal/transcript"
	"github.com/Iosefkan/Interviews-sub000/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	m := metrics.New("interview")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	media, err := openMedia(cfg)
	if err != nil {
		log.Fatalf("media: %v", err)
	}

	chat := llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMKey, cfg.LLMModel)
	chat.Timeout = cfg.LLMTimeout
	chat.Metrics = m

	var notifier agent.Notifier = notify.Nop{}
	if cfg.SMSEnabled() {
		notifier = notify.NewSMS(notify.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
			To:         cfg.NotifySMSTo,
		})
	}

	pipeline := agent.NewPipeline(&agent.Pipeline{
		Store:     st,
		Audio:     audio.NewAssembler(nil),
		STT:       &transcript.Timed{Next: transcriber(cfg), Provider: cfg.STTProvider, Timeout: cfg.STTTimeout, Metrics: m},
		TTS:       &tts.Timed{Next: synthesizer(cfg, media), Provider: cfg.TTSProvider, Timeout: cfg.TTSTimeout, Metrics: m},
		Dialogue:  dialogue.NewEngine(chat, nil, cfg.MaxFollowUps),
		Archive:   media,
		Notifier:  notifier,
		Metrics:   m,
		ModelSize: cfg.STTModelSize,
	})
	validator := invite.NewValidator(st, nil)
	svc := agent.NewService(pipeline, validator)

	registry := rtc.NewRegistry(svc, validator, pipeline.Audio)
	registry.Metrics = m
	registry.PingInterval = cfg.PingInterval
	registry.PongWait = cfg.PongWait
	svc.OnFinished = registry.Kick

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go svc.RunSweeper(sweepCtx, cfg.SweepInterval)

	e := httpserver.New()
	h := httpserver.Handlers{
		Interviews: svc,
		Validator:  validator,
		Realtime:   registry,
		Metrics:    m,
		AdminToken: cfg.AdminToken,
		Providers: map[string]string{
			"store": cfg.StoreBackend,
			"media": cfg.MediaBackend,
			"stt":   cfg.STTProvider,
			"tts":   cfg.TTSProvider,
			"llm":   cfg.LLMModel,
		},
		Started: time.Now(),
	}
	if cfg.MediaBackend == "local" {
		h.MediaDir = cfg.MediaDir
	}
	h.Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	}

	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	pipeline.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "memory", "":
		log.Println("store: in-memory (sessions are lost on restart)")
		return store.NewMemory(), func() {}, nil
	case "postgres":
		p, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "supabase":
		s, err := store.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

func openMedia(cfg config.Config) (agent.ObjectStore, error) {
	switch cfg.MediaBackend {
	case "local", "":
		return storage.NewLocal(cfg.MediaDir, cfg.PublicBaseURL)
	case "supabase":
		return storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket), nil
	}
	return nil, fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
}

func transcriber(cfg config.Config) transcript.Transcriber {
	if cfg.STTProvider == "assemblyai" {
		return transcript.NewAssemblyAIClient(cfg.AssemblyAIKey)
	}
	return transcript.NewWhisperClient(cfg.STTServiceURL)
}

func synthesizer(cfg config.Config, media agent.ObjectStore) tts.Synthesizer {
	switch cfg.TTSProvider {
	case "deepgram":
		return &tts.Rendered{Renderer: tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel), Store: media, Prefix: "tts"}
	case "elevenlabs":
		return &tts.Rendered{Renderer: tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID), Store: media, Prefix: "tts"}
	}
	return tts.NewServiceClient(cfg.TTSServiceURL)
}
