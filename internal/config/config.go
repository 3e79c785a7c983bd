package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	StoreBackend string
	DatabaseURL  string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	MediaBackend string
	MediaDir     string

	STTProvider   string
	STTServiceURL string
	STTModelSize  string
	AssemblyAIKey string

	TTSProvider       string
	TTSServiceURL     string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	LLMBaseURL string
	LLMKey     string
	LLMModel   string

	STTTimeout time.Duration
	TTSTimeout time.Duration
	LLMTimeout time.Duration

	PingInterval  time.Duration
	PongWait      time.Duration
	SweepInterval time.Duration
	MaxFollowUps  int

	AdminToken string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	NotifySMSTo      string
}

// Load reads .env (if present) and the environment and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using environment")
	}

	cfg := Config{
		HTTPAddress:   env("HTTP_ADDRESS", ":8080"),
		PublicBaseURL: env("PUBLIC_BASE_URL", "http://localhost:8080"),

		StoreBackend: env("STORE_BACKEND", "memory"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket: env("SUPABASE_BUCKET", "interview-audio"),

		MediaBackend: env("MEDIA_BACKEND", "local"),
		MediaDir:     env("MEDIA_DIR", "./media"),

		STTProvider:   env("STT_PROVIDER", "whisper"),
		STTServiceURL: env("STT_SERVICE_URL", "http://localhost:8002"),
		STTModelSize:  env("STT_MODEL_SIZE", "medium"),
		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		TTSProvider:       env("TTS_PROVIDER", "service"),
		TTSServiceURL:     env("TTS_SERVICE_URL", "http://localhost:8001"),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     os.Getenv("DEEPGRAM_MODEL"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),

		LLMBaseURL: env("LLM_BASE_URL", "https://api.cerebras.ai/v1"),
		LLMKey:     os.Getenv("LLM_API_KEY"),
		LLMModel:   env("LLM_MODEL", "gpt-oss-120b"),

		STTTimeout: duration("STT_TIMEOUT", 60*time.Second),
		TTSTimeout: duration("TTS_TIMEOUT", 60*time.Second),
		LLMTimeout: duration("LLM_TIMEOUT", 30*time.Second),

		PingInterval:  duration("WS_PING_INTERVAL", 30*time.Second),
		PongWait:      duration("WS_PONG_WAIT", 60*time.Second),
		SweepInterval: duration("SWEEP_INTERVAL", time.Minute),
		MaxFollowUps:  integer("MAX_FOLLOW_UPS", 1),

		AdminToken: os.Getenv("ADMIN_TOKEN"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),
		NotifySMSTo:      os.Getenv("NOTIFY_SMS_TO"),
	}
	cfg.warn()
	log.Printf("config: HTTP_ADDRESS=%s STORE_BACKEND=%s STT_PROVIDER=%s TTS_PROVIDER=%s MEDIA_BACKEND=%s",
		cfg.HTTPAddress, cfg.StoreBackend, cfg.STTProvider, cfg.TTSProvider, cfg.MediaBackend)
	return cfg
}

// SMSEnabled reports whether completion SMS notices are configured.
func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && c.NotifySMSTo != ""
}

func (c Config) warn() {
	if c.LLMKey == "" {
		log.Println("Warning: LLM_API_KEY not set - evaluations will fall back to a retry prompt")
	}
	if c.STTProvider == "assemblyai" && c.AssemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - transcription will not work")
	}
	if c.TTSProvider == "deepgram" && c.DeepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - replies will be text only")
	}
	if c.TTSProvider == "elevenlabs" && (c.ElevenLabsKey == "" || c.ElevenLabsVoiceID == "") {
		log.Println("Warning: ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - replies will be text only")
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set - postgres store will fail to open")
	}
	if (c.StoreBackend == "supabase" || c.MediaBackend == "supabase") && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		log.Println("Warning: SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set")
	}
	if c.AdminToken == "" {
		log.Println("Warning: ADMIN_TOKEN not set - admin endpoints are disabled")
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
