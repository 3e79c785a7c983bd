package rtc

import "github.com/Iosefkan/Interviews-sub000/internal/dialogue"

// Inbound message types.
const (
	TypeAudioData   = "audio_data"
	TypeEndSpeech   = "end_speech"
	TypeEndResponse = "end_response"
	TypePing        = "ping"
)

// Outbound message types.
const (
	TypeConnected         = "connected"
	TypeAudioReceived     = "audio_received"
	TypeProcessingStarted = "processing_started"
	TypeCandidateResponse = "candidate_response"
	TypeAIResponse        = "ai_response"
	TypeError             = "error"
	TypePong              = "pong"
)

// Close codes. 1000 and 1008 are the RFC 6455 normal and policy-violation codes.
const (
	CloseNormal         = 1000
	CloseSessionInvalid = 1008
	CloseSuperseded     = 4000
)

type inbound struct {
	Type string `json:"type"`
	// Data is a base64 WAV fragment on audio_data.
	Data string `json:"data,omitempty"`
}

type signal struct {
	Type string `json:"type"`
}

type connectedMsg struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	QuestionIndex int    `json:"questionIndex"`
}

type audioReceivedMsg struct {
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Buffered int    `json:"buffered"`
}

type candidateResponseMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// aiResponseMsg always carries audioUrl; null means the reply is text only.
type aiResponseMsg struct {
	Type                string          `json:"type"`
	Text                string          `json:"text"`
	AudioURL            *string         `json:"audioUrl"`
	Action              dialogue.Action `json:"action"`
	IsCandidateQuestion bool            `json:"isCandidateQuestion"`
	ShouldContinue      bool            `json:"shouldContinue"`
	QuestionIndex       int             `json:"questionIndex"`
	Completed           bool            `json:"completed"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
