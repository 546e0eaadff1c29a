package protocol

// SessionConfig mirrors the session configuration held by the server.
// Empty fields are omitted on the wire so the server keeps its current value.
type SessionConfig struct {
	BrailleTable string `json:"braille_table,omitempty"`
	Language     string `json:"language,omitempty"`
	Task         string `json:"task,omitempty"`
}

// DefaultTask is sent when no task is configured.
const DefaultTask = "transcribe"

// Inbound is the closed set of server messages. Every concrete message type
// implements it; dispatch is a type switch, so adding a message kind forces
// every switch to be revisited.
type Inbound interface {
	inbound()
}

type Ready struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	Device  string `json:"device,omitempty"`
}

type ConfigUpdated struct {
	Config SessionConfig `json:"config"`
}

type RecordingStarted struct {
	Message string `json:"message,omitempty"`
}

type RecordingStopped struct {
	Message string `json:"message,omitempty"`
}

type SpeechStarted struct {
	Message string `json:"message"`
}

type SpeechEnded struct {
	Message string `json:"message"`
}

type VADStatus struct {
	Enabled        bool    `json:"enabled"`
	IsSpeechActive bool    `json:"is_speech_active"`
	Probability    float64 `json:"probability"`
}

type Status struct {
	Recording       bool    `json:"recording"`
	BufferSize      int     `json:"buffer_size"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type Processing struct {
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Word carries word-level timing inside a result segment.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is one transcribed unit of speech with timing and confidence.
type Segment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Words        []Word  `json:"words,omitempty"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Result is one completed transcription+translation unit.
type Result struct {
	TranscribedText string    `json:"transcribed_text"`
	Braille         string    `json:"braille"`
	Language        string    `json:"language,omitempty"`
	TableUsed       string    `json:"table_used"`
	AudioDuration   float64   `json:"audio_duration,omitempty"`
	Segments        []Segment `json:"segments,omitempty"`
	Success         bool      `json:"success"`
}

type ServerError struct {
	Message string `json:"message"`
	Success *bool  `json:"success,omitempty"`
}

func (Ready) inbound()            {}
func (ConfigUpdated) inbound()    {}
func (RecordingStarted) inbound() {}
func (RecordingStopped) inbound() {}
func (SpeechStarted) inbound()    {}
func (SpeechEnded) inbound()      {}
func (VADStatus) inbound()        {}
func (Status) inbound()           {}
func (Processing) inbound()       {}
func (Result) inbound()           {}
func (ServerError) inbound()      {}
