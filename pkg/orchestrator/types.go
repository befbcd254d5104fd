package orchestrator

import (
	"github.com/nappa/dcr-transcribe/pkg/transcribe"
)

// Logger is the narrow logging surface orchestrator code depends on, so
// tests can swap in a no-op without pulling in the real sink.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Useful as a default in tests.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// EventType identifies what a ChannelEvent reports.
type EventType string

const (
	VoiceStart          EventType = "VOICE_START"
	VoiceEnd            EventType = "VOICE_END"
	TranscriptPartial   EventType = "TRANSCRIPT_PARTIAL"
	TranscriptFinal     EventType = "TRANSCRIPT_FINAL"
	SessionStateChanged EventType = "SESSION_STATE_CHANGED"
	RecorderDisabled    EventType = "RECORDER_DISABLED"
	BufferOverflow      EventType = "BUFFER_OVERFLOW"
	ChannelError        EventType = "CHANNEL_ERROR"
)

// ChannelEvent is one thing a ChannelWorker wants the Engine (and,
// through Engine.Events, the transcript writer) to know about.
type ChannelEvent struct {
	Type      EventType   `json:"type"`
	ChannelID int         `json:"channel_id"`
	Data      interface{} `json:"data,omitempty"`
}

// ChannelSnapshot is the read-only view of one channel's state that the
// StateBus publishes for consumption by the terminal UI and the
// monitor-selection controller (spec §4.7, §3 "the UI is a pure reader").
type ChannelSnapshot struct {
	ChannelID        int
	VoicePhase       VADPhase
	DBFS             float64
	SessionState     transcribe.SessionState
	LastTranscript   string
	LastTranscriptAt int64
	RetainedSeconds  float64
	DroppedSeconds   float64
	RecorderPath     string
	RecorderDisabled bool
	Monitored        bool
	UpdatedAtNs      int64
}
