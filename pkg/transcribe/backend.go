package transcribe

import (
	"context"
	"errors"
)

// Backend is a transcription provider. A Backend opens Streams and
// classifies the errors its Streams raise; it holds no per-session
// state itself.
type Backend interface {
	// Open establishes one bidirectional streaming session.
	Open(ctx context.Context) (Stream, error)
	// Classify says whether err should drive a retry-with-backoff or a
	// permanent stop. Backends vary in how they signal authentication
	// failure, so classification is backend-specific (spec §9).
	Classify(err error) ErrorClass
	// Name identifies the backend for logs and the StateBus.
	Name() string
}

// Stream is one open session against a backend. SendAudio and
// SendSilence both accept encoded (FLAC) bytes; Recv delivers results
// in the order the backend produces them.
type Stream interface {
	SendAudio(encoded []byte) error
	SendSilence(encoded []byte) error
	Recv() (Transcript, error)
	Close() error
}

// ErrStreamClosed is returned by a Stream's Recv when the stream ends
// without a more specific error (the AWS stream returns it when its event
// channel closes cleanly). The whisper stream returns the websocket read
// error instead.
var ErrStreamClosed = errors.New("transcribe: stream closed")
