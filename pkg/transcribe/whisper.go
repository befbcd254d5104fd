package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// WhisperBackend streams audio to a self-hosted websocket transcription
// endpoint speaking a small JSON control protocol: binary frames carry
// encoded audio, text frames carry {"text":..., "is_final":...} results,
// and a text frame "ERR:<message>" signals a server-side failure.
type WhisperBackend struct {
	endpoint string
}

// NewWhisperBackend targets the given ws(s):// endpoint.
func NewWhisperBackend(endpoint string) *WhisperBackend {
	return &WhisperBackend{endpoint: endpoint}
}

func (b *WhisperBackend) Name() string { return "whisper" }

func (b *WhisperBackend) Open(ctx context.Context) (Stream, error) {
	if _, err := url.Parse(b.endpoint); err != nil {
		return nil, fmt.Errorf("whisper: invalid endpoint: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, b.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("whisper: dial: %w", err)
	}
	return &whisperStream{conn: conn}, nil
}

// Classify treats a close with an authentication status code, or a
// server "ERR:auth" text message, as permanent; everything else
// (dropped connection, timeout, 5xx-equivalent) is retryable.
func (b *WhisperBackend) Classify(err error) ErrorClass {
	if err == nil {
		return ErrorRetryable
	}
	var closeErr websocket.CloseError
	if ce, ok := asCloseError(err); ok {
		closeErr = ce
		if closeErr.Code == websocket.StatusPolicyViolation {
			return ErrorAuth
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "err:auth") {
		return ErrorAuth
	}
	return ErrorRetryable
}

func asCloseError(err error) (websocket.CloseError, bool) {
	var ce websocket.CloseError
	ok := errors.As(err, &ce)
	return ce, ok
}

type whisperStream struct {
	conn *websocket.Conn
}

func (s *whisperStream) SendAudio(encoded []byte) error {
	return s.conn.Write(context.Background(), websocket.MessageBinary, encoded)
}

func (s *whisperStream) SendSilence(encoded []byte) error {
	return s.conn.Write(context.Background(), websocket.MessageBinary, encoded)
}

type whisperResult struct {
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
	Stability int    `json:"stability"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
}

func (s *whisperStream) Recv() (Transcript, error) {
	for {
		messageType, payload, err := s.conn.Read(context.Background())
		if err != nil {
			return Transcript{}, err
		}
		if messageType != websocket.MessageText {
			continue
		}
		msg := string(payload)
		if strings.HasPrefix(msg, "ERR:") {
			return Transcript{}, fmt.Errorf("whisper: %s", msg)
		}
		var r whisperResult
		if err := json.Unmarshal(payload, &r); err != nil {
			continue
		}
		return Transcript{
			Text:      r.Text,
			IsFinal:   r.IsFinal,
			Stability: Stability(r.Stability),
			StartMs:   r.StartMs,
			EndMs:     r.EndMs,
		}, nil
	}
}

func (s *whisperStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
