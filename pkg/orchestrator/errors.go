package orchestrator

import "errors"

var (
	// ErrChannelOutOfRange is returned when a channel id outside
	// [0, channel_count) is addressed.
	ErrChannelOutOfRange = errors.New("orchestrator: channel id out of range")

	// ErrEngineStopped is returned by operations attempted after the
	// engine has begun shutdown.
	ErrEngineStopped = errors.New("orchestrator: engine stopped")

	// ErrNoCaptureDevice is returned when the configured capture device
	// cannot be opened.
	ErrNoCaptureDevice = errors.New("orchestrator: no capture device")

	// ErrFatalAuth is returned by Engine.Run when every enabled channel's
	// transcription session gave up after an authentication failure
	// (spec §6, exit code 2).
	ErrFatalAuth = errors.New("orchestrator: fatal authentication failure")
)
