// Package config loads and validates the table-based configuration file
// that drives capture, VAD, buffering, transcription, and output.
package config

// AudioConfig describes the capture device and its interleaved layout.
type AudioConfig struct {
	DeviceID       string `toml:"device_id"`
	OutputDeviceID string `toml:"output_device_id"`
	SampleRate     int    `toml:"sample_rate"`
	Channels       int    `toml:"channels"`
}

// VADConfig tunes the RMS voice-activity detector.
type VADConfig struct {
	ThresholdDB        float64 `toml:"threshold_db"`
	HangoverDurationMs int     `toml:"hangover_duration_ms"`
}

// DropPolicy names the RingBuffer overflow behavior in the config file.
// Validate accepts drop_oldest and drop_newest and rejects block, but no
// code reads the value: the RingBuffer always evicts its oldest entries.
type DropPolicy string

const (
	DropOldest DropPolicy = "drop_oldest"
	DropNewest DropPolicy = "drop_newest"
	DropBlock  DropPolicy = "block"
)

// BufferConfig bounds the per-channel ring buffer.
type BufferConfig struct {
	CapacitySeconds int        `toml:"capacity_seconds"`
	DropPolicy      DropPolicy `toml:"drop_policy"`
}

// Backend selects the cloud transcription provider.
type Backend string

const (
	BackendAWS     Backend = "aws"
	BackendWhisper Backend = "whisper"
)

// TranscribeConfig configures the streaming transcription backend.
type TranscribeConfig struct {
	Backend        Backend `toml:"backend"`
	Region         string  `toml:"region"`
	LanguageCode   string  `toml:"language_code"`
	SampleRate     int     `toml:"sample_rate"`
	MaxRetries     int     `toml:"max_retries"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Endpoint       string  `toml:"endpoint"` // whisper-backend websocket URL
}

// LogLevel is one of the four supported verbosity tiers.
type LogLevel string

const (
	LogError LogLevel = "error"
	LogWarn  LogLevel = "warn"
	LogInfo  LogLevel = "info"
	LogDebug LogLevel = "debug"
)

// OutputConfig names the recording directory and log verbosity.
type OutputConfig struct {
	WavOutputDir string   `toml:"wav_output_dir"`
	LogLevel     LogLevel `toml:"log_level"`
}

// ChannelConfig is one [[channels]] table entry.
type ChannelConfig struct {
	ID      int    `toml:"id"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
}

// Config is the fully parsed configuration file.
type Config struct {
	Audio      AudioConfig      `toml:"audio"`
	VAD        VADConfig        `toml:"vad"`
	Buffer     BufferConfig     `toml:"buffer"`
	Transcribe TranscribeConfig `toml:"transcribe"`
	Output     OutputConfig     `toml:"output"`
	Channels   []ChannelConfig  `toml:"channels"`
}
