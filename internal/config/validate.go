package config

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid wraps every config load/validation failure.
var ErrConfigInvalid = errors.New("invalid configuration")

// Validate collects every configuration problem rather than failing on
// the first one, so --generate-config users see the whole list at once.
func Validate(cfg Config) error {
	var errs []string

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, "audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, "audio.channels must be positive")
	}
	if cfg.Audio.SampleRate != cfg.Transcribe.SampleRate {
		errs = append(errs, "audio.sample_rate must equal transcribe.sample_rate (no sample-rate conversion)")
	}

	switch cfg.Buffer.DropPolicy {
	case DropOldest, DropNewest:
	case DropBlock:
		// A realtime capture callback must never block. Rather than silently
		// reinterpreting "block" as something safer, reject it outright.
		errs = append(errs, `buffer.drop_policy "block" is unsafe for a realtime capture callback and is not supported`)
	default:
		errs = append(errs, fmt.Sprintf("buffer.drop_policy %q is not one of drop_oldest, drop_newest", cfg.Buffer.DropPolicy))
	}
	if cfg.Buffer.CapacitySeconds <= 0 {
		errs = append(errs, "buffer.capacity_seconds must be positive")
	}

	switch cfg.Transcribe.Backend {
	case BackendAWS, BackendWhisper:
	default:
		errs = append(errs, fmt.Sprintf("transcribe.backend %q is not one of aws, whisper", cfg.Transcribe.Backend))
	}
	if cfg.Transcribe.MaxRetries < 0 {
		errs = append(errs, "transcribe.max_retries must be non-negative")
	}
	if cfg.Transcribe.TimeoutSeconds <= 0 {
		errs = append(errs, "transcribe.timeout_seconds must be positive")
	}

	switch cfg.Output.LogLevel {
	case LogError, LogWarn, LogInfo, LogDebug:
	default:
		errs = append(errs, fmt.Sprintf("output.log_level %q is not one of error, warn, info, debug", cfg.Output.LogLevel))
	}
	if cfg.Output.WavOutputDir == "" {
		errs = append(errs, "output.wav_output_dir must not be empty")
	}

	seen := make(map[int]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.ID < 0 || ch.ID >= cfg.Audio.Channels {
			errs = append(errs, fmt.Sprintf("channel id %d is out of range [0, %d)", ch.ID, cfg.Audio.Channels))
			continue
		}
		if seen[ch.ID] {
			errs = append(errs, fmt.Sprintf("duplicate channel id %d", ch.ID))
		}
		seen[ch.ID] = true
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("%w: %s", ErrConfigInvalid, msg)
}
