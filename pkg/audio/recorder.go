package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder is an append-only WAV sink for one channel. Write is cheap:
// it hands samples straight to the underlying wav.Encoder, which buffers
// and rewrites the RIFF header on Close. A Recorder that hits a disk
// error disables itself rather than killing the channel pipeline (spec
// §4.4, "recording failures never stop transcription").
type Recorder struct {
	path       string
	sampleRate int
	file       *os.File
	enc        *wav.Encoder
	disabled   bool
	lastErr    error
}

// NewRecorder creates the output file channel_{id}_{YYYYMMDD_HHMMSS}.wav
// under dir and opens a streaming WAV encoder over it.
func NewRecorder(dir string, channel ChannelID, sampleRate int, startedAt time.Time) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Recorder{disabled: true, lastErr: err}, err
	}
	name := fmt.Sprintf("channel_%d_%s.wav", channel, startedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return &Recorder{disabled: true, lastErr: err}, err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	return &Recorder{path: path, sampleRate: sampleRate, file: f, enc: enc}, nil
}

// Write appends samples to the file. A failure disables the recorder
// permanently; it does not propagate as a fatal error to the caller.
func (r *Recorder) Write(samples []Sample) {
	if r.disabled || len(samples) == 0 {
		return
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: r.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := r.enc.Write(buf); err != nil {
		r.disabled = true
		r.lastErr = err
	}
}

// Disabled reports whether a prior write or open failure has disabled
// this recorder.
func (r *Recorder) Disabled() bool {
	return r.disabled
}

// Err returns the error that disabled this recorder, if any.
func (r *Recorder) Err() error {
	return r.lastErr
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return r.path
}

// Close finalizes the WAV header and closes the underlying file. It is
// safe to call on an already-disabled recorder.
func (r *Recorder) Close() error {
	if r.enc != nil {
		if err := r.enc.Close(); err != nil && r.lastErr == nil {
			r.lastErr = err
		}
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && r.lastErr == nil {
			r.lastErr = err
		}
	}
	return r.lastErr
}
