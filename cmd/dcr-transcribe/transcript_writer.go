package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nappa/dcr-transcribe/pkg/orchestrator"
	"github.com/nappa/dcr-transcribe/pkg/transcribe"
)

// transcriptRecord is one line of the stdout transcript stream (spec §6).
type transcriptRecord struct {
	Channel          int     `json:"channel"`
	Timestamp        string  `json:"timestamp"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Text             string  `json:"text"`
	IsPartial        bool    `json:"is_partial"`
	Stability        string  `json:"stability,omitempty"`
}

// transcriptWriter turns ChannelEvents carrying transcripts into one
// JSON record per line on w, in the order events are received.
type transcriptWriter struct {
	enc *json.Encoder
}

func newTranscriptWriter(w io.Writer) *transcriptWriter {
	return &transcriptWriter{enc: json.NewEncoder(w)}
}

func (tw *transcriptWriter) run(events <-chan orchestrator.ChannelEvent) {
	for ev := range events {
		if ev.Type != orchestrator.TranscriptPartial && ev.Type != orchestrator.TranscriptFinal {
			continue
		}
		t, ok := ev.Data.(*transcribe.Transcript)
		if !ok || t == nil {
			continue
		}
		now := time.Now()
		rec := transcriptRecord{
			Channel:          ev.ChannelID,
			Timestamp:        now.Format("2006-01-02T15:04:05.000Z07:00"),
			TimestampSeconds: float64(now.UnixNano()) / 1e9,
			Text:             t.Text,
			IsPartial:        !t.IsFinal,
		}
		if !t.IsFinal {
			rec.Stability = stabilityName(t.Stability)
		}
		_ = tw.enc.Encode(rec)
	}
}

func stabilityName(s transcribe.Stability) string {
	switch s {
	case transcribe.StabilityLow:
		return "low"
	case transcribe.StabilityMedium:
		return "medium"
	case transcribe.StabilityHigh:
		return "high"
	default:
		return ""
	}
}
