package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/aws/smithy-go"
)

// AWSBackend streams audio to Amazon Transcribe's bidirectional
// streaming API.
type AWSBackend struct {
	client       *transcribestreaming.Client
	languageCode string
	sampleRate   int32
}

// NewAWSBackend loads AWS credentials the default way (environment,
// shared config, or instance role) and builds a streaming client for
// region.
func NewAWSBackend(ctx context.Context, region, languageCode string, sampleRate int) (*AWSBackend, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("aws: load config: %w", err)
	}
	return &AWSBackend{
		client:       transcribestreaming.NewFromConfig(cfg),
		languageCode: languageCode,
		sampleRate:   int32(sampleRate),
	}, nil
}

func (b *AWSBackend) Name() string { return "aws" }

// Open starts one StartStreamTranscription call and returns a Stream
// wrapping its event/audio handles.
func (b *AWSBackend) Open(ctx context.Context) (Stream, error) {
	out, err := b.client.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(b.languageCode),
		MediaEncoding:        types.MediaEncodingFlac,
		MediaSampleRateHertz: aws.Int32(b.sampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("aws: start stream: %w", err)
	}
	return &awsStream{stream: out.GetStream()}, nil
}

// Classify inspects the smithy error code AWS Transcribe uses to signal
// bad or expired credentials versus a recoverable condition (throttling,
// a dropped connection, an internal server error).
func (b *AWSBackend) Classify(err error) ErrorClass {
	if err == nil {
		return ErrorRetryable
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "AccessDeniedException", "BadRequestException":
			return ErrorAuth
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unrecognizedclient") || strings.Contains(msg, "accessdenied") || strings.Contains(msg, "invalid security token") {
		return ErrorAuth
	}
	return ErrorRetryable
}

type awsStream struct {
	stream *transcribestreaming.StartStreamTranscriptionEventStream
}

func (s *awsStream) send(chunk []byte) error {
	return s.stream.Send(context.Background(), &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: chunk},
	})
}

func (s *awsStream) SendAudio(encoded []byte) error   { return s.send(encoded) }
func (s *awsStream) SendSilence(encoded []byte) error { return s.send(encoded) }

func (s *awsStream) Recv() (Transcript, error) {
	for event := range s.stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := aws.ToString(result.Alternatives[0].Transcript)
			return Transcript{
				Text:      text,
				IsFinal:   !result.IsPartial,
				Stability: awsStability(result.IsPartial),
				StartMs:   int64(result.StartTime * 1000),
				EndMs:     int64(result.EndTime * 1000),
			}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Transcript{}, err
	}
	return Transcript{}, ErrStreamClosed
}

func awsStability(partial bool) Stability {
	if partial {
		return StabilityMedium
	}
	return StabilityHigh
}

func (s *awsStream) Close() error {
	return s.stream.Close()
}
