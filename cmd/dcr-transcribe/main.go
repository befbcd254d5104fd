// Command dcr-transcribe captures a multi-channel radio feed, runs
// per-channel voice detection and recording, and streams each active
// channel to a cloud or self-hosted transcription backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nappa/dcr-transcribe/internal/config"
	"github.com/nappa/dcr-transcribe/internal/logging"
	"github.com/nappa/dcr-transcribe/pkg/audio"
	"github.com/nappa/dcr-transcribe/pkg/orchestrator"
	"github.com/nappa/dcr-transcribe/pkg/transcribe"
)

const (
	exitOK             = 0
	exitConfigOrDevice = 1
	exitFatalAuth      = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "dcr-transcribe: no .env file found, using process environment")
	}

	generateConfig := pflag.Bool("generate-config", false, "write a default configuration file and exit")
	showInterfaces := pflag.Bool("show-interfaces", false, "list capture devices and exit (playback devices are not listed)")
	pflag.Parse()

	configPath := "dcr-transcribe.toml"
	if args := pflag.Args(); len(args) > 0 {
		configPath = args[0]
	}

	if *generateConfig {
		if err := config.Write(configPath, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "dcr-transcribe: %v\n", err)
			return exitConfigOrDevice
		}
		fmt.Printf("wrote default configuration to %s\n", configPath)
		return exitOK
	}

	if *showInterfaces {
		return showDeviceInterfaces()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcr-transcribe: %v\n", err)
		return exitConfigOrDevice
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Output.LogLevel = config.LogLevel(level)
	}

	logger := logging.New(cfg.Output.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	backend, err := buildBackend(ctx, cfg)
	if err != nil {
		logger.Error("backend init failed", "err", err)
		return exitConfigOrDevice
	}

	capture := audio.NewCaptureFanout(audio.CaptureConfig{
		DeviceID:     cfg.Audio.DeviceID,
		SampleRate:   uint32(cfg.Audio.SampleRate),
		Channels:     uint32(cfg.Audio.Channels),
		PeriodFrames: 480,
		InboxBytes:   cfg.Audio.SampleRate * 2, // ~1s of S16 PCM per channel
	})

	engine := orchestrator.New(cfg, capture, backend, charmLogAdapter{logger})

	writer := newTranscriptWriter(os.Stdout)
	go writer.run(engine.Events())

	if err := engine.Run(ctx); err != nil {
		logger.Error("engine stopped", "err", err)
		if errors.Is(err, orchestrator.ErrFatalAuth) {
			return exitFatalAuth
		}
		return exitConfigOrDevice
	}

	return exitOK
}

func buildBackend(ctx context.Context, cfg config.Config) (transcribe.Backend, error) {
	switch cfg.Transcribe.Backend {
	case config.BackendWhisper:
		return transcribe.NewWhisperBackend(cfg.Transcribe.Endpoint), nil
	case config.BackendAWS:
		fallthrough
	default:
		return transcribe.NewAWSBackend(ctx, cfg.Transcribe.Region, cfg.Transcribe.LanguageCode, cfg.Transcribe.SampleRate)
	}
}

func showDeviceInterfaces() int {
	capture := audio.NewCaptureFanout(audio.CaptureConfig{})
	if err := capture.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "dcr-transcribe: %v\n", err)
		return exitConfigOrDevice
	}
	defer capture.Close()

	devices, err := capture.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcr-transcribe: %v\n", err)
		return exitConfigOrDevice
	}
	for _, d := range devices {
		fmt.Printf("%d: %s\n", d.Index, d.Name)
	}
	return exitOK
}

// charmLogAdapter adapts charmbracelet/log's *log.Logger, whose methods
// take msg as interface{}, to the narrow string-keyed orchestrator.Logger
// interface Engine depends on.
type charmLogAdapter struct {
	l *log.Logger
}

func (c charmLogAdapter) Debug(msg string, args ...interface{}) { c.l.Debug(msg, args...) }
func (c charmLogAdapter) Info(msg string, args ...interface{})  { c.l.Info(msg, args...) }
func (c charmLogAdapter) Warn(msg string, args ...interface{})  { c.l.Warn(msg, args...) }
func (c charmLogAdapter) Error(msg string, args ...interface{}) { c.l.Error(msg, args...) }
