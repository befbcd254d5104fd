package config

// Default returns the configuration written by --generate-config.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			DeviceID:       "default",
			OutputDeviceID: "default",
			SampleRate:     16000,
			Channels:       4,
		},
		VAD: VADConfig{
			ThresholdDB:        -40,
			HangoverDurationMs: 500,
		},
		Buffer: BufferConfig{
			CapacitySeconds: 30,
			DropPolicy:      DropOldest,
		},
		Transcribe: TranscribeConfig{
			Backend:        BackendAWS,
			Region:         "us-east-1",
			LanguageCode:   "en-US",
			SampleRate:     16000,
			MaxRetries:     5,
			TimeoutSeconds: 10,
		},
		Output: OutputConfig{
			WavOutputDir: "./recordings",
			LogLevel:     LogInfo,
		},
		Channels: []ChannelConfig{
			{ID: 0, Name: "channel-0", Enabled: true},
			{ID: 1, Name: "channel-1", Enabled: true},
			{ID: 2, Name: "channel-2", Enabled: true},
			{ID: 3, Name: "channel-3", Enabled: true},
		},
	}
}
