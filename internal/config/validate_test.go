package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_DefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidate_RejectsBlockDropPolicy(t *testing.T) {
	cfg := Default()
	cfg.Buffer.DropPolicy = DropBlock

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "block")
}

func TestValidate_RejectsMismatchedSampleRates(t *testing.T) {
	cfg := Default()
	cfg.Transcribe.SampleRate = 8000

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestValidate_RejectsDuplicateChannelIDs(t *testing.T) {
	cfg := Default()
	cfg.Channels = []ChannelConfig{
		{ID: 0, Enabled: true},
		{ID: 0, Enabled: true},
	}

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidate_RejectsOutOfRangeChannelID(t *testing.T) {
	cfg := Default()
	cfg.Channels = []ChannelConfig{{ID: 99, Enabled: true}}

	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
