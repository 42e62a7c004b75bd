package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	setDefaultConfig()

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestDefaultsAreValid(t *testing.T) {
	settings := defaultTestSettings(t)
	assert.NoError(t, ValidateSettings(settings))
}

func TestDefaultValues(t *testing.T) {
	settings := defaultTestSettings(t)

	assert.Equal(t, "8080", settings.WebServer.Port)
	assert.Equal(t, int64(500), settings.Transcription.UploadThresholdMB)
	assert.Equal(t, 3, settings.Transcription.MaxRetries)
	assert.Equal(t, 5, settings.Transcription.PollIntervalSeconds)
	assert.Equal(t, 30, settings.Transcription.PollTimeoutMinutes)
	assert.Equal(t, []string{"JBA", "J B A", "J.B.A", "J-B-A"}, settings.Transcription.WordBoost)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", settings.Detection.Model)
	assert.InDelta(t, 0.7, settings.Detection.ConfidenceThreshold, 0.001)
	assert.Equal(t, 15000, settings.Detection.MaxTranscriptChars)
	assert.Equal(t, 120, settings.Detection.TimeoutSeconds)
	assert.Equal(t, int64(4831838208), settings.Storage.MaxUploadSize)
	assert.Equal(t, 44100, settings.Extraction.SampleRate)
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		errHas string
	}{
		{
			name:   "invalid port",
			mutate: func(s *Settings) { s.WebServer.Port = "99999" },
			errHas: "port",
		},
		{
			name:   "empty upload path",
			mutate: func(s *Settings) { s.Storage.UploadPath = "" },
			errHas: "upload path",
		},
		{
			name:   "zero retries",
			mutate: func(s *Settings) { s.Transcription.MaxRetries = 0 },
			errHas: "retries",
		},
		{
			name:   "confidence out of range",
			mutate: func(s *Settings) { s.Detection.ConfidenceThreshold = 1.5 },
			errHas: "confidence",
		},
		{
			name:   "bad channels",
			mutate: func(s *Settings) { s.Extraction.Channels = 6 },
			errHas: "channel",
		},
		{
			name:   "zero detection timeout",
			mutate: func(s *Settings) { s.Detection.TimeoutSeconds = 0 },
			errHas: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := defaultTestSettings(t)
			tt.mutate(settings)
			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errHas)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("ASSEMBLYAI_API_KEY", "test-key-123")

	setDefaultConfig()
	require.NoError(t, viper.BindEnv("transcription.apikey", "ASSEMBLYAI_API_KEY"))

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	assert.Equal(t, "test-key-123", settings.Transcription.APIKey)
}

func TestGetFfmpegBinaryName(t *testing.T) {
	name := GetFfmpegBinaryName()
	assert.Contains(t, name, "ffmpeg")
}
