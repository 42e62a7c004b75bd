package extraction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/transcriptor-go/internal/conf"
)

const mb = 1024 * 1024

func TestChooseFormat(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want Format
	}{
		{"large file gets mp3", 600 * mb, FormatMP3},
		{"medium file gets flac", 200 * mb, FormatFLAC},
		{"small file gets wav", 50 * mb, FormatWAV},
		{"exactly 100MB stays wav", 100 * mb, FormatWAV},
		{"exactly 500MB gets flac", 500 * mb, FormatFLAC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseFormat(tt.size))
		})
	}
}

func TestQualityFor(t *testing.T) {
	assert.Equal(t, QualityMedium, QualityFor(600*mb))
	assert.Equal(t, QualityHigh, QualityFor(400*mb))
	assert.Equal(t, QualityHigh, QualityFor(10*mb))
}

func TestIsApplicable(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimeType string
		want     bool
	}{
		{"mp4 by mime", "upload.bin", "video/mp4", true},
		{"quicktime by mime", "upload.bin", "video/quicktime", true},
		{"mkv by extension", "recording.mkv", "application/octet-stream", true},
		{"mov by extension uppercase", "RECORDING.MOV", "", true},
		{"mime with params", "upload.bin", "video/webm; codecs=vp9", true},
		{"wav audio", "audio.wav", "audio/wav", false},
		{"mp3 audio", "audio.mp3", "audio/mpeg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsApplicable(tt.filename, tt.mimeType))
		})
	}
}

func TestEstimateReduction(t *testing.T) {
	size, percent := EstimateReduction(1000 * mb)
	assert.Equal(t, int64(80*mb), size)
	assert.Equal(t, 92, percent)
}

func TestBuildArgs(t *testing.T) {
	e := &Extractor{FfmpegPath: "/usr/bin/ffmpeg", SampleRate: 44100, Channels: 2}

	args := e.buildArgs("in.mp4", "in.mp3", FormatMP3, QualityMedium)
	assert.Contains(t, args, "-vn")
	assert.Contains(t, args, "libmp3lame")
	assert.Contains(t, args, "128k")
	assert.Contains(t, args, "44100")
	assert.Equal(t, "in.mp3", args[len(args)-1])

	args = e.buildArgs("in.mp4", "in.wav", FormatWAV, QualityHigh)
	assert.Contains(t, args, "pcm_s16le")

	args = e.buildArgs("in.mp4", "in.flac", FormatFLAC, QualityHigh)
	assert.Contains(t, args, "flac")
	assert.Contains(t, args, "-compression_level")
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(&conf.ExtractionSettings{})
	assert.Equal(t, 44100, e.SampleRate)
	assert.Equal(t, 2, e.Channels)
}

func TestExtractWithoutFfmpeg(t *testing.T) {
	e := &Extractor{FfmpegPath: ""}
	_, err := e.Extract(t.Context(), "in.mp4", FormatWAV, QualityHigh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg is not available")
}

func TestCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	Cleanup(path)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing a missing file is not an error
	Cleanup(path)
	Cleanup("")
}
