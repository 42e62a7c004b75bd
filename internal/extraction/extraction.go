// Package extraction converts uploaded video containers to audio-only
// files with ffmpeg before they are sent for transcription.
package extraction

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/transcriptor-go/internal/conf"
	"github.com/tphakala/transcriptor-go/internal/errors"
	"github.com/tphakala/transcriptor-go/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "extraction.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "extraction", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize extraction file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "extraction")
		closeLogger = func() error { return nil }
	}
}

// Format is an audio output container produced by extraction.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

// Quality selects encoder bitrate for lossy output formats.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

const (
	mp3FormatThresholdMB  = 500 // above this, mp3 for best compression
	flacFormatThresholdMB = 100 // above this, flac balances quality and size
)

var videoMimeTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/webm",
	"video/x-ms-wmv",
	"video/x-flv",
	"video/x-matroska",
}

var videoExtensions = []string{".mp4", ".mov", ".avi", ".webm", ".wmv", ".flv", ".mkv"}

// Extractor runs ffmpeg to pull audio tracks out of video files.
type Extractor struct {
	FfmpegPath string // resolved binary path, empty means unavailable
	SampleRate int
	Channels   int
}

// New creates an Extractor from settings, resolving ffmpeg from the
// configured path or PATH.
func New(settings *conf.ExtractionSettings) *Extractor {
	sampleRate := settings.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	channels := settings.Channels
	if channels == 0 {
		channels = 2
	}
	return &Extractor{
		FfmpegPath: conf.GetFfmpegPath(settings.FfmpegPath),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// IsAvailable reports whether the ffmpeg binary was found.
func (e *Extractor) IsAvailable() bool {
	return e.FfmpegPath != ""
}

// Version returns the ffmpeg version string, empty when unavailable.
func (e *Extractor) Version() string {
	if !e.IsAvailable() {
		return ""
	}
	version, err := conf.GetFfmpegVersion(e.FfmpegPath)
	if err != nil {
		return ""
	}
	return version
}

// IsApplicable reports whether a file is a video container whose audio
// track should be extracted before submission.
func IsApplicable(filename, mimeType string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if slices.Contains(videoMimeTypes, normalized) {
		return true
	}
	return slices.Contains(videoExtensions, strings.ToLower(filepath.Ext(filename)))
}

// ChooseFormat picks the output container by source size: larger inputs
// get better compression at the cost of fidelity.
func ChooseFormat(fileSize int64) Format {
	sizeMB := fileSize / (1024 * 1024)
	switch {
	case sizeMB > mp3FormatThresholdMB:
		return FormatMP3
	case sizeMB > flacFormatThresholdMB:
		return FormatFLAC
	default:
		return FormatWAV
	}
}

// QualityFor picks encoder quality by source size.
func QualityFor(fileSize int64) Quality {
	if fileSize/(1024*1024) > mp3FormatThresholdMB {
		return QualityMedium
	}
	return QualityHigh
}

// EstimateReduction returns the expected output size and reduction
// percentage for a video of the given size. Audio-only output typically
// lands around 8% of the source.
func EstimateReduction(originalSize int64) (estimatedSize int64, reductionPercent int) {
	return int64(float64(originalSize) * 0.08), 92
}

// Extract runs ffmpeg on the source file and returns the extracted audio
// path, which sits next to the source with the format's extension.
func (e *Extractor) Extract(ctx context.Context, sourcePath string, format Format, quality Quality) (string, error) {
	if !e.IsAvailable() {
		return "", errors.Newf("ffmpeg is not available").
			Category(errors.CategoryAudioExtraction).
			Component("extraction").
			Build()
	}

	outputPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + "." + string(format)
	args := e.buildArgs(sourcePath, outputPath, format, quality)

	logger.Info("extracting audio",
		"source", filepath.Base(sourcePath),
		"output", filepath.Base(outputPath),
		"format", string(format),
		"quality", string(quality))

	cmd := exec.CommandContext(ctx, e.FfmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// ffmpeg writes diagnostics to stderr, keep the tail for context
		detail := string(output)
		if len(detail) > 1000 {
			detail = detail[len(detail)-1000:]
		}
		logger.Error("audio extraction failed",
			"source", filepath.Base(sourcePath),
			"error", err,
			"ffmpeg_output", detail)
		return "", errors.Newf("audio extraction failed: %w", err).
			Category(errors.CategoryCommandExecution).
			Context("source", sourcePath).
			Context("format", string(format)).
			Context("ffmpeg_output", detail).
			Component("extraction").
			Build()
	}

	e.logSizeComparison(sourcePath, outputPath)
	return outputPath, nil
}

// buildArgs assembles the ffmpeg argument list: strip video, resample,
// encode with the format's codec.
func (e *Extractor) buildArgs(sourcePath, outputPath string, format Format, quality Quality) []string {
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vn",
		"-ar", fmt.Sprintf("%d", e.SampleRate),
		"-ac", fmt.Sprintf("%d", e.Channels),
		"-acodec", codecFor(format),
	}

	switch format {
	case FormatMP3:
		args = append(args, "-b:a", bitrateFor(quality))
	case FormatWAV:
		args = append(args, "-b:a", "256k")
	case FormatFLAC:
		// flac compression level, middle of the 0-12 scale
		args = append(args, "-compression_level", "5")
	}

	return append(args, outputPath)
}

func codecFor(format Format) string {
	switch format {
	case FormatMP3:
		return "libmp3lame"
	case FormatFLAC:
		return "flac"
	default:
		return "pcm_s16le"
	}
}

func bitrateFor(quality Quality) string {
	switch quality {
	case QualityHigh:
		return "192k"
	case QualityLow:
		return "96k"
	default:
		return "128k"
	}
}

// Cleanup removes an extracted audio file, logging rather than failing
// when the file is already gone.
func Cleanup(audioPath string) {
	if audioPath == "" {
		return
	}
	if err := os.Remove(audioPath); err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to clean up extracted audio file",
				"path", audioPath,
				"error", err)
		}
		return
	}
	logger.Debug("cleaned up extracted audio file", "path", audioPath)
}

func (e *Extractor) logSizeComparison(sourcePath, outputPath string) {
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return
	}
	outputInfo, err := os.Stat(outputPath)
	if err != nil {
		return
	}

	reduction := 0.0
	if sourceInfo.Size() > 0 {
		reduction = float64(sourceInfo.Size()-outputInfo.Size()) / float64(sourceInfo.Size()) * 100
	}
	logger.Info("audio extraction completed",
		"source_bytes", sourceInfo.Size(),
		"output_bytes", outputInfo.Size(),
		"reduction_percent", fmt.Sprintf("%.1f", reduction))
}

// Close releases the package logger.
func Close() {
	if closeLogger != nil {
		_ = closeLogger()
	}
}
