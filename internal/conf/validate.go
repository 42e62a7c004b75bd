// validate.go - validation logic for the transcriptor configuration
package conf

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the settings struct and its fields.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateWebServerSettings(&settings.WebServer, &ve)
	validateStorageSettings(&settings.Storage, &ve)
	validateTranscriptionSettings(&settings.Transcription, &ve)
	validateDetectionSettings(&settings.Detection, &ve)
	validateExtractionSettings(&settings.Extraction, &ve)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings, ve *ValidationError) {
	if settings.Enabled {
		port, err := strconv.Atoi(settings.Port)
		if err != nil || port < 1 || port > 65535 {
			ve.Errors = append(ve.Errors, "WebServer port must be a valid port number (1-65535)")
		}
	}
}

func validateStorageSettings(settings *StorageSettings, ve *ValidationError) {
	if settings.UploadPath == "" {
		ve.Errors = append(ve.Errors, "Storage upload path must not be empty")
	}
	if settings.MediaPath == "" {
		ve.Errors = append(ve.Errors, "Storage media path must not be empty")
	}
	if settings.DataPath == "" {
		ve.Errors = append(ve.Errors, "Storage data path must not be empty")
	}
	if settings.MaxUploadSize <= 0 {
		ve.Errors = append(ve.Errors, "Storage max upload size must be positive")
	}
}

func validateTranscriptionSettings(settings *TranscriptionSettings, ve *ValidationError) {
	if settings.BaseURL == "" {
		ve.Errors = append(ve.Errors, "Transcription base URL must not be empty")
	}
	if settings.UploadThresholdMB <= 0 {
		ve.Errors = append(ve.Errors, "Transcription upload threshold must be positive")
	}
	if settings.MaxRetries < 1 {
		ve.Errors = append(ve.Errors, "Transcription max retries must be at least 1")
	}
	if settings.PollIntervalSeconds < 1 {
		ve.Errors = append(ve.Errors, "Transcription poll interval must be at least 1 second")
	}
	if settings.PollTimeoutMinutes < 1 {
		ve.Errors = append(ve.Errors, "Transcription poll timeout must be at least 1 minute")
	}
}

func validateDetectionSettings(settings *DetectionSettings, ve *ValidationError) {
	if settings.BaseURL == "" {
		ve.Errors = append(ve.Errors, "Detection base URL must not be empty")
	}
	if settings.Model == "" {
		ve.Errors = append(ve.Errors, "Detection model must not be empty")
	}
	if settings.ConfidenceThreshold < 0 || settings.ConfidenceThreshold > 1 {
		ve.Errors = append(ve.Errors, "Detection confidence threshold must be between 0 and 1")
	}
	if settings.ManualThreshold < 0 || settings.ManualThreshold > 1 {
		ve.Errors = append(ve.Errors, "Detection manual threshold must be between 0 and 1")
	}
	if settings.MaxTranscriptChars < 1 {
		ve.Errors = append(ve.Errors, "Detection max transcript chars must be positive")
	}
	if settings.TimeoutSeconds < 1 {
		ve.Errors = append(ve.Errors, "Detection timeout must be positive")
	}
}

func validateExtractionSettings(settings *ExtractionSettings, ve *ValidationError) {
	if settings.Enabled {
		if settings.SampleRate < 8000 {
			ve.Errors = append(ve.Errors, "Extraction sample rate must be at least 8000 Hz")
		}
		if settings.Channels < 1 || settings.Channels > 2 {
			ve.Errors = append(ve.Errors, "Extraction channel count must be 1 or 2")
		}
	}
}
