// config.go: This file contains the configuration for the transcriptor application.
// It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Debug   bool   // true to enable debug mode
	Enabled bool   // true to enable the web server
	Port    string // port for the web server
	Log     struct {
		Path string // path to the web server log file
	}
}

// StorageSettings contains paths for uploads, media assets and the session database.
type StorageSettings struct {
	UploadPath    string // directory for temporary multipart uploads
	MediaPath     string // directory for permanent media assets
	DataPath      string // directory for the session database
	MaxUploadSize int64  // maximum accepted upload size in bytes
}

// TranscriptionSettings configures the speech-to-text provider.
type TranscriptionSettings struct {
	APIKey              string   // provider API key, required
	BaseURL             string   // provider API base URL
	PublicBaseURL       string   // externally reachable base URL for URL-based submission
	UploadThresholdMB   int64    // direct upload size threshold in megabytes
	MaxRetries          int      // submission retry ceiling
	RetryDelayMS        int      // base retry delay in milliseconds
	PollIntervalSeconds int      // polling interval in seconds
	PollTimeoutMinutes  int      // overall polling ceiling in minutes
	WordBoost           []string // domain vocabulary hints passed at submission
}

// DetectionSettings configures the AI code-detection provider.
type DetectionSettings struct {
	APIKey              string  // OpenRouter API key, detection disabled when empty
	BaseURL             string  // chat completions base URL
	Model               string  // model identifier
	ConfidenceThreshold float64 // minimum confidence for automatic detection
	ManualThreshold     float64 // minimum confidence for user-triggered re-runs
	MaxTranscriptChars  int     // trailing transcript slice sent to the model
	TimeoutSeconds      int     // HTTP timeout for the completion call
}

// ExtractionSettings configures the ffmpeg audio-extraction step.
type ExtractionSettings struct {
	Enabled    bool   // false disables extraction regardless of request flags
	FfmpegPath string // path to ffmpeg, runtime value resolved from PATH when empty
	SampleRate int    // output sample rate in Hz
	Channels   int    // output channel count
}

// Settings contains all configuration options for the transcriptor application.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of the node
	}

	WebServer     WebServerSettings
	Storage       StorageSettings
	Transcription TranscriptionSettings
	Detection     DetectionSettings
	Extraction    ExtractionSettings

	Version   string // Version from build
	BuildDate string // Build date from build
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Provider credentials are commonly supplied via environment
	viper.SetEnvPrefix("transcriptor")
	viper.AutomaticEnv()
	_ = viper.BindEnv("transcription.apikey", "ASSEMBLYAI_API_KEY")
	_ = viper.BindEnv("detection.apikey", "OPENROUTER_API_KEY")

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
// It uses SaveYAMLConfig to handle the atomic write process.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first for an atomic replace
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
