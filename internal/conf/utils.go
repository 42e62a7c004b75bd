// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// GetDefaultConfigPaths returns a list of default configuration paths for the current operating system.
// It determines paths based on standard conventions for storing application configuration files.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error fetching executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Local", "transcriptor"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "transcriptor"),
			"/etc/transcriptor",
			".",
		}
	}

	return configPaths, nil
}

// FindConfigFile locates the active config file from the default paths.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range configPaths {
		configPath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("config file not found in default paths")
}

// GetFfmpegBinaryName returns the platform-specific binary name for ffmpeg.
func GetFfmpegBinaryName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// GetFfmpegPath resolves the configured or PATH-discovered ffmpeg binary.
// Returns an empty string when ffmpeg is not available.
func GetFfmpegPath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
		return ""
	}
	path, err := exec.LookPath(GetFfmpegBinaryName())
	if err != nil {
		return ""
	}
	return path
}

// IsFfmpegAvailable checks if ffmpeg is available in the configured path or system PATH.
func IsFfmpegAvailable(configured string) bool {
	return GetFfmpegPath(configured) != ""
}

// GetFfmpegVersion returns the version string reported by the ffmpeg binary.
func GetFfmpegVersion(ffmpegPath string) (string, error) {
	cmd := exec.Command(ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("error running ffmpeg -version: %w", err)
	}

	// First line looks like "ffmpeg version 6.1.1 Copyright ..."
	lines := strings.SplitN(string(output), "\n", 2)
	fields := strings.Fields(lines[0])
	if len(fields) >= 3 && fields[0] == "ffmpeg" && fields[1] == "version" {
		return fields[2], nil
	}
	return "", fmt.Errorf("unexpected ffmpeg version output: %q", lines[0])
}

// EnsureDirectories creates the storage directories if they do not exist.
func EnsureDirectories(settings *Settings) error {
	for _, dir := range []string{
		settings.Storage.UploadPath,
		settings.Storage.MediaPath,
		settings.Storage.DataPath,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	return nil
}
