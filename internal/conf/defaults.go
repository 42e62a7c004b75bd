// defaults.go default configuration values for the transcriptor application
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "Transcriptor")

	// Webserver configuration
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.log.path", "logs/webserver.log")

	// Storage configuration
	viper.SetDefault("storage.uploadpath", "uploads/")
	viper.SetDefault("storage.mediapath", "media/")
	viper.SetDefault("storage.datapath", "data/")
	viper.SetDefault("storage.maxuploadsize", int64(4831838208)) // 4.5 GB

	// Transcription provider configuration
	viper.SetDefault("transcription.apikey", "")
	viper.SetDefault("transcription.baseurl", "https://api.assemblyai.com/v2")
	viper.SetDefault("transcription.publicbaseurl", "")
	viper.SetDefault("transcription.uploadthresholdmb", int64(500))
	viper.SetDefault("transcription.maxretries", 3)
	viper.SetDefault("transcription.retrydelayms", 1000)
	viper.SetDefault("transcription.pollintervalseconds", 5)
	viper.SetDefault("transcription.polltimeoutminutes", 30)
	viper.SetDefault("transcription.wordboost", []string{"JBA", "J B A", "J.B.A", "J-B-A"})

	// Code detection configuration
	viper.SetDefault("detection.apikey", "")
	viper.SetDefault("detection.baseurl", "https://openrouter.ai/api/v1")
	viper.SetDefault("detection.model", "anthropic/claude-3.5-sonnet")
	viper.SetDefault("detection.confidencethreshold", 0.7)
	viper.SetDefault("detection.manualthreshold", 0.6)
	viper.SetDefault("detection.maxtranscriptchars", 15000)
	viper.SetDefault("detection.timeoutseconds", 120)

	// Audio extraction configuration
	viper.SetDefault("extraction.enabled", true)
	viper.SetDefault("extraction.ffmpegpath", "")
	viper.SetDefault("extraction.samplerate", 44100)
	viper.SetDefault("extraction.channels", 2)
}
