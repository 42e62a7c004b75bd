// Package serve implements the web server subcommand.
package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/transcriptor-go/internal/conf"
	"github.com/tphakala/transcriptor-go/internal/server"
)

// Command creates the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the transcriptor web server",
		Long:  "Start the HTTP API for uploading recordings, tracking transcription sessions and detecting participation codes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the web server")
	cmd.Flags().StringVar(&settings.Storage.UploadPath, "uploadpath", viper.GetString("storage.uploadpath"), "Directory for temporary uploads")
	cmd.Flags().StringVar(&settings.Storage.MediaPath, "mediapath", viper.GetString("storage.mediapath"), "Directory for stored media")
	cmd.Flags().StringVar(&settings.Storage.DataPath, "datapath", viper.GetString("storage.datapath"), "Directory for the session database")
	cmd.Flags().StringVar(&settings.Transcription.PublicBaseURL, "publicbaseurl", viper.GetString("transcription.publicbaseurl"), "Externally reachable base URL for large file submission")
	cmd.Flags().BoolVar(&settings.Extraction.Enabled, "extraction", viper.GetBool("extraction.enabled"), "Enable ffmpeg audio extraction for video uploads")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
