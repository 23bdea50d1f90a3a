package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("boardsync failed")
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "boardsync",
		Short:         "Real-time board synchronization server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(os.Getenv("BOARDSYNC_LOG_LEVEL"), os.Getenv("BOARDSYNC_LOG_FORMAT"))
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTokenCommand())
	cmd.AddCommand(newWatchCommand())

	return cmd
}

// setupLogging configures the global zerolog logger. Unknown levels fall
// back to info; format "text" selects the console writer.
func setupLogging(levelName, format string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
