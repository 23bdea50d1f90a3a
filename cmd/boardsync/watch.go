package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/syncclient"
)

type watchOptions struct {
	server  string
	boardID string
	token   string
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a board and log every change as it arrives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watch(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.boardID, "board", "", "board id (required)")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("BOARDSYNC_TOKEN"), "session token")
	_ = cmd.MarkFlagRequired("board")

	return cmd
}

func watch(ctx context.Context, opts *watchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := syncclient.New(syncclient.Options{
		ServerURL: opts.server,
		BoardID:   opts.boardID,
		Token:     opts.token,
		OnEvent:   logEvent,
	})

	err := client.Sync(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logEvent(ev syncclient.Event) {
	entry := log.Info().Str("event", ev.Frame.Type)
	if ev.Mutation != nil {
		entry = entry.Str("kind", string(ev.Mutation.Kind)).
			Str("origin", ev.Mutation.Origin).
			Int64("version", ev.Mutation.Version).
			Str("outcome", string(ev.Outcome))
	}
	if ev.Snapshot != nil {
		entry = entry.Int("columns", len(ev.Snapshot.Columns))
	}
	entry.Msg("board event")
}
