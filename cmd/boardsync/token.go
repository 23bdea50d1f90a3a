package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
)

type tokenOptions struct {
	userID string
	name   string
	role   string
	ttl    time.Duration
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token signed with BOARDSYNC_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := issueToken(os.Getenv("BOARDSYNC_JWT_SECRET"), opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "participant id (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.role, "role", string(domain.RoleEditor), "editor|viewer")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func issueToken(secret string, opts *tokenOptions) (string, error) {
	if secret == "" {
		return "", errors.New("BOARDSYNC_JWT_SECRET is required")
	}
	role := domain.Role(opts.role)
	if role != domain.RoleEditor && role != domain.RoleViewer {
		return "", fmt.Errorf("invalid role %q: must be editor or viewer", opts.role)
	}
	name := opts.name
	if name == "" {
		name = opts.userID
	}
	return auth.IssueToken(secret, domain.Identity{UserID: opts.userID, Name: name, Role: role}, opts.ttl)
}
