package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/treeblob/internal/adapter/gdrive"
	"github.com/Ning0612/treeblob/internal/domain"
)

func (a *app) authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to remote filesystems",
	}

	var force bool
	drive := &cobra.Command{
		Use:   "gdrive",
		Short: "Authorize treeblob to use Google Drive",
		Long:  "Run the OAuth flow with gdrive.client_id and gdrive.client_secret and store the token at gdrive.token_path.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := a.cfg.GDrive
			if g.ClientID == "" || g.ClientSecret == "" {
				return fmt.Errorf("%w: gdrive.client_id and gdrive.client_secret are required", domain.ErrConfigInvalid)
			}

			auth := gdrive.NewAuthenticator(g.ClientID, g.ClientSecret, g.TokenPath)
			if auth.HasToken() && !force {
				cmd.Printf("Already authorized, token at %s (use --force to re-authorize)\n", auth.TokenPath())
				return nil
			}

			_, err := auth.Authenticate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			return err
		},
	}
	drive.Flags().BoolVar(&force, "force", false, "re-authorize even if a token exists")

	cmd.AddCommand(drive)
	return cmd
}
