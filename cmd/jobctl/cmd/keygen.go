package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/jobctl/internal/service/keygen"
)

func newKeygenCommand() *cobra.Command {
	var (
		keyPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the key pair used to sign sessions.",
		Long: `Writes a new Ed25519 private key and its public key with a ".pub" suffix.

The private key goes to --key, or to the signing_key of the settings file.
Give the public key to the scheduler so that it can verify sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			return keygen.Run(ctx, &keygen.Options{
				ConfigPath: globals.ConfigPath,
				KeyPath:    keyPath,
				Force:      force,
				Out:        cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "private key file to write")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing key")

	return cmd
}
