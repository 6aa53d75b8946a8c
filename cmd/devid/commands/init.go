package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"devid/internal/crypto"
	"devid/internal/services/identity"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Provision the identity key if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := wire.Identity.GetOrCreateKeyPair()
			if err != nil {
				return err
			}
			id, err := identity.DeriveDeviceID(h.PublicKey)
			if err != nil {
				return err
			}
			der, err := crypto.MarshalPublicKey(h.PublicKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alias: %s\nDevice ID: %s\nFingerprint: %s\n", h.Alias, id, crypto.Fingerprint(der))
			return nil
		},
	}
}
