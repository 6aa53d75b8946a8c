package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"devid/internal/crypto"
)

func certCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "Print the identity certificate (PEM)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, ok, err := wire.Identity.PublicCertificate()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No identity provisioned.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), crypto.CertificatePEM(cert.Raw))
			return nil
		},
	}
}
