package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"devid/internal/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the devid configuration file",
	}

	var path string
	write := &cobra.Command{
		Use:         "write",
		Short:       "Write the effective configuration as YAML",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipWire: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := conf
			c.Passphrase = ""
			c.PKCS11.PIN = ""
			p, err := app.WriteConfigFile(&c, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			return nil
		},
	}
	write.Flags().StringVar(&path, "path", "", "destination (default <user config dir>/devid/devid.yaml)")

	cmd.AddCommand(write)
	return cmd
}
