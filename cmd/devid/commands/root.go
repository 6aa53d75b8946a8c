package commands

import (
	"github.com/spf13/cobra"

	"devid/internal/app"
	"devid/internal/logging"
)

const skipWire = "skipWire"

var (
	cfgFile    string
	home       string
	storeKind  string
	alias      string
	passphrase string
	logLevel   string

	conf app.Config
	wire *app.Wire
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devid",
		Short:         "Device identity keystore and claim signer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(cmd, cfgFile)
			if err != nil {
				return err
			}
			if err := logging.SetLevel(c.LogLevel); err != nil {
				return err
			}
			conf = c

			if cmd.Annotations[skipWire] != "" {
				return nil
			}
			w, err := app.NewWire(conf)
			if err != nil {
				return err
			}
			wire = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			err := wire.Close()
			wire = nil
			return err
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default <user config dir>/devid/devid.yaml)")
	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.devid)")
	root.PersistentFlags().StringVar(&storeKind, "store", "", "key store: file, sqlite, memory or pkcs11 (default file)")
	root.PersistentFlags().StringVar(&alias, "alias", "", "key alias (default device_identity_key)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing keys at rest")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default info)")

	root.AddCommand(initCmd(), claimCmd(), callCmd(), certCmd(), resetCmd(), verifyCmd(), configCmd())
	return root
}

func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		logging.Errorf("%v", err)
		return err
	}
	return nil
}
