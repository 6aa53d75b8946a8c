package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devid/internal/verify"
)

func verifyCmd() *cobra.Command {
	var maxSkew time.Duration
	cmd := &cobra.Command{
		Use:         "verify [file|-]",
		Short:       "Verify a claim JSON (a channel response or a bare claim)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipWire: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				b, err = io.ReadAll(cmd.InOrStdin())
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			m, err := decodeClaim(b)
			if err != nil {
				return err
			}
			c, err := verify.FromMap(m)
			if err != nil {
				return err
			}
			if err := (verify.Verifier{MaxSkew: maxSkew}).Verify(c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK\nDevice ID: %s\nIssued: %s\n", c.DeviceID, time.UnixMilli(c.Timestamp).UTC().Format(time.RFC3339Nano))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxSkew, "max-skew", 0, "reject claims whose timestamp is further than this from now (0 disables)")
	return cmd
}

// decodeClaim accepts either {"result": {...}} or the claim object itself.
func decodeClaim(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	if r, ok := m["result"].(map[string]any); ok {
		return r, nil
	}
	return m, nil
}
