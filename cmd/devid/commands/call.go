package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"devid/internal/channel"
)

func claimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Produce a signed device claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), channel.Request{Method: channel.MethodMakeClaim})
		},
	}
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method>",
		Short: "Send a method through the message channel and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), channel.Request{Method: args[0]})
		},
	}
}

// call prints the channel response as JSON. Error and not-implemented
// responses are printed too, then reported as a command failure.
func call(w io.Writer, req channel.Request) error {
	resp := wire.Channel.Handle(req)
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))

	switch {
	case resp.Error != nil:
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	case resp.NotImplemented:
		return errors.New(req.Method + ": not implemented")
	}
	return nil
}
