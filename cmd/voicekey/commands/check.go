package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicekey/voicekey/pkg/cli"
	"github.com/voicekey/voicekey/pkg/volcasr"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configured credentials",
	Long: `Connect to the recognition backend, perform the handshake and
disconnect. Fails distinctly on missing credentials, a server rejection
and a timeout so each can be resolved differently.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := getClient()
		if err != nil {
			return err
		}

		if err := client.TestConnection(cmd.Context()); err != nil {
			return describeCheckFailure(err)
		}
		cli.PrintSuccess("Connection OK")
		return nil
	},
}

// describeCheckFailure maps a connection-test failure to actionable guidance.
// The returned error is printed once, by main.
func describeCheckFailure(err error) error {
	switch {
	case errors.Is(err, volcasr.ErrNotConfigured):
		return fmt.Errorf("no access key configured, check the context credentials")
	case errors.Is(err, volcasr.ErrTimeout):
		return fmt.Errorf("handshake timed out, check the network")
	}
	if serverErr, ok := volcasr.AsError(err); ok {
		return fmt.Errorf("server rejected the request (code %d): %s", serverErr.Code, serverErr.Message)
	}
	return err
}
