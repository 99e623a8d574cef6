package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

func newNamesCommand() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "names",
		Short: "Print the resource names derived from an application ID",
		Long: `Print the stream, role and policy names for an application ID.

Names are a pure function of the ID, which is how delete finds what create
made without any stored state. No AWS calls are made.`,
		Example: `  eventstreamctl names --app-id app123
  eventstreamctl names --app-id app123 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := engine.ValidateApplicationID(appID); err != nil {
				return err
			}
			names := engine.NamesFor(appID)

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, names)
			}
			fmt.Fprintf(out, "stream: %s\n", names.Stream)
			fmt.Fprintf(out, "role:   %s\n", names.Role)
			fmt.Fprintf(out, "policy: %s\n", names.Policy)
			return nil
		},
	}

	cmd.Flags().StringVar(&appID, "app-id", "", "Pinpoint application ID (required)")
	_ = cmd.MarkFlagRequired("app-id")

	return cmd
}
