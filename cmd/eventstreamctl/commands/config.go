package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and environment",
		Long: `Load the configuration the way every other command does (defaults,
then --config, then environment overrides) and report any errors.

CUE files are checked against the schema first, so unknown fields are
reported with their position in the file.`,
		Example: `  eventstreamctl config validate -c eventstream.yaml
  AWS_REGION=eu-west-1 eventstreamctl config validate --show`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOutput:
				return printJSON(out, cfg)
			case show:
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(cfg)
			default:
				fmt.Fprintln(out, "Configuration is valid")
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the effective configuration as YAML")
	return cmd
}
