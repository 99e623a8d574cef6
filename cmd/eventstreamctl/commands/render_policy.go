package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/config"
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

// documentFlags select the documents rendered offline.
type documentFlags struct {
	appID     string
	accountID string
	streamARN string
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.appID, "app-id", "", "Pinpoint application ID (required)")
	cmd.Flags().StringVar(&f.accountID, "account-id", "", "account that will own the stream")
	cmd.Flags().StringVar(&f.streamARN, "stream-arn", "", "stream ARN (overrides --account-id)")
	_ = cmd.MarkFlagRequired("app-id")
}

// documents builds the trust and access documents create would send.
func (f *documentFlags) documents(cfg *config.Config) (engine.DocumentCheck, error) {
	if err := engine.ValidateApplicationID(f.appID); err != nil {
		return engine.DocumentCheck{}, err
	}

	names := engine.NamesFor(f.appID)
	arn := f.streamARN
	if arn == "" {
		if f.accountID == "" {
			return engine.DocumentCheck{}, fmt.Errorf("one of --stream-arn or --account-id is required")
		}
		arn = engine.StreamARN(cfg.Partition, cfg.Region, f.accountID, names.Stream)
	}

	access := engine.NewAccessManager(nil, nil, nil, cfg.EngineAccess(), log.Logger)
	return access.Documents(f.appID, engine.StreamHandle{Name: names.Stream, ARN: arn}), nil
}

func newRenderPolicyCommand() *cobra.Command {
	var flags documentFlags

	cmd := &cobra.Command{
		Use:   "render-policy",
		Short: "Print the trust and access documents for an application",
		Long: `Print the IAM documents create would attach to the role:

  - the trust document letting the service principal assume the role
  - the access document granting DescribeStream and PutRecords on the
    stream and PutRecord on its sub-resources

No AWS calls are made. The stream ARN is built from --account-id and the
configured partition and region unless --stream-arn is given.`,
		Example: `  eventstreamctl render-policy --app-id app123 --account-id 123456789012
  eventstreamctl render-policy --app-id app123 \
    --stream-arn arn:aws:kinesis:us-east-1:123456789012:stream/event-stream-app123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			check, err := flags.documents(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]interface{}{
					"role_name":   check.RoleName,
					"policy_name": check.PolicyName,
					"trust":       check.Trust,
					"access":      check.Access,
				})
			}

			fmt.Fprintf(out, "# %s trust document\n", check.RoleName)
			if err := printJSON(out, check.Trust); err != nil {
				return err
			}
			fmt.Fprintf(out, "# %s\n", check.PolicyName)
			return printJSON(out, check.Access)
		},
	}

	flags.register(cmd)
	return cmd
}
