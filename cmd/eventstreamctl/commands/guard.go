package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/bootstrap"
	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/policy"
)

func newGuardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Inspect and test the guardrail policies",
		Long: `Guardrails are Rego policies evaluated against the generated IAM
documents before any IAM call. The built-in set pins the trust principal,
scopes access to the stream, and rejects wildcards. Extra .rego files are
loaded from guardrails.policy_dir.`,
	}

	cmd.AddCommand(newGuardCheckCommand())
	cmd.AddCommand(newGuardListCommand())

	return cmd
}

func newGuardCheckCommand() *cobra.Command {
	var (
		flags     documentFlags
		policyDir string
		watch     bool
		toggles   policyToggles
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the guardrails against an application's documents",
		Long: `Render the documents create would send and evaluate every enabled
guardrail against them. Exits non-zero when a blocking violation is found.

--enable and --disable switch single policies for this run only, on top of
guardrails.disable.

With --watch the policy directory is watched and the check re-runs after
each change, which is handy while writing a custom policy.`,
		Example: `  eventstreamctl guard check --app-id app123 --account-id 123456789012

  # Iterate on a custom policy
  eventstreamctl guard check --app-id app123 --account-id 123456789012 \
    --policy-dir ./guardrails --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if policyDir == "" {
				policyDir = cfg.Guardrails.PolicyDir
			}
			check, err := flags.documents(cfg)
			if err != nil {
				return err
			}

			guard, err := bootstrap.NewGuard(ctx, cfg, log.Logger, policyDir)
			if err != nil {
				return err
			}
			if err := toggles.apply(guard); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !watch {
				return runGuardCheck(ctx, out, guard, check)
			}
			if policyDir == "" {
				return fmt.Errorf("--watch needs --policy-dir or guardrails.policy_dir")
			}
			return watchGuardCheck(ctx, out, guard, check, policyDir, toggles)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of custom .rego policies")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run the check whenever a policy file changes")
	cmd.Flags().StringSliceVar(&toggles.enable, "enable", nil, "policy to evaluate even if disabled in config (repeatable)")
	cmd.Flags().StringSliceVar(&toggles.disable, "disable", nil, "policy to skip for this run (repeatable)")

	return cmd
}

// policyToggles are per-run overrides of which policies are evaluated.
type policyToggles struct {
	enable  []string
	disable []string
}

func (t policyToggles) apply(guard *policy.Engine) error {
	for _, name := range t.enable {
		if err := guard.EnablePolicy(name); err != nil {
			return fmt.Errorf("--enable: %w", err)
		}
	}
	for _, name := range t.disable {
		if err := guard.DisablePolicy(name); err != nil {
			return fmt.Errorf("--disable: %w", err)
		}
	}
	return nil
}

func runGuardCheck(ctx context.Context, out io.Writer, guard *policy.Engine, check engine.DocumentCheck) error {
	result, err := guard.Evaluate(ctx, check)
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := printJSON(out, result); err != nil {
			return err
		}
	} else {
		printGuardResult(out, result)
	}
	if !result.Allowed {
		return fmt.Errorf("%d blocking guardrail violation(s)", len(result.Violations))
	}
	return nil
}

func watchGuardCheck(ctx context.Context, out io.Writer, guard *policy.Engine, check engine.DocumentCheck, policyDir string, toggles policyToggles) error {
	if err := runGuardCheck(ctx, out, guard, check); err != nil {
		log.Warn().Err(err).Msg("Guardrail check failed")
	}

	loader := policy.NewLoader(log.Logger)
	err := loader.Watch(ctx, []string{policyDir}, func(custom []policy.Policy) error {
		if err := guard.ReloadPolicies(ctx, custom); err != nil {
			return err
		}
		if err := toggles.apply(guard); err != nil {
			return err
		}
		fmt.Fprintln(out, "--- policies reloaded")
		if err := runGuardCheck(ctx, out, guard, check); err != nil {
			log.Warn().Err(err).Msg("Guardrail check failed")
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer loader.StopWatching()

	log.Info().Str("dir", policyDir).Msg("Watching guardrail policies, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func printGuardResult(out io.Writer, result *policy.Result) {
	verdict := "allowed"
	if !result.Allowed {
		verdict = "rejected"
	}
	fmt.Fprintf(out, "%s (%d policies, %s)\n", verdict, len(result.EvaluatedPolicies), result.Duration)
	for _, v := range result.Violations {
		fmt.Fprintf(out, "  [%s] %s/%s: %s\n", v.Severity, v.Policy, v.Rule, v.Message)
	}
	for _, v := range result.Warnings {
		fmt.Fprintf(out, "  [%s] %s/%s: %s\n", v.Severity, v.Policy, v.Rule, v.Message)
	}
}

func newGuardListCommand() *cobra.Command {
	var policyDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the loaded guardrail policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			guard, err := bootstrap.NewGuard(cmd.Context(), cfg, log.Logger, policyDir)
			if err != nil {
				return err
			}

			policies := guard.ListPolicies()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, policies)
			}

			table := newTable(out, "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
			for _, p := range policies {
				table.Append([]string{p.Name, string(p.Severity), fmt.Sprint(p.Enabled), p.Description})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of custom .rego policies")
	return cmd
}
