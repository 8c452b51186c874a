package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/portside/portside/pkg/desired"
	"github.com/portside/portside/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	var (
		resourcesDir string
		policyPaths  []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate local resource definitions",
		Long: `Validate the local resource definitions without contacting the platform.

This command checks:
  - blueprints.json and webhook-mappings.json are well-formed JSON
  - app-config.yml conforms to the resource mapping schema
  - every resource mapping carries a kind
  - policy compliance (OPA/rego)`,
		Example: `  # Validate the default resources directory
  portside validate

  # Validate a specific directory with extra policies
  portside validate --resources ./resources --policy ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := newTelemetry("")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			logger := tel.Logger.Zerolog()
			loader := desired.NewLoader(resourcesDir, logger)

			st, err := loader.Load()
			if err != nil {
				return err
			}

			policies, err := newPolicyEngine(ctx, logger, policyPaths)
			if err != nil {
				return err
			}

			res, err := policies.Evaluate(ctx, &policy.Input{
				Desired: policy.Summarize(st),
				Context: &policy.Context{
					Operation: "validate",
					Timestamp: time.Now(),
				},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, validateOutput(st, res)); err != nil {
					return err
				}
			} else {
				for _, w := range res.Warnings {
					fmt.Fprintf(out, "WARN  %s\n", w)
				}
				for _, v := range res.Violations {
					fmt.Fprintf(out, "%-5s %s: %s\n", severityTag(v), v.Policy, v.Message)
				}
				if res.Allowed {
					fmt.Fprintln(out, "Validation passed")
					fmt.Fprintf(out, "  Blueprints:       %d\n", len(st.Blueprints))
					fmt.Fprintf(out, "  Resource kinds:   %d\n", len(st.Config.Kinds()))
					fmt.Fprintf(out, "  Webhook mappings: %d\n", len(st.WebhookMappings))
					fmt.Fprintf(out, "  Policies:         %d evaluated, %d advisory finding(s)\n",
						len(res.EvaluatedPolicies), len(res.Advisory()))
				}
			}

			if !res.Allowed {
				return fmt.Errorf("validation failed: %d blocking policy violation(s)", len(res.Blocking()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resourcesDir, "resources", desired.DefaultResourcesDir, "directory with blueprints.json, app-config.yml, webhook-mappings.json")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional rego policy files or directories")

	return cmd
}

func severityTag(v policy.Violation) string {
	if v.Severity.Blocks() {
		return "DENY"
	}
	return "WARN"
}

func validateOutput(st *desired.State, res *policy.Result) map[string]interface{} {
	return map[string]interface{}{
		"allowed":            res.Allowed,
		"blueprints":         len(st.Blueprints),
		"resource_kinds":     st.Config.Kinds(),
		"webhook_mappings":   len(st.WebhookMappings),
		"evaluated_policies": res.EvaluatedPolicies,
		"violations":         res.Violations,
		"warnings":           res.Warnings,
	}
}
