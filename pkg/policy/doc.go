// Package policy vets the generated IAM documents with Open Policy Agent
// before any role or policy is created.
//
// The Engine implements engine.DocumentGuard. Each policy is a Rego module
// defining a "deny" set; members are either strings or objects with
// "message", "rule", "document" and an optional "severity". Violations of
// error or critical severity reject the documents with a validation error;
// lower severities are returned as warnings.
//
// # Built-in Policies
//
//   - trust-principal: the role may only be assumed by the configured
//     service principal, and only through sts:AssumeRole.
//   - stream-scope: the access policy grants kinesis:DescribeStream,
//     kinesis:PutRecords and kinesis:PutRecord on the stream ARN or its
//     sub-resources and nothing else.
//   - no-wildcards: no wildcard actions and no "*" resource.
//
// The configured service principal is exposed to Rego as
// data.config.service_principal.
//
// # Custom Policies
//
// Extra .rego or .json policies can be loaded from a directory with
// LoadPolicies. A .rego file's leading comments become its description, and
// a "# severity: error" comment sets its severity (warning otherwise).
// Loader.Watch reloads a directory when files change.
//
// # Usage
//
//	guard, err := policy.NewEngine(logger, policy.WithServicePrincipal(cfg.ServicePrincipal))
//	if err != nil {
//	    return err
//	}
//	if err := guard.LoadPolicies(ctx, []string{cfg.Guardrails.PolicyDir}); err != nil {
//	    return err
//	}
//	access := engine.NewAccessManager(identity, waiter, guard, cfg.EngineAccess(), logger)
package policy
