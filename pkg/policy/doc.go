// Package policy provides the Open Policy Agent (OPA) pre-run gate.
//
// Before a run writes anything to the platform, the desired state and
// the run options are summarized into a single input document and every
// enabled policy is evaluated against it. Violations with error or
// critical severity abort the run; warnings are logged and recorded in
// the run history.
//
// # Architecture
//
// The gate consists of three parts:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads extra policies from files and directories
//  3. Built-in Policies - Checks every run gets for free
//
// # Usage
//
// Creating an engine and evaluating a run:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	input := &policy.Input{
//	    Desired: policy.Summarize(state),
//	    Context: &policy.Context{
//	        Operation:     "install",
//	        ForceRecreate: opts.ForceRecreate,
//	        DryRun:        opts.DryRun,
//	        Timestamp:     time.Now(),
//	    },
//	}
//
//	result, err := engine.Evaluate(ctx, input)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    for _, v := range result.Blocking() {
//	        fmt.Printf("policy %s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. mapping-kinds - Duplicate or empty mapping kinds (error)
//  2. entity-identifiers - Mappings without an identifier expression (error)
//  3. blueprint-identifiers - Unusual blueprint identifiers and dangling
//     blueprint references (warning)
//  4. recreate-safety - Reminder before force-recreate runs (warning)
//
// # Custom Policies
//
// Extra policies can be written in Rego and loaded from --policy paths.
// Deny entries may be bare strings or objects with message, severity,
// and subject keys:
//
//	package custom.policies.kinds
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.desired
//	    some mapping in input.desired.mappings
//
//	    # Kinds in this organization carry a source prefix
//	    not startswith(mapping.kind, "aws.")
//
//	    violation := {
//	        "message": sprintf("Mapping kind '%s' must be prefixed with 'aws.'", [mapping.kind]),
//	        "severity": "error",
//	        "subject": mapping.kind,
//	    }
//	}
//
// # Input Shape
//
// Policies see two top-level fields:
//
//   - input.desired: kinds, mappings (kind, identifier, title,
//     blueprint), and blueprint identifiers from the local state
//   - input.context: operation, force_recreate, dry_run, timestamp
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block runs
//   - error: Issues that block the run before any remote write
//   - critical: Severe issues that must never be overridden
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The
// engine uses OPA's PreparedEvalQuery for optimal performance.
package policy
