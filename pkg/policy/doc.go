// Package policy checks resource graphs with Open Policy Agent.
//
// The engine flattens an engine.Graph into a JSON input document and
// evaluates every enabled Rego policy against it. Each policy package defines
// a deny set; every entry becomes a PolicyViolation.
//
// # Input Document
//
//	{
//	  "declarations": [{"id": "Exec[apt-get update]", "kind": "exec", "name": "apt-get update", "attributes": {...}}],
//	  "edges":        [{"from": "Exec[apt-get update]", "to": "Package[mongodb-org]", "type": "require"}],
//	  "anchors":      ["Exec[rake tasks]"],
//	  "context":      {"strategy": "apt-3.2", "run_id": "..."}
//	}
//
// Edge endpoints are resolved through aliases, so Package[mongodb] appears
// under the name of the package that claimed the alias.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger, policy.WithMetrics(metrics))
//	if err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluateGraph(ctx, res.Graph, &policy.PolicyContext{
//	    RunID:    res.ID,
//	    Strategy: res.Strategy.String(),
//	})
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in Policies
//
//  1. exec-guard - every exec carries creates or unless (error)
//  2. service-hook - running services are ordered before an anchor (warning)
//  3. superseded-package-isolation - no edge joins an absent and an installed package (error)
//  4. config-notifies-service - /etc/*.conf files ordered before a service also notify it (warning)
//  5. pinned-packages - packages installed after apt-get update carry a version (warning)
//
// # Custom Policies
//
// Policies are loaded from .rego or .json files. For .rego files the name is
// the file name, the leading comment block is the description, and a
// "# severity: <level>" line sets the severity (default warning):
//
//	# Services must use the base provider
//	# severity: error
//	package custom.provider
//
//	import rego.v1
//
//	deny contains violation if {
//	    some d in input.declarations
//	    d.kind == "service"
//	    object.get(d.attributes, "provider", "") != "base"
//	    violation := {"message": "service without base provider", "resource": d.id}
//	}
//
// User policies may not shadow built-ins. Engine.Watch reloads them when a
// policy file changes.
package policy
