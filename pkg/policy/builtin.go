package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		execGuardPolicy(),
		serviceHookPolicy(),
		supersededIsolationPolicy(),
		configNotifiesServicePolicy(),
		pinnedPackagesPolicy(),
	}
}

func builtin(p Policy) Policy {
	now := time.Now()
	p.Enabled = true
	p.Builtin = true
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

// execGuardPolicy rejects commands that would run on every apply.
func execGuardPolicy() Policy {
	return builtin(Policy{
		Name:        "exec-guard",
		Description: "Every exec must carry a creates or unless guard",
		Severity:    SeverityError,
		Tags:        []string{"idempotency"},
		Rego: `package mongorecipe.policies.exec_guard

import rego.v1

deny contains violation if {
	some d in input.declarations
	d.kind == "exec"
	object.get(d.attributes, "creates", "") == ""
	object.get(d.attributes, "unless", "") == ""
	violation := {
		"message": sprintf("%s has neither creates nor unless", [d.id]),
		"resource": d.id,
		"remediation": "add a creates path or an unless command",
	}
}`,
	})
}

// serviceHookPolicy checks that running services precede a caller anchor.
func serviceHookPolicy() Policy {
	return builtin(Policy{
		Name:        "service-hook",
		Description: "Running services must be ordered before the post-install hook",
		Severity:    SeverityWarning,
		Tags:        []string{"ordering"},
		Rego: `package mongorecipe.policies.service_hook

import rego.v1

precedes_anchor(id) if {
	some e in input.edges
	e.from == id
	e.to in input.anchors
}

deny contains violation if {
	count(input.anchors) > 0
	some d in input.declarations
	d.kind == "service"
	object.get(d.attributes, "ensure", "") == "running"
	not precedes_anchor(d.id)
	violation := {
		"message": sprintf("%s is not ordered before any hook", [d.id]),
		"resource": d.id,
	}
}`,
	})
}

// supersededIsolationPolicy keeps removals independent of installs so the
// package manager can order them.
func supersededIsolationPolicy() Policy {
	return builtin(Policy{
		Name:        "superseded-package-isolation",
		Description: "Absent packages must have no ordering edge to installed packages",
		Severity:    SeverityError,
		Tags:        []string{"packages", "ordering"},
		Rego: `package mongorecipe.policies.superseded

import rego.v1

package_ensure[d.id] := object.get(d.attributes, "ensure", "") if {
	some d in input.declarations
	d.kind == "package"
}

deny contains violation if {
	some e in input.edges
	{package_ensure[e.from], package_ensure[e.to]} == {"absent", "installed"}
	violation := {
		"message": sprintf("edge %s -> %s ties a removed package to an installed one", [e.from, e.to]),
		"resource": e.from,
	}
}`,
	})
}

// configNotifiesServicePolicy requires daemon config files to refresh the
// service they configure.
func configNotifiesServicePolicy() Policy {
	return builtin(Policy{
		Name:        "config-notifies-service",
		Description: "A daemon config file ordered before a service must also notify it",
		Severity:    SeverityWarning,
		Tags:        []string{"ordering", "config"},
		Rego: `package mongorecipe.policies.config_notify

import rego.v1

notifies(from, to) if {
	some e in input.edges
	e.from == from
	e.to == to
	e.type == "notify"
}

deny contains violation if {
	some d in input.declarations
	d.kind == "file"
	regex.match("^/etc/[^/]+\\.conf$", d.name)
	some e in input.edges
	e.from == d.id
	e.type == "before"
	startswith(e.to, "Service[")
	not notifies(d.id, e.to)
	violation := {
		"message": sprintf("%s is ordered before %s but does not notify it", [d.id, e.to]),
		"resource": d.id,
		"remediation": "add a notify edge so config changes restart the daemon",
	}
}`,
	})
}

// pinnedPackagesPolicy warns about repository packages installed without a
// version pin.
func pinnedPackagesPolicy() Policy {
	return builtin(Policy{
		Name:        "pinned-packages",
		Description: "Packages installed from the added repository should be pinned",
		Severity:    SeverityWarning,
		Tags:        []string{"packages"},
		Rego: `package mongorecipe.policies.pinned

import rego.v1

from_repository(id) if {
	some e in input.edges
	e.to == id
	e.from == "Exec[apt-get update]"
}

deny contains violation if {
	some d in input.declarations
	d.kind == "package"
	object.get(d.attributes, "ensure", "") == "installed"
	object.get(d.attributes, "version", "") == ""
	from_repository(d.id)
	violation := {
		"message": sprintf("%s is installed from the repository without a version", [d.id]),
		"resource": d.id,
	}
}`,
	})
}
