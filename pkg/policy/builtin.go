package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		mappingKindsPolicy(),
		entityIdentifiersPolicy(),
		blueprintIdentifiersPolicy(),
		recreateSafetyPolicy(),
	}
}

// mappingKindsPolicy rejects configurations that declare a kind twice.
func mappingKindsPolicy() Policy {
	return Policy{
		Name:        "mapping-kinds",
		Description: "Rejects desired configurations that declare the same mapping kind more than once",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"mappings", "config"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package portside.policies.mappings

import rego.v1

# The platform keys mappings by kind, so a repeated kind means the
# later mapping silently replaces the earlier one
deny contains violation if {
	input.desired
	some kind in input.desired.kinds

	occurrences := count([k |
		some k in input.desired.kinds
		k == kind
	])
	occurrences > 1

	violation := {
		"message": sprintf("Mapping kind '%s' is declared %d times; later mappings silently replace earlier ones", [kind, occurrences]),
		"severity": "error",
		"subject": kind,
	}
}

deny contains violation if {
	input.desired
	some mapping in input.desired.mappings

	# Kind must not be blank
	mapping.kind == ""
	violation := {
		"message": "A resource mapping has an empty kind",
		"severity": "error",
	}
}`,
	}
}

// entityIdentifiersPolicy requires an identifier expression per mapping.
func entityIdentifiersPolicy() Policy {
	return Policy{
		Name:        "entity-identifiers",
		Description: "Ensures every resource mapping declares an entity identifier expression",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"mappings", "identity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package portside.policies.identifiers

import rego.v1

deny contains violation if {
	input.desired
	some mapping in input.desired.mappings

	# Expression absent entirely
	not mapping.identifier
	violation := {
		"message": sprintf("Mapping kind '%s' has no entity identifier expression; matched events would produce entities without identity", [mapping.kind]),
		"severity": "error",
		"subject": mapping.kind,
	}
}

deny contains violation if {
	input.desired
	some mapping in input.desired.mappings

	# Expression present but blank
	mapping.identifier == ""
	violation := {
		"message": sprintf("Mapping kind '%s' has no entity identifier expression; matched events would produce entities without identity", [mapping.kind]),
		"severity": "error",
		"subject": mapping.kind,
	}
}`,
	}
}

// blueprintIdentifiersPolicy warns about unusual blueprint identifiers.
func blueprintIdentifiersPolicy() Policy {
	return Policy{
		Name:        "blueprint-identifiers",
		Description: "Warns about blueprint identifiers that stray from the usual identifier format",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"blueprints", "naming"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package portside.policies.blueprints

import rego.v1

deny contains violation if {
	input.desired
	some id in input.desired.blueprints

	# Identifiers should start with a letter and stick to letters,
	# digits, hyphens, and underscores
	not regex.match("^[A-Za-z][A-Za-z0-9_-]*$", id)
	violation := {
		"message": sprintf("Blueprint identifier '%s' should start with a letter and contain only letters, digits, hyphens, and underscores", [id]),
		"severity": "warning",
		"subject": id,
	}
}

# A mapping whose blueprint expression is a plain quoted literal should
# reference a blueprint that blueprints.json declares
deny contains violation if {
	input.desired
	some mapping in input.desired.mappings

	bp := mapping.blueprint
	is_string(bp)
	startswith(bp, "\"")
	endswith(bp, "\"")
	count(bp) > 2

	id := substring(bp, 1, count(bp) - 2)
	not id in input.desired.blueprints

	violation := {
		"message": sprintf("Mapping kind '%s' targets blueprint '%s' which blueprints.json does not declare", [mapping.kind, id]),
		"severity": "warning",
		"subject": mapping.kind,
	}
}`,
	}
}

// recreateSafetyPolicy reminds operators what force recreate can do.
func recreateSafetyPolicy() Policy {
	return Policy{
		Name:        "recreate-safety",
		Description: "Warns before runs that may delete and recreate the live integration",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"operations", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package portside.policies.recreate

import rego.v1

deny contains violation if {
	input.context
	input.context.force_recreate

	# Dry runs never write, so the reminder would be noise
	not input.context.dry_run

	violation := {
		"message": "Force recreate can delete and recreate the live integration; pause event delivery or confirm the integration is safe to recreate first",
		"severity": "warning",
	}
}`,
	}
}
