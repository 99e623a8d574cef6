package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		trustPrincipalPolicy(),
		streamScopePolicy(),
		wildcardPolicy(),
	}
}

// trustPrincipalPolicy pins the trust document to the configured service
// principal and to sts:AssumeRole.
func trustPrincipalPolicy() Policy {
	return Policy{
		Name:        "trust-principal",
		Description: "The role may only be assumed by the configured service principal",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"iam", "trust"},
		CreatedAt:   time.Now(),
		Rego: `package eventstream.guardrails.trust

import rego.v1

deny contains violation if {
	count(input.trust.Statement) == 0
	violation := {
		"rule": "trust-statement-required",
		"document": "trust",
		"message": "trust document has no statements",
	}
}

deny contains violation if {
	some stmt in input.trust.Statement
	not stmt.Principal.Service
	violation := {
		"rule": "trust-principal-required",
		"document": "trust",
		"message": "trust statement has no service principal",
	}
}

deny contains violation if {
	some stmt in input.trust.Statement
	service := stmt.Principal.Service
	service != data.config.service_principal
	violation := {
		"rule": "trust-principal",
		"document": "trust",
		"message": sprintf("trust principal %s is not %s", [service, data.config.service_principal]),
	}
}

deny contains violation if {
	some stmt in input.trust.Statement
	some action in stmt.Action
	action != "sts:AssumeRole"
	violation := {
		"rule": "trust-action",
		"document": "trust",
		"message": sprintf("trust action %s is not sts:AssumeRole", [action]),
	}
}
`,
	}
}

// streamScopePolicy keeps the access document to the three Kinesis write
// actions on the one stream.
func streamScopePolicy() Policy {
	return Policy{
		Name:        "stream-scope",
		Description: "The access policy may only write to the stream it was created for",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"iam", "least-privilege"},
		CreatedAt:   time.Now(),
		Rego: `package eventstream.guardrails.access

import rego.v1

allowed_actions := {"kinesis:DescribeStream", "kinesis:PutRecords", "kinesis:PutRecord"}

allowed_resources := {input.stream_arn, concat("", [input.stream_arn, "/*"])}

deny contains violation if {
	input.stream_arn == ""
	violation := {
		"rule": "stream-arn-required",
		"document": "access",
		"message": "stream ARN is empty",
	}
}

deny contains violation if {
	some stmt in input.access.Statement
	some action in stmt.Action
	not action in allowed_actions
	violation := {
		"rule": "access-action",
		"document": "access",
		"message": sprintf("action %s is not allowed on the stream", [action]),
	}
}

deny contains violation if {
	some stmt in input.access.Statement
	count(object.get(stmt, "Resource", [])) == 0
	violation := {
		"rule": "access-resource-required",
		"document": "access",
		"message": "access statement has no resource",
	}
}

deny contains violation if {
	some stmt in input.access.Statement
	some resource in object.get(stmt, "Resource", [])
	not resource in allowed_resources
	violation := {
		"rule": "access-resource",
		"document": "access",
		"message": sprintf("resource %s is outside stream %s", [resource, input.stream_arn]),
	}
}

deny contains violation if {
	some stmt in input.access.Statement
	stmt.Effect != "Allow"
	violation := {
		"rule": "access-effect",
		"document": "access",
		"message": sprintf("unexpected effect %s", [stmt.Effect]),
		"severity": "warning",
	}
}
`,
	}
}

// wildcardPolicy rejects wildcard actions in either document and a bare
// wildcard resource.
func wildcardPolicy() Policy {
	return Policy{
		Name:        "no-wildcards",
		Description: "Documents must not grant wildcard actions or resources",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"iam", "least-privilege"},
		CreatedAt:   time.Now(),
		Rego: `package eventstream.guardrails.wildcards

import rego.v1

deny contains violation if {
	some doc in ["trust", "access"]
	some stmt in input[doc].Statement
	some action in stmt.Action
	contains(action, "*")
	violation := {
		"rule": "wildcard-action",
		"document": doc,
		"message": sprintf("wildcard action %s", [action]),
	}
}

deny contains violation if {
	some stmt in input.access.Statement
	some resource in object.get(stmt, "Resource", [])
	resource == "*"
	violation := {
		"rule": "wildcard-resource",
		"document": "access",
		"message": "wildcard resource",
	}
}
`,
	}
}
