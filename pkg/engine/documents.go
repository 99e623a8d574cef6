package engine

import (
	"encoding/json"
	"fmt"
)

const (
	// PolicyVersion is the IAM policy language version.
	PolicyVersion = "2012-10-17"

	// DefaultServicePrincipal is the service allowed to assume the role.
	DefaultServicePrincipal = "pinpoint.amazonaws.com"
)

// Kinesis actions granted to the role.
const (
	ActionDescribeStream = "kinesis:DescribeStream"
	ActionPutRecords     = "kinesis:PutRecords"
	ActionPutRecord      = "kinesis:PutRecord"
)

// PolicyDocument is an IAM policy or trust document.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is a single IAM policy statement.
type Statement struct {
	Effect    string     `json:"Effect"`
	Principal *Principal `json:"Principal,omitempty"`
	Action    []string   `json:"Action"`
	Resource  []string   `json:"Resource,omitempty"`
}

// Principal names the service a trust statement applies to.
type Principal struct {
	Service string `json:"Service"`
}

// TrustDocument returns the assume-role document for servicePrincipal.
func TrustDocument(servicePrincipal string) PolicyDocument {
	return PolicyDocument{
		Version: PolicyVersion,
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: &Principal{Service: servicePrincipal},
				Action:    []string{"sts:AssumeRole"},
			},
		},
	}
}

// StreamAccessDocument returns the least-privilege document scoped to
// streamARN. PutRecord is granted on the stream's sub-resources.
func StreamAccessDocument(streamARN string) PolicyDocument {
	return PolicyDocument{
		Version: PolicyVersion,
		Statement: []Statement{
			{
				Effect:   "Allow",
				Action:   []string{ActionDescribeStream, ActionPutRecords},
				Resource: []string{streamARN},
			},
			{
				Effect:   "Allow",
				Action:   []string{ActionPutRecord},
				Resource: []string{streamARN + "/*"},
			},
		},
	}
}

// JSON renders the document as IAM expects it.
func (d PolicyDocument) JSON() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy document: %w", err)
	}
	return string(data), nil
}
