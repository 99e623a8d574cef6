package engine

import (
	"fmt"
	"regexp"
)

const (
	streamNamePrefix = "event-stream-"
	roleNamePrefix   = "pinpoint-service-"
	roleNameSuffix   = "-role"
	policyNameSuffix = "-policy"

	// maxRoleNameLength is the IAM limit on role names.
	maxRoleNameLength = 64
)

var applicationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Names holds every resource name derived from an application identifier.
// Derivation is a pure function of the identifier so that Delete can find
// what Create made without any persisted state.
type Names struct {
	Stream string `json:"stream"`
	Role   string `json:"role"`
	Policy string `json:"policy"`
}

// NamesFor derives the resource names for applicationID.
func NamesFor(applicationID string) Names {
	return Names{
		Stream: StreamName(applicationID),
		Role:   RoleName(applicationID),
		Policy: PolicyName(applicationID),
	}
}

// StreamName returns "event-stream-<applicationID>".
func StreamName(applicationID string) string {
	return streamNamePrefix + applicationID
}

// RoleName returns "pinpoint-service-<applicationID>-role".
func RoleName(applicationID string) string {
	return roleNamePrefix + applicationID + roleNameSuffix
}

// PolicyName returns "pinpoint-service-<applicationID>-policy".
func PolicyName(applicationID string) string {
	return roleNamePrefix + applicationID + policyNameSuffix
}

// PolicyARN returns the ARN of a customer-managed policy.
func PolicyARN(partition, accountID, policyName string) string {
	return fmt.Sprintf("arn:%s:iam::%s:policy/%s", partition, accountID, policyName)
}

// StreamARN returns the ARN a stream will have once created. The provider's
// answer remains authoritative; this is only for offline rendering.
func StreamARN(partition, region, accountID, streamName string) string {
	return fmt.Sprintf("arn:%s:kinesis:%s:%s:stream/%s", partition, region, accountID, streamName)
}

// ValidateApplicationID checks that applicationID can be embedded in every
// derived resource name.
func ValidateApplicationID(applicationID string) error {
	if applicationID == "" {
		return NewValidationError("application id is required", nil)
	}
	if !applicationIDPattern.MatchString(applicationID) {
		return NewValidationError(
			fmt.Sprintf("application id %q must contain only letters, digits, '_', '.' or '-'", applicationID), nil)
	}
	if n := len(RoleName(applicationID)); n > maxRoleNameLength {
		return NewValidationError(
			fmt.Sprintf("application id %q yields a %d character role name (max %d)", applicationID, n, maxRoleNameLength), nil)
	}
	return nil
}
