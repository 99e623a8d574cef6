package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

// Provider error codes mapped to engine error kinds. Anything not listed
// is ErrorKindUnavailable.
var errorCodeKinds = map[string]engine.ErrorKind{
	// Absent resources
	"ResourceNotFoundException": engine.ErrorKindNotFound, // kinesis
	"NoSuchEntity":              engine.ErrorKindNotFound, // iam
	"NotFoundException":         engine.ErrorKindNotFound, // pinpoint

	// Malformed requests
	"ValidationError":          engine.ErrorKindValidation,
	"InvalidArgumentException": engine.ErrorKindValidation,
	"MalformedPolicyDocument":  engine.ErrorKindValidation,
	"InvalidInput":             engine.ErrorKindValidation,
	"BadRequestException":      engine.ErrorKindValidation,

	// Existing or still-referenced resources
	"EntityAlreadyExists":    engine.ErrorKindConflict,
	"ResourceInUseException": engine.ErrorKindConflict,
	"DeleteConflict":         engine.ErrorKindConflict,
	"ConflictException":      engine.ErrorKindConflict,
}

// classify wraps err in an *engine.Error. Errors that are already
// classified pass through unchanged.
func classify(service, operation, resource string, err error) error {
	if err == nil {
		return nil
	}

	var classified *engine.Error
	if errors.As(err, &classified) {
		return err
	}

	op := service + ":" + operation

	if errors.Is(err, context.DeadlineExceeded) {
		return engine.NewTimeoutError(fmt.Sprintf("%s deadline exceeded", op), err).
			WithResource(resource).
			WithOperation(op)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		kind, ok := errorCodeKinds[code]
		if !ok {
			kind = engine.ErrorKindUnavailable
		}
		return engine.NewError(kind, fmt.Sprintf("%s failed with %s", op, code), err).
			WithCode(code).
			WithResource(resource).
			WithOperation(op)
	}

	return engine.NewUnavailableError(fmt.Sprintf("%s failed", op), err).
		WithResource(resource).
		WithOperation(op)
}
