package errors

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// throttlingCodes are AWS error codes that mean "slow down".
var throttlingCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"KMSThrottlingException":                 true,
}

// FromAWSError classifies an AWS SDK error into an AppError so callers can
// decide whether to retry. Context errors are returned unchanged.
func FromAWSError(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return NewNetworkError(service+" request failed", err)
	}

	code := ae.ErrorCode()
	details := map[string]interface{}{"code": code, "message": ae.ErrorMessage()}

	switch {
	case throttlingCodes[code]:
		return NewRateLimitError(service + " throttled the request").WithCause(err).WithDetails(details)
	case strings.Contains(code, "NonExistent") || strings.HasSuffix(code, "NotFoundException") ||
		code == "ResourceNotFoundException":
		return NewFatalError(service+" resource does not exist", err).WithCode(code).WithDetails(details)
	case code == "AccessDenied" || code == "AccessDeniedException" || code == "UnrecognizedClientException":
		return NewFatalError(service+" denied access", err).WithCode(code).WithDetails(details)
	case ae.ErrorFault() == smithy.FaultClient:
		return NewValidationError(service + " rejected the request: " + ae.ErrorMessage()).
			WithCode(code).WithCause(err).WithDetails(details)
	default:
		return NewUnavailableError(service).WithCode(code).WithCause(err).WithDetails(details)
	}
}
