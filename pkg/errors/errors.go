package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an operation failure class. Codes are stable strings that
// surface to the caller both on the wire and through the library API.
type Code string

const (
	// Logical failures surfaced immediately, never retried.
	CodeValidation             Code = "ValidationException"
	CodeConditionalCheckFailed Code = "ConditionalCheckFailedException"
	CodeTransactionCanceled    Code = "TransactionCanceledException"
	CodeResourceNotFound       Code = "ResourceNotFoundException"
	CodeResourceInUse          Code = "ResourceInUseException"
	CodeTableAlreadyExists     Code = "TableAlreadyExistsException"
	CodeItemCollectionLimit    Code = "ItemCollectionSizeLimitExceededException"
	CodeExpiredIterator        Code = "ExpiredIteratorException"

	// Operational failures.
	CodeRequestTimeout Code = "RequestTimeout"
	CodeInternal       Code = "InternalServerError"
)

// CancellationReason describes the outcome of a single entry in a canceled
// transaction. Entries that did not cause the cancellation carry code "None".
type CancellationReason struct {
	Code    string `json:"Code"`
	Message string `json:"Message,omitempty"`
}

// ReasonNone marks a transaction entry that passed its checks.
const ReasonNone = "None"

// OperationError is the failure type returned by every engine operation.
// It carries the taxonomy code, a human message and, for canceled
// transactions, one reason per input entry in input order.
type OperationError struct {
	Code    Code
	Message string
	Reasons []CancellationReason
	Cause   error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Is matches two operation errors by code, so callers can use errors.Is with
// sentinel-style targets.
func (e *OperationError) Is(target error) bool {
	var oe *OperationError
	if errors.As(target, &oe) {
		return e.Code == oe.Code
	}
	return false
}

// WithCause attaches an underlying error and returns the receiver.
func (e *OperationError) WithCause(err error) *OperationError {
	e.Cause = err
	return e
}

// HTTPStatus maps the code onto the DynamoDB protocol's status classes:
// client faults are 400, server faults 500.
func (e *OperationError) HTTPStatus() int {
	switch e.Code {
	case CodeInternal:
		return http.StatusInternalServerError
	case CodeRequestTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadRequest
	}
}

// WireType returns the namespaced __type value used by the JSON protocol.
func (e *OperationError) WireType() string {
	return "com.amazonaws.dynamodb.v20120810#" + string(e.Code)
}

// Retryable reports whether the failure is operational and safe to retry.
// Logical failures (validation, conditions, cancellation) are final.
func (e *OperationError) Retryable() bool {
	return e.Code == CodeInternal || e.Code == CodeRequestTimeout
}

// NewValidation creates a ValidationException.
func NewValidation(format string, args ...interface{}) *OperationError {
	return &OperationError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConditionalCheckFailed reports a failed ConditionExpression on a
// single-item write.
func NewConditionalCheckFailed() *OperationError {
	return &OperationError{Code: CodeConditionalCheckFailed, Message: "The conditional request failed"}
}

// NewTransactionCanceled reports a canceled transaction with per-entry
// reasons in input order.
func NewTransactionCanceled(reasons []CancellationReason) *OperationError {
	return &OperationError{
		Code:    CodeTransactionCanceled,
		Message: "Transaction cancelled, please refer cancellation reasons for specific reasons",
		Reasons: reasons,
	}
}

// NewResourceNotFound reports a missing table or index.
func NewResourceNotFound(resource string) *OperationError {
	return &OperationError{
		Code:    CodeResourceNotFound,
		Message: fmt.Sprintf("Requested resource not found: %s", resource),
	}
}

// NewResourceInUse reports an operation against a table in an invalid state.
func NewResourceInUse(table string) *OperationError {
	return &OperationError{
		Code:    CodeResourceInUse,
		Message: fmt.Sprintf("Table already exists: %s", table),
	}
}

// NewExpiredIterator reports a shard iterator that can no longer be honored.
func NewExpiredIterator(message string) *OperationError {
	return &OperationError{Code: CodeExpiredIterator, Message: message}
}

// NewRequestTimeout reports a deadline expiry.
func NewRequestTimeout() *OperationError {
	return &OperationError{Code: CodeRequestTimeout, Message: "Request deadline exceeded"}
}

// NewInternal wraps a backend failure.
func NewInternal(err error) *OperationError {
	return &OperationError{Code: CodeInternal, Message: "Internal server error", Cause: err}
}

// AsOperationError extracts an OperationError from err, wrapping unknown
// errors as internal so the API never leaks raw backend errors.
func AsOperationError(err error) *OperationError {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe
	}
	return NewInternal(err)
}

// IsCode reports whether err is an OperationError with the given code.
func IsCode(err error, code Code) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == code
}
