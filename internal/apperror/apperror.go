package apperror

import (
	"errors"
	"fmt"
)

const (
	CodeValidation      = "VALIDATION_FAILED"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeTriggerForbid   = "TRIGGER_FORBIDDEN"
	CodeRequireApproval = "REQUIRE_APPROVAL"
	CodeConditionError  = "ACTION_CONDITION_ERROR"
	CodeUpstreamFetch   = "UPSTREAM_FETCH_FAILED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Matching is by Code only.
var (
	ErrValidation      = &AppError{Code: CodeValidation}
	ErrAccessDenied    = &AppError{Code: CodeAccessDenied}
	ErrTriggerForbid   = &AppError{Code: CodeTriggerForbid}
	ErrRequireApproval = &AppError{Code: CodeRequireApproval}
	ErrCondition       = &AppError{Code: CodeConditionError}
	ErrUpstreamFetch   = &AppError{Code: CodeUpstreamFetch}
	ErrUnauthorized    = &AppError{Code: CodeUnauthorized}
)

type AppError struct {
	Code      string        `json:"code"`
	Status    int           `json:"-"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Approvers []int64       `json:"approvers,omitempty"`
	Err       error         `json:"-"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func ValidationError(msg string, details ...ErrorDetail) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Status:  422,
		Message: msg,
		Details: details,
	}
}

func AccessDenied(msg string) *AppError {
	if msg == "" {
		msg = "You are not authorized to this resource"
	}
	return &AppError{Code: CodeAccessDenied, Status: 403, Message: msg}
}

func TriggerForbidden() *AppError {
	return &AppError{
		Code:    CodeTriggerForbid,
		Status:  403,
		Message: "You are not allowed to trigger this action",
	}
}

// RequireApproval is not a hard failure: callers render it as a request for
// a second actor, listing the roles able to approve.
func RequireApproval(approvers []int64) *AppError {
	return &AppError{
		Code:      CodeRequireApproval,
		Status:    403,
		Message:   "This action requires approval",
		Approvers: approvers,
	}
}

func ConditionError(err error) *AppError {
	return &AppError{
		Code:    CodeConditionError,
		Status:  409,
		Message: "The conditions to trigger this action cannot be verified",
		Err:     err,
	}
}

func UpstreamFetchError(err error) *AppError {
	return &AppError{
		Code:    CodeUpstreamFetch,
		Status:  502,
		Message: "Unable to retrieve permissions",
		Err:     err,
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

// As extracts an *AppError from err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
