package buildsettings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xcsettings/xcsettings/pkg/xcodebuild"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed on retry:
	// a tool timeout or a failed tool run.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a failure that will recur for the same
	// settings: a missing key or a value outside a known enumeration.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassInternal indicates output this package cannot interpret.
	ErrorClassInternal ErrorClass = "internal"
)

// Error codes.
const (
	ErrCodeMissingBuildSetting = "MISSING_BUILD_SETTING"
	ErrCodeUnrecognizedValue   = "UNRECOGNIZED_VALUE"
	ErrCodeToolTimeout         = "TOOL_TIMEOUT"
	ErrCodeTaskFailed          = "TASK_FAILED"
	ErrCodeUndecodableOutput   = "UNDECODABLE_OUTPUT"
)

// Sentinels for errors.Is. Matching compares class and code only.
var (
	ErrMissingBuildSetting = &Error{Class: ErrorClassPermanent, Code: ErrCodeMissingBuildSetting}
	ErrUnrecognizedValue   = &Error{Class: ErrorClassPermanent, Code: ErrCodeUnrecognizedValue}
	ErrToolTimeout         = &Error{Class: ErrorClassTransient, Code: ErrCodeToolTimeout}
	ErrTaskFailed          = &Error{Class: ErrorClassTransient, Code: ErrCodeTaskFailed}
	ErrUndecodableOutput   = &Error{Class: ErrorClassInternal, Code: ErrCodeUndecodableOutput}
)

// Error is a classified build settings failure.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code identifies the failure kind.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Key is the build setting involved, if any.
	Key string `json:"key,omitempty"`

	// Value is the offending setting value for UNRECOGNIZED_VALUE.
	Value string `json:"value,omitempty"`

	// Project is the project the failing invocation targeted.
	Project xcodebuild.ProjectLocator `json:"project,omitzero"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)

	var ctx []string
	if e.Key != "" {
		ctx = append(ctx, "key="+e.Key)
	}
	if e.Code == ErrCodeUnrecognizedValue {
		ctx = append(ctx, fmt.Sprintf("value=%q", e.Value))
	}
	if !e.Project.IsZero() {
		ctx = append(ctx, "project="+e.Project.Path)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func missingSettingError(key string) *Error {
	return &Error{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeMissingBuildSetting,
		Message: fmt.Sprintf("missing build setting %q", key),
		Key:     key,
	}
}

func unrecognizedValueError(key, value string) *Error {
	return &Error{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeUnrecognizedValue,
		Message: fmt.Sprintf("unrecognized value for build setting %q", key),
		Key:     key,
		Value:   value,
	}
}

func toolTimeoutError(project xcodebuild.ProjectLocator, err error) *Error {
	return &Error{
		Class:   ErrorClassTransient,
		Code:    ErrCodeToolTimeout,
		Message: "xcodebuild timed out reading build settings",
		Project: project,
		Err:     err,
	}
}

func taskFailedError(project xcodebuild.ProjectLocator, err error) *Error {
	return &Error{
		Class:   ErrorClassTransient,
		Code:    ErrCodeTaskFailed,
		Message: "xcodebuild failed reading build settings",
		Project: project,
		Err:     err,
	}
}

func undecodableOutputError(project xcodebuild.ProjectLocator) *Error {
	return &Error{
		Class:   ErrorClassInternal,
		Code:    ErrCodeUndecodableOutput,
		Message: "xcodebuild output is not valid UTF-8",
		Project: project,
	}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsMissingSetting reports whether err is a missing build setting failure.
func IsMissingSetting(err error) bool {
	return hasCode(err, ErrCodeMissingBuildSetting)
}

// IsUnrecognizedValue reports whether err is an enumeration decode failure.
func IsUnrecognizedValue(err error) bool {
	return hasCode(err, ErrCodeUnrecognizedValue)
}

// IsTimeout reports whether err is an xcodebuild timeout.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeToolTimeout)
}

// IsRetryable returns true if the error is classified as transient.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}
