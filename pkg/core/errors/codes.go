package errors

import (
	"net/http"
	"strings"
)

// Code represents a structured error code for categorizing errors
type Code string

const (
	// Generic codes
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Command chain
	CodeConfiguration    Code = "CONFIGURATION"
	CodeMissingParameter Code = "MISSING_PARAMETER"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeSoftFailure      Code = "SOFT_FAILURE"

	// Bundles
	CodeMissingDependency Code = "MISSING_DEPENDENCY"
	CodeVersionTooOld     Code = "VERSION_TOO_OLD"
	CodeVersionTooNew     Code = "VERSION_TOO_NEW"
	CodeExcludedVersion   Code = "EXCLUDED_VERSION"
	CodeBundleConflict    Code = "BUNDLE_CONFLICT"

	// Filters
	CodeUnknownChain   Code = "UNKNOWN_CHAIN"
	CodeDuplicateChain Code = "DUPLICATE_CHAIN"

	// Persistence
	CodeStorageOperation Code = "STORAGE_OPERATION"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// Category returns the high-level category of the error code
func (c Code) Category() string {
	switch c {
	case CodeConfiguration, CodeMissingParameter, CodeValidationFailed, CodeSoftFailure:
		return "command"
	case CodeMissingDependency, CodeVersionTooOld, CodeVersionTooNew, CodeExcludedVersion, CodeBundleConflict:
		return "bundle"
	case CodeUnknownChain, CodeDuplicateChain:
		return "filter"
	case CodeStorageOperation:
		return "storage"
	case CodeUnauthorized:
		return "authentication"
	default:
		return "generic"
	}
}

// HTTPStatus returns the HTTP status code used when the error reaches the
// front controller.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeUnknownChain:
		return http.StatusNotFound
	case CodeMissingParameter, CodeValidationFailed, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeDuplicateChain:
		return http.StatusConflict
	case CodeStorageOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Configuration reports a malformed request table or command setup.
func Configuration(message string) *Error {
	return New(message).WithCode(CodeConfiguration)
}

// MissingParameter reports a required parameter that resolved to nothing.
func MissingParameter(command, param string) *Error {
	return Newf("command %q: missing required parameter %q", command, param).
		WithCode(CodeMissingParameter).
		WithDetail("command", command).
		WithDetail("parameter", param)
}

// Validation reports a value rejected by a filter or field definition.
func Validation(command, param, reason string) *Error {
	return Newf("command %q: parameter %q failed validation: %s", command, param, reason).
		WithCode(CodeValidationFailed).
		WithDetail("command", command).
		WithDetail("parameter", param).
		WithDetail("reason", reason)
}

// Soft creates a non-fatal command failure. Chains log and skip it.
func Soft(message string) *Error {
	return New(message).WithCode(CodeSoftFailure).WithSeverity(SeverityLow)
}

// MissingDependency reports a bundle dependency absent from the registry.
func MissingDependency(bundle, dependency string) *Error {
	return Newf("bundle %q requires %q, which is not installed", bundle, dependency).
		WithCode(CodeMissingDependency).
		WithDetail("bundle", bundle).
		WithDetail("dependency", dependency)
}

// VersionTooOld reports an installed dependency older than the required
// minimum.
func VersionTooOld(bundle, dependency, installed, minimum string) *Error {
	return Newf("bundle %q requires %q >= %s, found %s", bundle, dependency, minimum, installed).
		WithCode(CodeVersionTooOld).
		WithDetail("bundle", bundle).
		WithDetail("dependency", dependency).
		WithDetail("installed", installed).
		WithDetail("min", minimum)
}

// VersionTooNew reports an installed dependency newer than the allowed
// maximum.
func VersionTooNew(bundle, dependency, installed, maximum string) *Error {
	return Newf("bundle %q requires %q <= %s, found %s", bundle, dependency, maximum, installed).
		WithCode(CodeVersionTooNew).
		WithDetail("bundle", bundle).
		WithDetail("dependency", dependency).
		WithDetail("installed", installed).
		WithDetail("max", maximum)
}

// ExcludedVersion reports an installed dependency whose exact version is
// blacklisted.
func ExcludedVersion(bundle, dependency, installed string) *Error {
	return Newf("bundle %q cannot use %q version %s", bundle, dependency, installed).
		WithCode(CodeExcludedVersion).
		WithDetail("bundle", bundle).
		WithDetail("dependency", dependency).
		WithDetail("installed", installed)
}

// Conflict reports every installed bundle that the candidate declared
// incompatible.
func Conflict(bundle string, conflicts []string) *Error {
	return Newf("bundle %q conflicts with: %s", bundle, strings.Join(conflicts, ", ")).
		WithCode(CodeBundleConflict).
		WithDetail("bundle", bundle).
		WithDetail("conflicts", append([]string(nil), conflicts...))
}

// UnknownChain reports a filter chain that is not stored.
func UnknownChain(name string) *Error {
	return Newf("filter chain %q does not exist", name).
		WithCode(CodeUnknownChain).
		WithDetail("chain", name)
}

// DuplicateChain reports an attempt to replace a chain without overwrite.
func DuplicateChain(name string) *Error {
	return Newf("filter chain %q already exists", name).
		WithCode(CodeDuplicateChain).
		WithDetail("chain", name)
}

// StorageOperation wraps a datastore failure.
func StorageOperation(operation string, cause error) *Error {
	if cause == nil {
		return New("storage operation failed").
			WithCode(CodeStorageOperation).
			WithOperation(operation)
	}
	return Wrap(cause, "storage operation failed").
		WithCode(CodeStorageOperation).
		WithOperation(operation)
}
