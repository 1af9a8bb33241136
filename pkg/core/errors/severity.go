package errors

// Severity represents the severity level of an error
type Severity int

const (
	// SeverityLow marks errors that do not stop processing, e.g. soft
	// command failures.
	SeverityLow Severity = iota

	// SeverityMedium is the default for errors without a more specific code.
	SeverityMedium

	// SeverityHigh marks failures that abort a request.
	SeverityHigh

	// SeverityCritical marks failures that make the system unusable.
	SeverityCritical
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ShouldAlert returns true if this severity level should trigger alerts
func (s Severity) ShouldAlert() bool {
	return s >= SeverityHigh
}

// SeverityForCode returns the default severity for an error code
func SeverityForCode(code Code) Severity {
	switch code {
	case CodeSoftFailure:
		return SeverityLow
	case CodeMissingParameter, CodeValidationFailed, CodeInvalidInput, CodeNotFound,
		CodeUnknownChain, CodeDuplicateChain:
		return SeverityMedium
	case CodeConfiguration, CodeMissingDependency, CodeVersionTooOld, CodeVersionTooNew,
		CodeExcludedVersion, CodeBundleConflict, CodeStorageOperation, CodeUnauthorized:
		return SeverityHigh
	case CodeInternal:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
