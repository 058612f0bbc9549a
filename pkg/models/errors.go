package models

// ErrorCategory classifies a task failure into a fixed taxonomy.
type ErrorCategory string

const (
	// ErrorCategoryNetwork covers connection, DNS, and remote-host failures.
	ErrorCategoryNetwork ErrorCategory = "network"
	// ErrorCategoryFileSystem covers missing files, bad paths, and disk errors.
	ErrorCategoryFileSystem ErrorCategory = "file_system"
	// ErrorCategoryDatabase covers storage-layer failures.
	ErrorCategoryDatabase ErrorCategory = "database"
	// ErrorCategoryPermission covers access-denied failures.
	ErrorCategoryPermission ErrorCategory = "permission"
	// ErrorCategoryTimeout covers deadline and timeout failures.
	ErrorCategoryTimeout ErrorCategory = "timeout"
	// ErrorCategoryValidation covers input and precondition failures.
	ErrorCategoryValidation ErrorCategory = "validation"
	// ErrorCategoryExecution covers failures of the task's own action,
	// such as a non-zero exit code.
	ErrorCategoryExecution ErrorCategory = "execution"
	// ErrorCategoryUnknown is the fallback for unclassifiable failures.
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// Valid returns true if the category is a known value.
func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorCategoryNetwork, ErrorCategoryFileSystem, ErrorCategoryDatabase,
		ErrorCategoryPermission, ErrorCategoryTimeout, ErrorCategoryValidation,
		ErrorCategoryExecution, ErrorCategoryUnknown:
		return true
	default:
		return false
	}
}

// Transient returns true for categories that are worth retrying.
func (c ErrorCategory) Transient() bool {
	switch c {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryDatabase:
		return true
	default:
		return false
	}
}

// Severity grades how serious a classified failure is.
type Severity string

const (
	// SeverityLow marks failures that are routine and expected.
	SeverityLow Severity = "low"
	// SeverityMedium marks failures that deserve attention.
	SeverityMedium Severity = "medium"
	// SeverityHigh marks failures that likely need intervention.
	SeverityHigh Severity = "high"
	// SeverityCritical marks failures that threaten the whole run.
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}
