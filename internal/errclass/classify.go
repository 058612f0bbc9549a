// Package errclass maps execution failures to a category and severity
// and decides whether a failed attempt is worth retrying.
package errclass

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// severityFor is the fixed category-to-severity mapping. Classification
// must stay a pure function of the error, so severity is derived from
// the category alone.
var severityFor = map[models.ErrorCategory]models.Severity{
	models.ErrorCategoryNetwork:    models.SeverityMedium,
	models.ErrorCategoryTimeout:    models.SeverityMedium,
	models.ErrorCategoryDatabase:   models.SeverityHigh,
	models.ErrorCategoryFileSystem: models.SeverityHigh,
	models.ErrorCategoryPermission: models.SeverityCritical,
	models.ErrorCategoryValidation: models.SeverityLow,
	models.ErrorCategoryExecution:  models.SeverityMedium,
	models.ErrorCategoryUnknown:    models.SeverityHigh,
}

// Classify maps an error to a (category, severity) pair. The same error
// always yields the same classification: typed errors are checked first
// in a fixed order, then message substrings in a fixed order.
func Classify(err error) (models.ErrorCategory, models.Severity) {
	category := categorize(err)
	return category, severityFor[category]
}

func categorize(err error) models.ErrorCategory {
	if err == nil {
		return models.ErrorCategoryUnknown
	}

	// Typed checks first, in a fixed order. Permission and file system
	// checks run before the net.Error check because syscall.Errno
	// satisfies net.Error, and a path error carrying EACCES must
	// classify as permission, not network.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return models.ErrorCategoryTimeout
	}
	if errors.Is(err, os.ErrPermission) {
		return models.ErrorCategoryPermission
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist) {
		return models.ErrorCategoryFileSystem
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return models.ErrorCategoryFileSystem
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return models.ErrorCategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ErrorCategoryTimeout
		}
		return models.ErrorCategoryNetwork
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return models.ErrorCategoryExecution
	}

	return categorizeMessage(err.Error())
}

// messageRules are checked in order; the first match wins.
var messageRules = []struct {
	category models.ErrorCategory
	needles  []string
}{
	{models.ErrorCategoryNetwork, []string{
		"connection refused", "connection reset", "no such host",
		"network is unreachable", "broken pipe", "dial tcp", "dns",
	}},
	{models.ErrorCategoryTimeout, []string{
		"timed out", "timeout", "deadline exceeded",
	}},
	{models.ErrorCategoryDatabase, []string{
		"database is locked", "sqlite", "sql:", "database",
	}},
	{models.ErrorCategoryPermission, []string{
		"permission denied", "access denied", "operation not permitted",
	}},
	{models.ErrorCategoryFileSystem, []string{
		"no such file", "file exists", "is a directory", "not a directory",
		"read-only file system",
	}},
	{models.ErrorCategoryValidation, []string{
		"validation", "invalid", "malformed",
	}},
	{models.ErrorCategoryExecution, []string{
		"exit status", "command failed", "killed",
	}},
}

func categorizeMessage(msg string) models.ErrorCategory {
	msg = strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.category
			}
		}
	}
	return models.ErrorCategoryUnknown
}
