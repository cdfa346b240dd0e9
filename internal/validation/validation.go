package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// uuidRegex matches standard UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// safePathRegex matches safe path components (alphanumeric, dash, underscore, dot)
	safePathRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// sessionIDRegex matches sess_ followed by a short hex suffix
	sessionIDRegex = regexp.MustCompile(`^sess_[0-9a-fA-F]{8}$`)

	// scheduleIDRegex matches sched_ followed by a short hex suffix
	scheduleIDRegex = regexp.MustCompile(`^sched_[0-9a-fA-F]{8}$`)
)

// ValidateUUID checks if the string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid UUID format: %s", id)
	}
	return nil
}

// ValidateSessionID validates a session ID (sess_XXXXXXXX or UUID)
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if strings.HasPrefix(id, "sess_") {
		if !sessionIDRegex.MatchString(id) {
			return fmt.Errorf("invalid session ID format: %s", id)
		}
		return nil
	}
	return ValidateUUID(id)
}

// ValidateScheduleID validates a schedule ID (sched_XXXXXXXX)
func ValidateScheduleID(id string) error {
	if id == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	if !scheduleIDRegex.MatchString(id) {
		return fmt.Errorf("invalid schedule ID format: %s", id)
	}
	return nil
}

// SanitizePath removes path traversal attempts and validates path components
func SanitizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	// Reject obvious traversal attempts
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}

	// Reject absolute paths when relative expected
	if strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}

	// Split and validate each component
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" {
			continue // Allow trailing/leading slashes
		}
		if !safePathRegex.MatchString(part) {
			return "", fmt.Errorf("unsafe path component: %s", part)
		}
	}

	return path, nil
}
