package stringutil

import (
	"regexp"

	"github.com/forgebuild/forge/pkg/logger"
)

var sanitizeLog = logger.New("stringutil:sanitize")

// Regex patterns for detecting potential secret key names that leak into
// build diagnostics (compiler error text sometimes echoes the environment,
// and the distributed executor logs the environment block it wrote to the
// task XML).
var (
	// Match uppercase snake_case identifiers that look like secret names
	// (e.g. AWS_SECRET_ACCESS_KEY, SNDBS_LICENSE_KEY, API_TOKEN).
	secretNamePattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]*_[A-Z0-9_]+)\b`)

	// Match PascalCase identifiers ending with security-related suffixes.
	pascalCaseSecretPattern = regexp.MustCompile(`\b([A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)*(?:Token|Key|Secret|Password|Credential|Auth))\b`)

	// Common non-sensitive build-environment keywords to exclude from redaction.
	commonBuildKeywords = map[string]bool{
		"PATH":              true,
		"HOME":              true,
		"SHELL":             true,
		"TEMP":              true,
		"TMP":               true,
		"INCLUDE":           true,
		"LIB":               true,
		"LIBPATH":           true,
		"WORKING_DIRECTORY": true,
		"CONTINUE_ON_ERROR": true,
		"NUMBER_OF_PROCESSORS": true,
	}
)

// SanitizeErrorMessage removes potential secret key names from error
// messages and captured child-process output before they reach a log file,
// preventing a distributed build from leaking a coordinator license key or
// CI token through its own diagnostics.
func SanitizeErrorMessage(message string) string {
	if message == "" {
		return message
	}

	sanitizeLog.Printf("Sanitizing message: length=%d", len(message))

	sanitized := secretNamePattern.ReplaceAllStringFunc(message, func(match string) string {
		if commonBuildKeywords[match] {
			return match
		}
		sanitizeLog.Printf("Redacted snake_case secret pattern: %s", match)
		return "[REDACTED]"
	})

	sanitized = pascalCaseSecretPattern.ReplaceAllString(sanitized, "[REDACTED]")

	if sanitized != message {
		sanitizeLog.Print("Message sanitization applied redactions")
	}

	return sanitized
}
