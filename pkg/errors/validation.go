package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// nameRegex matches dependency, source and alias names.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName validates a dependency or source name from the manifest.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - Maximum length of 128 characters
//   - Only letters, digits, dot, dash and underscore, starting alphanumeric
func ValidateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidManifest, "name cannot be empty")
	}
	if len(name) > 128 {
		return New(ErrCodeInvalidManifest, "name too long (max 128 characters)")
	}
	if !nameRegex.MatchString(name) {
		return New(ErrCodeInvalidManifest, "invalid name %q", name)
	}
	return nil
}

// ValidatePath validates a file path within a repository for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateLocation validates a source location: a URL understood by git
// (https, http, ssh, git, file, scp-like user@host:path) or a local path.
func ValidateLocation(location string) error {
	if strings.TrimSpace(location) == "" {
		return New(ErrCodeInvalidManifest, "source location cannot be empty")
	}
	for _, r := range location {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidManifest, "source location contains invalid characters")
		}
	}
	// A leading dash would be parsed as a git option.
	if strings.HasPrefix(location, "-") {
		return New(ErrCodeInvalidManifest, "source location cannot start with '-'")
	}
	return nil
}
