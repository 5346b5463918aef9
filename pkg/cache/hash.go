package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...interface{}) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// scpLike matches the scp-style git syntax user@host:path.
var scpLike = regexp.MustCompile(`^([A-Za-z0-9._-]+@)?([A-Za-z0-9.-]+):([^/].*)$`)

// SourceKey normalizes a source location into the identity used by every
// cache. Two manifest names pointing at the same repository share one key.
//
// Normalization lower-cases the scheme and host of URLs, rewrites scp-like
// locations to ssh URLs, cleans local paths, and strips a trailing ".git"
// and trailing slashes.
func SourceKey(location string) string {
	loc := strings.TrimSpace(location)

	switch {
	case strings.Contains(loc, "://"):
		if u, err := url.Parse(loc); err == nil {
			u.Scheme = strings.ToLower(u.Scheme)
			u.Host = strings.ToLower(u.Host)
			if u.Scheme == "file" {
				u.Path = filepath.ToSlash(filepath.Clean(u.Path))
			}
			loc = u.String()
		}
	case scpLike.MatchString(loc) && !filepath.IsAbs(loc):
		m := scpLike.FindStringSubmatch(loc)
		loc = "ssh://" + m[1] + strings.ToLower(m[2]) + "/" + m[3]
	default:
		if abs, err := filepath.Abs(loc); err == nil {
			loc = abs
		}
		loc = filepath.ToSlash(filepath.Clean(loc))
	}

	loc = strings.TrimRight(loc, "/")
	loc = strings.TrimSuffix(loc, ".git")
	return strings.TrimRight(loc, "/")
}

var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slug returns a filesystem-safe directory name for a source location: the
// repository basename followed by a short hash of the normalized key.
func Slug(location string) string {
	key := SourceKey(location)
	base := key
	if i := strings.LastIndexAny(base, "/:"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.Trim(slugUnsafe.ReplaceAllString(base, "-"), "-.")
	if base == "" {
		base = "source"
	}
	if len(base) > 40 {
		base = base[:40]
	}
	return base + "-" + Hash([]byte(key))[:12]
}

// ExtractKey identifies one parsed resource file: a path inside the worktree
// of a given source at a given commit.
func ExtractKey(location, commit, path string) string {
	return hashKey("extract", SourceKey(location), commit, path)
}

// IsLocal reports whether location is a filesystem path rather than a URL
// or scp-like address.
func IsLocal(location string) bool {
	loc := strings.TrimSpace(location)
	if strings.Contains(loc, "://") {
		return false
	}
	return filepath.IsAbs(loc) || !scpLike.MatchString(loc)
}

// Anchor makes a relative local location absolute against base, typically
// the manifest's directory. URLs and absolute paths are returned unchanged.
func Anchor(location, base string) string {
	if !IsLocal(location) || filepath.IsAbs(location) || base == "" {
		return location
	}
	return filepath.Clean(filepath.Join(base, location))
}
