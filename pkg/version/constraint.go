package version

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
)

// Kind is the variant of a Constraint.
type Kind int

const (
	Unconstrained Kind = iota
	Exact
	Branch
	Range
)

func (k Kind) String() string {
	switch k {
	case Unconstrained:
		return "latest"
	case Exact:
		return "exact"
	case Branch:
		return "branch"
	case Range:
		return "range"
	}
	return "unknown"
}

// Constraint is a parsed version specifier.
type Constraint struct {
	Kind Kind
	Raw  string // as written, trimmed; empty for Unconstrained

	rng *semver.Constraints
}

// fullVersion matches a complete semantic version with optional "v" prefix.
// Partial versions ("1", "1.2") are ranges.
var fullVersion = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Parse infers a Constraint from a manifest version string.
//
// Inference order: unconstrained markers, commit ids (7-40 hex), full
// semantic versions (exact tag), semver ranges, and finally branch names.
func Parse(raw string) (Constraint, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == "*" || strings.EqualFold(raw, "latest"):
		return Constraint{Kind: Unconstrained}, nil
	case git.IsCommitID(raw):
		return Constraint{Kind: Exact, Raw: strings.ToLower(raw)}, nil
	case fullVersion.MatchString(raw):
		return Constraint{Kind: Exact, Raw: raw}, nil
	}
	if rng, err := semver.NewConstraint(raw); err == nil {
		return Constraint{Kind: Range, Raw: raw, rng: rng}, nil
	}
	return ParseBranch(raw)
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) Constraint {
	c, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseBranch builds a Branch constraint.
func ParseBranch(name string) (Constraint, error) {
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "refs/heads/"))
	if err := validateRefName(name); err != nil {
		return Constraint{}, err
	}
	return Constraint{Kind: Branch, Raw: name}, nil
}

// ParseRev builds an Exact constraint from a tag name or commit id.
func ParseRev(rev string) (Constraint, error) {
	rev = strings.TrimSpace(rev)
	if err := validateRefName(rev); err != nil {
		return Constraint{}, err
	}
	if git.IsCommitID(rev) {
		rev = strings.ToLower(rev)
	}
	return Constraint{Kind: Exact, Raw: rev}, nil
}

// validateRefName applies the subset of git-check-ref-format rules that
// matter for safety and obvious typos.
func validateRefName(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidVersion, "empty ref name")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.Contains(name, "..") || strings.HasSuffix(name, ".lock") {
		return errors.New(errors.ErrCodeInvalidVersion, "invalid ref name %q", name)
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(`~^:?*[\`, r) {
			return errors.New(errors.ErrCodeInvalidVersion, "invalid ref name %q", name)
		}
	}
	return nil
}

// IsCommit reports whether the constraint pins a commit id.
func (c Constraint) IsCommit() bool {
	return c.Kind == Exact && git.IsCommitID(c.Raw)
}

// String returns the constraint as a user would write it.
func (c Constraint) String() string {
	if c.Kind == Unconstrained {
		return "*"
	}
	return c.Raw
}

// Key returns a string that is equal for equivalent constraints. A branch
// and a tag with the same name have different keys.
func (c Constraint) Key() string {
	return c.Kind.String() + ":" + c.Raw
}

// Resolved binds a constraint outcome to an immutable commit.
//
// Two Resolved values with equal Source and Commit are interchangeable for
// caching; Ref is informational.
type Resolved struct {
	Source string // normalized source key
	Commit string // full 40-hex commit id
	Ref    string // matched ref name, empty when a commit was pinned directly
}

// Key identifies the checkout this resolution needs.
func (r Resolved) Key() string {
	return r.Source + "@" + r.Commit
}
