package version

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/gitpkg/pkg/errors"
	"github.com/matzehuels/gitpkg/pkg/git"
)

// maxNearest caps the refs listed in a NoMatchingVersion error.
const maxNearest = 5

// Select returns the ref that best satisfies c. The returned error is a
// *errors.NoMatchingVersionError (Source left empty for the caller to fill)
// or, for an abbreviated commit id matching several tips, an
// *errors.AmbiguousVersionError.
func Select(c Constraint, refs []git.Ref) (git.Ref, error) {
	var (
		ref git.Ref
		ok  bool
		err error
	)
	switch c.Kind {
	case Unconstrained:
		ref, ok = findName(refs, git.Head)
	case Exact:
		ref, ok, err = selectExact(c, refs)
	case Branch:
		ref, ok = findName(refs, git.BranchRef(c.Raw))
	case Range:
		ref, ok = selectRange(c, refs)
	}
	if err != nil {
		return git.Ref{}, err
	}
	if !ok {
		return git.Ref{}, &errors.NoMatchingVersionError{
			Constraint: c.String(),
			Nearest:    Nearest(c, refs),
		}
	}
	return ref, nil
}

func selectExact(c Constraint, refs []git.Ref) (git.Ref, bool, error) {
	for _, name := range []string{git.TagRef(c.Raw), git.BranchRef(c.Raw), c.Raw} {
		if ref, ok := findName(refs, name); ok {
			return ref, true, nil
		}
	}

	// "1.2.0" also matches a tag spelled "v1.2.0".
	if want, err := semver.NewVersion(c.Raw); err == nil && fullVersion.MatchString(c.Raw) {
		var best git.Ref
		found := false
		for _, ref := range refs {
			if !ref.IsTag() {
				continue
			}
			v, err := semver.NewVersion(ref.ShortName())
			if err != nil || !v.Equal(want) {
				continue
			}
			if !found || ref.Name < best.Name {
				best, found = ref, true
			}
		}
		if found {
			return best, true, nil
		}
	}

	if !c.IsCommit() {
		return git.Ref{}, false, nil
	}

	// Commit prefix against ref tips. Tags are preferred as the informational
	// ref, then branches, then HEAD, then by name.
	var matches []git.Ref
	commits := map[string]bool{}
	for _, ref := range refs {
		if strings.HasPrefix(ref.Commit, c.Raw) {
			matches = append(matches, ref)
			commits[ref.Commit] = true
		}
	}
	if len(matches) == 0 {
		return git.Ref{}, false, nil
	}
	if len(commits) > 1 {
		var shas []string
		for sha := range commits {
			shas = append(shas, sha)
		}
		sort.Strings(shas)
		return git.Ref{}, false, &errors.AmbiguousVersionError{Constraint: c.Raw, Commits: shas}
	}
	sort.Slice(matches, func(i, j int) bool {
		ri, rj := refRank(matches[i]), refRank(matches[j])
		if ri != rj {
			return ri < rj
		}
		return matches[i].Name < matches[j].Name
	})
	return matches[0], true, nil
}

func refRank(r git.Ref) int {
	switch {
	case r.IsTag():
		return 0
	case r.IsBranch():
		return 1
	}
	return 2
}

func selectRange(c Constraint, refs []git.Ref) (git.Ref, bool) {
	var (
		best    git.Ref
		bestVer *semver.Version
	)
	for _, ref := range refs {
		if !ref.IsTag() {
			continue
		}
		v, err := semver.NewVersion(ref.ShortName())
		if err != nil || !c.rng.Check(v) {
			continue
		}
		if bestVer == nil {
			best, bestVer = ref, v
			continue
		}
		switch cmp := v.Compare(bestVer); {
		case cmp > 0, cmp == 0 && ref.Name < best.Name:
			best, bestVer = ref, v
		}
	}
	return best, bestVer != nil
}

func findName(refs []git.Ref, name string) (git.Ref, bool) {
	for _, ref := range refs {
		if ref.Name == name {
			return ref, true
		}
	}
	return git.Ref{}, false
}

// Nearest lists up to five refs a user probably meant: branch names for
// branch constraints, otherwise tags ordered from the highest version down,
// with non-semver tags last in name order.
func Nearest(c Constraint, refs []git.Ref) []string {
	var names []string
	if c.Kind == Branch {
		for _, ref := range refs {
			if ref.IsBranch() {
				names = append(names, ref.ShortName())
			}
		}
		sort.Strings(names)
	} else {
		type tag struct {
			name string
			v    *semver.Version
		}
		var tags []tag
		for _, ref := range refs {
			if ref.IsTag() {
				v, _ := semver.NewVersion(ref.ShortName())
				tags = append(tags, tag{ref.ShortName(), v})
			}
		}
		sort.Slice(tags, func(i, j int) bool {
			a, b := tags[i], tags[j]
			switch {
			case a.v != nil && b.v != nil:
				if cmp := a.v.Compare(b.v); cmp != 0 {
					return cmp > 0
				}
			case a.v != nil:
				return true
			case b.v != nil:
				return false
			}
			return a.name < b.name
		})
		for _, t := range tags {
			names = append(names, t.name)
		}
	}
	if len(names) > maxNearest {
		names = names[:maxNearest]
	}
	return names
}

// Satisfies reports whether a previously selected ref and commit still
// satisfy c. ref may be a full or short ref name and may be empty when a
// commit was pinned directly.
func Satisfies(c Constraint, ref, commit string) bool {
	r := git.Ref{Name: ref}
	short := r.ShortName()
	switch c.Kind {
	case Unconstrained:
		return commit != ""
	case Exact:
		if c.IsCommit() && strings.HasPrefix(strings.ToLower(commit), c.Raw) {
			return true
		}
		if ref == "" {
			return false
		}
		if short == c.Raw || ref == c.Raw {
			return true
		}
		if !fullVersion.MatchString(c.Raw) {
			return false
		}
		want, err1 := semver.NewVersion(c.Raw)
		got, err2 := semver.NewVersion(short)
		return err1 == nil && err2 == nil && want.Equal(got) && r.IsTag()
	case Branch:
		return ref == git.BranchRef(c.Raw) || (short == c.Raw && !r.IsTag())
	case Range:
		if !r.IsTag() && strings.HasPrefix(ref, "refs/") {
			return false
		}
		v, err := semver.NewVersion(short)
		return err == nil && c.rng.Check(v)
	}
	return false
}
