package git

import (
	"context"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/matzehuels/gitpkg/pkg/errors"
)

// maxTagDepth bounds the peeling of tags that point at other tags.
const maxTagDepth = 8

// ListRefs reads HEAD, branches and tags straight from the bare repository.
// Annotated tags are peeled to their commit; tags pointing at trees or blobs
// are skipped.
func (c *CLI) ListRefs(ctx context.Context, repo *Repo) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := gogit.PlainOpen(repo.Path)
	if err != nil {
		return nil, &errors.GitError{Op: "list refs", Repo: repo.Location, Err: err}
	}

	iter, err := r.References()
	if err != nil {
		return nil, &errors.GitError{Op: "list refs", Repo: repo.Location, Err: err}
	}
	defer iter.Close()

	var refs []Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case name.IsBranch():
			refs = append(refs, Ref{Name: name.String(), Commit: ref.Hash().String()})
		case name.IsTag():
			if commit, ok := peel(r, ref.Hash()); ok {
				refs = append(refs, Ref{Name: name.String(), Commit: commit.String()})
			}
		}
		return nil
	})
	if err != nil {
		return nil, &errors.GitError{Op: "list refs", Repo: repo.Location, Err: err}
	}

	// An empty repository has an unborn HEAD.
	if head, err := r.Head(); err == nil {
		refs = append(refs, Ref{Name: Head, Commit: head.Hash().String()})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	c.logger.Debug("listed refs", "repo", repo.Location, "count", len(refs))
	return refs, nil
}

// peel follows annotated tag objects down to a commit.
func peel(r *gogit.Repository, h plumbing.Hash) (plumbing.Hash, bool) {
	for i := 0; i < maxTagDepth; i++ {
		tag, err := r.TagObject(h)
		if err != nil {
			// Lightweight tag: h already names the target object.
			if _, err := r.CommitObject(h); err != nil {
				return plumbing.ZeroHash, false
			}
			return h, true
		}
		if tag.TargetType == plumbing.CommitObject {
			return tag.Target, true
		}
		if tag.TargetType != plumbing.TagObject {
			return plumbing.ZeroHash, false
		}
		h = tag.Target
	}
	return plumbing.ZeroHash, false
}
