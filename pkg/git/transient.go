package git

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/matzehuels/gitpkg/pkg/errors"
)

// transientMarkers are substrings of git output that indicate a network
// hiccup rather than a permanent failure.
var transientMarkers = []string{
	"could not resolve host",
	"temporary failure in name resolution",
	"connection reset",
	"connection refused",
	"connection timed out",
	"operation timed out",
	"early eof",
	"the remote end hung up unexpectedly",
	"rpc failed",
	"gnutls_handshake",
	"ssl_read",
	"http/2 stream",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway time-out",
}

// IsTransient reports whether err is a git failure worth retrying once:
// a per-command timeout or output that looks like a network error.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var gerr *errors.GitError
	if !stderrors.As(err, &gerr) {
		return false
	}
	if stderrors.Is(gerr.Err, context.DeadlineExceeded) {
		return true
	}
	out := strings.ToLower(gerr.Output)
	for _, m := range transientMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}
