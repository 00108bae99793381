// Package transport abstracts how artifact listings and binaries are
// obtained from a service host. Services with credentials go over SSH;
// services without are read from the local filesystem. Callers cannot
// tell the two apart.
package transport

import (
	"context"
	"time"

	"github.com/jarlens/jarlens/internal/store"
)

// Entry is one artifact observed in a directory listing.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Transport lists directories and fetches binaries from one host.
type Transport interface {
	// List returns the regular files directly under path. Malformed
	// listing lines are skipped and counted, not fatal.
	List(ctx context.Context, path string) ([]Entry, int, error)

	// ListTree returns every regular file under path recursively.
	// Entry names are slash-separated paths relative to path.
	ListTree(ctx context.Context, path string) ([]Entry, int, error)

	// Fetch copies a remote file to a local path.
	Fetch(ctx context.Context, src, dst string) error

	Close() error
}

// Options carries the transport timeouts.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// For returns the right transport for a service: SSH when credentials are
// set, the local filesystem otherwise.
func For(svc *store.Service, opts Options) (Transport, error) {
	if svc.Local() {
		return NewLocal(), nil
	}
	return DialSSH(svc, opts)
}
