package archive

import (
	"context"
	"errors"
)

// Sentinel errors for archive client operations.
var (
	// ErrArchive wraps unexpected failures surfaced by the archive client.
	ErrArchive = errors.New("archive client operation failed")

	// ErrPathNotFound is returned when an operation targets a path that does
	// not exist in the archive. Corresponds to wire error code -310000.
	ErrPathNotFound = errors.New("archive path does not exist")

	// ErrInvalidScope is returned when MetaQuery is given a scope other than
	// Collections or DataObjects.
	ErrInvalidScope = errors.New("invalid metadata query scope")
)

// Scope selects which kind of archive entry a MetaQuery call searches over.
type Scope string

// Scopes accepted by MetaQuery.
const (
	Collections Scope = "collections"
	DataObjects Scope = "data_objects"
)

// Entry describes one child of a listed collection.
type Entry struct {
	Name   string
	IsData bool // true for a data object, false for a sub-collection
}

// SupersedeOption configures optional MetaSupersede behaviour.
type SupersedeOption func(*supersedeOptions)

type supersedeOptions struct {
	history bool
}

// WithHistory requests that MetaSupersede write a history marker AVU
// (attribute "history", value "superseded N attributes", N being the number
// of AVUs it removed; written even when N is 0). Accepted by the contract as a
// documented extension point; no worker in this core exercises it.
func WithHistory() SupersedeOption {
	return func(o *supersedeOptions) {
		o.history = true
	}
}

// Client is the contract WorkBot's pipeline and broker use to talk to the
// archive (an iRODS-shaped object store, in production reached via baton-do).
type Client interface {
	// Exists reports whether path is present in the archive.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the immediate children of the collection at path.
	List(ctx context.Context, path string) ([]Entry, error)

	// MkdirAll ensures path exists as a collection, creating parent
	// collections as needed.
	MkdirAll(ctx context.Context, path string) error

	// Get recursively downloads the collection at srcPath into destDir,
	// verifying checksums. If force is true, a partially-downloaded
	// destination is overwritten rather than rejected.
	Get(ctx context.Context, srcPath, destDir string, force bool) error

	// Put recursively uploads the local directory at srcDir into the
	// collection at destPath, verifying checksums.
	Put(ctx context.Context, srcDir, destPath string) error

	// MetaAdd attaches avus to path. Adding a tag already present is a no-op.
	// Returns the count of tags newly persisted.
	MetaAdd(ctx context.Context, path string, avus []AVU) (int, error)

	// MetaRemove detaches avus from path. Removing an absent tag is a no-op.
	// Returns the count of tags actually removed.
	MetaRemove(ctx context.Context, path string, avus []AVU) (int, error)

	// MetaSupersede replaces, for each attribute present in avus, any
	// existing tag on path sharing that attribute that is not one of avus,
	// then adds avus. Returns (removedCount, addedCount).
	MetaSupersede(ctx context.Context, path string, avus []AVU, opts ...SupersedeOption) (int, int, error)

	// MetaQuery returns paths within scope whose metadata contains every tag
	// in avus. zone restricts the search to a specific archive zone; an
	// empty zone searches the default zone.
	MetaQuery(ctx context.Context, avus []AVU, scope Scope, zone string) ([]string, error)
}
