package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/wtsi-npg/workbot/internal/config"
)

// Compile-time interface assertion: BatonClient implements Client.
var _ Client = (*BatonClient)(nil)

// BatonClient is a baton-style JSON-wire implementation of Client. Listing,
// metadata add/remove/query go through a long-running "baton-do --unbuffered"
// subprocess; collection creation and bulk data transfer go through the
// iRODS icommands (imkdir, iget, iput), matching how production WorkBot
// deployments talk to the archive.
type BatonClient struct {
	proc      *batonProcess
	icmd      icommandPaths
	logger    *slog.Logger
	closeOnce sync.Once
}

// BatonClientOption configures optional BatonClient behaviour.
type BatonClientOption func(*BatonClient)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) BatonClientOption {
	return func(c *BatonClient) {
		c.logger = logger
		c.proc.logger = logger
	}
}

// WithICommandPaths overrides the imkdir/iget/iput executables, which
// default to resolving from PATH.
func WithICommandPaths(imkdir, iget, iput string) BatonClientOption {
	return func(c *BatonClient) {
		c.icmd = icommandPaths{imkdir: imkdir, iget: iget, iput: iput}
	}
}

// NewBatonClient creates an archive client that launches batonExecutable
// (typically "baton-do") on first use.
func NewBatonClient(batonExecutable string, opts ...BatonClientOption) *BatonClient {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	client := &BatonClient{
		proc:   newBatonProcess(batonExecutable, logger),
		icmd:   defaultICommandPaths(),
		logger: logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Close stops the underlying baton-do subprocess. Safe to call multiple times.
func (c *BatonClient) Close() error {
	c.closeOnce.Do(func() {
		c.proc.stop()
	})

	return nil
}

// Exists reports whether path is present in the archive.
func (c *BatonClient) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.proc.execute(ctx, "list", nil, wireTarget{Collection: path})
	if err != nil {
		if isPathNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// List returns the immediate children of the collection at path.
func (c *BatonClient) List(ctx context.Context, path string) ([]Entry, error) {
	args := map[string]any{"contents": true}

	result, err := c.proc.execute(ctx, "list", args, wireTarget{Collection: path})
	if err != nil {
		return nil, err
	}

	var item wireItem
	if err := json.Unmarshal(result.Single, &item); err != nil {
		return nil, fmt.Errorf("%w: decode list result: %w", ErrArchive, err)
	}

	entries := make([]Entry, len(item.Contents))
	for i, child := range item.Contents {
		if child.DataObject != "" {
			entries[i] = Entry{Name: child.DataObject, IsData: true}
		} else {
			entries[i] = Entry{Name: baseName(child.Collection), IsData: false}
		}
	}

	return entries, nil
}

// MkdirAll ensures path exists as a collection, creating parents as needed.
func (c *BatonClient) MkdirAll(ctx context.Context, path string) error {
	return imkdir(ctx, c.icmd.imkdir, path)
}

// Get recursively downloads the collection at srcPath into destDir.
func (c *BatonClient) Get(ctx context.Context, srcPath, destDir string, force bool) error {
	return iget(ctx, c.icmd.iget, srcPath, destDir, force)
}

// Put recursively uploads the local directory at srcDir into destPath.
func (c *BatonClient) Put(ctx context.Context, srcDir, destPath string) error {
	return iput(ctx, c.icmd.iput, srcDir, destPath)
}

// MetaAdd attaches avus to path, skipping any already present.
func (c *BatonClient) MetaAdd(ctx context.Context, path string, avus []AVU) (int, error) {
	current, err := c.listAVUs(ctx, path)
	if err != nil {
		return 0, err
	}

	toAdd := diffAVUs(avus, current)
	if len(toAdd) == 0 {
		return 0, nil
	}

	if err := c.metamod(ctx, "add", path, toAdd); err != nil {
		return 0, err
	}

	return len(toAdd), nil
}

// MetaRemove detaches avus from path, skipping any not present.
func (c *BatonClient) MetaRemove(ctx context.Context, path string, avus []AVU) (int, error) {
	current, err := c.listAVUs(ctx, path)
	if err != nil {
		return 0, err
	}

	toRemove := intersectAVUs(avus, current)
	if len(toRemove) == 0 {
		return 0, nil
	}

	if err := c.metamod(ctx, "rem", path, toRemove); err != nil {
		return 0, err
	}

	return len(toRemove), nil
}

// MetaSupersede replaces, for each attribute present in avus, any existing
// tag sharing that attribute not already in avus, then adds avus.
func (c *BatonClient) MetaSupersede(
	ctx context.Context,
	path string,
	avus []AVU,
	opts ...SupersedeOption,
) (int, int, error) {
	options := supersedeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	current, err := c.listAVUs(ctx, path)
	if err != nil {
		return 0, 0, err
	}

	wantedAttrs := make(map[string]bool, len(avus))
	for _, a := range avus {
		wantedAttrs[a.WireAttribute()] = true
	}

	var toRemove []AVU

	for _, existing := range current {
		if !wantedAttrs[existing.WireAttribute()] {
			continue
		}

		if !containsAVU(avus, existing) {
			toRemove = append(toRemove, existing)
		}
	}

	if len(toRemove) > 0 {
		if err := c.metamod(ctx, "rem", path, toRemove); err != nil {
			return 0, 0, err
		}
	}

	if options.history {
		marker := AVU{Attribute: "history", Value: fmt.Sprintf("superseded %d attributes", len(toRemove))}
		if err := c.metamod(ctx, "add", path, []AVU{marker}); err != nil {
			return len(toRemove), 0, err
		}
	}

	added := diffAVUs(avus, current)
	if len(added) > 0 {
		if err := c.metamod(ctx, "add", path, added); err != nil {
			return len(toRemove), 0, err
		}
	}

	return len(toRemove), len(added), nil
}

// MetaQuery returns paths within scope whose metadata contains every tag in avus.
func (c *BatonClient) MetaQuery(ctx context.Context, avus []AVU, scope Scope, zone string) ([]string, error) {
	args := map[string]any{}

	switch scope {
	case Collections:
		args["collection"] = true
	case DataObjects:
		args["object"] = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	target := wireTarget{AVUs: toWireAVUs(avus)}
	if zone != "" {
		target.Collection = zone
	}

	result, err := c.proc.execute(ctx, "metaquery", args, target)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(result.Multiple))

	for i, raw := range result.Multiple {
		var item wireItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("%w: decode metaquery result: %w", ErrArchive, err)
		}

		paths[i] = item.path()
	}

	return paths, nil
}

func (c *BatonClient) metamod(ctx context.Context, operation, path string, avus []AVU) error {
	args := map[string]any{"operation": operation}
	target := wireTarget{Collection: path, AVUs: toWireAVUs(avus)}

	_, err := c.proc.execute(ctx, "metamod", args, target)

	return err
}

func (c *BatonClient) listAVUs(ctx context.Context, path string) ([]AVU, error) {
	args := map[string]any{"avu": true}

	result, err := c.proc.execute(ctx, "list", args, wireTarget{Collection: path})
	if err != nil {
		return nil, err
	}

	var item wireItem
	if err := json.Unmarshal(result.Single, &item); err != nil {
		return nil, fmt.Errorf("%w: decode list avu result: %w", ErrArchive, err)
	}

	avus := make([]AVU, len(item.AVUs))
	for i, w := range item.AVUs {
		avus[i] = AVU{Attribute: w.Attribute, Value: w.Value, Units: w.Units}
	}

	return avus, nil
}

func isPathNotFound(err error) bool {
	return errors.Is(err, ErrPathNotFound)
}

func diffAVUs(want, have []AVU) []AVU {
	var out []AVU

	for _, w := range want {
		if !containsAVU(have, w) {
			out = append(out, w)
		}
	}

	return out
}

func intersectAVUs(want, have []AVU) []AVU {
	var out []AVU

	for _, w := range want {
		if containsAVU(have, w) {
			out = append(out, w)
		}
	}

	return out
}

func containsAVU(haystack []AVU, needle AVU) bool {
	for _, a := range haystack {
		if a.WireAttribute() == needle.WireAttribute() && a.Value == needle.Value && a.Units == needle.Units {
			return true
		}
	}

	return false
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}

	return path
}
