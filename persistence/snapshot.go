package persistence

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/blobstore"
	"github.com/hupe1980/dualmat/codec"
	"github.com/hupe1980/dualmat/internal/compress"
	"github.com/hupe1980/dualmat/sparse"
)

const (
	currentName  = "CURRENT"
	entriesName  = "entries.dma"
	indexName    = "index.dma"
	manifestBase = "MANIFEST."

	manifestVersion = 1
)

// ErrUnknownCodec is returned when a manifest names a codec this build lacks.
var ErrUnknownCodec = errors.New("persistence: unknown manifest codec")

// Manifest describes one saved matrix snapshot.
type Manifest struct {
	Version     int       `json:"version"`
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Dim         int       `json:"dim"`
	NumEntries  int       `json:"num_entries"`
	Orientation string    `json:"orientation"`
	Compression string    `json:"compression"`
	Entries     string    `json:"entries,omitempty"`
	Index       string    `json:"index,omitempty"`
}

func parseOrientation(s string) (sparse.Orientation, error) {
	for _, o := range []sparse.Orientation{sparse.ByRow, sparse.ByColumn} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("%w: orientation %q", ErrCorrupt, s)
}

func parseCompression(s string) (compress.Type, error) {
	for _, t := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", compress.ErrUnknownType, s)
}

func writeArrayBlob[T array.Element](ctx context.Context, store blobstore.BlobStore, name string, a *array.Array[T], t compress.Type) (err error) {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if ab, ok := w.(blobstore.Abortable); ok {
			_ = ab.Abort()
		} else {
			_ = w.Close()
		}
	}()

	if err := WriteArray(w, a, t); err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		return err
	}
	return w.Close()
}

// SaveMatrix writes m as a new snapshot under name and publishes it by
// rewriting name/CURRENT. Older snapshots beyond WithKeepSnapshots are
// removed afterwards; failures to remove them are only logged.
func SaveMatrix(ctx context.Context, store blobstore.BlobStore, name string, m *sparse.Matrix, optFns ...Option) error {
	opts := applyOptions(optFns)
	if m.Closed() {
		return sparse.ErrClosed
	}
	if !opts.compression.Valid() {
		return fmt.Errorf("%w: %d", compress.ErrUnknownType, opts.compression)
	}

	id := uuid.NewString()
	man := Manifest{
		Version:     manifestVersion,
		ID:          id,
		CreatedAt:   time.Now().UTC(),
		Dim:         m.NumRowsCols(),
		NumEntries:  m.NumEntries(),
		Orientation: m.Orientation().String(),
		Compression: opts.compression.String(),
	}

	if !m.Empty() {
		man.Entries = path.Join(id, entriesName)
		man.Index = path.Join(id, indexName)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return writeArrayBlob(gctx, store, path.Join(name, man.Entries), m.EntryArray(), opts.compression)
		})
		g.Go(func() error {
			return writeArrayBlob(gctx, store, path.Join(name, man.Index), m.IndexArray(), opts.compression)
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("persistence: save %s: %w", name, err)
		}
	}

	data, err := opts.codec.Marshal(&man)
	if err != nil {
		return fmt.Errorf("persistence: encode manifest: %w", err)
	}
	manifestName := path.Join(id, manifestBase+opts.codec.Name())
	if err := store.Put(ctx, path.Join(name, manifestName), data); err != nil {
		return fmt.Errorf("persistence: save %s manifest: %w", name, err)
	}
	if err := store.Put(ctx, path.Join(name, currentName), []byte(manifestName)); err != nil {
		return fmt.Errorf("persistence: publish %s: %w", name, err)
	}

	opts.logger.Debug("matrix snapshot saved",
		"name", name,
		"snapshot", id,
		"dim", man.Dim,
		"entries", man.NumEntries,
		"compression", man.Compression,
	)

	if opts.keep > 0 {
		if err := pruneSnapshots(ctx, store, name, id, opts.keep); err != nil {
			opts.logger.Warn("pruning old snapshots failed", "name", name, "error", err)
		}
	}
	return nil
}

// ReadManifest returns the manifest name/CURRENT points at.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	current, err := blobstore.ReadAll(ctx, store, path.Join(name, currentName))
	if err != nil {
		return nil, fmt.Errorf("persistence: read %s pointer: %w", name, err)
	}

	manifestName := strings.TrimSpace(string(current))
	_, codecName, ok := strings.Cut(path.Base(manifestName), manifestBase)
	if !ok {
		return nil, fmt.Errorf("%w: pointer %q", ErrCorrupt, manifestName)
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codecName)
	}

	data, err := blobstore.ReadAll(ctx, store, path.Join(name, manifestName))
	if err != nil {
		return nil, fmt.Errorf("persistence: read %s manifest: %w", name, err)
	}
	man, err := codec.Decode[Manifest](c, data)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrCorrupt, err)
	}
	if man.Version != manifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrInvalidVersion, man.Version)
	}
	return man, nil
}

func readArrayBlob[T array.Element](ctx context.Context, store blobstore.BlobStore, name string, optFns []array.Option) (*array.Array[T], error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return UnmarshalArray[T](data, optFns...)
}

// LoadMatrix loads the snapshot published under name. The arrays are read
// concurrently, checked against the matrix invariants and uploaded.
func LoadMatrix(ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (*sparse.Matrix, error) {
	opts := applyOptions(optFns)

	man, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}
	o, err := parseOrientation(man.Orientation)
	if err != nil {
		return nil, err
	}
	if _, err := parseCompression(man.Compression); err != nil {
		return nil, err
	}

	if man.Entries == "" && man.Index == "" {
		return sparse.FromArrays(nil, nil, man.Dim, man.NumEntries, o, opts.matrixOpts...)
	}

	arrayOpts := sparse.ArrayOptions(opts.matrixOpts...)
	var (
		entries *array.Array[array.Float4]
		index   *array.Array[int32]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = readArrayBlob[array.Float4](gctx, store, path.Join(name, man.Entries), arrayOpts)
		return err
	})
	g.Go(func() error {
		var err error
		index, err = readArrayBlob[int32](gctx, store, path.Join(name, man.Index), arrayOpts)
		return err
	})
	if err := g.Wait(); err != nil {
		closeArrays(entries, index)
		return nil, fmt.Errorf("persistence: load %s: %w", name, err)
	}

	m, err := sparse.FromArrays(entries, index, man.Dim, man.NumEntries, o, opts.matrixOpts...)
	if err != nil {
		closeArrays(entries, index)
		return nil, fmt.Errorf("persistence: load %s: %w", name, err)
	}

	opts.logger.Debug("matrix snapshot loaded",
		"name", name,
		"snapshot", man.ID,
		"dim", man.Dim,
		"entries", man.NumEntries,
		"on_device", m.OnDevice(),
	)
	return m, nil
}

func closeArrays(entries *array.Array[array.Float4], index *array.Array[int32]) {
	if entries != nil {
		_ = entries.Close()
	}
	if index != nil {
		_ = index.Close()
	}
}

// Snapshots returns the snapshot ids stored under name, sorted.
func Snapshots(ctx context.Context, store blobstore.BlobStore, name string) ([]string, error) {
	names, err := store.List(ctx, name+"/")
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, n := range names {
		rel := strings.TrimPrefix(n, name+"/")
		id, file, ok := strings.Cut(rel, "/")
		if !ok || !strings.HasPrefix(file, manifestBase) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// pruneSnapshots deletes all snapshots under name except current and the
// keep-1 most recently created others.
func pruneSnapshots(ctx context.Context, store blobstore.BlobStore, name, current string, keep int) error {
	names, err := store.List(ctx, name+"/")
	if err != nil {
		return err
	}

	created := make(map[string]time.Time)
	files := make(map[string][]string)
	for _, n := range names {
		rel := strings.TrimPrefix(n, name+"/")
		id, file, ok := strings.Cut(rel, "/")
		if !ok || id == current {
			continue
		}
		files[id] = append(files[id], n)
		if strings.HasPrefix(file, manifestBase) {
			created[id] = time.Time{}
			if man, err := readManifestFile(ctx, store, n, strings.TrimPrefix(file, manifestBase)); err == nil {
				created[id] = man.CreatedAt
			}
		}
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return created[b].Compare(created[a])
	})

	var errs []error
	for i, id := range ids {
		if i < keep-1 {
			continue
		}
		for _, f := range files[id] {
			if err := store.Delete(ctx, f); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func readManifestFile(ctx context.Context, store blobstore.BlobStore, name, codecName string) (*Manifest, error) {
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codecName)
	}
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return codec.Decode[Manifest](c, data)
}
