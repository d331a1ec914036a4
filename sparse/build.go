package sparse

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/dualmat/array"
)

// Build creates a matrix of dimension dim from edges, dividing every weight
// by norm. edges is sorted in place by the chosen key.
//
// Zero edges or a zero dimension yield an empty matrix. Device failures are
// logged and leave the matrix host-only; see Matrix.OnDevice.
func Build(edges []Edge, dim int, norm float32, optFns ...Option) (*Matrix, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	m, err := build(edges, dim, norm, opts)
	opts.observer.RecordBuild(len(edges), dim, time.Since(start), err)
	return m, err
}

// BuildCopy is like Build but leaves edges unmodified.
func BuildCopy(edges []Edge, dim int, norm float32, optFns ...Option) (*Matrix, error) {
	return Build(slices.Clone(edges), dim, norm, optFns...)
}

// BuildFloat4 creates a matrix from packed (row, col, weight, unused)
// records. Row and column must hold integral values. entries is not modified.
func BuildFloat4(entries []array.Float4, dim int, norm float32, optFns ...Option) (*Matrix, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	m, err := buildFloat4(entries, dim, norm, opts)
	opts.observer.RecordBuild(len(entries), dim, time.Since(start), err)
	return m, err
}

func buildFloat4(entries []array.Float4, dim int, norm float32, opts options) (*Matrix, error) {
	if err := validateDimension(dim); err != nil {
		return nil, err
	}
	if len(entries) == 0 || dim == 0 {
		return newEmpty(dim, len(entries), opts), nil
	}

	edges := make([]Edge, len(entries))
	for i, f := range entries {
		e, err := float4ToEdge(f)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		edges[i] = e
	}

	return build(edges, dim, norm, opts)
}

func build(edges []Edge, dim int, norm float32, opts options) (*Matrix, error) {
	if err := validateDimension(dim); err != nil {
		return nil, err
	}
	if len(edges) == 0 || dim == 0 {
		return newEmpty(dim, len(edges), opts), nil
	}
	if len(edges) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, len(edges))
	}
	if err := validateNormalization(norm); err != nil {
		return nil, err
	}
	for i, e := range edges {
		if err := validateEdge(e, dim, opts.orientation); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}

	cmpKey := compareBy(opts.orientation)
	if opts.presorted {
		if !slices.IsSortedFunc(edges, cmpKey) {
			return nil, fmt.Errorf("%w: by %s", ErrNotSorted, opts.orientation)
		}
	} else {
		slices.SortFunc(edges, cmpKey)
	}

	return materialize(edges, dim, norm, true, opts)
}

func validateDimension(dim int) error {
	if dim < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	if dim > MaxDimension {
		return fmt.Errorf("%w: %d > %d", ErrDimensionTooLarge, dim, MaxDimension)
	}
	return nil
}

func newEmpty(dim, numEntries int, opts options) *Matrix {
	return &Matrix{
		dim:         dim,
		numEntries:  numEntries,
		orientation: opts.orientation,
		logger:      opts.logger,
	}
}

// newArrays allocates the entries and index arrays. On failure nothing is
// left allocated.
func newArrays(numEntries, dim int, arrOpts []array.Option) (*array.Array[array.Float4], *array.Array[int32], error) {
	entries, err := array.New[array.Float4](numEntries, 1, arrOpts...)
	if err != nil {
		return nil, nil, err
	}
	index, err := array.New[int32](dim, 1, arrOpts...)
	if err != nil {
		_ = entries.Close()
		return nil, nil, err
	}
	return entries, index, nil
}

// materialize writes sorted edges into the entries and index arrays and
// uploads both.
func materialize(edges []Edge, dim int, norm float32, normalize bool, opts options) (*Matrix, error) {
	arrOpts := opts.arrayOptions()

	entries, index, err := newArrays(len(edges), dim, arrOpts)
	if err != nil {
		return nil, err
	}
	if err := index.Fill(Absent, false); err != nil {
		_ = entries.Close()
		_ = index.Close()
		return nil, err
	}

	recs, _ := entries.Row(0)
	starts, _ := index.Row(0)
	keys := roaring.New()

	current := Absent
	for pos, e := range edges {
		if normalize {
			e.Weight /= norm
		}
		recs[pos] = e.float4()

		k := e.Key(opts.orientation)
		if k != current {
			starts[k] = int32(pos) //nolint:gosec // len(edges) <= MaxInt32
			keys.Add(uint32(k))    //nolint:gosec // k >= 0 validated
			current = k
		}
	}

	m := &Matrix{
		dim:         dim,
		numEntries:  len(edges),
		orientation: opts.orientation,
		entries:     entries,
		index:       index,
		keys:        keys,
		logger:      opts.logger,
	}
	_ = m.Upload()
	return m, nil
}

// Rederive creates a matrix from src. Without flip both arrays are copied
// as they are; with flip the entries are re-sorted by the other key. Weights
// are carried over without normalization. WithOrientation and WithPresorted
// are ignored. Without WithDevice the result uses the device of src.
//
// A flip requires every non-key index of src to lie in [0, dim), since it
// becomes the new key. Otherwise Rederive returns ErrKeyOutOfRange.
func Rederive(src *Matrix, flip bool, optFns ...Option) (*Matrix, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	m, err := rederive(src, flip, opts)
	opts.observer.RecordBuild(src.numEntries, src.dim, time.Since(start), err)
	return m, err
}

func rederive(src *Matrix, flip bool, opts options) (*Matrix, error) {
	if src.closed {
		return nil, ErrClosed
	}

	opts.orientation = src.orientation
	if flip {
		opts.orientation = src.orientation.Flip()
	}

	if src.Empty() {
		return newEmpty(src.dim, src.numEntries, opts), nil
	}
	if opts.device == nil {
		opts.device = src.entries.Device()
	}

	if !flip {
		arrOpts := opts.arrayOptions()
		entries, index, err := newArrays(src.numEntries, src.dim, arrOpts)
		if err != nil {
			return nil, err
		}
		if err := errors.Join(src.entries.CopyTo(entries, false), src.index.CopyTo(index, false)); err != nil {
			_ = entries.Close()
			_ = index.Close()
			return nil, err
		}

		m := &Matrix{
			dim:         src.dim,
			numEntries:  src.numEntries,
			orientation: opts.orientation,
			entries:     entries,
			index:       index,
			keys:        src.keys.Clone(),
			logger:      opts.logger,
		}
		_ = m.Upload()
		return m, nil
	}

	edges := make([]Edge, 0, src.numEntries)
	for pos, e := range src.All() {
		if err := validateEdge(e, src.dim, opts.orientation); err != nil {
			return nil, fmt.Errorf("entry %d: %w", pos, err)
		}
		edges = append(edges, e)
	}
	slices.SortFunc(edges, compareBy(opts.orientation))

	return materialize(edges, src.dim, 1, false, opts)
}
