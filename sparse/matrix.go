package sparse

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/dualmat/array"
)

// Matrix is an immutable single-key sparse matrix.
type Matrix struct {
	dim         int
	numEntries  int
	orientation Orientation

	entries *array.Array[array.Float4]
	index   *array.Array[int32]
	keys    *roaring.Bitmap

	logger *slog.Logger
	closed bool
}

// FromArrays assembles a matrix from previously built arrays, taking
// ownership of them. The arrays are checked against the matrix invariants
// and uploaded.
func FromArrays(entries *array.Array[array.Float4], index *array.Array[int32], dim, numEntries int, o Orientation, optFns ...Option) (*Matrix, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.orientation = o

	if err := validateDimension(dim); err != nil {
		return nil, err
	}
	if numEntries < 0 || numEntries > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, numEntries)
	}

	if numEntries == 0 || dim == 0 {
		if entries != nil || index != nil {
			return nil, fmt.Errorf("%w: empty matrix with storage", ErrCorrupt)
		}
		return newEmpty(dim, numEntries, opts), nil
	}
	if entries == nil || index == nil {
		return nil, fmt.Errorf("%w: missing storage", ErrCorrupt)
	}
	if entries.Width() != numEntries || entries.Height() != 1 {
		return nil, fmt.Errorf("%w: entries are %dx%d, want %dx1", ErrCorrupt, entries.Width(), entries.Height(), numEntries)
	}
	if index.Width() != dim || index.Height() != 1 {
		return nil, fmt.Errorf("%w: index is %dx%d, want %dx1", ErrCorrupt, index.Width(), index.Height(), dim)
	}

	keys, err := checkInvariants(entries, index, dim, o)
	if err != nil {
		return nil, err
	}

	m := &Matrix{
		dim:         dim,
		numEntries:  numEntries,
		orientation: o,
		entries:     entries,
		index:       index,
		keys:        keys,
		logger:      opts.logger,
	}
	_ = m.Upload()
	return m, nil
}

func checkInvariants(entries *array.Array[array.Float4], index *array.Array[int32], dim int, o Orientation) (*roaring.Bitmap, error) {
	recs, _ := entries.Row(0)
	starts, _ := index.Row(0)
	keys := roaring.New()

	prev := Absent
	for pos, f := range recs {
		e, err := float4ToEdge(f)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, pos, err)
		}
		if err := validateEdge(e, dim, o); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, pos, err)
		}
		k := e.Key(o)
		if k < prev {
			return nil, fmt.Errorf("%w: entry %d breaks %s order", ErrCorrupt, pos, o)
		}
		if k != prev {
			if starts[k] != int32(pos) { //nolint:gosec // pos < numEntries <= MaxInt32
				return nil, fmt.Errorf("%w: index[%d]=%d, want %d", ErrCorrupt, k, starts[k], pos)
			}
			keys.Add(uint32(k)) //nolint:gosec // k >= 0 validated
			prev = k
		}
	}

	for k, s := range starts {
		if s != Absent && !keys.Contains(uint32(k)) { //nolint:gosec // k < dim
			return nil, fmt.Errorf("%w: index[%d]=%d for key without entries", ErrCorrupt, k, s)
		}
	}
	return keys, nil
}

// NumRowsCols returns the dimension.
func (m *Matrix) NumRowsCols() int { return m.dim }

// NumEntries returns the number of entries. It is reported even for an
// empty matrix built with a zero dimension.
func (m *Matrix) NumEntries() int { return m.numEntries }

// Orientation returns the sort key.
func (m *Matrix) Orientation() Orientation { return m.orientation }

// IsRowSorted reports whether entries are sorted by row.
func (m *Matrix) IsRowSorted() bool { return m.orientation == ByRow }

// Empty reports whether the matrix has no storage.
func (m *Matrix) Empty() bool { return m.entries == nil }

// EntryArray returns the entries array, or nil for an empty matrix.
// Callers must not modify it.
func (m *Matrix) EntryArray() *array.Array[array.Float4] { return m.entries }

// IndexArray returns the index array, or nil for an empty matrix.
// Callers must not modify it.
func (m *Matrix) IndexArray() *array.Array[int32] { return m.index }

// OnDevice reports whether both arrays are resident on the accelerator.
func (m *Matrix) OnDevice() bool {
	return !m.Empty() && m.entries.OnDevice() && m.index.OnDevice()
}

// Upload copies both arrays to the accelerator. It is a no-op for an empty
// matrix.
func (m *Matrix) Upload() error {
	if m.closed {
		return ErrClosed
	}
	if m.Empty() {
		return nil
	}
	return errors.Join(m.entries.Upload(), m.index.Upload())
}

// Start returns the position of the first entry with the given key.
func (m *Matrix) Start(key int) (int, bool) {
	if m.Empty() || key < 0 || key >= m.dim {
		return 0, false
	}
	s, _ := m.index.At(key, 0)
	if s == Absent {
		return 0, false
	}
	return int(s), true
}

// Range returns the half-open position range [start, end) of the entries
// with the given key.
func (m *Matrix) Range(key int) (start, end int, ok bool) {
	start, ok = m.Start(key)
	if !ok {
		return 0, 0, false
	}
	recs, _ := m.entries.Row(0)
	end = start + 1
	for end < len(recs) && int(edgeFromFloat4(recs[end]).Key(m.orientation)) == key {
		end++
	}
	return start, end, true
}

// Degree returns the number of entries with the given key.
func (m *Matrix) Degree(key int) int {
	start, end, ok := m.Range(key)
	if !ok {
		return 0
	}
	return end - start
}

// Entry returns the entry at position pos with its normalized weight.
func (m *Matrix) Entry(pos int) (Edge, bool) {
	if m.Empty() {
		return Edge{}, false
	}
	f, ok := m.entries.At(pos, 0)
	if !ok {
		return Edge{}, false
	}
	return edgeFromFloat4(f), true
}

// Key returns the sort key of the entry at position pos.
func (m *Matrix) Key(pos int) (int, bool) {
	e, ok := m.Entry(pos)
	if !ok {
		return 0, false
	}
	return int(e.Key(m.orientation)), true
}

// Entries iterates over the entries with the given key.
func (m *Matrix) Entries(key int) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		start, end, ok := m.Range(key)
		if !ok {
			return
		}
		recs, _ := m.entries.Row(0)
		for _, f := range recs[start:end] {
			if !yield(edgeFromFloat4(f)) {
				return
			}
		}
	}
}

// All iterates over all entries in sorted order together with their positions.
func (m *Matrix) All() iter.Seq2[int, Edge] {
	return func(yield func(int, Edge) bool) {
		if m.Empty() {
			return
		}
		recs, _ := m.entries.Row(0)
		for pos, f := range recs {
			if !yield(pos, edgeFromFloat4(f)) {
				return
			}
		}
	}
}

// Keys returns the set of keys that have at least one entry. The bitmap is
// a copy.
func (m *Matrix) Keys() *roaring.Bitmap {
	if m.keys == nil {
		return roaring.New()
	}
	return m.keys.Clone()
}

// Close releases both arrays. It is idempotent.
func (m *Matrix) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.Empty() {
		return nil
	}
	err := errors.Join(m.entries.Close(), m.index.Close())
	m.entries = nil
	m.index = nil
	m.keys = nil
	return err
}

// Closed reports whether Close has been called.
func (m *Matrix) Closed() bool { return m.closed }
