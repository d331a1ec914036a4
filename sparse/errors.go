package sparse

import "errors"

var (
	// ErrInvalidDimension is returned for negative dimensions.
	ErrInvalidDimension = errors.New("sparse: invalid dimension")
	// ErrDimensionTooLarge is returned when dim exceeds MaxDimension.
	ErrDimensionTooLarge = errors.New("sparse: dimension too large")
	// ErrTooManyEntries is returned when positions would not fit the int32 index.
	ErrTooManyEntries = errors.New("sparse: too many entries")
	// ErrKeyOutOfRange is returned when an edge's sort key lies outside [0, dim)
	// or either index lies outside [0, MaxDimension).
	ErrKeyOutOfRange = errors.New("sparse: key out of range")
	// ErrInvalidEdge is returned when a packed record does not hold integral indices.
	ErrInvalidEdge = errors.New("sparse: invalid edge")
	// ErrInvalidNormalization is returned for zero, NaN or infinite normalization factors.
	ErrInvalidNormalization = errors.New("sparse: invalid normalization factor")
	// ErrNotSorted is returned when presorted input is not sorted by its key.
	ErrNotSorted = errors.New("sparse: input not sorted")
	// ErrCorrupt is returned when restored arrays violate the matrix invariants.
	ErrCorrupt = errors.New("sparse: corrupt matrix")
	// ErrClosed is returned when a closed matrix is used.
	ErrClosed = errors.New("sparse: closed")
)
