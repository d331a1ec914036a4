// Package sparse builds single-key sparse matrices from weighted edges.
//
// A Matrix stores its edges sorted by row (ByRow) or by column (ByColumn)
// in an entries array of array.Float4 records (row, col, weight, 0), and an
// index array of int32 giving, for every key in [0, dim), the position of
// the first entry with that key or Absent. Both arrays are uploaded to the
// accelerator once the matrix is built; lookups read the host copies.
//
// Build consumes its input: the edge slice is sorted in place. BuildCopy
// leaves the caller's slice untouched. Within one key the order of entries
// is unspecified.
//
// Matrices are immutable after construction and safe for concurrent reads.
package sparse
