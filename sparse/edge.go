package sparse

import (
	"cmp"
	"fmt"
	"math"

	"github.com/hupe1980/dualmat/array"
)

// Absent marks an index slot whose key has no entries.
const Absent int32 = -1

// MaxDimension is the largest dimension whose keys are exactly representable
// in the float32 entry records.
const MaxDimension = 1 << 24

// Orientation selects the sort key of a Matrix.
type Orientation uint8

const (
	// ByRow sorts entries by row index.
	ByRow Orientation = iota
	// ByColumn sorts entries by column index.
	ByColumn
)

func (o Orientation) String() string {
	switch o {
	case ByRow:
		return "row"
	case ByColumn:
		return "column"
	default:
		return fmt.Sprintf("Orientation(%d)", uint8(o))
	}
}

// Flip returns the opposite orientation.
func (o Orientation) Flip() Orientation {
	if o == ByRow {
		return ByColumn
	}
	return ByRow
}

// Edge is a weighted (row, column) pair.
type Edge struct {
	Row    int32
	Col    int32
	Weight float32
}

// Key returns the sort key of e under o.
func (e Edge) Key(o Orientation) int32 {
	if o == ByColumn {
		return e.Col
	}
	return e.Row
}

func (e Edge) float4() array.Float4 {
	return array.Float4{X: float32(e.Row), Y: float32(e.Col), Z: e.Weight}
}

func edgeFromFloat4(f array.Float4) Edge {
	return Edge{Row: int32(f.X), Col: int32(f.Y), Weight: f.Z}
}

func compareBy(o Orientation) func(a, b Edge) int {
	if o == ByColumn {
		return func(a, b Edge) int { return cmp.Compare(a.Col, b.Col) }
	}
	return func(a, b Edge) int { return cmp.Compare(a.Row, b.Row) }
}

// validateEdge checks that the key selected by o lies in [0, dim). The other
// index must lie in [0, MaxDimension) so it survives the float32 entry slot.
func validateEdge(e Edge, dim int, o Orientation) error {
	if k := e.Key(o); k < 0 || int(k) >= dim || !storable(e.Row) || !storable(e.Col) {
		return fmt.Errorf("%w: (%d, %d) by %s with dimension %d", ErrKeyOutOfRange, e.Row, e.Col, o, dim)
	}
	return nil
}

func storable(i int32) bool {
	return i >= 0 && i < MaxDimension
}

func float4ToEdge(f array.Float4) (Edge, error) {
	if !isIndex(f.X) || !isIndex(f.Y) {
		return Edge{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidEdge, f.X, f.Y)
	}
	return edgeFromFloat4(f), nil
}

func isIndex(v float32) bool {
	return v >= 0 && v < MaxDimension && float32(math.Trunc(float64(v))) == v
}

func validateNormalization(norm float32) error {
	f := float64(norm)
	if norm == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidNormalization, norm)
	}
	return nil
}
