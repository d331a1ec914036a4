package array

// Float2 is a two-component float32 tuple.
type Float2 struct{ X, Y float32 }

// Float3 is a three-component float32 tuple.
type Float3 struct{ X, Y, Z float32 }

// Float4 is a four-component float32 tuple.
type Float4 struct{ X, Y, Z, W float32 }

// Int2 is a two-component int32 tuple.
type Int2 struct{ X, Y int32 }

// Int4 is a four-component int32 tuple.
type Int4 struct{ X, Y, Z, W int32 }

// Uint4 is a four-component uint32 tuple.
type Uint4 struct{ X, Y, Z, W uint32 }

// Element is the set of fixed-size, pointer-free numeric types an Array can hold.
type Element interface {
	~uint8 | ~int32 | ~uint32 | ~int64 | ~float32 | ~float64 |
		Float2 | Float3 | Float4 | Int2 | Int4 | Uint4
}
