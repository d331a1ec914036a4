package dualmat_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/dualmat"
	"github.com/hupe1980/dualmat/persistence"
	"github.com/hupe1980/dualmat/sparse"
)

func Example() {
	ctx := context.Background()

	rt, err := dualmat.New()
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	edges := []sparse.Edge{
		{Row: 0, Col: 2, Weight: 4},
		{Row: 1, Col: 0, Weight: 2},
		{Row: 0, Col: 1, Weight: 6},
	}
	m, err := rt.BuildMatrix(ctx, edges, 2, 2)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	start, end, _ := m.Range(0)
	fmt.Println("row 0:", start, end)
	for e := range m.Entries(1) {
		fmt.Println("row 1:", e.Col, e.Weight)
	}
	fmt.Println("on device:", m.OnDevice())

	// Output:
	// row 0: 0 2
	// row 1: 0 1
	// on device: true
}

func Example_snapshot() {
	ctx := context.Background()

	rt, err := dualmat.New(dualmat.WithCompression(persistence.CompressionNone))
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	m, err := rt.BuildMatrix(ctx, []sparse.Edge{{Row: 1, Col: 1, Weight: 3}}, 3, 1)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	if err := rt.SaveMatrix(ctx, "example", m); err != nil {
		panic(err)
	}
	loaded, err := rt.LoadMatrix(ctx, "example")
	if err != nil {
		panic(err)
	}
	defer loaded.Close()

	e, _ := loaded.Entry(0)
	fmt.Println(loaded.NumRowsCols(), loaded.NumEntries(), e.Weight)

	// Output:
	// 3 1 3
}
