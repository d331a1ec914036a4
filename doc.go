// Package dualmat builds compact sparse matrices whose storage lives on the
// host and, on demand, on an attached accelerator.
//
// # Quick Start
//
//	rt, _ := dualmat.New(
//	    dualmat.WithMemoryLimit(512<<20),
//	    dualmat.WithLogger(dualmat.NewTextLogger(slog.LevelInfo)),
//	)
//	defer rt.Close()
//
//	m, _ := rt.BuildMatrix(ctx, edges, numPoints, 2)
//	for e := range m.Entries(row) {
//	    fmt.Println(e.Col, e.Weight)
//	}
//
// # Packages
//
//   - accel: the accelerator capability and an emulated, memory-mapped device
//   - array: the dual-residency 2D array with padded host rows and pitched device rows
//   - sparse: the row- or column-keyed sparse matrix builder
//   - persistence: array files and matrix snapshots
//   - blobstore: local, in-memory, S3, DynamoDB-committed and MinIO storage
//
// # Failure Model
//
// Accelerator failures never corrupt host data. Allocation and copy errors
// are logged once at warn level, returned where an operation was explicitly
// requested, and leave the affected array host-only. Matrix builds succeed
// even when the device is full; check Matrix.OnDevice and retry with
// Matrix.Upload.
package dualmat
