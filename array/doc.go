// Package array provides a generic two-dimensional container whose contents
// can live in host memory, on an accelerator, or both.
//
// Host storage is row-major with each row padded so that its byte stride is
// a multiple of HostAlignment. Device storage is a pitched allocation
// obtained from an accel.Device; its pitch is chosen by the device and may
// differ from the host pitch. Transfers are explicit:
//
//	a, _ := array.New[array.Float4](640, 480, array.WithDevice(dev))
//	a.Fill(array.Float4{W: 1}, false)
//	if err := a.Upload(); err != nil {
//		// a is still valid and host-only
//	}
//
// # Failure Model
//
// Device failures never corrupt host data. Each one is logged once at warn
// level through the configured *slog.Logger and returned, leaving the array
// host-only when the device copy could not be trusted.
//
// An Array is not safe for concurrent mutation.
package array
