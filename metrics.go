package dualmat

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/dualmat/sparse"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Every MetricsCollector is a sparse.Observer and an array.Observer, so it can
// be handed to sparse.WithObserver and array.WithObserver directly.
type MetricsCollector interface {
	// RecordUpload is called after each host-to-device transfer.
	RecordUpload(bytes int, duration time.Duration, err error)

	// RecordDownload is called after each device-to-host transfer.
	RecordDownload(bytes int, duration time.Duration, err error)

	// RecordBuild is called after each matrix build or rederive.
	RecordBuild(entries, dim int, duration time.Duration, err error)
}

var _ sparse.Observer = MetricsCollector(nil)

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpload(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordDownload(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordBuild(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UploadCount        atomic.Int64
	UploadErrors       atomic.Int64
	UploadBytes        atomic.Int64
	UploadTotalNanos   atomic.Int64
	DownloadCount      atomic.Int64
	DownloadErrors     atomic.Int64
	DownloadBytes      atomic.Int64
	DownloadTotalNanos atomic.Int64
	BuildCount         atomic.Int64
	BuildErrors        atomic.Int64
	BuildEntries       atomic.Int64
	BuildTotalNanos    atomic.Int64
}

// RecordUpload implements MetricsCollector. Failed transfers count as
// errors but not as bytes moved.
func (b *BasicMetricsCollector) RecordUpload(bytes int, duration time.Duration, err error) {
	b.UploadCount.Add(1)
	b.UploadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UploadErrors.Add(1)
		return
	}
	b.UploadBytes.Add(int64(bytes))
}

// RecordDownload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDownload(bytes int, duration time.Duration, err error) {
	b.DownloadCount.Add(1)
	b.DownloadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DownloadErrors.Add(1)
		return
	}
	b.DownloadBytes.Add(int64(bytes))
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(entries, _ int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
		return
	}
	b.BuildEntries.Add(int64(entries))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UploadCount:      b.UploadCount.Load(),
		UploadErrors:     b.UploadErrors.Load(),
		UploadBytes:      b.UploadBytes.Load(),
		UploadAvgNanos:   avg(b.UploadTotalNanos.Load(), b.UploadCount.Load()),
		DownloadCount:    b.DownloadCount.Load(),
		DownloadErrors:   b.DownloadErrors.Load(),
		DownloadBytes:    b.DownloadBytes.Load(),
		DownloadAvgNanos: avg(b.DownloadTotalNanos.Load(), b.DownloadCount.Load()),
		BuildCount:       b.BuildCount.Load(),
		BuildErrors:      b.BuildErrors.Load(),
		BuildEntries:     b.BuildEntries.Load(),
		BuildAvgNanos:    avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UploadCount      int64
	UploadErrors     int64
	UploadBytes      int64
	UploadAvgNanos   int64
	DownloadCount    int64
	DownloadErrors   int64
	DownloadBytes    int64
	DownloadAvgNanos int64
	BuildCount       int64
	BuildErrors      int64
	BuildEntries     int64
	BuildAvgNanos    int64
}

func (s BasicMetricsStats) String() string {
	return fmt.Sprintf("uploads=%d (%s, %d failed) downloads=%d (%s, %d failed) builds=%d (%s entries, %d failed)",
		s.UploadCount, humanize.IBytes(uint64(max(s.UploadBytes, 0))), s.UploadErrors,
		s.DownloadCount, humanize.IBytes(uint64(max(s.DownloadBytes, 0))), s.DownloadErrors,
		s.BuildCount, humanize.Comma(s.BuildEntries), s.BuildErrors,
	)
}
