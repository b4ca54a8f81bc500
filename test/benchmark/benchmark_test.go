// Package benchmark provides performance benchmarks for the trace
// pipeline: bundle write and load, window squashing, row filtering and
// trace identifier generation.
//
// Run with: go test -bench=. -benchtime=5s ./test/benchmark/...
// Against S3: LISA_STORAGE_TYPE=s3 LISA_S3_BUCKET=... go test -bench=Archive ./test/benchmark/...
package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vdonnefort/lisa/internal/storage"
	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/internal/tracedb"
	"github.com/vdonnefort/lisa/pkg/types"
)

// makeSchedTable builds a context-switch table with the given record
// count, one switch every 100 microseconds.
func makeSchedTable(b *testing.B, rows int) *trace.Table {
	b.Helper()

	ts := make([]float64, rows)
	cpus := make([]int64, rows)
	prevComm := make([]string, rows)
	prevPID := make([]int64, rows)
	nextComm := make([]string, rows)
	nextPID := make([]int64, rows)
	for i := 0; i < rows; i++ {
		ts[i] = float64(i) * 1e-4
		cpus[i] = int64(i % 4)
		prevComm[i] = fmt.Sprintf("task-%d", i%17)
		prevPID[i] = int64(100 + i%17)
		nextComm[i] = fmt.Sprintf("task-%d", (i+1)%17)
		nextPID[i] = int64(100 + (i+1)%17)
	}

	t, err := trace.NewTable("sched_switch", ts,
		types.IntColumn("__cpu", cpus),
		types.StringColumn("prev_comm", prevComm),
		types.IntColumn("prev_pid", prevPID),
		types.StringColumn("next_comm", nextComm),
		types.IntColumn("next_pid", nextPID))
	if err != nil {
		b.Fatal(err)
	}
	return t
}

// makeIdleTable builds idle transitions alternating in and out of idle
// across four CPUs.
func makeIdleTable(b *testing.B, rows int) *trace.Table {
	b.Helper()

	ts := make([]float64, rows)
	cpuID := make([]int64, rows)
	state := make([]int64, rows)
	for i := 0; i < rows; i++ {
		ts[i] = float64(i) * 2e-4
		cpuID[i] = int64(i % 4)
		if (i/4)%2 == 0 {
			state[i] = -1
		} else {
			state[i] = 0
		}
	}

	t, err := trace.NewTable("cpu_idle", ts,
		types.IntColumn("cpu_id", cpuID),
		types.IntColumn("state", state))
	if err != nil {
		b.Fatal(err)
	}
	return t
}

func makeTrace(b *testing.B, rows int) *trace.Trace {
	b.Helper()

	tr, err := trace.New(trace.Input{
		Tables: map[string]*trace.Table{
			"sched_switch": makeSchedTable(b, rows),
			"cpu_idle":     makeIdleTable(b, rows),
		},
		Format:   trace.FormatFTrace,
		Duration: float64(rows) * 1e-4,
	})
	if err != nil {
		b.Fatal(err)
	}
	return tr
}

// BenchmarkBundleWrite measures bundle materialization throughput.
func BenchmarkBundleWrite(b *testing.B) {
	const rows = 5000
	table := makeSchedTable(b, rows)
	root := b.TempDir()
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		dir := filepath.Join(root, fmt.Sprintf("bundle_%d", i))
		err := tracedb.WriteBundle(ctx, dir, tracedb.WriteInput{
			TraceID:  fmt.Sprintf("tr-bench-%d", i),
			Format:   trace.FormatFTrace,
			Duration: rows * 1e-4,
			Tables:   map[string]*trace.Table{"sched_switch": table},
		})
		if err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(rows)*float64(b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkBundleLoad measures verified event table loading throughput.
func BenchmarkBundleLoad(b *testing.B) {
	const rows = 20000
	dir := b.TempDir()
	ctx := context.Background()

	err := tracedb.WriteBundle(ctx, dir, tracedb.WriteInput{
		TraceID:  "tr-bench-load",
		Format:   trace.FormatFTrace,
		Duration: rows * 1e-4,
		Tables:   map[string]*trace.Table{"sched_switch": makeSchedTable(b, rows)},
	})
	if err != nil {
		b.Fatal(err)
	}

	pool := tracedb.NewConnectionPool(tracedb.PoolConfig{
		MaxBundles:     2,
		ConnsPerBundle: 4,
		IdleTimeout:    time.Minute,
	})
	defer pool.Close()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bundle, err := tracedb.Open(ctx, dir, pool)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := bundle.Load(ctx, tracedb.LoadSpec{Concurrency: 4}); err != nil {
			b.Fatal(err)
		}
		bundle.Close()
	}

	b.ReportMetric(float64(rows)*float64(b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkSquash measures windowed re-slicing over a sliding window.
func BenchmarkSquash(b *testing.B) {
	const rows = 50000
	tr := makeTrace(b, rows)
	span := float64(rows) * 1e-4

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		start := float64(i%1000) / 1000 * span / 2
		if _, err := tr.SquashEvent("sched_switch", start, start+span/4, "delta"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFilter measures row filtering with a compiled expression.
func BenchmarkFilter(b *testing.B) {
	const rows = 20000
	tr := makeTrace(b, rows)
	table, err := tr.Get("sched_switch")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := trace.Filter(table, `next_pid == 105 && prev_comm != "task-3"`); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(rows)*float64(b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkActiveSignal measures the per-CPU activity read path,
// including the copy handed to the caller.
func BenchmarkActiveSignal(b *testing.B) {
	tr := makeTrace(b, 20000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := tr.ActiveSignal(int64(i % 4)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkULIDGeneration measures trace identifier throughput.
func BenchmarkULIDGeneration(b *testing.B) {
	gen := types.NewULIDGenerator()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := gen.Generate(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkArchivePushFetch measures a bundle round trip through the
// archive, local by default and S3 when configured.
func BenchmarkArchivePushFetch(b *testing.B) {
	const rows = 2000
	bundleDir := b.TempDir()
	ctx := context.Background()

	err := tracedb.WriteBundle(ctx, bundleDir, tracedb.WriteInput{
		TraceID:  "tr-bench-archive",
		Format:   trace.FormatFTrace,
		Duration: rows * 1e-4,
		Tables:   map[string]*trace.Table{"sched_switch": makeSchedTable(b, rows)},
	})
	if err != nil {
		b.Fatal(err)
	}

	archive := storage.NewBundleArchive(benchmarkStorage(b, "push-fetch"), b.TempDir(), 0)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("tr-bench-%d", i)
		if err := archive.Push(ctx, id, bundleDir); err != nil {
			b.Fatal(err)
		}
		if _, err := archive.Fetch(ctx, id); err != nil {
			b.Fatal(err)
		}
	}
}
