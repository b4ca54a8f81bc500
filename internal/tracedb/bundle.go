package tracedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/snappy"

	"github.com/vdonnefort/lisa/internal/config"
	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/pkg/types"
)

const (
	// DBFileName is the SQLite file of a bundle directory.
	DBFileName = "trace.db"

	// MetaFileName is the metadata sidecar of a bundle directory.
	MetaFileName = "trace.meta.json"

	// StatsFileName is the optional function profiling dump.
	StatsFileName = "trace.stats"

	// eventTablePrefix namespaces event tables inside the SQLite file.
	eventTablePrefix = "evt_"

	// payloadColumn is the optional snappy-compressed JSON blob column.
	payloadColumn = "data"

	// timeColumn is the mandatory timestamp column of every event table.
	timeColumn = "ts"
)

// Bundle is an opened trace bundle directory.
type Bundle struct {
	dir    string
	dbPath string
	meta   *Metadata
	format trace.Format

	pool *ConnectionPool
	db   *sql.DB
}

// Open opens the bundle stored in dir, reading its metadata and taking a
// database connection from the pool. Close releases the connection.
func Open(ctx context.Context, dir string, pool *ConnectionPool) (*Bundle, error) {
	meta, format, err := readMetadata(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, DBFileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("bundle %s has no %s", dir, DBFileName), err)
	}

	db, err := pool.Get(ctx, dbPath)
	if err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("open bundle %s", dir), err)
	}

	return &Bundle{
		dir:    dir,
		dbPath: dbPath,
		meta:   meta,
		format: format,
		pool:   pool,
		db:     db,
	}, nil
}

// Close releases the bundle's database connection back to the pool.
func (b *Bundle) Close() {
	b.pool.Release(b.dbPath)
}

// Dir returns the bundle directory.
func (b *Bundle) Dir() string {
	return b.dir
}

// Metadata returns a copy of the bundle metadata.
func (b *Bundle) Metadata() Metadata {
	meta := *b.meta
	meta.Events = make(map[string]EventMeta, len(b.meta.Events))
	for name, ev := range b.meta.Events {
		meta.Events[name] = ev
	}
	return meta
}

// Format returns the bundle's parsed capture format.
func (b *Bundle) Format() trace.Format {
	return b.format
}

// EventNames lists the event tables present in the bundle, sorted.
func (b *Bundle) EventNames(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name",
		eventTablePrefix+"%")
	if err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed, "list event tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, errors.NewBundleError(errors.CodeOpenFailed, "list event tables", err)
		}
		names = append(names, strings.TrimPrefix(table, eventTablePrefix))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed, "list event tables", err)
	}
	return names, nil
}

// LoadSpec selects what to read out of a bundle.
type LoadSpec struct {
	// Events restricts loading to the named events; nil loads
	// everything. Requesting cpu_frequency pulls in the synthetic
	// cpu_frequency_devlib samples it is merged with.
	Events []string

	// Concurrency bounds parallel event table loads (default 4).
	Concurrency int

	// Platform is attached to the loaded input as-is.
	Platform *config.Platform
}

// Load reads the selected event tables, verifies them against the
// metadata sidecar, and assembles the decoded input for trace loading.
func (b *Bundle) Load(ctx context.Context, spec LoadSpec) (trace.Input, error) {
	names, err := b.EventNames(ctx)
	if err != nil {
		return trace.Input{}, err
	}
	names = selectEvents(names, spec.Events)

	concurrency := spec.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		tables   = make(map[string]*trace.Table, len(names))
	)
	sem := make(chan struct{}, concurrency)

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			t, err := b.loadEventTable(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			tables[name] = t
		}(name)
	}
	wg.Wait()

	if firstErr != nil {
		return trace.Input{}, firstErr
	}

	stats, err := readFunctionStats(filepath.Join(b.dir, StatsFileName))
	if err != nil {
		return trace.Input{}, err
	}

	return trace.Input{
		Tables:   tables,
		Format:   b.format,
		Basetime: b.meta.Basetime,
		Duration: b.meta.Duration,
		Stats:    stats,
		Platform: spec.Platform,
	}, nil
}

// selectEvents intersects the bundle's tables with the requested set,
// keeping everything when the request is empty.
func selectEvents(names, requested []string) []string {
	if len(requested) == 0 {
		return names
	}
	wanted := make(map[string]bool, len(requested)+1)
	for _, name := range requested {
		wanted[name] = true
		if name == "cpu_frequency" {
			wanted["cpu_frequency_devlib"] = true
		}
	}
	out := names[:0]
	for _, name := range names {
		if wanted[name] {
			out = append(out, name)
		}
	}
	return out
}

// loadEventTable reads one event table, verifies it, and merges any
// payload blobs into typed columns.
func (b *Bundle) loadEventTable(ctx context.Context, name string) (*trace.Table, error) {
	table := eventTablePrefix + name
	rows, err := b.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %q ORDER BY %s, rowid`, table, timeColumn))
	if err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("query event %s", name), err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("event %s column types", name), err)
	}

	type colBuf struct {
		name    string
		kind    types.Kind
		floats  []float64
		ints    []int64
		strings []string
	}

	var (
		ts       []float64
		tsSeen   bool
		cols     []*colBuf
		payloads [][]byte
	)

	// One scan destination per result column; ts and payload blobs get
	// dedicated holders.
	var (
		tsHolder      sql.NullFloat64
		payloadHolder []byte
	)
	holders := make([]interface{}, 0, len(colTypes))
	for _, ct := range colTypes {
		switch {
		case ct.Name() == timeColumn:
			tsSeen = true
			holders = append(holders, &tsHolder)
		case ct.Name() == payloadColumn:
			holders = append(holders, &payloadHolder)
		default:
			buf := &colBuf{name: ct.Name()}
			switch strings.ToUpper(ct.DatabaseTypeName()) {
			case "REAL", "FLOAT", "DOUBLE":
				buf.kind = types.KindFloat
				holders = append(holders, new(sql.NullFloat64))
			case "INTEGER", "INT", "BIGINT":
				buf.kind = types.KindInt
				holders = append(holders, new(sql.NullInt64))
			default:
				buf.kind = types.KindString
				holders = append(holders, new(sql.NullString))
			}
			cols = append(cols, buf)
		}
	}
	if !tsSeen {
		return nil, errors.NewBundleError(errors.CodeInvalidFormat,
			fmt.Sprintf("event table %s has no %s column", table, timeColumn), nil)
	}

	hasPayload := false
	for rows.Next() {
		payloadHolder = nil
		if err := rows.Scan(holders...); err != nil {
			return nil, errors.NewBundleError(errors.CodeOpenFailed,
				fmt.Sprintf("scan event %s", name), err)
		}

		ts = append(ts, tsHolder.Float64)
		ci := 0
		for i, ct := range colTypes {
			switch ct.Name() {
			case timeColumn:
			case payloadColumn:
			default:
				buf := cols[ci]
				switch buf.kind {
				case types.KindFloat:
					buf.floats = append(buf.floats, holders[i].(*sql.NullFloat64).Float64)
				case types.KindInt:
					buf.ints = append(buf.ints, holders[i].(*sql.NullInt64).Int64)
				case types.KindString:
					buf.strings = append(buf.strings, holders[i].(*sql.NullString).String)
				}
				ci++
			}
		}

		var blob []byte
		if len(payloadHolder) > 0 {
			blob = append([]byte(nil), payloadHolder...)
			hasPayload = true
		}
		payloads = append(payloads, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("read event %s", name), err)
	}

	columns := make([]*types.Column, 0, len(cols))
	for _, buf := range cols {
		switch buf.kind {
		case types.KindFloat:
			columns = append(columns, types.FloatColumn(buf.name, buf.floats))
		case types.KindInt:
			columns = append(columns, types.IntColumn(buf.name, buf.ints))
		case types.KindString:
			columns = append(columns, types.StringColumn(buf.name, buf.strings))
		}
	}

	t, err := trace.NewTable(name, ts, columns...)
	if err != nil {
		return nil, err
	}

	if err := b.verifyTable(name, t); err != nil {
		return nil, err
	}

	if hasPayload {
		if err := mergePayloads(t, payloads); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// verifyTable checks the loaded table against its metadata entry, when
// one exists. The checksum covers the typed columns only, so it is
// computed before payload merging.
func (b *Bundle) verifyTable(name string, t *trace.Table) error {
	ev, ok := b.meta.Events[name]
	if !ok {
		return nil
	}
	if ev.Rows != t.Len() {
		return errors.NewBundleError(errors.CodeChecksumMismatch,
			fmt.Sprintf("event %s has %d rows, metadata says %d", name, t.Len(), ev.Rows), nil)
	}
	if ev.Checksum == "" {
		return nil
	}
	if got := tableChecksum(t); got != ev.Checksum {
		return errors.NewBundleError(errors.CodeChecksumMismatch,
			fmt.Sprintf("event %s checksum %s does not match metadata %s", name, got, ev.Checksum), nil)
	}
	return nil
}

// mergePayloads decodes the per-record snappy JSON blobs and adds one
// column per scalar key. Records without the key get a zero value.
// Payload keys shadowed by an existing column are skipped.
func mergePayloads(t *trace.Table, payloads [][]byte) error {
	decoded := make([]map[string]interface{}, len(payloads))
	keys := map[string]bool{}
	for i, blob := range payloads {
		if len(blob) == 0 {
			continue
		}
		raw, err := snappy.Decode(nil, blob)
		if err != nil {
			return errors.NewBundleError(errors.CodeInvalidFormat,
				fmt.Sprintf("event %s record %d: decompress payload", t.Name(), i), err)
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return errors.NewBundleError(errors.CodeInvalidFormat,
				fmt.Sprintf("event %s record %d: decode payload", t.Name(), i), err)
		}
		decoded[i] = fields
		for key := range fields {
			keys[key] = true
		}
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		if t.HasColumn(key) {
			log.Printf("[WARN] tracedb: event %s payload key %s shadows a column, skipping", t.Name(), key)
			continue
		}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		kind := payloadKind(decoded, key)
		switch kind {
		case types.KindString:
			vals := make([]string, t.Len())
			for i, fields := range decoded {
				if s, ok := fields[key].(string); ok {
					vals[i] = s
				}
			}
			if err := t.AddColumn(types.StringColumn(key, vals)); err != nil {
				return err
			}
		default:
			vals := make([]float64, t.Len())
			for i, fields := range decoded {
				switch v := fields[key].(type) {
				case float64:
					vals[i] = v
				case bool:
					if v {
						vals[i] = 1
					}
				}
			}
			if err := t.AddColumn(types.FloatColumn(key, vals)); err != nil {
				return err
			}
		}
	}
	return nil
}

// payloadKind picks string when any record holds a string for the key,
// numeric otherwise. JSON numbers always decode as float64.
func payloadKind(decoded []map[string]interface{}, key string) types.Kind {
	for _, fields := range decoded {
		if _, ok := fields[key].(string); ok {
			return types.KindString
		}
	}
	return types.KindFloat
}
