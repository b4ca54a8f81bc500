package tracedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/pkg/types"
)

// WriteInput describes a bundle to materialize on disk.
type WriteInput struct {
	// TraceID names the bundle. Left empty, the writer mints a
	// time-ordered ULID and records it in the metadata sidecar.
	TraceID  string
	Format   trace.Format
	Basetime float64
	Duration float64
	Decoder  string

	// Tables holds the decoded event tables to store, keyed by event
	// name. Tables keep their typed columns; free-form per-record
	// fields go through Payloads instead.
	Tables map[string]*trace.Table

	// Payloads attaches one JSON document per record of the named
	// event. Each document is snappy-compressed into the table's data
	// column; nil entries store NULL. Slice length must match the
	// event's row count.
	Payloads map[string][]map[string]interface{}

	// Stats is the optional function profiling dump.
	Stats []trace.FuncStat
}

// WriteBundle builds a bundle directory: the SQLite event store, the
// metadata sidecar, and the optional function stats dump. The database
// is built under WAL journaling and sealed back to DELETE mode so the
// result is a single immutable file.
func WriteBundle(ctx context.Context, dir string, in WriteInput) error {
	if in.TraceID == "" {
		in.TraceID = types.NewTraceID()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("create bundle directory %s", dir), err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("create bundle database %s", dbPath), err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed, "set journal mode", err)
	}

	meta := &Metadata{
		TraceID:  in.TraceID,
		Format:   in.Format.String(),
		Basetime: in.Basetime,
		Duration: in.Duration,
		Decoder:  in.Decoder,
		Events:   make(map[string]EventMeta, len(in.Tables)),
	}

	names := make([]string, 0, len(in.Tables))
	for name := range in.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := in.Tables[name]
		if t == nil {
			continue
		}
		payloads := in.Payloads[name]
		if payloads != nil && len(payloads) != t.Len() {
			return errors.NewBundleError(errors.CodeWriteFailed,
				fmt.Sprintf("event %s has %d payloads for %d records", name, len(payloads), t.Len()), nil)
		}
		if err := writeEventTable(ctx, db, name, t, payloads); err != nil {
			return err
		}
		meta.Events[name] = EventMeta{
			Rows:     t.Len(),
			Checksum: tableChecksum(t),
		}
	}

	// Checkpoint the WAL and seal the file for read-only use.
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed, "checkpoint bundle", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed, "seal bundle journal", err)
	}

	if err := writeMetadata(filepath.Join(dir, MetaFileName), meta); err != nil {
		return err
	}
	if len(in.Stats) > 0 {
		if err := writeFunctionStats(filepath.Join(dir, StatsFileName), in.Stats); err != nil {
			return err
		}
	}
	return nil
}

// writeEventTable creates and fills one evt_ table.
func writeEventTable(ctx context.Context, db *sql.DB, name string, t *trace.Table, payloads []map[string]interface{}) error {
	table := eventTablePrefix + name

	defs := []string{timeColumn + " REAL NOT NULL"}
	colNames := []string{timeColumn}
	for _, col := range t.Columns() {
		defs = append(defs, fmt.Sprintf("%q %s", col.Name(), sqlType(col.Kind())))
		colNames = append(colNames, col.Name())
	}
	if payloads != nil {
		defs = append(defs, payloadColumn+" BLOB")
		colNames = append(colNames, payloadColumn)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("create event table %s", table), err)
	}

	quoted := make([]string, len(colNames))
	marks := make([]string, len(colNames))
	for i, cn := range colNames {
		quoted[i] = strconv.Quote(cn)
		marks[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("prepare insert for %s", table), err)
	}
	defer stmt.Close()

	ts := t.Times()
	cols := t.Columns()
	for i := 0; i < t.Len(); i++ {
		args := make([]interface{}, 0, len(colNames))
		args = append(args, ts[i])
		for _, col := range cols {
			args = append(args, col.Value(i))
		}
		if payloads != nil {
			blob, err := encodePayload(payloads[i])
			if err != nil {
				return errors.NewBundleError(errors.CodeWriteFailed,
					fmt.Sprintf("event %s record %d: encode payload", name, i), err)
			}
			args = append(args, blob)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.NewBundleError(errors.CodeWriteFailed,
				fmt.Sprintf("insert into %s", table), err)
		}
	}
	return nil
}

// encodePayload marshals and snappy-compresses one payload document.
func encodePayload(doc map[string]interface{}) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// writeFunctionStats groups the flat records back into the on-disk
// per-CPU layout readFunctionStats expects.
func writeFunctionStats(path string, stats []trace.FuncStat) error {
	perCPU := make(map[string]map[string]funcStatEntry)
	for _, st := range stats {
		key := strconv.Itoa(st.CPU)
		funcs := perCPU[key]
		if funcs == nil {
			funcs = make(map[string]funcStatEntry)
			perCPU[key] = funcs
		}
		funcs[st.Function] = funcStatEntry{
			Hits: st.Hits,
			Avg:  st.Avg,
			Time: st.Time,
			S2:   st.S2,
		}
	}

	raw, err := json.MarshalIndent(perCPU, "", "  ")
	if err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("encode function stats %s", path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.NewBundleError(errors.CodeWriteFailed,
			fmt.Sprintf("write function stats %s", path), err)
	}
	return nil
}

// sqlType maps a column kind to its SQLite declared type.
func sqlType(k types.Kind) string {
	switch k {
	case types.KindInt:
		return "INTEGER"
	case types.KindString:
		return "TEXT"
	default:
		return "REAL"
	}
}
