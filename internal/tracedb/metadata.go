package tracedb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vdonnefort/lisa/internal/errors"
	"github.com/vdonnefort/lisa/internal/trace"
)

// EventMeta describes one event table of a bundle.
type EventMeta struct {
	// Rows is the number of records the table is expected to hold
	Rows int `json:"rows"`

	// Checksum is the hex murmur3-128 digest of the table content,
	// empty when the producer did not compute one
	Checksum string `json:"checksum,omitempty"`
}

// Metadata is the trace.meta.json sidecar of a bundle.
type Metadata struct {
	// TraceID identifies the capture
	TraceID string `json:"trace_id"`

	// Format names the capture source, "ftrace" or "systrace"
	Format string `json:"format"`

	// Basetime is the absolute timestamp of the start of the capture
	Basetime float64 `json:"basetime"`

	// Duration is the time span covered by the capture in seconds
	Duration float64 `json:"duration"`

	// Decoder names the tool that produced the bundle
	Decoder string `json:"decoder,omitempty"`

	// Events lists the event tables the bundle holds
	Events map[string]EventMeta `json:"events"`
}

// readMetadata loads and validates a bundle's metadata sidecar. The
// format tag must parse; a bundle with an unknown format cannot be
// interpreted.
func readMetadata(path string) (*Metadata, trace.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, errors.NewBundleError(errors.CodeOpenFailed,
			fmt.Sprintf("read metadata %s", path), err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, 0, errors.NewBundleError(errors.CodeMetadataInvalid,
			fmt.Sprintf("parse metadata %s", path), err)
	}

	format, err := trace.ParseFormat(meta.Format)
	if err != nil {
		return nil, 0, errors.NewBundleError(errors.CodeMetadataInvalid,
			fmt.Sprintf("metadata %s: unknown trace format %q", path, meta.Format), err)
	}
	if meta.Duration < 0 {
		return nil, 0, errors.NewBundleError(errors.CodeMetadataInvalid,
			fmt.Sprintf("metadata %s: negative duration %v", path, meta.Duration), nil)
	}

	return &meta, format, nil
}

// writeMetadata writes the sidecar next to a freshly built bundle.
func writeMetadata(path string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("tracedb: marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tracedb: write metadata %s: %w", path, err)
	}
	return nil
}
