package trace

import (
	"fmt"

	"github.com/vdonnefort/lisa/internal/errors"
)

// Format identifies the decoder that produced a bundle. The set is closed;
// unknown tags are rejected at load time.
type Format int

const (
	// FormatFTrace marks a bundle decoded from an ftrace capture
	FormatFTrace Format = iota

	// FormatSysTrace marks a bundle decoded from a systrace capture
	FormatSysTrace
)

// String returns the wire tag for the format.
func (f Format) String() string {
	switch f {
	case FormatFTrace:
		return "ftrace"
	case FormatSysTrace:
		return "systrace"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat maps a wire tag to a Format. Unknown tags fail; there is no
// default format.
func ParseFormat(tag string) (Format, error) {
	switch tag {
	case "ftrace":
		return FormatFTrace, nil
	case "systrace":
		return FormatSysTrace, nil
	default:
		return 0, errors.NewConfigError(errors.CodeInvalidFormat,
			fmt.Sprintf("unknown trace format %q (must be ftrace or systrace)", tag))
	}
}
