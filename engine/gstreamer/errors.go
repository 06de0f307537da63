package gstreamer

import "strings"

// ErrorCategory is a coarse classification of GStreamer bus errors for logs and metrics
type ErrorCategory int

const (
	// ErrCategoryResource covers missing files, permissions and device problems
	ErrCategoryResource ErrorCategory = iota
	// ErrCategoryCodec covers decode/encode and caps negotiation failures
	ErrCategoryCodec
	// ErrCategoryNetwork covers sockets, timeouts and unreachable hosts
	ErrCategoryNetwork
	// ErrCategoryUnknown is everything else
	ErrCategoryUnknown
)

// String returns the category label
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryNetwork:
		return "network"
	default:
		return "unknown"
	}
}

var (
	resourceKeywords = []string{
		"could not open",
		"no such file",
		"not found",
		"permission denied",
		"resource",
		"could not read",
		"busy",
	}

	codecKeywords = []string{
		"codec",
		"decode",
		"encode",
		"demux",
		"not negotiated",
		"negotiation",
		"caps",
		"missing plugin",
		"no decoder",
		"stream format",
	}

	networkKeywords = []string{
		"connection",
		"timeout",
		"timed out",
		"unreachable",
		"socket",
		"network",
		"could not connect",
	}
)

// ClassifyError categorises an error from its message and debug string.
//
// Classification is keyword based, resource first: a missing media file is the
// most common failure of a playout pipeline and its debug string often also
// mentions the demuxer.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
