package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DataMarker prefixes a fragment that carries a JSON object instead of
// content. Content that happens to start with the marker is indistinguishable
// from a data frame; there is no escaping.
//
// The HTTP client may hand several server writes back in one read, so a data
// frame can arrive glued to the end of a content chunk. ParseFrames splits
// such chunks.
const DataMarker = "[DATA]"

type FrameKind int

const (
	FrameContent FrameKind = iota
	FrameData
)

func (k FrameKind) String() string {
	switch k {
	case FrameContent:
		return "content"
	case FrameData:
		return "data"
	default:
		return "unknown"
	}
}

// Frame is one classified fragment of the response body.
type Frame struct {
	Kind FrameKind
	// Text is the content delta for content frames.
	Text string
	// Data is the JSON payload following the marker for data frames.
	Data []byte
}

// ParseFrame classifies a decoded fragment.
func ParseFrame(fragment string) Frame {
	if payload, ok := strings.CutPrefix(fragment, DataMarker); ok {
		return Frame{Kind: FrameData, Data: []byte(payload)}
	}
	return Frame{Kind: FrameContent, Text: fragment}
}

// ParseFrames classifies a decoded chunk that may hold more than one server
// write. A run of marker-prefixed JSON objects at the end of the chunk is
// split off into data frames, with any text before it kept as content.
// Anything else falls back to ParseFrame.
func ParseFrames(chunk string) []Frame {
	for offset := 0; ; {
		i := strings.Index(chunk[offset:], DataMarker)
		if i < 0 {
			break
		}
		i += offset
		if payloads, ok := splitData(chunk[i+len(DataMarker):]); ok {
			var frames []Frame
			if i > 0 {
				frames = append(frames, Frame{Kind: FrameContent, Text: chunk[:i]})
			}
			for _, p := range payloads {
				frames = append(frames, Frame{Kind: FrameData, Data: []byte(p)})
			}
			return frames
		}
		offset = i + len(DataMarker)
	}
	return []Frame{ParseFrame(chunk)}
}

// splitData reports whether rest is one or more JSON objects separated by
// the marker, and returns them.
func splitData(rest string) ([]string, bool) {
	parts := strings.Split(rest, DataMarker)
	for _, p := range parts {
		raw := bytes.TrimSpace([]byte(p))
		if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
			return nil, false
		}
	}
	return parts, true
}
