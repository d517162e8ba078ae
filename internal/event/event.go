// Package event defines the JSON contract between the segmenter and the
// pipeline orchestrator that invokes it. The orchestrator sends a trigger
// payload naming the uploaded audio object; any fields it adds beyond the
// ones the segmenter understands are carried through untouched and echoed
// back in the response, so downstream pipeline steps keep their context.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Payload keys the segmenter interprets. Everything else is passthrough.
const (
	keyAudioFilename = "audio_filename"
	keyBucket        = "bucket"
	keySessionID     = "sessionId"
	keySegments      = "segments"
)

var (
	// ErrMissingSource reports a trigger payload without an audio source
	// reference. Terminal; there is nothing to segment.
	ErrMissingSource = errors.New("missing required field audio_filename")

	// ErrMalformed reports a payload that is not a JSON object.
	ErrMalformed = errors.New("malformed trigger payload")
)

// sessionIDPattern extracts the session UUID that the uploading client
// embeds in audio filenames, e.g. "Session3f2a...-recording.wav".
var sessionIDPattern = regexp.MustCompile(
	`Session([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

// Request is one parsed segmentation trigger.
type Request struct {
	// AudioFilename is the object key of the source audio. Required.
	AudioFilename string

	// Bucket optionally overrides the configured store bucket.
	Bucket string

	// SessionID identifies the work item in the session status store.
	// Taken from the payload when present, otherwise recovered from the
	// filename. Empty when neither yields one.
	SessionID string

	// Extra holds every payload field the segmenter does not interpret,
	// kept unparsed so the response echoes it without touching its
	// content.
	Extra map[string]json.RawMessage
}

// Segment is one output object reference in the response, ordered by Index.
type Segment struct {
	Key          string  `json:"key"`
	Index        int     `json:"index"`
	Count        int     `json:"count"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// Parse decodes a trigger payload. Fields other than the known keys are
// kept raw in Extra. A payload without audio_filename fails with
// ErrMissingSource.
func Parse(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	req := Request{Extra: make(map[string]json.RawMessage, len(fields))}

	for key, raw := range fields {
		switch key {
		case keyAudioFilename:
			if err := json.Unmarshal(raw, &req.AudioFilename); err != nil {
				return Request{}, fmt.Errorf("%w: %s: %w", ErrMalformed, keyAudioFilename, err)
			}
		case keyBucket:
			if err := json.Unmarshal(raw, &req.Bucket); err != nil {
				return Request{}, fmt.Errorf("%w: %s: %w", ErrMalformed, keyBucket, err)
			}
		case keySessionID:
			if err := json.Unmarshal(raw, &req.SessionID); err != nil {
				return Request{}, fmt.Errorf("%w: %s: %w", ErrMalformed, keySessionID, err)
			}
			req.Extra[key] = raw
		default:
			req.Extra[key] = raw
		}
	}

	if req.AudioFilename == "" {
		return Request{}, ErrMissingSource
	}
	if req.SessionID == "" {
		req.SessionID = SessionIDFromFilename(req.AudioFilename)
	}

	return req, nil
}

// SessionIDFromFilename recovers the session UUID embedded in an audio
// filename, or returns empty when the filename carries none.
func SessionIDFromFilename(filename string) string {
	m := sessionIDPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Handoff is the slice of a response payload the next pipeline stage
// consumes: the resolved bucket and the ordered segment keys.
type Handoff struct {
	Bucket string
	Keys   []string
}

// ParseHandoff extracts the hand-off from a response payload, so the
// transcription stage can consume one run's output directly. A payload
// without a segments array fails with ErrMalformed.
func ParseHandoff(data []byte) (Handoff, error) {
	var resp struct {
		Bucket   string    `json:"bucket"`
		Segments []Segment `json:"segments"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return Handoff{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if resp.Segments == nil {
		return Handoff{}, fmt.Errorf("%w: no segments array", ErrMalformed)
	}

	h := Handoff{Bucket: resp.Bucket, Keys: make([]string, 0, len(resp.Segments))}
	for _, s := range resp.Segments {
		if s.Key == "" {
			return Handoff{}, fmt.Errorf("%w: segment %d has no key", ErrMalformed, s.Index)
		}
		h.Keys = append(h.Keys, s.Key)
	}
	return h, nil
}

// Response encodes the success payload: every passthrough field unchanged,
// the resolved bucket, and the ordered segment references.
func (r Request) Response(bucket string, segments []Segment) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+3)
	for key, raw := range r.Extra {
		out[key] = raw
	}

	audioRaw, err := json.Marshal(r.AudioFilename)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out[keyAudioFilename] = audioRaw

	bucketRaw, err := json.Marshal(bucket)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out[keyBucket] = bucketRaw

	segmentsRaw, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out[keySegments] = segmentsRaw

	return json.Marshal(out)
}
