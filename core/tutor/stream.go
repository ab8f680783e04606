package tutor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RecordSeparator frames the trailer. Generated text never carries it: the relay strips it from
// every fragment, so the delimiter cannot collide with an answer.
const RecordSeparator = '\x1e'

// Delimiter separates the answer text from the JSON-encoded source list.
const Delimiter = "\x1esources\x1e"

// Stream is the output channel of one relay run.
// Write forwards a frame to the consumer and fails once the consumer is gone.
// Abort signals a failure to the consumer. Close ends the stream.
type Stream interface {
	Write(p []byte) error
	Abort(err error)
	Close() error
}

// EncodeTrailer returns the trailer frame carrying sources.
func EncodeTrailer(sources []string) ([]byte, error) {
	payload, err := json.Marshal(sources)
	if err != nil {
		return nil, errors.Wrap(err, "encoding sources")
	}
	frame := make([]byte, 0, len(Delimiter)+len(payload))
	frame = append(frame, Delimiter...)
	return append(frame, payload...), nil
}

// SplitAnswer splits a relayed payload into the answer text and its sources, at the first delimiter.
func SplitAnswer(payload []byte) (string, []string, error) {
	idx := bytes.Index(payload, []byte(Delimiter))
	if idx < 0 {
		return string(payload), nil, nil
	}

	var sources []string
	if err := json.Unmarshal(payload[idx+len(Delimiter):], &sources); err != nil {
		return string(payload[:idx]), nil, errors.Wrap(err, "decoding sources")
	}
	return string(payload[:idx]), sources, nil
}

func sanitizeFragment(frag string) string {
	if strings.IndexByte(frag, RecordSeparator) < 0 {
		return frag
	}
	return strings.ReplaceAll(frag, string(RecordSeparator), "")
}
