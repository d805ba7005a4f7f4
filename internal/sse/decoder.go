package sse

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// DoneMarker is the payload OpenAI sends as the final event of a stream.
const DoneMarker = "[DONE]"

// Decoder reads events from an event stream.
type Decoder struct {
	r      *bufio.Reader
	logger *slog.Logger
	lines  []string
	eof    bool
}

// NewDecoder returns a decoder reading from r. A nil logger discards.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{r: bufio.NewReader(r), logger: logger}
}

// Next returns the data of the next event. It returns io.EOF once the
// stream is exhausted and every buffered event has been returned.
func (d *Decoder) Next() (string, error) {
	for !d.eof {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
		}

		line = strings.TrimSpace(line)
		if line != "" {
			d.lines = append(d.lines, line)
			continue
		}

		if data, ok := d.flush(); ok {
			return data, nil
		}
	}

	if data, ok := d.flush(); ok {
		return data, nil
	}

	d.logger.Debug("event stream ended")
	return "", io.EOF
}

// flush turns the buffered lines into an event payload.
func (d *Decoder) flush() (string, bool) {
	if len(d.lines) == 0 {
		return "", false
	}

	var data []string
	for _, line := range d.lines {
		switch {
		case strings.HasPrefix(line, "data: "+DoneMarker):
			d.logger.Debug("event stream done marker")
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(line[len("data:"):]))
		default:
			d.logger.Debug("skipping non-data event line", "line", line)
		}
	}
	d.lines = d.lines[:0]

	payload := strings.TrimSpace(strings.Join(data, "\n"))
	if payload == "" {
		return "", false
	}
	return payload, true
}

// Events returns an iterator over the event payloads of r. A read error
// is yielded once and ends the iteration.
func Events(r io.Reader, logger *slog.Logger) iter.Seq2[string, error] {
	d := NewDecoder(r, logger)

	return func(yield func(string, error) bool) {
		for {
			data, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}
