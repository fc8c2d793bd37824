package llmclient

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// maxEventLine bounds a single SSE line. Assistant events can carry whole messages.
const maxEventLine = 1 << 20

// Event is one decoded Server-Sent Event.
type Event struct {
	Name string
	Data []byte
}

// Done reports whether the event is the OpenAI-style "[DONE]" terminator.
func (e Event) Done() bool {
	return bytes.Equal(bytes.TrimSpace(e.Data), []byte("[DONE]"))
}

// EventReader decodes an upstream text/event-stream body event by event.
type EventReader struct {
	reader *bufio.Reader
}

// NewEventReader wraps r.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{reader: bufio.NewReaderSize(r, 16<<10)}
}

// Next returns the next event with a non-empty data field. It returns io.EOF
// when the body ends; a trailing event without a blank line is still delivered.
func (er *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)
	for {
		line, err := er.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		atEOF := errors.Is(err, io.EOF)

		if len(line) == 0 {
			if hasData {
				ev.Data = data.Bytes()
				return ev, nil
			}
			if atEOF {
				return Event{}, io.EOF
			}
			ev = Event{}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			ev.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}

		if atEOF {
			if hasData {
				ev.Data = data.Bytes()
				return ev, nil
			}
			return Event{}, io.EOF
		}
	}
}

// readLine returns one line without its terminator.
func (er *EventReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := er.reader.ReadLine()
		line = append(line, chunk...)
		if len(line) > maxEventLine {
			return nil, errors.New("sse line too long")
		}
		if err != nil {
			return line, err
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// splitField splits "field: value". Comment lines yield an empty field.
func splitField(line []byte) (string, string) {
	if line[0] == ':' {
		return "", ""
	}
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), ""
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), string(value)
}
