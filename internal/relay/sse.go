// Package relay pumps upstream streams to HTTP clients, either as Server-Sent
// Events or as raw bytes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"lingogate/internal/core"
)

// State is the lifecycle of one relayed response.
type State int

const (
	// Idle: nothing has been written; errors can still become a JSON response.
	Idle State = iota
	// HeadersSent: status and headers are flushed; failures must be reported in-band.
	HeadersSent
	// Streaming: at least one data frame was written.
	Streaming
	// Terminated: the terminator was written or the client went away.
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case HeadersSent:
		return "headers_sent"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// doneFrame is the unconditional last frame of every SSE response.
const doneFrame = "data: [DONE]\n\n"

// Framer encodes one delta as the JSON payload of a data frame.
type Framer func(core.ChatDelta) any

// DeltaFrame renders {"delta": text}, adding "usage" on the terminal delta.
func DeltaFrame(d core.ChatDelta) any {
	frame := map[string]any{"delta": d.Content}
	if d.Usage != nil {
		frame["usage"] = d.Usage
	}
	return frame
}

// ChoicesFrame renders the OpenAI chunk shape {"choices":[{"delta":{"content": text}}]}
// that existing clients parse regardless of the backing provider.
func ChoicesFrame(d core.ChatDelta) any {
	frame := map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]any{"content": d.Content}},
		},
	}
	if d.Usage != nil {
		frame["usage"] = d.Usage
	}
	return frame
}

// Writer frames payloads onto an http.ResponseWriter as Server-Sent Events.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	state   State
	onFrame func(kind string)
}

// NewWriter wraps w. onFrame, when set, is called for every frame written.
func NewWriter(w http.ResponseWriter, onFrame func(kind string)) *Writer {
	sw := &Writer{w: w, onFrame: onFrame}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// State returns the current lifecycle state.
func (s *Writer) State() State {
	return s.state
}

// Committed reports whether headers have been sent.
func (s *Writer) Committed() bool {
	return s.state != Idle
}

// open sends and flushes the event-stream headers.
func (s *Writer) open() {
	if s.state != Idle {
		return
	}
	SetSSEHeaders(s.w.Header())
	s.w.WriteHeader(http.StatusOK)
	s.flush()
	s.state = HeadersSent
}

// Send writes payload as one data frame, sending headers first if needed.
func (s *Writer) Send(payload any) error {
	return s.send(payload, "delta")
}

func (s *Writer) send(payload any, kind string) error {
	if s.state == Terminated {
		return errors.New("relay: write after terminator")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay: encode frame: %w", err)
	}
	s.open()
	if err := s.write("data: " + string(data) + "\n\n"); err != nil {
		return err
	}
	s.state = Streaming
	s.count(kind)
	return nil
}

// Finish writes the error frame for err (if any) and then the terminator.
// It is a no-op once the writer is terminated.
func (s *Writer) Finish(err error) {
	if s.state == Terminated {
		return
	}
	s.open()
	if err != nil {
		data, _ := json.Marshal(map[string]string{"error": core.ClientMessage(err)}) //nolint:errcheck
		if werr := s.write("data: " + string(data) + "\n\n"); werr != nil {
			s.state = Terminated
			return
		}
		s.count("error")
	}
	if werr := s.write(doneFrame); werr == nil {
		s.count("done")
	}
	s.state = Terminated
}

// Abandon marks the stream terminated without writing anything, used when the client is gone.
func (s *Writer) Abandon() {
	s.state = Terminated
}

func (s *Writer) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *Writer) count(kind string) {
	if s.onFrame != nil {
		s.onFrame(kind)
	}
}

// Options configure Stream.
type Options struct {
	// Framer encodes deltas; DeltaFrame when nil.
	Framer Framer
	// Prelude, when non-nil, is written as the first frame (e.g. a conversation handle).
	Prelude any
	// OnFrame observes every frame written.
	OnFrame func(kind string)
	// Logger receives mid-stream failures; slog.Default when nil.
	Logger *slog.Logger
}

// Stream relays every delta of stream to w in arrival order and always closes stream.
//
// An error is returned only when nothing has been written yet, so the caller can
// still answer with a JSON error and a non-2xx status. Once output has started,
// failures become an in-band error frame followed by the [DONE] terminator, and
// Stream returns nil. If the client disconnects, the upstream stream is abandoned.
func Stream(ctx context.Context, w http.ResponseWriter, stream core.ChatStream, opts Options) error {
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	framer := opts.Framer
	if framer == nil {
		framer = DeltaFrame
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sw := NewWriter(w, opts.OnFrame)

	if opts.Prelude != nil {
		if err := sw.send(opts.Prelude, "prelude"); err != nil {
			sw.Abandon()
			logger.Warn("client went away before stream start", "error", err)
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			return abandon(sw, logger, ctx.Err())
		}

		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				sw.Finish(nil)
				return nil
			}
			if ctx.Err() != nil {
				return abandon(sw, logger, ctx.Err())
			}
			if !sw.Committed() {
				return err
			}
			logger.Warn("upstream stream failed mid-response", "error", err, "state", sw.State().String())
			sw.Finish(err)
			return nil
		}

		if err := sw.Send(framer(delta)); err != nil {
			return abandon(sw, logger, err)
		}
	}
}

// abandon stops relaying after a client disconnect. Before any output the
// cause is returned; afterwards there is nobody left to tell.
func abandon(sw *Writer, logger *slog.Logger, cause error) error {
	if !sw.Committed() {
		return cause
	}
	sw.Abandon()
	logger.Info("client disconnected, abandoning upstream stream", "error", cause)
	return nil
}

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
