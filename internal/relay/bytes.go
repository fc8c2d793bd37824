package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const chunkSize = 32 << 10

// BytesOptions configure Bytes.
type BytesOptions struct {
	// ContentType of the relayed body, e.g. audio/mpeg or text/event-stream.
	ContentType string
	// OnChunk observes every chunk written.
	OnChunk func(n int)
	// Logger receives mid-stream failures; slog.Default when nil.
	Logger *slog.Logger
}

// Bytes forwards body to w verbatim and in order, flushing after each chunk,
// and always closes body.
//
// The first chunk is read before headers are sent, so an upstream failure
// at that point is returned to the caller. Later failures simply end the
// response: raw passthrough has no framing to carry an error.
func Bytes(ctx context.Context, w http.ResponseWriter, body io.ReadCloser, opts BytesOptions) error {
	defer func() {
		_ = body.Close() //nolint:errcheck
	}()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, chunkSize)
	committed := false
	commit := func() {
		if committed {
			return
		}
		h := w.Header()
		if opts.ContentType != "" {
			h.Set("Content-Type", opts.ContentType)
		}
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		committed = true
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			commit()
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Info("client disconnected, abandoning upstream byte stream", "error", werr)
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
			if opts.OnChunk != nil {
				opts.OnChunk(n)
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			commit()
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}
		if !committed {
			return err
		}
		if ctx.Err() != nil {
			logger.Info("client disconnected, abandoning upstream byte stream", "error", ctx.Err())
			return nil
		}
		logger.Warn("upstream byte stream failed mid-response; ending response", "error", err)
		return nil
	}
}
