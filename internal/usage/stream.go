package usage

import (
	"context"
	"sync"

	"lingogate/internal/core"
)

// meteredStream passes deltas through and records the last reported usage
// once the stream is closed.
type meteredStream struct {
	core.ChatStream
	ctx      context.Context
	recorder Recorder
	service  string
	provider string
	model    string

	usage     *core.Usage
	closeOnce sync.Once
}

// WrapStream returns a stream that behaves like stream and, on Close, records
// the usage carried by its terminal delta. A nil recorder returns stream unchanged.
func WrapStream(ctx context.Context, stream core.ChatStream, rec Recorder, service, provider, model string) core.ChatStream {
	if rec == nil {
		return stream
	}
	return &meteredStream{
		ChatStream: stream,
		ctx:        ctx,
		recorder:   rec,
		service:    service,
		provider:   provider,
		model:      model,
	}
}

func (m *meteredStream) Recv() (core.ChatDelta, error) {
	d, err := m.ChatStream.Recv()
	if err == nil && d.Usage != nil {
		m.usage = d.Usage
	}
	return d, err
}

func (m *meteredStream) Close() error {
	m.closeOnce.Do(func() {
		if e := NewEntry(m.ctx, m.service, m.provider, m.model, m.usage); e != nil {
			e.Streamed = true
			m.recorder.Record(e)
		}
	})
	return m.ChatStream.Close()
}
