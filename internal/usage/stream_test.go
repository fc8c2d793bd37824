package usage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingogate/internal/core"
)

type sliceStream struct {
	deltas []core.ChatDelta
	err    error
	closed int
}

func (s *sliceStream) Recv() (core.ChatDelta, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			return core.ChatDelta{}, s.err
		}
		return core.ChatDelta{}, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *sliceStream) Close() error {
	s.closed++
	return nil
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []*Entry
}

func (c *captureRecorder) Record(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureRecorder) Close() error { return nil }

func drain(t *testing.T, s core.ChatStream) []string {
	t.Helper()
	var out []string
	for {
		d, err := s.Recv()
		if err != nil {
			return out
		}
		out = append(out, d.Content)
	}
}

func TestWrapStream_RecordsTerminalUsage(t *testing.T) {
	inner := &sliceStream{deltas: []core.ChatDelta{
		{Content: "Hel"},
		{Content: "lo"},
		{Usage: &core.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
	}}
	rec := &captureRecorder{}
	ctx := core.WithRequestID(context.Background(), "req-s")

	s := WrapStream(ctx, inner, rec, "openai-chat", "openai", "gpt-4o-mini")
	assert.Equal(t, []string{"Hel", "lo", ""}, drain(t, s))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.Len(t, rec.entries, 1, "usage is recorded once")
	e := rec.entries[0]
	assert.True(t, e.Streamed)
	assert.Equal(t, "req-s", e.RequestID)
	assert.Equal(t, "openai-chat", e.Service)
	assert.Equal(t, "gpt-4o-mini", e.Model)
	assert.Equal(t, 7, e.TotalTokens)
	assert.Equal(t, 2, inner.closed, "Close is forwarded every time")
}

func TestWrapStream_NoUsageRecordsNothing(t *testing.T) {
	inner := &sliceStream{deltas: []core.ChatDelta{{Content: "x"}}, err: errors.New("reset")}
	rec := &captureRecorder{}

	s := WrapStream(context.Background(), inner, rec, "claude-chat", "anthropic", "")
	drain(t, s)
	require.NoError(t, s.Close())
	assert.Empty(t, rec.entries)
}

func TestWrapStream_NilRecorderIsPassthrough(t *testing.T) {
	inner := &sliceStream{}
	assert.Same(t, inner, WrapStream(context.Background(), inner, nil, "openai-chat", "openai", "").(*sliceStream))
}
