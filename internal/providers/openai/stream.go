package openai

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
)

// chatCompletionChunk is one data frame of a streamed chat completion.
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// chatStream decodes an OpenAI-compatible SSE body into deltas.
type chatStream struct {
	body      io.ReadCloser
	events    *llmclient.EventReader
	closeOnce sync.Once
	done      bool
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{
		body:   body,
		events: llmclient.NewEventReader(body),
	}
}

// Recv returns the next non-empty delta, or io.EOF after [DONE].
func (s *chatStream) Recv() (core.ChatDelta, error) {
	if s.done {
		return core.ChatDelta{}, io.EOF
	}
	for {
		ev, err := s.events.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return core.ChatDelta{}, io.EOF
			}
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, "stream interrupted", err)
		}
		if ev.Done() {
			s.done = true
			return core.ChatDelta{}, io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal(ev.Data, &chunk); err != nil {
			// Keep-alives and vendor extensions are not JSON chunks.
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return core.ChatDelta{}, core.NewProviderError(providerName, http.StatusBadGateway, chunk.Error.Message, nil)
		}

		var delta core.ChatDelta
		if len(chunk.Choices) > 0 {
			delta.Content = chunk.Choices[0].Delta.Content
		}
		delta.Usage = chunk.Usage.toCore()
		if delta.Content == "" && delta.Usage == nil {
			continue
		}
		return delta, nil
	}
}

// Close releases the upstream connection.
func (s *chatStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
