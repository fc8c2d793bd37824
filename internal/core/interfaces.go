package core

import (
	"context"
	"io"
)

// ChatStream is an ordered sequence of deltas from one upstream call.
// Recv returns io.EOF after the last delta. Close releases the upstream
// connection and is safe to call more than once.
type ChatStream interface {
	Recv() (ChatDelta, error)
	Close() error
}

// ChatProvider is implemented by providers that answer chat requests either
// in one piece or as a decoded delta stream.
type ChatProvider interface {
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	StreamChat(ctx context.Context, req *ChatRequest) (ChatStream, error)
}

// RawChatProvider returns the upstream streaming body untouched (caller must close).
type RawChatProvider interface {
	StreamChatRaw(ctx context.Context, req *ChatRequest) (io.ReadCloser, error)
}

// AssistantProvider runs a request against a stateful upstream conversation.
type AssistantProvider interface {
	// RunAssistant creates a run and polls it until it reaches a terminal state.
	RunAssistant(ctx context.Context, req *ChatRequest) (*ChatResult, error)
	// StreamAssistant returns the conversation handle and the run's delta stream.
	StreamAssistant(ctx context.Context, req *ChatRequest) (string, ChatStream, error)
}

// SpeechSynthesizer returns complete audio for a speech request.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req *SpeechRequest) (*AudioResult, error)
}

// SpeechStreamer returns the upstream audio byte stream (caller must close).
type SpeechStreamer interface {
	StreamSpeech(ctx context.Context, req *SpeechRequest) (io.ReadCloser, error)
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*Transcription, error)
}

// TokenIssuer mints short-lived credentials for client-side SDKs.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (*SpeechToken, error)
}
