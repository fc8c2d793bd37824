package openai

import (
	"context"
	"net/http"
	"strings"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
)

const (
	speechModel = "tts-1"
	// DefaultVoice is used when the requested voice is missing or unknown.
	DefaultVoice = "fable"
)

var voices = map[string]struct{}{
	"alloy": {}, "ash": {}, "coral": {}, "echo": {}, "fable": {},
	"onyx": {}, "nova": {}, "sage": {}, "shimmer": {},
}

// ResolveVoice returns the lower-cased voice when it is a known OpenAI voice
// and DefaultVoice otherwise.
func ResolveVoice(voice string) string {
	v := strings.ToLower(strings.TrimSpace(voice))
	if _, ok := voices[v]; ok {
		return v
	}
	return DefaultVoice
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize renders text to MP3 with the audio/speech endpoint.
func (p *Provider) Synthesize(ctx context.Context, req *core.SpeechRequest) (*core.AudioResult, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}

	resp, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/audio/speech",
		Body: speechRequest{
			Model:          speechModel,
			Input:          req.Text,
			Voice:          ResolveVoice(req.Voice),
			ResponseFormat: "mp3",
		},
	})
	if err != nil {
		return nil, err
	}
	return &core.AudioResult{Audio: resp.Body, ContentType: core.MIMETypeMPEG}, nil
}
