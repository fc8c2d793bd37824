// Package elevenlabs provides ElevenLabs text-to-speech integration, both
// buffered and streamed.
package elevenlabs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
	"lingogate/internal/providers"
)

const (
	providerName = "elevenlabs"

	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	outputFormat   = "mp3_44100_128"

	// DefaultLanguage is the table entry used when a request names no language.
	DefaultLanguage = "default"
)

// unsupportedLanguageMessage is returned for a language with no voice mapping.
const unsupportedLanguageMessage = "Not supported language"

// DefaultVoices maps the language names clients send to premade voice ids.
var DefaultVoices = map[string]string{
	"francais":      "ThT5KcBeYPX3keUQqHPh",
	"français":      "ThT5KcBeYPX3keUQqHPh",
	"french":        "ThT5KcBeYPX3keUQqHPh",
	"anglais":       "21m00Tcm4TlvDq8ikWAM",
	"english":       "21m00Tcm4TlvDq8ikWAM",
	"espagnol":      "EXAVITQu4vr4xnSDxMaL",
	"spanish":       "EXAVITQu4vr4xnSDxMaL",
	"allemand":      "ErXwobaYiN019PkySvjV",
	"german":        "ErXwobaYiN019PkySvjV",
	DefaultLanguage: "21m00Tcm4TlvDq8ikWAM",
}

// Config holds the ElevenLabs settings the adapter needs.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Voices replaces DefaultVoices when non-empty. Keys are matched case-insensitively.
	// A table without a "default" entry inherits the built-in one.
	Voices map[string]string
}

// Provider implements core.SpeechSynthesizer and core.SpeechStreamer for ElevenLabs
type Provider struct {
	client *llmclient.Client
	apiKey string
	model  string
	voices map[string]string
}

// New creates a new ElevenLabs provider.
func New(cfg Config, opts providers.ProviderOptions) *Provider {
	p := &Provider{apiKey: cfg.APIKey, model: cfg.Model}
	if p.model == "" {
		p.model = defaultModel
	}
	src := cfg.Voices
	if len(src) == 0 {
		src = DefaultVoices
	}
	p.voices = make(map[string]string, len(src))
	for lang, id := range src {
		p.voices[normalizeLanguage(lang)] = id
	}
	if _, ok := p.voices[DefaultLanguage]; !ok {
		p.voices[DefaultLanguage] = DefaultVoices[DefaultLanguage]
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, providers.ClientConfig(providerName, baseURL, opts), p.setHeaders)
	return p
}

// SetBaseURL allows configuring a custom base URL for the provider
func (p *Provider) SetBaseURL(url string) {
	p.client.SetBaseURL(url)
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", core.MIMETypeMPEG)
}

func normalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// ResolveVoice picks the voice id for req: an explicit voiceId wins, then the
// language table. An unmapped language is a 400.
func (p *Provider) ResolveVoice(req *core.SpeechRequest) (string, error) {
	if id := strings.TrimSpace(req.VoiceID); id != "" {
		return id, nil
	}
	lang := normalizeLanguage(req.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	id, ok := p.voices[lang]
	if !ok {
		return "", core.NewInvalidRequestError(unsupportedLanguageMessage, nil)
	}
	return id, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// prepare validates the request before any network I/O.
func (p *Provider) prepare(req *core.SpeechRequest, stream bool) (llmclient.Request, error) {
	voiceID, err := p.ResolveVoice(req)
	if err != nil {
		return llmclient.Request{}, err
	}
	if err := providers.RequireCredential(providerName, p.apiKey); err != nil {
		return llmclient.Request{}, err
	}

	endpoint := "/v1/text-to-speech/" + url.PathEscape(voiceID)
	if stream {
		endpoint += "/stream"
	}
	return llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: endpoint + "?output_format=" + outputFormat,
		Body: speechRequest{
			Text:          req.Text,
			ModelID:       p.model,
			VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		},
	}, nil
}

// Synthesize renders the whole text to an MP3 buffer.
func (p *Provider) Synthesize(ctx context.Context, req *core.SpeechRequest) (*core.AudioResult, error) {
	upstreamReq, err := p.prepare(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.DoRaw(ctx, upstreamReq)
	if err != nil {
		return nil, err
	}
	return &core.AudioResult{Audio: resp.Body, ContentType: core.MIMETypeMPEG}, nil
}

// StreamSpeech returns the MP3 body as ElevenLabs produces it. The caller must close it.
func (p *Provider) StreamSpeech(ctx context.Context, req *core.SpeechRequest) (io.ReadCloser, error) {
	upstreamReq, err := p.prepare(req, true)
	if err != nil {
		return nil, err
	}
	return p.client.DoStream(ctx, upstreamReq)
}
