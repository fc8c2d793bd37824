// Package azure provides Azure Speech integration: SSML synthesis over REST
// and short-lived tokens for the browser speech SDK.
package azure

import (
	"context"
	"net/http"
	"strings"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
	"lingogate/internal/providers"
	"lingogate/internal/ssml"
)

const (
	providerName = "azure"

	// DefaultVoice is used when the requested voice is missing or not allowed.
	DefaultVoice = "fr-FR-DeniseNeural"
	outputFormat = "audio-24khz-48kbitrate-mono-mp3"
	userAgent    = "lingogate"
)

// Voices is the allow-list of neural voices clients may select.
var Voices = []string{
	"fr-FR-DeniseNeural",
	"fr-FR-HenriNeural",
	"fr-FR-VivienneMultilingualNeural",
	"en-US-JennyNeural",
	"en-US-GuyNeural",
	"en-US-AriaNeural",
	"es-ES-ElviraNeural",
	"de-DE-KatjaNeural",
	"it-IT-ElsaNeural",
}

// Config holds the Azure Speech settings the adapter needs.
type Config struct {
	Key    string
	Region string
	// TTSBaseURL and TokenBaseURL override the regional endpoints.
	TTSBaseURL   string
	TokenBaseURL string
}

// Provider implements core.SpeechSynthesizer and core.TokenIssuer for Azure Speech
type Provider struct {
	tts    *llmclient.Client
	sts    *llmclient.Client
	key    string
	region string
	voices map[string]struct{}
}

// New creates a new Azure Speech provider.
func New(cfg Config, opts providers.ProviderOptions) *Provider {
	p := &Provider{
		key:    cfg.Key,
		region: cfg.Region,
		voices: make(map[string]struct{}, len(Voices)),
	}
	for _, v := range Voices {
		p.voices[v] = struct{}{}
	}

	ttsURL := cfg.TTSBaseURL
	if ttsURL == "" {
		ttsURL = "https://" + cfg.Region + ".tts.speech.microsoft.com"
	}
	tokenURL := cfg.TokenBaseURL
	if tokenURL == "" {
		tokenURL = "https://" + cfg.Region + ".api.cognitive.microsoft.com"
	}
	p.tts = llmclient.NewWithHTTPClient(opts.HTTPClient, providers.ClientConfig(providerName, ttsURL, opts), p.setHeaders)
	p.sts = llmclient.NewWithHTTPClient(opts.HTTPClient, providers.ClientConfig(providerName, tokenURL, opts), p.setHeaders)
	return p
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", p.key)
	req.Header.Set("User-Agent", userAgent)

	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-ClientTraceId", requestID)
	}
}

func (p *Provider) requireConfig() error {
	if err := providers.RequireCredential(providerName, p.key); err != nil {
		return err
	}
	return providers.RequireCredential(providerName, p.region)
}

// ResolveVoice returns voice when it is on the allow-list and DefaultVoice otherwise.
func (p *Provider) ResolveVoice(voice string) string {
	v := strings.TrimSpace(voice)
	if _, ok := p.voices[v]; ok {
		return v
	}
	return DefaultVoice
}

// BuildSSML renders the request as the SSML document Azure receives.
func (p *Provider) BuildSSML(req *core.SpeechRequest) string {
	return ssml.Build(ssml.Params{
		Text:              req.Text,
		Voice:             p.ResolveVoice(req.Voice),
		Locale:            req.Locale,
		Style:             req.Style,
		StyleDegree:       req.StyleDegree,
		Rate:              req.Rate,
		Pitch:             req.Pitch,
		Volume:            req.Volume,
		LeadingSilenceMs:  req.LeadingSilenceMs,
		TrailingSilenceMs: req.TrailingSilenceMs,
	})
}

// Synthesize posts the SSML document and returns the MP3 audio.
func (p *Provider) Synthesize(ctx context.Context, req *core.SpeechRequest) (*core.AudioResult, error) {
	if err := p.requireConfig(); err != nil {
		return nil, err
	}

	resp, err := p.tts.DoRaw(ctx, llmclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/cognitiveservices/v1",
		RawBody:     []byte(p.BuildSSML(req)),
		ContentType: "application/ssml+xml",
		Headers:     map[string]string{"X-Microsoft-OutputFormat": outputFormat},
	})
	if err != nil {
		return nil, err
	}
	return &core.AudioResult{Audio: resp.Body, ContentType: core.MIMETypeMPEG}, nil
}

// IssueToken exchanges the subscription key for a ten-minute bearer token.
func (p *Provider) IssueToken(ctx context.Context) (*core.SpeechToken, error) {
	if err := p.requireConfig(); err != nil {
		return nil, err
	}

	resp, err := p.sts.DoRaw(ctx, llmclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/sts/v1.0/issueToken",
		RawBody:     []byte{},
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(string(resp.Body))
	if token == "" {
		return nil, core.NewProviderError(providerName, http.StatusBadGateway, "empty token from speech service", nil)
	}
	return &core.SpeechToken{Token: token, Region: p.region}, nil
}
