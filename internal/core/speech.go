package core

import "strings"

// MIMETypeMPEG is the content type of every audio payload the gateway returns.
const MIMETypeMPEG = "audio/mpeg"

// SpeechRequest is the uniform text-to-speech request. Each provider reads the
// subset of fields it understands.
type SpeechRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"selectedVoice,omitempty"`
	Language string `json:"selectedLanguage,omitempty"`
	// VoiceID overrides any language-to-voice mapping.
	VoiceID string `json:"voiceId,omitempty"`
	// Locale overrides the locale derived from the voice name.
	Locale string `json:"locale,omitempty"`

	Style       string   `json:"style,omitempty"`
	StyleDegree *float64 `json:"styleDegree,omitempty"`
	Rate        string   `json:"rate,omitempty"`
	Pitch       string   `json:"pitch,omitempty"`
	Volume      string   `json:"volume,omitempty"`

	LeadingSilenceMs  int `json:"leadingSilenceMs,omitempty"`
	TrailingSilenceMs int `json:"trailingSilenceMs,omitempty"`
}

// Validate rejects requests with nothing to say.
func (r *SpeechRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return NewInvalidRequestError("text is required", nil)
	}
	if r.LeadingSilenceMs < 0 || r.TrailingSilenceMs < 0 {
		return NewInvalidRequestError("silence durations must not be negative", nil)
	}
	return nil
}

// AudioResult is a complete synthesized audio buffer.
type AudioResult struct {
	Audio       []byte
	ContentType string
}

// TranscriptionRequest carries an uploaded audio file to a speech-to-text provider.
type TranscriptionRequest struct {
	Filename    string
	ContentType string
	Audio       []byte
	Language    string
	Prompt      string
}

// Transcription is the text recognized from an audio file.
type Transcription struct {
	Text string `json:"text"`
}

// SpeechToken is a short-lived credential for a client-side speech SDK.
type SpeechToken struct {
	Token  string `json:"token"`
	Region string `json:"region"`
}
