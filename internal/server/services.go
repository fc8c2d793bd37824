package server

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// Service is the closed set of names accepted by POST /api/:service.
type Service string

const (
	ServiceOpenAIChat              Service = "openai-chat"
	ServiceMistralChat             Service = "mistral-chat"
	ServiceClaudeChat              Service = "claude-chat"
	ServiceAssistantAnalysis       Service = "assistant-analysis"
	ServiceAssistantAnalysisStream Service = "assistant-analysis-stream"
	ServiceAnalysis                Service = "analysis"
	ServiceOpenAITTS               Service = "openai-tts"
	ServiceElevenLabs              Service = "elevenlabs"
	ServiceAzureTTS                Service = "azure-tts"
	ServiceElevenLabsStream        Service = "elevenlabs-stream"
	ServiceInsertUser              Service = "insert-user"
	ServiceUpdateUser              Service = "update-user"
)

// provider names the upstream a service calls, as used in usage records.
func (s Service) provider() string {
	switch s {
	case ServiceOpenAIChat, ServiceAssistantAnalysis, ServiceAssistantAnalysisStream, ServiceAnalysis, ServiceOpenAITTS:
		return "openai"
	case ServiceMistralChat:
		return "mistral"
	case ServiceClaudeChat:
		return "anthropic"
	case ServiceElevenLabs, ServiceElevenLabsStream:
		return "elevenlabs"
	case ServiceAzureTTS:
		return "azure"
	}
	return ""
}

// threaded reports whether the service keeps conversation state upstream.
func (s Service) threaded() bool {
	return s == ServiceAssistantAnalysis || s == ServiceAssistantAnalysisStream
}

// DeliveryMode is how a service writes its response.
type DeliveryMode int

const (
	// ModeBatch answers with one JSON document or one audio buffer.
	ModeBatch DeliveryMode = iota
	// ModeSSE relays decoded deltas as Server-Sent Events.
	ModeSSE
	// ModeRaw forwards upstream bytes verbatim.
	ModeRaw
)

func (m DeliveryMode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeSSE:
		return "sse"
	case ModeRaw:
		return "raw"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// serviceFunc handles one service once the router has read the body and chosen the mode.
type serviceFunc func(h *Handler, c echo.Context, svc Service, body []byte, mode DeliveryMode) error

type serviceDef struct {
	// modes lists the supported delivery modes; the first is the default.
	modes []DeliveryMode
	// ready reports whether the backend the service needs was wired.
	ready  func(b *Backends) bool
	handle serviceFunc
}

// mode picks SSE when the client asked to stream and the service supports it,
// otherwise the service's default mode.
func (d serviceDef) mode(wantStream bool) DeliveryMode {
	if wantStream {
		for _, m := range d.modes {
			if m == ModeSSE {
				return ModeSSE
			}
		}
	}
	return d.modes[0]
}

var services = map[Service]serviceDef{
	ServiceOpenAIChat: {
		modes:  []DeliveryMode{ModeSSE},
		ready:  func(b *Backends) bool { return b.OpenAIChat != nil },
		handle: (*Handler).openAIChat,
	},
	ServiceMistralChat: {
		modes:  []DeliveryMode{ModeRaw},
		ready:  func(b *Backends) bool { return b.MistralChat != nil },
		handle: (*Handler).mistralChat,
	},
	ServiceClaudeChat: {
		modes:  []DeliveryMode{ModeBatch, ModeSSE},
		ready:  func(b *Backends) bool { return b.ClaudeChat != nil },
		handle: (*Handler).claudeChat,
	},
	ServiceAssistantAnalysis: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.Assistant != nil },
		handle: (*Handler).assistantAnalysis,
	},
	ServiceAssistantAnalysisStream: {
		modes:  []DeliveryMode{ModeSSE},
		ready:  func(b *Backends) bool { return b.Assistant != nil },
		handle: (*Handler).assistantAnalysisStream,
	},
	ServiceAnalysis: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.OpenAIChat != nil },
		handle: (*Handler).analysis,
	},
	ServiceOpenAITTS: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.OpenAISpeech != nil },
		handle: (*Handler).openAITTS,
	},
	ServiceElevenLabs: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.ElevenLabs != nil },
		handle: (*Handler).elevenLabs,
	},
	ServiceAzureTTS: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.AzureSpeech != nil },
		handle: (*Handler).azureTTS,
	},
	ServiceElevenLabsStream: {
		modes:  []DeliveryMode{ModeRaw},
		ready:  func(b *Backends) bool { return b.ElevenLabsStream != nil },
		handle: (*Handler).elevenLabsStream,
	},
	ServiceInsertUser: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.Sessions != nil },
		handle: (*Handler).insertUser,
	},
	ServiceUpdateUser: {
		modes:  []DeliveryMode{ModeBatch},
		ready:  func(b *Backends) bool { return b.Sessions != nil },
		handle: (*Handler).updateUser,
	},
}

// lookupService resolves a path parameter against the closed service set.
func lookupService(name string) (Service, serviceDef, bool) {
	svc := Service(name)
	def, ok := services[svc]
	return svc, def, ok
}
