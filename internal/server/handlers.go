// Package server provides HTTP handlers and server setup for the gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"lingogate/internal/core"
	"lingogate/internal/observability"
	"lingogate/internal/sessions"
	"lingogate/internal/usage"
)

// Backends are the upstream adapters and stores the handlers dispatch to.
// A nil field makes the services that need it answer "not configured".
type Backends struct {
	OpenAIChat       core.ChatProvider
	MistralChat      core.RawChatProvider
	ClaudeChat       core.ChatProvider
	Assistant        core.AssistantProvider
	OpenAISpeech     core.SpeechSynthesizer
	ElevenLabs       core.SpeechSynthesizer
	ElevenLabsStream core.SpeechStreamer
	AzureSpeech      core.SpeechSynthesizer
	Transcriber      core.Transcriber
	AzureToken       core.TokenIssuer
	Sessions         sessions.Store
	// Usage records token consumption of chat services; nil disables recording.
	Usage usage.Recorder
	// UsageReport serves GET /admin/usage; nil answers "not configured".
	UsageReport usage.Reader
}

// Handler holds the HTTP handlers
type Handler struct {
	backends Backends
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler creates a new handler. metrics may be nil.
func NewHandler(backends Backends, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backends: backends,
		metrics:  metrics,
		logger:   logger,
	}
}

// Service handles POST /api/:service
func (h *Handler) Service(c echo.Context) error {
	name := c.Param("service")
	svc, def, ok := lookupService(name)
	if !ok {
		h.logger.Warn("invalid service", "service", name)
		return handleError(c, core.NewInvalidRequestError("Invalid service", nil))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return handleError(c, core.NewInvalidRequestErrorWithStatus(he.Code, http.StatusText(he.Code), err))
		}
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	mode := def.mode(gjson.GetBytes(body, "stream").Bool())
	h.logger.Info("service request",
		"service", string(svc),
		"mode", mode.String(),
		"body_bytes", len(body),
		"request_id", core.GetRequestID(c.Request().Context()),
	)
	h.metrics.ObserveService(string(svc), mode.String())

	if !def.ready(&h.backends) {
		return handleError(c, core.NewConfigurationError(string(svc)))
	}
	return def.handle(h, c, svc, body, mode)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody unmarshals a JSON request body. An empty body decodes as {} so
// that field validation reports what is missing.
func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return core.NewInvalidRequestError("invalid request body", err)
	}
	return nil
}

// statusClientClosedRequest is the non-standard status logged for requests the client abandoned.
const statusClientClosedRequest = 499

// handleError converts gateway errors to the appropriate HTTP response.
// Anything else is logged and reported as a generic 500.
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	// The client went away before any output; nobody reads the answer.
	if errors.Is(err, context.Canceled) {
		slog.Debug("client disconnected",
			"path", c.Request().URL.Path,
			"request_id", core.GetRequestID(c.Request().Context()),
		)
		return c.NoContent(statusClientClosedRequest)
	}

	slog.Error("unhandled error",
		"error", err,
		"path", c.Request().URL.Path,
		"request_id", core.GetRequestID(c.Request().Context()),
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": core.ClientMessage(err),
	})
}
