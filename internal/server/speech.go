package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"lingogate/internal/core"
)

const maxUploadName = 255

func decodeSpeech(body []byte) (*core.SpeechRequest, error) {
	var req core.SpeechRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// synthesize answers a batch speech request with the complete audio buffer.
func synthesize(c echo.Context, synth core.SpeechSynthesizer, body []byte) error {
	req, err := decodeSpeech(body)
	if err != nil {
		return handleError(c, err)
	}
	res, err := synth.Synthesize(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = core.MIMETypeMPEG
	}
	return c.Blob(http.StatusOK, contentType, res.Audio)
}

func (h *Handler) openAITTS(c echo.Context, _ Service, body []byte, _ DeliveryMode) error {
	return synthesize(c, h.backends.OpenAISpeech, body)
}

func (h *Handler) elevenLabs(c echo.Context, _ Service, body []byte, _ DeliveryMode) error {
	return synthesize(c, h.backends.ElevenLabs, body)
}

func (h *Handler) azureTTS(c echo.Context, _ Service, body []byte, _ DeliveryMode) error {
	return synthesize(c, h.backends.AzureSpeech, body)
}

// elevenLabsStream relays synthesized audio as it is produced.
func (h *Handler) elevenLabsStream(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeSpeech(body)
	if err != nil {
		return handleError(c, err)
	}
	audio, err := h.backends.ElevenLabsStream.StreamSpeech(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return h.relayRaw(c, svc, audio, core.MIMETypeMPEG)
}

// Transcribe handles POST /api/transcribe
func (h *Handler) Transcribe(c echo.Context) error {
	if h.backends.Transcriber == nil {
		return handleError(c, core.NewConfigurationError("transcription"))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("audio file is required", err))
	}
	f, err := fh.Open()
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read audio file", err))
	}
	defer func() {
		_ = f.Close() //nolint:errcheck
	}()
	audio, err := io.ReadAll(f)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read audio file", err))
	}

	name := fh.Filename
	if len(name) > maxUploadName {
		name = name[:maxUploadName]
	}
	h.logger.Info("transcription request",
		"filename", name,
		"bytes", len(audio),
		"request_id", core.GetRequestID(c.Request().Context()),
	)

	res, err := h.backends.Transcriber.Transcribe(c.Request().Context(), &core.TranscriptionRequest{
		Filename:    name,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Audio:       audio,
		Language:    strings.TrimSpace(c.FormValue("language")),
		Prompt:      c.FormValue("prompt"),
	})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// AzureToken handles GET /get-azure-token
func (h *Handler) AzureToken(c echo.Context) error {
	if h.backends.AzureToken == nil {
		return handleError(c, core.NewConfigurationError("azure"))
	}
	token, err := h.backends.AzureToken.IssueToken(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, token)
}
