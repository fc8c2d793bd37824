package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"lingogate/internal/core"
	"lingogate/internal/observability"
	"lingogate/internal/relay"
	"lingogate/internal/usage"
)

// decodeChat parses and validates a chat body. Only assistant services
// continue a thread; elsewhere a thread id does not stand in for messages.
func decodeChat(svc Service, body []byte) (*core.ChatRequest, error) {
	var req core.ChatRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, err
	}
	if !svc.threaded() {
		req.ThreadID = ""
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// relayChat relays an open delta stream as SSE. A failure before any frame
// is written is answered as a JSON error.
func (h *Handler) relayChat(c echo.Context, svc Service, stream core.ChatStream, framer relay.Framer, prelude any) error {
	err := relay.Stream(c.Request().Context(), c.Response(), stream, relay.Options{
		Framer:  framer,
		Prelude: prelude,
		OnFrame: func(kind string) { h.metrics.ObserveFrame(string(svc), kind) },
		Logger:  h.logger.With("service", string(svc)),
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// relayRaw forwards an upstream body verbatim.
func (h *Handler) relayRaw(c echo.Context, svc Service, body io.ReadCloser, contentType string) error {
	err := relay.Bytes(c.Request().Context(), c.Response(), body, relay.BytesOptions{
		ContentType: contentType,
		OnChunk:     func(int) { h.metrics.ObserveFrame(string(svc), observability.FrameBytes) },
		Logger:      h.logger.With("service", string(svc)),
	})
	if err != nil {
		return handleError(c, err)
	}
	return nil
}

// meter wraps stream so the usage on its terminal delta is recorded on close.
func (h *Handler) meter(c echo.Context, svc Service, req *core.ChatRequest, stream core.ChatStream) core.ChatStream {
	if h.backends.Usage == nil {
		return stream
	}
	return usage.WrapStream(c.Request().Context(), stream, h.backends.Usage, string(svc), svc.provider(), req.Model)
}

// recordUsage records the usage of a batch chat result, if it carries any.
func (h *Handler) recordUsage(c echo.Context, svc Service, req *core.ChatRequest, res *core.ChatResult) {
	if h.backends.Usage == nil || res == nil {
		return
	}
	provider := res.Provider
	if provider == "" {
		provider = svc.provider()
	}
	model := res.Model
	if model == "" {
		model = req.Model
	}
	if e := usage.NewEntry(c.Request().Context(), string(svc), provider, model, res.Usage); e != nil {
		e.ResponseID = res.ID
		h.backends.Usage.Record(e)
	}
}

func (h *Handler) openAIChat(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	stream, err := h.backends.OpenAIChat.StreamChat(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return h.relayChat(c, svc, h.meter(c, svc, req, stream), relay.DeltaFrame, nil)
}

func (h *Handler) mistralChat(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	upstream, err := h.backends.MistralChat.StreamChatRaw(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return h.relayRaw(c, svc, upstream, "text/event-stream")
}

// claudeChat answers in one piece, or streams in the OpenAI chunk shape when
// the body sets "stream": true.
func (h *Handler) claudeChat(c echo.Context, svc Service, body []byte, mode DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	ctx := c.Request().Context()

	if mode == ModeSSE {
		stream, err := h.backends.ClaudeChat.StreamChat(ctx, req)
		if err != nil {
			return handleError(c, err)
		}
		return h.relayChat(c, svc, h.meter(c, svc, req, stream), relay.ChoicesFrame, nil)
	}

	res, err := h.backends.ClaudeChat.ChatCompletion(ctx, req)
	if err != nil {
		return handleError(c, err)
	}
	h.recordUsage(c, svc, req, res)
	return c.JSON(http.StatusOK, res)
}

// assistantAnalysis runs the request on an assistant thread and waits for the result.
func (h *Handler) assistantAnalysis(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	res, err := h.backends.Assistant.RunAssistant(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	h.recordUsage(c, svc, req, res)
	return c.JSON(http.StatusOK, res)
}

// assistantAnalysisStream streams an assistant run. The first frame carries
// the thread id so the client can continue the conversation.
func (h *Handler) assistantAnalysisStream(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	threadID, stream, err := h.backends.Assistant.StreamAssistant(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	return h.relayChat(c, svc, h.meter(c, svc, req, stream), relay.DeltaFrame, map[string]string{"threadId": threadID})
}

// analysisResponse is a chat result whose content is also returned parsed
// when the model produced valid JSON.
type analysisResponse struct {
	*core.ChatResult
	Analysis json.RawMessage `json:"analysis,omitempty"`
}

func (h *Handler) analysis(c echo.Context, svc Service, body []byte, _ DeliveryMode) error {
	req, err := decodeChat(svc, body)
	if err != nil {
		return handleError(c, err)
	}
	req.JSONResponse = true
	req.Stream = false

	res, err := h.backends.OpenAIChat.ChatCompletion(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}
	h.recordUsage(c, svc, req, res)

	out := analysisResponse{ChatResult: res}
	if gjson.Valid(res.Content) {
		out.Analysis = json.RawMessage(res.Content)
	} else {
		h.logger.Warn("analysis content is not valid JSON", "bytes", len(res.Content))
	}
	return c.JSON(http.StatusOK, out)
}
