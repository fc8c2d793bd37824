package openai

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"lingogate/internal/core"
	"lingogate/internal/pkg/llmclient"
)

const transcriptionModel = "whisper-1"

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file to audio/transcriptions.
func (p *Provider) Transcribe(ctx context.Context, req *core.TranscriptionRequest) (*core.Transcription, error) {
	if err := p.requireKey(); err != nil {
		return nil, err
	}
	if len(req.Audio) == 0 {
		return nil, core.NewInvalidRequestError("audio file is required", nil)
	}

	body, contentType, err := transcriptionForm(req)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to encode audio upload", err)
	}

	var resp transcriptionResponse
	err = p.client.Do(ctx, llmclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/audio/transcriptions",
		RawBody:     body,
		ContentType: contentType,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &core.Transcription{Text: resp.Text}, nil
}

func transcriptionForm(req *core.TranscriptionRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(filename)+`"`)
	if req.ContentType != "" {
		header.Set("Content-Type", req.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", transcriptionModel},
		{"language", req.Language},
		{"prompt", req.Prompt},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func escapeQuotes(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
