package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"lingogate/internal/core"
	"lingogate/internal/sessions"
)

func (h *Handler) insertUser(c echo.Context, _ Service, body []byte, _ DeliveryMode) error {
	var s sessions.NewSession
	if err := decodeBody(body, &s); err != nil {
		return handleError(c, err)
	}
	if err := s.Validate(); err != nil {
		return handleError(c, err)
	}

	id, err := h.backends.Sessions.Insert(c.Request().Context(), &s)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) updateUser(c echo.Context, _ Service, body []byte, _ DeliveryMode) error {
	var u sessions.SessionUpdate
	if err := decodeBody(body, &u); err != nil {
		return handleError(c, err)
	}
	if err := u.Validate(); err != nil {
		return handleError(c, err)
	}

	if err := h.backends.Sessions.Update(c.Request().Context(), &u); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return handleError(c, core.NewNotFoundError("session not found"))
		}
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": u.ID, "updated": true})
}
