package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"lingogate/internal/core"
	"lingogate/internal/usage"
)

const (
	defaultUsageDays = 30
	maxUsageDays     = 365
)

type usageSummaryResponse struct {
	Since    time.Time             `json:"since"`
	Days     int                   `json:"days"`
	Services []usage.ServiceTotals `json:"services"`
}

// UsageSummary handles GET /admin/usage?days=N with per-service token totals
// for the last N days.
func (h *Handler) UsageSummary(c echo.Context) error {
	if h.backends.UsageReport == nil {
		return handleError(c, core.NewConfigurationError("usage tracking"))
	}

	days := defaultUsageDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUsageDays {
			return handleError(c, core.NewInvalidRequestError("days must be an integer between 1 and 365", err))
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	totals, err := h.backends.UsageReport.Summarize(c.Request().Context(), since)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, usageSummaryResponse{Since: since, Days: days, Services: totals})
}
