package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/report"

	"github.com/labstack/echo/v4"
)

// CreateReportHandler queues a report. The file is produced by the worker;
// its link is returned by GetReportHandler once ready.
func CreateReportHandler(c echo.Context) error {
	params := new(generateReportParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if _, err := report.ParseFormat(params.Format); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "file_format must be json or csv"})
	}

	cc := c.(*middleware.AppContext)
	res, err := enqueueReport(cc.App, cc.Creds, *params)
	if err != nil {
		if errors.Is(err, errQueueUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "Report generation is not available"})
		}
		logger.Error("[Reports] Failed to queue report", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to queue report"})
	}
	return c.JSON(http.StatusAccepted, res)
}
