package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetReportHandler(c echo.Context) error {
	params := new(reportStatusParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	cc := c.(*middleware.AppContext)
	status, err := reportStatus(c.Request().Context(), cc.App, cc.Creds, *params)
	if err != nil {
		if errors.Is(err, errReportsUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "Report storage is not available"})
		}
		logger.Error("[Reports] Failed to read report status", "report_id", params.ReportID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	return c.JSON(http.StatusOK, status)
}
