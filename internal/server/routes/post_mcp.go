package routes

import (
	"io"
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// MCPHandler serves one JSON-RPC message. Notifications are acknowledged
// with 202 and no body.
func MCPHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)
	resp := cc.App.RPC.Handle(c.Request().Context(), cc.Creds, body)
	if resp == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, resp)
}
