package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func HealthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// PingHandler answers wake-up calls of hosting platforms that suspend idle
// instances.
func PingHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": "Server is active"})
}
