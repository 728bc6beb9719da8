package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// LookupManyHandler resolves a list of company names. Per-name failures are
// reported on their entries and do not fail the request.
func LookupManyHandler(c echo.Context) error {
	params := new(lookupManyParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required field: queries"})
	}

	cc := c.(*middleware.AppContext)
	return c.JSON(http.StatusOK, lookupMany(c.Request().Context(), cc.App, cc.Creds, *params))
}
