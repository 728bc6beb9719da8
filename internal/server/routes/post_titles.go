package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func TitlesHandler(c echo.Context) error {
	params := new(titlesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required field: titles"})
	}

	cc := c.(*middleware.AppContext)
	return c.JSON(http.StatusOK, lookupTitles(c.Request().Context(), cc.App, cc.Creds, *params))
}
