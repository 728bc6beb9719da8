package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func ParseQueryHandler(c echo.Context) error {
	params := new(parseQueryParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required field: query"})
	}

	cc := c.(*middleware.AppContext)
	res := cc.App.Pipeline.ParseQuery(c.Request().Context(), cc.Creds, params.Query)
	if res.Error != nil {
		return c.JSON(errorStatus(res.Error), res)
	}
	return c.JSON(http.StatusOK, res)
}
