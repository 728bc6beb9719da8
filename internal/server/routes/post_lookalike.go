package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/pkg/common"

	"github.com/labstack/echo/v4"
)

func LookalikeFromTermHandler(c echo.Context) error {
	params := new(lookalikeFromTermParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required field: query"})
	}

	cc := c.(*middleware.AppContext)
	return lookalikeResponse(c, lookalikeFromTerm(c.Request().Context(), cc.App, cc.Creds, *params))
}

func LookalikeFromIDsHandler(c echo.Context) error {
	params := new(lookalikeFromIDsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required field: company_ids"})
	}

	cc := c.(*middleware.AppContext)
	return lookalikeResponse(c, lookalikeFromIDs(c.Request().Context(), cc.App, cc.Creds, *params))
}

func lookalikeResponse(c echo.Context, res *common.LookalikeResult) error {
	if res.Err != nil {
		return c.JSON(errorStatus(res.Err), res)
	}
	return c.JSON(http.StatusOK, res)
}
