package routes

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/prospect/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

func LookupHandler(c echo.Context) error {
	params := lookupParams{Query: strings.TrimSpace(c.QueryParam("query"))}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid limit"})
		}
		params.Limit = limit
	}
	if v := c.QueryParam("size_weight"); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid size_weight"})
		}
		params.SizeWeight = &w
	}
	if err := c.Validate(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required parameter: query"})
	}

	cc := c.(*middleware.AppContext)
	entry := lookupCompany(c.Request().Context(), cc.App, cc.Creds, params)
	if entry.Err != nil {
		return c.JSON(errorStatus(entry.Err), entry)
	}
	return c.JSON(http.StatusOK, entry)
}

// EmbedManyHandler embeds a comma separated list of texts and answers with
// one vector per list item. Empty items are rejected.
func EmbedManyHandler(c echo.Context) error {
	raw := c.QueryParam("query")
	if strings.TrimSpace(raw) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required parameter: query"})
	}
	params := embedManyParams{Queries: strings.Split(raw, ",")}
	if i := blankQuery(params.Queries); i >= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("Empty query at position %d", i)})
	}
	if err := c.Validate(&params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing required parameter: query"})
	}

	cc := c.(*middleware.AppContext)
	res, err := embedMany(c.Request().Context(), cc.App, params)
	if err != nil {
		return c.JSON(errorStatus(err), map[string]string{"message": err.Message})
	}
	return c.JSON(http.StatusOK, res)
}
