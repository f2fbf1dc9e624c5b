package catalog

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/claimsdb/internal/platform/apperr"
)

// RegisterRoutes mounts GET /schema. Any authenticated caller may read it.
//
//	GET /schema              every table and relationship
//	GET /schema?q=drg        keyword search
//	GET /schema?table=x      a single table
//	GET /schema?format=text  the plain text rendering
func RegisterRoutes(api *echo.Group) {
	api.GET("/schema", getSchema)
}

func getSchema(c echo.Context) error {
	res := Result{Tables: Tables(), Relationships: Relationships()}
	switch {
	case c.QueryParam("table") != "":
		var err error
		if res, err = Describe(c.QueryParam("table")); err != nil {
			return apperr.ToHTTP(err)
		}
	case c.QueryParam("q") != "":
		res = Search(c.QueryParam("q"))
	}

	if c.QueryParam("format") == "text" {
		var buf bytes.Buffer
		if err := FormatResult(&buf, res); err != nil {
			return err
		}
		return c.String(http.StatusOK, buf.String())
	}
	return c.JSON(http.StatusOK, res)
}
