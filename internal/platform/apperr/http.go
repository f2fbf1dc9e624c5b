package apperr

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// ToHTTP converts err into an echo.HTTPError carrying the status from
// HTTPStatus. Validation failures keep their per-field detail; unknown
// errors are reported without their internal message.
func ToHTTP(err error) error {
	status := HTTPStatus(err)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(status, map[string]interface{}{
			"message": ve.Error(),
			"fields":  ve.Fields,
		})
	case status >= 500:
		return echo.NewHTTPError(status, "internal error").SetInternal(err)
	default:
		return echo.NewHTTPError(status, err.Error())
	}
}
