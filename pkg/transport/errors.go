package transport

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
)

// mapCoordinationError maps component errors to HTTP error responses by
// their taxonomy kind.
func mapCoordinationError(err error) *echo.HTTPError {
	switch coordinationerr.KindOf(err) {
	case coordinationerr.KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case coordinationerr.KindAlreadyExists:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case coordinationerr.KindInvalidArgument:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case coordinationerr.KindInvalidTransition:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case coordinationerr.KindCapacityExceeded:
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case coordinationerr.KindTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case coordinationerr.KindNotOwner:
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case coordinationerr.KindConflictUnresolved:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case coordinationerr.KindIntegrityFailure:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case coordinationerr.KindUnavailable:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		// Unexpected error
		slog.Error("Unexpected coordination error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
