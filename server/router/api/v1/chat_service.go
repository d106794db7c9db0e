package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/server/assistant"
)

// chatUserKey keys the chat rate limiter by client address.
func chatUserKey(c echo.Context) string {
	return c.RealIP()
}

// Chat handles one user turn. Provider exhaustion comes back as a 200 with a
// degraded body; only malformed requests and internal failures are errors.
func (s *APIV1Service) Chat(c echo.Context) error {
	var req assistant.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	resp, err := s.Pipeline.Chat(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// httpError maps coded core errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case coreerrors.HasCode(err, coreerrors.ErrCodeIdentity),
		coreerrors.HasCode(err, coreerrors.ErrCodeValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case coreerrors.HasCode(err, coreerrors.ErrCodeNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case coreerrors.HasCode(err, coreerrors.ErrCodeTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
