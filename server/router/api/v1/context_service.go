package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetConversationContext returns the stored context for a session, creating a
// default one if the session has never been seen.
func (s *APIV1Service) GetConversationContext(c echo.Context) error {
	conv, err := s.Manager.GetContext(c.Request().Context(), c.Param("user"), c.Param("session"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversationContext removes one session's context. Deleting a session
// that does not exist still succeeds.
func (s *APIV1Service) DeleteConversationContext(c echo.Context) error {
	if err := s.Manager.ClearContext(c.Request().Context(), c.Param("user"), c.Param("session")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteUserContexts removes every session context belonging to the user.
func (s *APIV1Service) DeleteUserContexts(c echo.Context) error {
	if err := s.Manager.ClearContext(c.Request().Context(), c.Param("user"), ""); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
