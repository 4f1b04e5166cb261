package alerts

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	inbox Inbox
}

func NewHandler(inbox Inbox) *Handler {
	return &Handler{inbox: inbox}
}

// ListNotifications returns current user's notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	items, err := h.inbox.List(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": items})
}

// MarkNotificationRead marks specific notification as read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	nid := c.Param("id")
	if nid == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing notification id"})
	}

	err := h.inbox.MarkRead(c.Request().Context(), userID, nid)
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}
