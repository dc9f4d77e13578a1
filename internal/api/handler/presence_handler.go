package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

// PresenceHandler records viewer heartbeats and answers "is this viewer online".
type PresenceHandler struct {
	tracker ports.PresenceTracker
	now     func() time.Time
}

func NewPresenceHandler(tracker ports.PresenceTracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, now: time.Now}
}

// Heartbeat handles POST /v1/presence/heartbeat.
//
// @Summary      Record a viewer heartbeat
// @Tags         presence
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  heartbeatRequest  true  "Viewer"
// @Success      204
// @Failure      422  {object}  errorResponse
// @Router       /v1/presence/heartbeat [post]
func (h *PresenceHandler) Heartbeat(c echo.Context) error {
	role, own, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	clientID := req.ClientID
	if role == domain.RoleClient {
		clientID = own
	}

	err = h.tracker.Heartbeat(c.Request().Context(), domain.Presence{
		ViewerID: req.ViewerID,
		Role:     role,
		ClientID: clientID,
		SeenAt:   h.now().UTC(),
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /v1/presence/:viewer_id.
//
// @Summary      Look up a viewer's presence
// @Tags         presence
// @Produce      json
// @Security     BearerAuth
// @Param        viewer_id  path      string  true  "Viewer id"
// @Success      200        {object}  presenceResponse
// @Router       /v1/presence/{viewer_id} [get]
func (h *PresenceHandler) Get(c echo.Context) error {
	if _, _, err := ctxClaims(c); err != nil {
		return err
	}
	viewerID := c.Param("viewer_id")

	p, err := h.tracker.Lookup(c.Request().Context(), viewerID)
	if err != nil {
		return err
	}
	if p == nil {
		return c.JSON(http.StatusOK, presenceResponse{ViewerID: viewerID, Online: false})
	}
	return c.JSON(http.StatusOK, presenceResponse{
		ViewerID: p.ViewerID,
		Online:   true,
		Role:     p.Role,
		ClientID: p.ClientID,
		SeenAt:   p.SeenAt,
	})
}
